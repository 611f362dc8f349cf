package utils

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func TestCoerceRings(t *testing.T) {
	var decoded any
	require.NoError(t, json.Unmarshal([]byte(`[[[0,0],[1,0],[1,1],[0,1]]]`), &decoded))

	tests := []struct {
		name    string
		payload any
		want    int
		wantErr bool
	}{
		{"typed", [][][]float64{{{0, 0}, {1, 0}, {1, 1}}}, 3, false},
		{"json decoded", decoded, 4, false},
		{"mixed numbers", []any{[]any{[]any{int32(0), int64(0)}, []any{1, float32(0)}, []any{1.0, 1.0}}}, 3, false},
		{"nil", nil, 0, true},
		{"string", "POLYGON((0 0,1 0,1 1,0 0))", 0, true},
		{"short coordinate", []any{[]any{[]any{1.0}}}, 0, true},
		{"typed short coordinate", [][][]float64{{{0, 0}, {1}}}, 0, true},
		{"non numeric", []any{[]any{[]any{"a", "b"}}}, 0, true},
		{"nan", []any{[]any{[]any{math.NaN(), 0.0}}}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rings, err := CoerceRings(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, rings)
			assert.Len(t, rings[0], tt.want)
		})
	}
}

func TestCloseRing(t *testing.T) {
	open := [][]float64{{0, 0}, {1, 0}, {1, 1}}
	closed := CloseRing(open)
	assert.Len(t, closed, 4)
	assert.Equal(t, []float64{0, 0}, closed[3])
	assert.Len(t, open, 3, "input must not be modified")

	assert.Len(t, CloseRing(closed), 4)
}

func TestDistinctVertices(t *testing.T) {
	assert.Equal(t, 3, DistinctVertices([][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 0}}))
	assert.Equal(t, 2, DistinctVertices([][]float64{{0, 0}, {1, 0}, {0, 0}}))
}

func TestTruncateRing(t *testing.T) {
	out := TruncateRing([][]float64{{0.123456789, 1.987654321}}, 3)
	assert.Equal(t, [][]float64{{0.123, 1.988}}, out)
}

func TestNewPolygonFromRing(t *testing.T) {
	gctx := geos.NewContext()

	polygon, err := NewPolygonFromRing(gctx, [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, polygon.Area(), 1e-12)

	_, err = NewPolygonFromRing(gctx, [][]float64{{0, 0}, {1, 0}, {0, 0}})
	assert.ErrorIs(t, err, ErrDegenerateRing)

	_, err = NewPolygonFromRing(gctx, nil)
	assert.ErrorIs(t, err, ErrEmptyPayload)
}

func TestNewPolygonFromRing_RecoversPanic(t *testing.T) {
	var (
		polygon *geos.Geom
		err     error
	)
	require.NotPanics(t, func() {
		polygon, err = NewPolygonFromRing(nil, [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}})
	})
	assert.Nil(t, polygon)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geos:")
}

func TestGeodesicArea(t *testing.T) {
	// One degree square at the equator is roughly 12364 km².
	area := GeodesicArea([][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}})
	assert.InEpsilon(t, 1.2364e10, area, 0.01)

	assert.Zero(t, GeodesicArea([][]float64{{0, 0}, {1, 1}}))
}
