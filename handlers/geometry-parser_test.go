package handlers

import (
	"errors"
	"testing"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func TestParseRecord_SkipsBadFields(t *testing.T) {
	parser := NewParser(geos.NewContext(), testFields, -1)
	record := store.GeometryRecord{
		ID: "r1",
		Fields: map[string]any{
			"1": []any{[]any{[]any{0.0, 0.0}, []any{1.0, 0.0}, []any{1.0, 1.0}, []any{0.0, 1.0}}},
			"2": "not coordinates",
			"3": [][][]float64{{{0, 0}, {1, 1}, {0, 0}}},
		},
	}

	diags := &Diagnostics{}
	polygons := parser.ParseRecord(record, diags)
	defer destroyPolygons(polygons)

	require.Len(t, polygons, 1)
	assert.Equal(t, "1", polygons[0].Field)
	assert.Equal(t, "r1", polygons[0].RecordID)
	assert.InDelta(t, 1.0, polygons[0].Geom.Area(), 1e-12)

	entries := diags.Entries()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, ParseError, e.Kind)
		assert.Equal(t, "r1", e.RecordID)
	}
	assert.Equal(t, "2", entries[0].Field)
	assert.Equal(t, "3", entries[1].Field)
}

func TestParseRecord_EmptyPayloadsAreSilent(t *testing.T) {
	parser := NewParser(geos.NewContext(), testFields, -1)
	record := store.GeometryRecord{
		ID: "r1",
		Fields: map[string]any{
			"1": nil,
			"2": []any{},
			"3": "",
		},
	}

	diags := &Diagnostics{}
	assert.Empty(t, parser.ParseRecord(record, diags))
	assert.Zero(t, diags.Len())
}

func TestParseRecord_IgnoresUnknownFields(t *testing.T) {
	parser := NewParser(geos.NewContext(), []string{"1"}, -1)
	record := store.GeometryRecord{
		ID:     "r1",
		Fields: map[string]any{"4": squarePayload(0, 0, 1)},
	}

	assert.Empty(t, parser.ParseRecord(record, &Diagnostics{}))
}

func TestParseRecord_EmptyOuterRing(t *testing.T) {
	parser := NewParser(geos.NewContext(), []string{"1"}, -1)
	record := store.GeometryRecord{
		ID:     "r1",
		Fields: map[string]any{"1": []any{[]any{}}},
	}

	diags := &Diagnostics{}
	assert.Empty(t, parser.ParseRecord(record, diags))
	require.Equal(t, 1, diags.Len())
	assert.Equal(t, ParseError, diags.Entries()[0].Kind)
}

func TestParseRecord_Precision(t *testing.T) {
	parser := NewParser(geos.NewContext(), []string{"1"}, 2)
	record := store.GeometryRecord{
		ID:     "r1",
		Fields: map[string]any{"1": [][][]float64{squareRing(0.001, 0.001, 1.123)}},
	}

	polygons := parser.ParseRecord(record, &Diagnostics{})
	require.Len(t, polygons, 1)
	bounds := polygons[0].Geom.Bounds()
	assert.InDelta(t, 0.0, bounds.MinX, 1e-9)
	assert.InDelta(t, 1.12, bounds.MaxX, 1e-9)
}

func TestParseField_DegenerateRing(t *testing.T) {
	parser := NewParser(geos.NewContext(), []string{"1"}, -1)
	_, derr := parser.parseField("r1", "1", [][][]float64{{{0, 0}, {0, 0}, {1, 1}}})
	require.NotNil(t, derr)
	assert.Equal(t, ParseError, derr.Kind)
	assert.True(t, errors.Is(derr, utils.ErrDegenerateRing))
}
