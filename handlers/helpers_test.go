package handlers

import (
	"testing"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

var testFields = []string{"1", "2", "3"}

func squareRing(x, y, size float64) [][]float64 {
	return [][]float64{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}}
}

func squarePayload(x, y, size float64) [][][]float64 {
	return [][][]float64{squareRing(x, y, size)}
}

func testPolygon(t *testing.T, gctx *geos.Context, recordID string, x, y, size float64) ParsedPolygon {
	t.Helper()
	g, err := utils.NewPolygonFromRing(gctx, squareRing(x, y, size))
	require.NoError(t, err)
	return ParsedPolygon{RecordID: recordID, Field: "1", Geom: g}
}

func testOptions() Options {
	return Options{
		Threshold:   0.5,
		Concurrency: 1,
		FieldNames:  testFields,
		Precision:   -1,
	}
}

func eventPairs(events []OverlapEvent) map[[2]string]int {
	out := make(map[[2]string]int)
	for _, e := range events {
		out[[2]string{e.SourceID, e.TargetID}]++
	}
	return out
}

// Memory ids are "1", "2", ... in insertion order.
func fixtureStore() *store.Memory {
	return store.NewMemory(
		map[string]any{"1": squarePayload(0, 0, 1)},                             // 1
		map[string]any{"2": squarePayload(0, 0, 1)},                             // 2: identical to 1
		map[string]any{"3": squarePayload(10, 10, 1)},                           // 3: far away
		map[string]any{"1": []any{[]any{[]any{"x", "y"}}}, "2": [][][]float64{}}, // 4: nothing parseable
	)
}
