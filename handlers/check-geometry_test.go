package handlers

import (
	"context"
	"testing"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

var bowtie = [][][]float64{{{0, 0}, {1, 1}, {1, 0}, {0, 1}}}

func TestCheckGeometry(t *testing.T) {
	parser := NewParser(geos.NewContext(), []string{"1", "2"}, -1)
	record := store.GeometryRecord{
		ID:     "r1",
		Fields: map[string]any{"1": squarePayload(0, 0, 1), "2": bowtie},
	}

	polygons := parser.ParseRecord(record, &Diagnostics{})
	require.Len(t, polygons, 2)

	errs := CheckGeometry(polygons)
	require.Len(t, errs, 1)
	assert.Equal(t, "r1", errs[0].Ref)
	assert.Equal(t, "2", errs[0].Field)
	assert.Contains(t, errs[0].ErrorMessage, "Self-intersection")
}

func TestCheckRecords(t *testing.T) {
	mem := fixtureStore()
	writer, err := mem.Open(context.Background())
	require.NoError(t, err)
	_, err = writer.(store.RecordWriter).InsertRecord(context.Background(), map[string]any{"1": bowtie})
	require.NoError(t, err)
	require.NoError(t, writer.Close(context.Background()))

	errs, err := CheckRecords(context.Background(), mem, testFields, -1)
	require.NoError(t, err)

	byRef := make(map[string][]Error)
	for _, e := range errs {
		byRef[e.Ref] = append(byRef[e.Ref], e)
	}
	assert.NotContains(t, byRef, "1")
	assert.NotContains(t, byRef, "3")
	require.Len(t, byRef["4"], 2)
	assert.Equal(t, invalidRecordReason, byRef["4"][1].ErrorMessage)
	require.Len(t, byRef["5"], 1)
	assert.Contains(t, byRef["5"][0].ErrorMessage, "Self-intersection")

	assert.Zero(t, mem.UpdateCalls(), "checking writes nothing back")
}
