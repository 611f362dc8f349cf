package handlers

import (
	"strconv"
	"testing"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/stretchr/testify/assert"
)

func numberedRecords(n int) []store.GeometryRecord {
	records := make([]store.GeometryRecord, n)
	for i := range records {
		records[i] = store.GeometryRecord{ID: strconv.Itoa(i + 1)}
	}
	return records
}

func TestBuildChunks(t *testing.T) {
	tests := []struct {
		name        string
		records     int
		concurrency int
		sizes       []int
	}{
		{"even split", 9, 3, []int{3, 3, 3}},
		{"remainder to last", 10, 3, []int{3, 3, 4}},
		{"remainder capped by workers", 10, 4, []int{2, 2, 2, 4}},
		{"fewer records than workers", 2, 5, []int{1, 1}},
		{"one worker", 7, 1, []int{7}},
		{"zero concurrency", 3, 0, []int{3}},
		{"no records", 0, 3, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := numberedRecords(tt.records)
			chunks := BuildChunks(records, tt.concurrency)

			var sizes []int
			next := 0
			for i, c := range chunks {
				assert.Equal(t, i, c.Index)
				sizes = append(sizes, len(c.Records))
				for _, r := range c.Records {
					assert.Equal(t, records[next].ID, r.ID, "chunks must be contiguous")
					next++
				}
			}
			assert.Equal(t, tt.sizes, sizes)
			assert.Equal(t, tt.records, next)
		})
	}
}
