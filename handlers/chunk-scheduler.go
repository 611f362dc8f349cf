package handlers

import "github.com/bsaid97/go-polygon-overlap/store"

// Chunk is a contiguous slice of the fetched records that one worker
// treats as comparison sources.
type Chunk struct {
	Index   int
	Records []store.GeometryRecord
}

// BuildChunks splits records into contiguous chunks of
// floor(len/concurrency) records, the last chunk taking the remainder.
// With fewer records than workers every record is its own chunk.
func BuildChunks(records []store.GeometryRecord, concurrency int) []Chunk {
	total := len(records)
	if total == 0 {
		return nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	size := total / concurrency
	if size == 0 {
		size = 1
	}
	count := total / size
	if count > concurrency {
		count = concurrency
	}

	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * size
		end := start + size
		if i == count-1 {
			end = total
		}
		chunks = append(chunks, Chunk{Index: i, Records: records[start:end]})
	}
	return chunks
}
