package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geos"
)

func chunkOptions() ChunkOptions {
	return ChunkOptions{FieldNames: testFields, Threshold: 0.5, Precision: -1}
}

func allRecords(t *testing.T, backend store.Backend) []store.GeometryRecord {
	t.Helper()
	var records []store.GeometryRecord
	require.NoError(t, store.With(context.Background(), backend, func(s store.RecordStore) error {
		var err error
		records, err = s.FindAll(context.Background())
		return err
	}))
	return records
}

func TestProcessChunk_InvalidSourceMakesNoComparisons(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)
	fetches := mem.FindAllCalls()

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records[3:]}, chunkOptions())

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Invalid)
	assert.Empty(t, result.Events)
	assert.Equal(t, fetches, mem.FindAllCalls(), "an invalid source must not fetch the population")

	log := mem.Log("4")
	require.NotNil(t, log)
	assert.True(t, log.Invalid)
	assert.Equal(t, invalidRecordReason, log.Reason)
}

func TestProcessChunk_LastEventWins(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records[:1]}, chunkOptions())

	require.NoError(t, result.Err)
	require.Len(t, result.Events, 2)
	assert.Equal(t, "1", result.Events[0].TargetID)
	assert.Equal(t, "2", result.Events[1].TargetID)
	for _, e := range result.Events {
		assert.Equal(t, "1", e.SourceID)
		assert.InDelta(t, 1.0, e.Percentage, 1e-12)
	}

	log := mem.Log("1")
	require.NotNil(t, log)
	assert.Equal(t, "2", log.OverlapWith)
	assert.InDelta(t, 1.0, log.OverlapPercentage, 1e-12)

	// record 4 is seen as an unparseable target
	assert.True(t, mem.Log("4").Invalid)
}

func TestProcessChunk_SkipSelf(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)
	opts := chunkOptions()
	opts.SkipSelf = true

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records[:3]}, opts)

	require.NoError(t, result.Err)
	assert.Equal(t, map[[2]string]int{{"1", "2"}: 1, {"2", "1"}: 1}, eventPairs(result.Events))
	assert.Nil(t, mem.Log("3"))
}

func TestProcessChunk_InvalidTargetWrittenOncePerChunk(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)

	var writes int
	mem.UpdateLogHook = func(id string) error {
		if id == "4" {
			writes++
		}
		return nil
	}

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records}, chunkOptions())
	require.NoError(t, result.Err)
	assert.Equal(t, 1, writes)
}

func TestProcessChunk_StoreErrorSkipsOnlyThatRecord(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)
	boom := errors.New("connection reset")
	mem.UpdateLogHook = func(id string) error {
		if id == "1" {
			return boom
		}
		return nil
	}

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records}, chunkOptions())

	require.NoError(t, result.Err)
	assert.Equal(t, 4, result.Processed)
	assert.NotNil(t, mem.Log("2"))
	assert.NotNil(t, mem.Log("3"))

	var found bool
	for _, d := range result.Diagnostics.Entries() {
		if d.Kind == StoreError && d.RecordID == "1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProcessChunk_PopulationFetchFailure(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)
	base := int(mem.FindAllCalls())
	mem.FindAllHook = func(call int) error {
		if call == base+1 {
			return errors.New("timeout")
		}
		return nil
	}

	result := ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records[:3]}, chunkOptions())

	require.NoError(t, result.Err)
	assert.Equal(t, map[[2]string]int{{"2", "1"}: 1, {"2", "2"}: 1, {"3", "3"}: 1}, eventPairs(result.Events))
	assert.Equal(t, 1, result.Diagnostics.CountByKind()[StoreError])
}

type failingBackend struct{ err error }

func (b failingBackend) Open(context.Context) (store.RecordStore, error) { return nil, b.err }
func (b failingBackend) Close() error                                    { return nil }

func TestProcessChunk_OpenFailure(t *testing.T) {
	records := numberedRecords(3)
	boom := errors.New("no route to host")

	result := ProcessChunk(context.Background(), failingBackend{err: boom}, Chunk{Index: 2, Records: records}, chunkOptions())

	assert.ErrorIs(t, result.Err, boom)
	assert.Equal(t, 2, result.Index)
	assert.Equal(t, 3, result.Size)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 3, result.Diagnostics.CountByKind()[StoreError])
}

func TestProcessChunk_ClosesHandle(t *testing.T) {
	mem := fixtureStore()
	records := allRecords(t, mem)

	ProcessChunk(context.Background(), mem, Chunk{Index: 0, Records: records}, chunkOptions())

	opened, closed := mem.Handles()
	assert.Equal(t, opened, closed)
}

func TestProcessChunk_UseIndexMatchesFullSweep(t *testing.T) {
	fields := []map[string]any{
		{"1": squarePayload(0, 0, 1)},
		{"1": squarePayload(0.1, 0, 1)},
		{"1": squarePayload(5, 5, 1), "2": squarePayload(0, 0.2, 1)},
		{"1": squarePayload(20, 20, 2)},
		{"1": squarePayload(20.5, 20.5, 2)},
		{"1": squarePayload(-3, -3, 0.5)},
	}

	run := func(useIndex bool) []OverlapEvent {
		mem := store.NewMemory(fields...)
		opts := chunkOptions()
		opts.Threshold = 0.1
		opts.UseIndex = useIndex
		return ProcessChunk(context.Background(), mem, Chunk{Records: allRecords(t, mem)}, opts).Events
	}

	full := run(false)
	indexed := run(true)
	require.NotEmpty(t, full)
	assert.Equal(t, full, indexed)
}

func TestCandidateTargets(t *testing.T) {
	mem := store.NewMemory(
		map[string]any{"1": squarePayload(0, 0, 1)},
		map[string]any{"1": squarePayload(0.5, 0.5, 1)},
		map[string]any{"1": squarePayload(50, 50, 1)},
	)
	parser := NewParser(geos.NewContext(), []string{"1"}, -1)
	records := allRecords(t, mem)

	targets := make([][]ParsedPolygon, len(records))
	for i, r := range records {
		targets[i] = parser.ParseRecord(r, &Diagnostics{})
	}

	candidates := candidateTargets(targets[0], targets)
	assert.Contains(t, candidates, 0)
	assert.Contains(t, candidates, 1)
	assert.NotContains(t, candidates, 2)
}
