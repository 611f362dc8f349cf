package handlers

import (
	"context"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
)

// ExportRecords turns every parseable field of every record into an export
// feature carrying the record's current log. Only the outer ring is
// exported since that is what detection compares.
func ExportRecords(ctx context.Context, backend store.Backend, fieldNames []string) ([]utils.ExportFeature, error) {
	var records []store.GeometryRecord
	err := store.With(ctx, backend, func(s store.RecordStore) error {
		var err error
		records, err = s.FindAll(ctx)
		return err
	})
	if err != nil {
		return nil, newError(StoreError, "", "", err)
	}

	var features []utils.ExportFeature
	for _, record := range records {
		for _, field := range fieldNames {
			payload, ok := record.Fields[field]
			if !ok || isEmptyPayload(payload) {
				continue
			}
			rings, err := utils.CoerceRings(payload)
			if err != nil || len(rings) == 0 || utils.DistinctVertices(rings[0]) < 3 {
				continue
			}
			ring := utils.CloseRing(rings[0])
			features = append(features, utils.ExportFeature{
				ID:         record.ID + "/" + field,
				Rings:      [][][]float64{ring},
				Properties: exportProperties(record, field, ring),
			})
		}
	}
	return features, nil
}

// Property keys stay within the 10 character DBF limit.
func exportProperties(record store.GeometryRecord, field string, ring [][]float64) map[string]any {
	props := map[string]any{
		"record_id":  record.ID,
		"field":      field,
		"area_m2":    utils.GeodesicArea(ring),
		"overlap_id": "",
		"overlap_pc": 0.0,
		"invalid":    false,
	}
	if record.Log != nil {
		props["overlap_id"] = record.Log.OverlapWith
		props["overlap_pc"] = record.Log.OverlapPercentage
		props["invalid"] = record.Log.Invalid
	}
	return props
}
