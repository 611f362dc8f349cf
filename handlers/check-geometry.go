package handlers

import (
	"context"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/twpayne/go-geos"
)

type Error struct {
	Ref          string `json:"ref"`
	Field        string `json:"field,omitempty"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry reports every parsed polygon GEOS considers invalid, e.g.
// a self-intersecting ring. Invalid polygons are still compared; overlap
// ratios of such polygons may come back as topology errors.
func CheckGeometry(polygons []ParsedPolygon) []Error {
	var errors []Error

	for _, p := range polygons {
		if p.Geom == nil || p.Geom.IsValid() {
			continue
		}
		errors = append(errors, Error{Ref: p.RecordID, Field: p.Field, ErrorMessage: p.Geom.IsValidReason()})
	}
	return errors
}

// CheckRecords reads every record once and reports fields that do not
// parse, records with nothing parseable and polygons GEOS flags invalid.
// It writes nothing back.
func CheckRecords(ctx context.Context, backend store.Backend, fieldNames []string, precision int) ([]Error, error) {
	var records []store.GeometryRecord
	err := store.With(ctx, backend, func(s store.RecordStore) error {
		var err error
		records, err = s.FindAll(ctx)
		return err
	})
	if err != nil {
		return nil, newError(StoreError, "", "", err)
	}

	parser := NewParser(geos.NewContext(), fieldNames, precision)
	errors := make([]Error, 0)
	for _, record := range records {
		diags := &Diagnostics{}
		polygons := parser.ParseRecord(record, diags)
		for _, d := range diags.Entries() {
			errors = append(errors, Error{Ref: d.RecordID, Field: d.Field, ErrorMessage: d.Message})
		}
		if len(polygons) == 0 {
			errors = append(errors, Error{Ref: record.ID, ErrorMessage: invalidRecordReason})
			continue
		}
		errors = append(errors, CheckGeometry(polygons)...)
		destroyPolygons(polygons)
	}
	return errors, nil
}
