package handlers

import (
	"errors"
	"fmt"

	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/twpayne/go-geos"
)

const invalidRecordReason = "no parseable polygon in any recognized field"

// ParsedPolygon is the outer ring of one field of one record.
type ParsedPolygon struct {
	RecordID string
	Field    string
	Geom     *geos.Geom
}

// Parser builds polygons in a single GEOS context. One parser per chunk
// worker; a parser is not safe for concurrent use.
type Parser struct {
	gctx       *geos.Context
	fieldNames []string
	precision  int
}

// NewParser returns a parser over fieldNames. precision >= 0 rounds
// coordinates to that many decimals first.
func NewParser(gctx *geos.Context, fieldNames []string, precision int) *Parser {
	return &Parser{
		gctx:       gctx,
		fieldNames: fieldNames,
		precision:  precision,
	}
}

// ParseRecord returns the polygons of every recognized field that parses.
// Fields that fail are reported to diags and skipped; it never fails the
// record as a whole.
func (p *Parser) ParseRecord(record store.GeometryRecord, diags *Diagnostics) []ParsedPolygon {
	var polygons []ParsedPolygon
	for _, field := range p.fieldNames {
		payload, ok := record.Fields[field]
		if !ok || isEmptyPayload(payload) {
			continue
		}
		polygon, err := p.parseField(record.ID, field, payload)
		if err != nil {
			diags.Add(err)
			continue
		}
		polygons = append(polygons, polygon)
	}
	return polygons
}

func (p *Parser) parseField(recordID, field string, payload any) (ParsedPolygon, *DetectionError) {
	rings, err := utils.CoerceRings(payload)
	if err != nil {
		return ParsedPolygon{}, newError(ParseError, recordID, field, err)
	}
	if len(rings) == 0 {
		return ParsedPolygon{}, newError(ParseError, recordID, field, utils.ErrEmptyPayload)
	}

	ring := rings[0]
	if p.precision >= 0 {
		ring = utils.TruncateRing(ring, p.precision)
	}

	geom, err := utils.NewPolygonFromRing(p.gctx, ring)
	if err != nil {
		return ParsedPolygon{}, newError(ParseError, recordID, field, err)
	}
	return ParsedPolygon{RecordID: recordID, Field: field, Geom: geom}, nil
}

func isEmptyPayload(payload any) bool {
	switch p := payload.(type) {
	case nil:
		return true
	case []any:
		return len(p) == 0
	case [][][]float64:
		return len(p) == 0
	case map[string]any:
		return len(p) == 0
	case string:
		return p == ""
	}
	return false
}

// destroyPolygons releases GEOS memory early instead of waiting for
// finalizers.
func destroyPolygons(polygons []ParsedPolygon) {
	for _, p := range polygons {
		if p.Geom != nil {
			p.Geom.Destroy()
		}
	}
}

var errNoPolygons = errors.New(invalidRecordReason)

func invalidRecordError(recordID string) *DetectionError {
	return newError(ParseError, recordID, "", fmt.Errorf("record marked invalid: %w", errNoPolygons))
}
