package handlers

import (
	"errors"
	"fmt"

	"github.com/twpayne/go-geos"
)

// OverlapEvent records that source overlaps target by Percentage, the
// intersection area over the union area.
type OverlapEvent struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Percentage float64 `json:"overlap_percentage"`
}

var errNilGeometry = errors.New("nil geometry")

// OverlapRatio returns intersection/union of a and b and whether they
// intersect at all. go-geos raises GEOS failures as panics; they are
// returned as err.
func OverlapRatio(a, b *geos.Geom) (ratio float64, intersects bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ratio, intersects = 0, false
			err = fmt.Errorf("geos: %v", r)
		}
	}()

	if a == nil || b == nil {
		return 0, false, errNilGeometry
	}
	if !a.Intersects(b) {
		return 0, false, nil
	}

	intersection := a.Intersection(b)
	intersectionArea := intersection.Area()
	intersection.Destroy()

	union := a.Area() + b.Area() - intersectionArea
	if union <= 0 {
		return 0, true, nil
	}
	return intersectionArea / union, true, nil
}

// EvaluatePair returns an event when the pair overlaps by at least
// threshold. A GEOS failure is returned as a TopologyError against the
// source record; the caller moves on to the next pair.
func EvaluatePair(source, target ParsedPolygon, threshold float64) (*OverlapEvent, *DetectionError) {
	ratio, intersects, err := OverlapRatio(source.Geom, target.Geom)
	if err != nil {
		return nil, newError(TopologyError, source.RecordID, source.Field,
			fmt.Errorf("against record %s field %s: %w", target.RecordID, target.Field, err))
	}
	if !intersects || ratio < threshold {
		return nil, nil
	}
	return &OverlapEvent{
		SourceID:   source.RecordID,
		TargetID:   target.RecordID,
		Percentage: ratio,
	}, nil
}
