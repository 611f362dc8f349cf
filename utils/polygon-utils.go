package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geos"
)

const earthRadiusMeters = 6371008.8

var (
	ErrEmptyPayload   = errors.New("empty coordinate payload")
	ErrDegenerateRing = errors.New("ring has fewer than 3 distinct vertices")
)

// CoerceRings converts a raw stored payload into rings of [x, y] pairs.
// It accepts typed slices as well as the []any trees produced by JSON and
// BSON decoding.
func CoerceRings(payload any) ([][][]float64, error) {
	switch p := payload.(type) {
	case nil:
		return nil, ErrEmptyPayload
	case [][][]float64:
		for i, r := range p {
			for j, c := range r {
				if len(c) < 2 {
					return nil, fmt.Errorf("ring %d: coordinate %d: expected [x, y], got %d values", i, j, len(c))
				}
			}
		}
		return p, nil
	case []any:
		rings := make([][][]float64, 0, len(p))
		for i, r := range p {
			ring, err := coerceRing(r)
			if err != nil {
				return nil, fmt.Errorf("ring %d: %w", i, err)
			}
			rings = append(rings, ring)
		}
		return rings, nil
	}
	return nil, fmt.Errorf("unsupported payload type %T", payload)
}

func coerceRing(v any) ([][]float64, error) {
	switch r := v.(type) {
	case [][]float64:
		for i, c := range r {
			if len(c) < 2 {
				return nil, fmt.Errorf("coordinate %d: expected [x, y], got %d values", i, len(c))
			}
		}
		return r, nil
	case []any:
		ring := make([][]float64, 0, len(r))
		for i, c := range r {
			coord, err := coerceCoord(c)
			if err != nil {
				return nil, fmt.Errorf("coordinate %d: %w", i, err)
			}
			ring = append(ring, coord)
		}
		return ring, nil
	}
	return nil, fmt.Errorf("unsupported ring type %T", v)
}

func coerceCoord(v any) ([]float64, error) {
	var items []any
	switch c := v.(type) {
	case []float64:
		if len(c) < 2 {
			return nil, fmt.Errorf("expected [x, y], got %d values", len(c))
		}
		return []float64{c[0], c[1]}, nil
	case []any:
		items = c
	default:
		return nil, fmt.Errorf("unsupported coordinate type %T", v)
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("expected [x, y], got %d values", len(items))
	}
	x, err := toFloat(items[0])
	if err != nil {
		return nil, err
	}
	y, err := toFloat(items[1])
	if err != nil {
		return nil, err
	}
	return []float64{x, y}, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("coordinate value %v is %T, not a number", v, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("coordinate value %v is not finite", f)
	}
	return f, nil
}

// CloseRing returns ring with its first vertex repeated at the end when it
// is not already closed. GEOS rejects open rings.
func CloseRing(ring [][]float64) [][]float64 {
	if len(ring) == 0 {
		return ring
	}
	first, last := ring[0], ring[len(ring)-1]
	if first[0] == last[0] && first[1] == last[1] {
		return ring
	}
	closed := make([][]float64, len(ring), len(ring)+1)
	copy(closed, ring)
	return append(closed, []float64{first[0], first[1]})
}

func DistinctVertices(ring [][]float64) int {
	seen := make(map[[2]float64]struct{}, len(ring))
	for _, c := range ring {
		seen[[2]float64{c[0], c[1]}] = struct{}{}
	}
	return len(seen)
}

// TruncateRing rounds every coordinate to precision decimals.
func TruncateRing(ring [][]float64, precision int) [][]float64 {
	out := make([][]float64, len(ring))
	for i, c := range ring {
		x, y := truncateCoordinates(c[0], c[1], precision)
		out[i] = []float64{x, y}
	}
	return out
}

// NewPolygonFromRing builds a single-ring polygon in gctx. GEOS errors,
// which go-geos raises as panics, come back as err.
func NewPolygonFromRing(gctx *geos.Context, ring [][]float64) (polygon *geos.Geom, err error) {
	if len(ring) == 0 {
		return nil, ErrEmptyPayload
	}
	if DistinctVertices(ring) < 3 {
		return nil, ErrDegenerateRing
	}

	defer func() {
		if r := recover(); r != nil {
			polygon = nil
			err = fmt.Errorf("geos: %v", r)
		}
	}()

	polygon = gctx.NewPolygon([][][]float64{CloseRing(ring)})
	if polygon == nil {
		return nil, errors.New("geos returned no polygon")
	}
	return polygon, nil
}

// GeodesicArea approximates the area in square meters of a lon/lat ring on
// the sphere.
func GeodesicArea(ring [][]float64) float64 {
	if len(ring) > 1 {
		first, last := ring[0], ring[len(ring)-1]
		if first[0] == last[0] && first[1] == last[1] {
			ring = ring[:len(ring)-1]
		}
	}
	if len(ring) < 3 {
		return 0
	}
	points := make([]s2.Point, len(ring))
	for i, c := range ring {
		points[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(c[1], c[0]))
	}
	loop := s2.LoopFromPoints(points)
	loop.Normalize()
	return loop.Area() * earthRadiusMeters * earthRadiusMeters
}

func truncateCoordinates(x float64, y float64, precision int) (float64, float64) {
	return roundFloat(x, uint(precision)), roundFloat(y, uint(precision))
}

func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
