package utils

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geos"
)

// SpatialIndex is a uniform grid over polygon bounding boxes. It answers
// "which records could touch this polygon" and never decides overlap itself.
type SpatialIndex struct {
	geometries []*IndexedGeometry
	cellSize   float64
	grid       map[string][]*IndexedGeometry
	// oversized holds geometries spanning more than maxCellsPerGeometry
	// cells. They are checked on every query instead of being gridded.
	oversized []*IndexedGeometry
}

const maxCellsPerGeometry = 4096

type IndexedGeometry struct {
	Geom     *geos.Geom
	Index    int
	RecordID string
	bounds   *geos.Box2D
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = 1
	}
	return &SpatialIndex{
		geometries: make([]*IndexedGeometry, 0),
		cellSize:   cellSize,
		grid:       make(map[string][]*IndexedGeometry),
	}
}

// AddGeometry indexes geom under the record at position index of the
// population.
func (si *SpatialIndex) AddGeometry(geom *geos.Geom, index int, recordID string) error {
	if geom == nil {
		return fmt.Errorf("nil geometry for record %s", recordID)
	}
	bounds := geom.Bounds()
	if bounds == nil {
		return fmt.Errorf("nil bounds for record %s", recordID)
	}

	indexedGeom := &IndexedGeometry{
		Geom:     geom,
		Index:    index,
		RecordID: recordID,
		bounds:   bounds,
	}
	si.geometries = append(si.geometries, indexedGeom)
	si.addToGrid(indexedGeom)
	return nil
}

func (si *SpatialIndex) Len() int { return len(si.geometries) }

func (si *SpatialIndex) addToGrid(indexedGeom *IndexedGeometry) {
	if si.cellCount(indexedGeom.bounds) > maxCellsPerGeometry {
		si.oversized = append(si.oversized, indexedGeom)
		return
	}
	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(indexedGeom.bounds)
	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			cellKey := getCellKey(x, y)
			si.grid[cellKey] = append(si.grid[cellKey], indexedGeom)
		}
	}
}

// cellCount is computed in floats so huge boxes cannot overflow int.
func (si *SpatialIndex) cellCount(b *geos.Box2D) float64 {
	spanX := math.Floor(b.MaxX/si.cellSize) - math.Floor(b.MinX/si.cellSize) + 1
	spanY := math.Floor(b.MaxY/si.cellSize) - math.Floor(b.MinY/si.cellSize) + 1
	return spanX * spanY
}

func (si *SpatialIndex) cellRange(b *geos.Box2D) (int, int, int, int) {
	return int(math.Floor(b.MinX / si.cellSize)),
		int(math.Floor(b.MinY / si.cellSize)),
		int(math.Floor(b.MaxX / si.cellSize)),
		int(math.Floor(b.MaxY / si.cellSize))
}

// Candidates returns the population positions of every indexed geometry
// whose bounding box intersects the bounding box of geom.
func (si *SpatialIndex) Candidates(geom *geos.Geom) map[int]struct{} {
	candidates := make(map[int]struct{})
	if geom == nil {
		return candidates
	}
	bounds := geom.Bounds()
	if bounds == nil {
		return candidates
	}

	if si.cellCount(bounds) > maxCellsPerGeometry {
		si.scan(bounds, si.geometries, candidates)
		return candidates
	}

	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(bounds)
	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			if cell, exists := si.grid[getCellKey(x, y)]; exists {
				si.scan(bounds, cell, candidates)
			}
		}
	}
	si.scan(bounds, si.oversized, candidates)
	return candidates
}

func (si *SpatialIndex) scan(bounds *geos.Box2D, geoms []*IndexedGeometry, candidates map[int]struct{}) {
	for _, candidate := range geoms {
		if boxesIntersect(bounds, candidate.bounds) {
			candidates[candidate.Index] = struct{}{}
		}
	}
}

// boxesIntersect treats touching edges as intersecting, matching GEOS
// Intersects.
func boxesIntersect(a, b *geos.Box2D) bool {
	return a.MinX <= b.MaxX && b.MinX <= a.MaxX && a.MinY <= b.MaxY && b.MinY <= a.MaxY
}

// MeanExtent is the average of the larger bounding box side over geoms. It
// is a reasonable grid cell size for a population of similar polygons.
func MeanExtent(geoms []*geos.Geom) float64 {
	var total float64
	var n int
	for _, g := range geoms {
		if g == nil {
			continue
		}
		b := g.Bounds()
		if b == nil {
			continue
		}
		total += math.Max(b.MaxX-b.MinX, b.MaxY-b.MinY)
		n++
	}
	if n == 0 || total == 0 {
		return 1
	}
	return total / float64(n)
}

func getCellKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}
