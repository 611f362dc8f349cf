package utils

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ExportFeature is one polygon with flat attributes.
type ExportFeature struct {
	ID         string
	Rings      [][][]float64
	Properties map[string]any
}

// GenerateShapefileZip creates a zip holding name.geojson and the
// name.shp/.shx/.dbf shapefile components.
func GenerateShapefileZip(name string, features []ExportFeature) ([]byte, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("no features to export")
	}

	jsonData, err := featureCollectionJSON(features)
	if err != nil {
		return nil, err
	}

	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(name + ".geojson")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %w", err)
	}

	if err := addShapefileToZip(zipWriter, name, features); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}

	return zipBuffer.Bytes(), nil
}

func featureCollectionJSON(features []ExportFeature) ([]byte, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		polygon, err := toGeomPolygon(f.Rings)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", f.ID, err)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.ID,
			Geometry:   polygon,
			Properties: f.Properties,
		})
	}
	return json.Marshal(&fc)
}

func toGeomPolygon(rings [][][]float64) (*geom.Polygon, error) {
	coords := make([][]geom.Coord, len(rings))
	for i, ring := range rings {
		coords[i] = make([]geom.Coord, len(ring))
		for j, c := range ring {
			coords[i][j] = geom.Coord{c[0], c[1]}
		}
	}
	return geom.NewPolygon(geom.XY).SetCoords(coords)
}

// addShapefileToZip writes the shapefile to a temp dir, since go-shp only
// writes to paths, then copies the components into the zip.
func addShapefileToZip(zipWriter *zip.Writer, name string, features []ExportFeature) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, name+".shp")
	if err := generateShapefile(shapefilePath, features); err != nil {
		return fmt.Errorf("failed to generate shapefile: %w", err)
	}

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext
		fileContent, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}

		zipFile, err := zipWriter.Create(name + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}

	return nil
}

func generateShapefile(shapefilePath string, features []ExportFeature) error {
	shape, err := shp.Create(shapefilePath, shp.POLYGON)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	defer shape.Close()

	keys := propertyKeys(features)
	fields := createFieldsFromProperties(keys, features)
	if err := shape.SetFields(fields); err != nil {
		return fmt.Errorf("failed to set fields: %w", err)
	}

	for _, f := range features {
		parts := make([][]shp.Point, 0, len(f.Rings))
		for _, ring := range f.Rings {
			points := make([]shp.Point, 0, len(ring))
			for _, c := range ring {
				points = append(points, shp.Point{X: c[0], Y: c[1]})
			}
			parts = append(parts, points)
		}
		polygon := shp.Polygon(*shp.NewPolyLine(parts))
		row := int(shape.Write(&polygon))

		for i, key := range keys {
			if err := writeAttribute(shape, row, i, fields[i], f.Properties[key]); err != nil {
				return fmt.Errorf("feature %s attribute %s: %w", f.ID, key, err)
			}
		}
	}

	return nil
}

func propertyKeys(features []ExportFeature) []string {
	seen := make(map[string]struct{})
	for _, f := range features {
		for k := range f.Properties {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// createFieldsFromProperties types each DBF field from the first non-nil
// value seen for its key. DBF field names are limited to 10 characters.
func createFieldsFromProperties(keys []string, features []ExportFeature) []shp.Field {
	fields := make([]shp.Field, 0, len(keys))
	for _, key := range keys {
		fieldName := key
		if len(fieldName) > 10 {
			fieldName = fieldName[:10]
		}

		var sample any
		for _, f := range features {
			if v, ok := f.Properties[key]; ok && v != nil {
				sample = v
				break
			}
		}

		switch sample.(type) {
		case float64, float32:
			fields = append(fields, shp.FloatField(fieldName, 19, 8))
		case int, int32, int64:
			fields = append(fields, shp.NumberField(fieldName, 15))
		case bool:
			fields = append(fields, shp.StringField(fieldName, 5))
		default:
			fields = append(fields, shp.StringField(fieldName, 100))
		}
	}

	if len(fields) == 0 {
		fields = append(fields, shp.NumberField("ID", 10))
	}
	return fields
}

func writeAttribute(shape *shp.Writer, row int, col int, field shp.Field, value any) error {
	if value == nil {
		switch field.Fieldtype {
		case 'N', 'F':
			return shape.WriteAttribute(row, col, 0)
		default:
			return shape.WriteAttribute(row, col, "")
		}
	}

	switch field.Fieldtype {
	case 'F':
		switch v := value.(type) {
		case float64:
			return shape.WriteAttribute(row, col, v)
		case float32:
			return shape.WriteAttribute(row, col, float64(v))
		}
	case 'N':
		switch v := value.(type) {
		case int:
			return shape.WriteAttribute(row, col, v)
		case int32:
			return shape.WriteAttribute(row, col, int(v))
		case int64:
			return shape.WriteAttribute(row, col, int(v))
		}
	}
	return shape.WriteAttribute(row, col, fmt.Sprintf("%v", value))
}
