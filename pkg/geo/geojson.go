package geo

import (
	"errors"
	"fmt"
	"os"

	"github.com/venicegeo/geojson-go/geojson"
)

var ErrUnsupportedGeometry = errors.New("Unsupported geometry type")

// Feature is a geometry with properties, decoded from GeoJSON
type Feature struct {
	ID         string
	Geometry   Geometry
	Properties map[string]interface{}
}

// PropertyFloat returns a numeric property, and false if it is missing or not a number
func (f *Feature) PropertyFloat(name string) (float64, bool) {
	switch v := f.Properties[name].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// LoadFeatures reads a GeoJSON file, which may contain a FeatureCollection,
// a single Feature, or a bare geometry.
func LoadFeatures(filename string) ([]*Feature, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	features, err := ParseFeatures(raw)
	if err != nil {
		return nil, fmt.Errorf("Error parsing GeoJSON %v: %w", filename, err)
	}
	return features, nil
}

// ParseFeatures decodes GeoJSON bytes into features
func ParseFeatures(raw []byte) ([]*Feature, error) {
	parsed, err := geojson.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch obj := parsed.(type) {
	case *geojson.FeatureCollection:
		result := make([]*Feature, 0, len(obj.Features))
		for _, f := range obj.Features {
			feat, err := convertFeature(f)
			if err != nil {
				return nil, err
			}
			result = append(result, feat)
		}
		return result, nil
	case *geojson.Feature:
		feat, err := convertFeature(obj)
		if err != nil {
			return nil, err
		}
		return []*Feature{feat}, nil
	default:
		g, err := ConvertGeometry(parsed)
		if err != nil {
			return nil, err
		}
		return []*Feature{{Geometry: g, Properties: map[string]interface{}{}}}, nil
	}
}

// LoadGeometry reads a GeoJSON file and returns the union of all of its geometries.
// This is how areas of interest are specified.
func LoadGeometry(filename string) (Geometry, error) {
	features, err := LoadFeatures(filename)
	if err != nil {
		return nil, err
	}
	return UnionOf(features)
}

// UnionOf returns a single geometry covering all of the polygonal features.
// A single polygon is returned as-is.
func UnionOf(features []*Feature) (Geometry, error) {
	polys := MultiPolygon{}
	for _, f := range features {
		switch g := f.Geometry.(type) {
		case *Polygon:
			polys = append(polys, g)
		case MultiPolygon:
			polys = append(polys, g...)
		default:
			return nil, fmt.Errorf("%w: area must be polygonal, not %T", ErrUnsupportedGeometry, f.Geometry)
		}
	}
	if len(polys) == 0 {
		return nil, fmt.Errorf("%w: no polygons found", ErrUnsupportedGeometry)
	}
	if len(polys) == 1 {
		return polys[0], nil
	}
	return polys, nil
}

func convertFeature(f *geojson.Feature) (*Feature, error) {
	g, err := ConvertGeometry(f.Geometry)
	if err != nil {
		return nil, err
	}
	props := f.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	return &Feature{
		ID:         f.IDStr(),
		Geometry:   g,
		Properties: props,
	}, nil
}

// ConvertGeometry converts a geojson-go geometry into one of our own types
func ConvertGeometry(g interface{}) (Geometry, error) {
	switch v := g.(type) {
	case *geojson.Point:
		if len(v.Coordinates) < 2 {
			return nil, fmt.Errorf("%w: point with %v coordinates", ErrUnsupportedGeometry, len(v.Coordinates))
		}
		return Point{X: v.Coordinates[0], Y: v.Coordinates[1]}, nil
	case *geojson.MultiPoint:
		mp := MultiPoint{}
		for _, c := range v.Coordinates {
			if len(c) >= 2 {
				mp = append(mp, Point{X: c[0], Y: c[1]})
			}
		}
		return mp, nil
	case *geojson.Polygon:
		return convertRings(v.Coordinates), nil
	case *geojson.MultiPolygon:
		mp := MultiPolygon{}
		for _, rings := range v.Coordinates {
			mp = append(mp, convertRings(rings))
		}
		return mp, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedGeometry, g)
}

func convertRings(coords [][][]float64) *Polygon {
	p := &Polygon{}
	for _, ring := range coords {
		r := make([]Point, 0, len(ring))
		for _, c := range ring {
			if len(c) >= 2 {
				r = append(r, Point{X: c[0], Y: c[1]})
			}
		}
		p.Rings = append(p.Rings, r)
	}
	return p
}
