package geometry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// nameProperties are the feature properties that may carry the borough name,
// checked in order. NOMGEO is used by the INEGI boundaries.
var nameProperties = []string{"name", "alcaldia", "NOMGEO"}

type boroughShape struct {
	name  string
	geom  orb.Geometry
	bound orb.Bound
}

// BoroughMap holds the alcaldía boundaries used to locate points and draw
// choropleths. An empty map is valid: it locates nothing.
type BoroughMap struct {
	shapes []boroughShape
	logger *logrus.Logger
}

// LoadBoroughMap reads a GeoJSON FeatureCollection of borough polygons.
// An empty path or a missing file yields an empty map.
func LoadBoroughMap(path string, logger *logrus.Logger) (*BoroughMap, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	bm := &BoroughMap{logger: logger}
	if path == "" {
		return bm, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.WithField("path", path).Warn("Borough boundaries file not found, geometry disabled")
		return bm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read borough boundaries: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse borough boundaries: %w", err)
	}
	if err := bm.add(fc.Features); err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":     path,
		"boroughs": len(bm.shapes),
	}).Info("Loaded borough boundaries")
	return bm, nil
}

// NewBoroughMap builds a map from already decoded features
func NewBoroughMap(features []*geojson.Feature, logger *logrus.Logger) (*BoroughMap, error) {
	if logger == nil {
		logger = logrus.New()
	}
	bm := &BoroughMap{logger: logger}
	if err := bm.add(features); err != nil {
		return nil, err
	}
	return bm, nil
}

func (bm *BoroughMap) add(features []*geojson.Feature) error {
	for i, f := range features {
		name := featureName(f)
		if name == "" {
			return fmt.Errorf("feature %d has no borough name property", i)
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			bm.logger.WithFields(logrus.Fields{
				"borough":  name,
				"geometry": f.Geometry.GeoJSONType(),
			}).Warn("Skipping borough with non polygonal geometry")
			continue
		}
		bm.shapes = append(bm.shapes, boroughShape{
			name:  name,
			geom:  f.Geometry,
			bound: f.Geometry.Bound(),
		})
	}
	return nil
}

func featureName(f *geojson.Feature) string {
	for _, key := range nameProperties {
		if name, ok := f.Properties[key].(string); ok && name != "" {
			return config.CanonicalBorough(name)
		}
	}
	return ""
}

// Len returns the number of boroughs with boundaries
func (bm *BoroughMap) Len() int {
	return len(bm.shapes)
}

// Locate returns the borough containing the point. Points outside every
// boundary give a BoroughNotFound error.
func (bm *BoroughMap) Locate(lat, lng float64) (string, error) {
	pt := orb.Point{lng, lat}
	for _, s := range bm.shapes {
		if !s.bound.Contains(pt) {
			continue
		}
		if contains(s.geom, pt) {
			return s.name, nil
		}
	}
	subject := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	return "", models.NewBoroughNotFound(subject)
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

// Choropleth returns one feature per borough with boundaries, carrying the
// borough name and its value. Boroughs missing from values get 0.
func (bm *BoroughMap) Choropleth(values models.BoroughValues) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range bm.shapes {
		feature := geojson.NewFeature(s.geom)
		feature.Properties = geojson.Properties{
			"name":  s.name,
			"value": values[s.name],
		}
		fc.Append(feature)
	}
	return fc
}
