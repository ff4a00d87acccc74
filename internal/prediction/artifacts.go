package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/features"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// TargetTransform names the transform applied to prices at fit time
type TargetTransform string

const (
	TransformLog   TargetTransform = "log"
	TransformLog1p TargetTransform = "log1p"
	TransformNone  TargetTransform = "none"
)

// Invert maps a model output back to a price
func (t TargetTransform) Invert(y float64) (float64, error) {
	switch t {
	case TransformLog:
		return math.Exp(y), nil
	case TransformLog1p:
		return math.Expm1(y), nil
	case TransformNone:
		return y, nil
	}
	return 0, fmt.Errorf("unknown target transform %q", t)
}

// Regressor maps one scaled feature row to a model output
type Regressor interface {
	Predict(x []float64) float64
	NumFeatures() int
}

// Scaler standardizes a raw vector with fitted parameters
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform returns (x - mean) / scale. A zero scale is treated as 1.
func (s *Scaler) Transform(x []float64) ([]float64, error) {
	if len(x) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(x))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out, nil
}

// LinearModel is y = intercept + coefficients·x
type LinearModel struct {
	Intercept    float64
	Coefficients []float64
}

func (m *LinearModel) Predict(x []float64) float64 {
	y := m.Intercept
	for i, c := range m.Coefficients {
		y += c * x[i]
	}
	return y
}

func (m *LinearModel) NumFeatures() int {
	return len(m.Coefficients)
}

// Tree is a regression tree in sklearn's flattened node layout
type Tree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	Value         []float64 `json:"value"`
}

const leafNode = -1

func (t *Tree) predict(x []float64) float64 {
	node := 0
	for t.ChildrenLeft[node] != leafNode {
		if x[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return t.Value[node]
}

func (t *Tree) validate(nFeatures int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return fmt.Errorf("tree node arrays have inconsistent lengths")
	}
	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == leafNode {
			continue
		}
		// Children always come after their parent, which also rules out cycles
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has invalid children (%d, %d)", i, left, right)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= nFeatures {
			return fmt.Errorf("node %d splits on feature %d outside [0, %d)", i, t.Feature[i], nFeatures)
		}
	}
	return nil
}

// ForestModel averages the output of its trees
type ForestModel struct {
	Trees     []Tree
	nFeatures int
}

func (m *ForestModel) Predict(x []float64) float64 {
	var sum float64
	for i := range m.Trees {
		sum += m.Trees[i].predict(x)
	}
	return sum / float64(len(m.Trees))
}

func (m *ForestModel) NumFeatures() int {
	return m.nFeatures
}

// modelFile is the on-disk model description
type modelFile struct {
	Kind            string          `json:"kind"`
	TargetTransform TargetTransform `json:"target_transform"`
	NFeatures       int             `json:"n_features"`
	Intercept       float64         `json:"intercept"`
	Coefficients    []float64       `json:"coefficients"`
	Trees           []Tree          `json:"trees"`
}

// ArtifactSet is the immutable bundle needed to price one property type
type ArtifactSet struct {
	PropertyType models.PropertyType
	Encoder      *features.Encoder
	Scaler       *Scaler
	Model        Regressor
	Transform    TargetTransform
}

// ArtifactPaths returns the model, scaler and columns files for a type
func ArtifactPaths(dir string, propertyType models.PropertyType) (model, scaler, columns string) {
	prefix := filepath.Join(dir, string(propertyType))
	return prefix + "_model.json", prefix + "_scaler.json", prefix + "_columns.json"
}

// LoadArtifacts reads and cross-checks the three artifact files of a type.
// Any inconsistency between schema, scaler and model is reported here rather
// than on the first request.
func LoadArtifacts(dir string, propertyType models.PropertyType, ranges map[string]config.Range) (*ArtifactSet, error) {
	modelPath, scalerPath, columnsPath := ArtifactPaths(dir, propertyType)

	var columns []string
	if err := readJSON(columnsPath, &columns); err != nil {
		return nil, err
	}
	schema, err := features.NewColumnSchema(columns)
	if err != nil {
		return nil, fmt.Errorf("invalid column schema %s: %w", columnsPath, err)
	}

	var scaler Scaler
	if err := readJSON(scalerPath, &scaler); err != nil {
		return nil, err
	}
	if len(scaler.Mean) != schema.Len() || len(scaler.Scale) != schema.Len() {
		return nil, fmt.Errorf("scaler has %d means and %d scales for %d columns",
			len(scaler.Mean), len(scaler.Scale), schema.Len())
	}

	var mf modelFile
	if err := readJSON(modelPath, &mf); err != nil {
		return nil, err
	}
	model, err := buildModel(mf, schema.Len())
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", modelPath, err)
	}
	if _, err := mf.TargetTransform.Invert(0); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", modelPath, err)
	}

	return &ArtifactSet{
		PropertyType: propertyType,
		Encoder:      features.NewEncoder(schema, ranges),
		Scaler:       &scaler,
		Model:        model,
		Transform:    mf.TargetTransform,
	}, nil
}

func buildModel(mf modelFile, nColumns int) (Regressor, error) {
	if mf.NFeatures != nColumns {
		return nil, fmt.Errorf("model was fit on %d features, schema has %d columns", mf.NFeatures, nColumns)
	}

	switch mf.Kind {
	case "linear":
		if len(mf.Coefficients) != nColumns {
			return nil, fmt.Errorf("linear model has %d coefficients for %d columns", len(mf.Coefficients), nColumns)
		}
		return &LinearModel{Intercept: mf.Intercept, Coefficients: mf.Coefficients}, nil
	case "forest":
		if len(mf.Trees) == 0 {
			return nil, fmt.Errorf("forest model has no trees")
		}
		for i := range mf.Trees {
			if err := mf.Trees[i].validate(nColumns); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return &ForestModel{Trees: mf.Trees, nFeatures: nColumns}, nil
	}
	return nil, fmt.Errorf("unknown model kind %q", mf.Kind)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
