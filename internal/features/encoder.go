package features

import (
	"fmt"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// Encoder builds model-ready vectors for one property type
type Encoder struct {
	schema *ColumnSchema
	ranges map[string]config.Range
}

// NewEncoder creates an encoder. ranges is keyed by canonical feature name and
// may be nil to disable range validation.
func NewEncoder(schema *ColumnSchema, ranges map[string]config.Range) *Encoder {
	return &Encoder{schema: schema, ranges: ranges}
}

// Schema returns the encoder's column schema
func (e *Encoder) Schema() *ColumnSchema {
	return e.schema
}

// Encode returns a vector with one entry per schema column, in schema order.
// The borough is checked before anything else so a missing category never
// reaches the scaler or the model.
func (e *Encoder) Encode(record models.PropertyRecord) ([]float64, error) {
	target, ok := e.schema.IndexOf(BoroughColumn(record.Borough))
	if !ok {
		return nil, models.NewBoroughNotFound(record.Borough)
	}

	if err := e.validateRanges(record); err != nil {
		return nil, err
	}

	vec := make([]float64, e.schema.Len())
	for _, idx := range e.schema.numeric {
		col := e.schema.columns[idx]
		v, ok := record.Feature(col)
		if !ok {
			return nil, fmt.Errorf("record has no value for schema column %q", col)
		}
		vec[idx] = v
	}

	// Indicators other than the target stay at zero
	vec[target] = 1
	return vec, nil
}

func (e *Encoder) validateRanges(record models.PropertyRecord) error {
	if len(e.ranges) == 0 {
		return nil
	}
	// Fixed order so the reported feature is deterministic
	for _, name := range []string{models.FeatureArea, models.FeatureBedrooms, models.FeatureBathrooms, models.FeatureParking} {
		r, ok := e.ranges[name]
		if !ok {
			continue
		}
		v, _ := record.Feature(name)
		if !r.Contains(v) {
			return models.NewFeatureOutOfRange(name, v, r.Min, r.Max)
		}
	}
	return nil
}
