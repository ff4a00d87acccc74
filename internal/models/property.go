package models

import (
	"fmt"
	"strings"
	"time"
)

// PropertyType identifies which trained model and dataset a request targets
type PropertyType string

const (
	House     PropertyType = "casa"
	Apartment PropertyType = "departamento"
	// AllTypes is only meaningful for statistics: the union of both datasets
	AllTypes PropertyType = "all"
)

// PredictableTypes are the property types backed by a trained model
var PredictableTypes = []PropertyType{House, Apartment}

// ParsePropertyType accepts the Spanish names used by the API plus a few aliases
func ParsePropertyType(s string) (PropertyType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "casa", "casas", "house", "houses":
		return House, nil
	case "departamento", "departamentos", "apartment", "apartments":
		return Apartment, nil
	case "all", "todas", "total":
		return AllTypes, nil
	}
	return "", fmt.Errorf("unknown property type: %q", s)
}

// Canonical feature names, as produced at model-fit time
const (
	FeatureArea      = "metros_cuadrados"
	FeatureBedrooms  = "recamaras"
	FeatureBathrooms = "banos"
	FeatureParking   = "estacionamientos"
)

// FeatureAliases maps alternative schema column names to canonical features.
// Some house models were fit with the area column named "dimensiones".
var FeatureAliases = map[string]string{
	"dimensiones": FeatureArea,
}

// PropertyRecord is the semantic input of a prediction
type PropertyRecord struct {
	Borough   string
	Area      float64
	Bedrooms  int
	Bathrooms int
	Parking   int
}

// Features returns the numeric features keyed by canonical name
func (r PropertyRecord) Features() map[string]float64 {
	return map[string]float64{
		FeatureArea:      r.Area,
		FeatureBedrooms:  float64(r.Bedrooms),
		FeatureBathrooms: float64(r.Bathrooms),
		FeatureParking:   float64(r.Parking),
	}
}

// Feature resolves a schema column name (alias aware) to the record's value
func (r PropertyRecord) Feature(name string) (float64, bool) {
	if canonical, ok := FeatureAliases[name]; ok {
		name = canonical
	}
	v, ok := r.Features()[name]
	return v, ok
}

type PredictionResult struct {
	PropertyType   PropertyType       `json:"property_type"`
	EstimatedPrice float64            `json:"estimated_price"`
	Borough        string             `json:"borough"`
	Features       map[string]float64 `json:"features"`
	ComputedAt     time.Time          `json:"computed_at"`
	RequestID      string             `json:"request_id,omitempty"`
}

// AggregateStats summarises a filtered price column
type AggregateStats struct {
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
}

// BoroughValues maps borough name to an aggregate (mean price or price per area)
type BoroughValues map[string]float64
