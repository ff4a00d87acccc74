package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v2"
)

// Range is an inclusive plausible interval for a numeric feature
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Contains reports whether v lies inside the range
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// FeatureRanges holds per property type ranges keyed by canonical feature name,
// e.g. ranges["casa"]["metros_cuadrados"]
type FeatureRanges struct {
	mu     sync.RWMutex
	ranges map[string]map[string]Range
}

// DefaultFeatureRanges mirrors the spread of the training listings
func DefaultFeatureRanges() *FeatureRanges {
	return &FeatureRanges{
		ranges: map[string]map[string]Range{
			"casa": {
				"metros_cuadrados": {Min: 20, Max: 1000},
				"recamaras":        {Min: 1, Max: 10},
				"banos":            {Min: 1, Max: 10},
				"estacionamientos": {Min: 0, Max: 10},
			},
			"departamento": {
				"metros_cuadrados": {Min: 20, Max: 500},
				"recamaras":        {Min: 1, Max: 6},
				"banos":            {Min: 1, Max: 5},
				"estacionamientos": {Min: 0, Max: 5},
			},
		},
	}
}

// LoadFeatureRanges reads the ranges YAML file. A missing file yields the defaults;
// a property type present in the file replaces the default ranges of that type.
func LoadFeatureRanges(path string) (*FeatureRanges, error) {
	fr := DefaultFeatureRanges()
	if path == "" {
		return fr, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if os.IsNotExist(err) {
		return fr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feature ranges: %w", err)
	}

	var parsed map[string]map[string]Range
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse feature ranges: %w", err)
	}

	for propertyType, features := range parsed {
		for name, r := range features {
			if r.Min > r.Max {
				return nil, fmt.Errorf("invalid range for %s.%s: min %g > max %g", propertyType, name, r.Min, r.Max)
			}
		}
		fr.ranges[propertyType] = features
	}
	return fr, nil
}

// For returns a copy of the ranges of one property type (nil when none are configured)
func (fr *FeatureRanges) For(propertyType string) map[string]Range {
	if fr == nil {
		return nil
	}
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	src, ok := fr.ranges[propertyType]
	if !ok {
		return nil
	}
	out := make(map[string]Range, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// Set replaces the range of one feature
func (fr *FeatureRanges) Set(propertyType, feature string, r Range) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if fr.ranges == nil {
		fr.ranges = make(map[string]map[string]Range)
	}
	if fr.ranges[propertyType] == nil {
		fr.ranges[propertyType] = make(map[string]Range)
	}
	fr.ranges[propertyType][feature] = r
}
