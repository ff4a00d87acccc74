package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/models"
)

var testColumns = []string{
	"metros_cuadrados", "recamaras", "banos", "estacionamientos",
	"alcaldia_Benito Juárez", "alcaldia_Coyoacán", "alcaldia_Tlalpan", "alcaldia_Álvaro Obregón",
}

func newTestEncoder(t *testing.T, ranges map[string]config.Range) *Encoder {
	schema, err := NewColumnSchema(testColumns)
	require.NoError(t, err)
	return NewEncoder(schema, ranges)
}

func countOnes(vec []float64, from int) int {
	n := 0
	for _, v := range vec[from:] {
		if v == 1 {
			n++
		}
	}
	return n
}

func TestEncoder_Encode(t *testing.T) {
	enc := newTestEncoder(t, nil)

	vec, err := enc.Encode(models.PropertyRecord{Borough: "Tlalpan", Area: 120, Bedrooms: 3, Bathrooms: 2, Parking: 1})
	require.NoError(t, err)

	assert.Equal(t, []float64{120, 3, 2, 1, 0, 0, 1, 0}, vec)
}

func TestEncoder_EveryKnownBoroughSetsExactlyOneIndicator(t *testing.T) {
	enc := newTestEncoder(t, nil)

	for _, borough := range enc.Schema().Boroughs() {
		t.Run(borough, func(t *testing.T) {
			vec, err := enc.Encode(models.PropertyRecord{Borough: borough, Area: 80, Bedrooms: 2, Bathrooms: 1})
			require.NoError(t, err)
			assert.Len(t, vec, len(testColumns))
			assert.Equal(t, 1, countOnes(vec, 4))

			idx, _ := enc.Schema().IndexOf(BoroughColumn(borough))
			assert.Equal(t, 1.0, vec[idx])
		})
	}
}

func TestEncoder_BoroughNotFound(t *testing.T) {
	enc := newTestEncoder(t, nil)

	tests := []struct {
		name    string
		borough string
	}{
		{name: "Unknown borough", borough: "Naucalpan"},
		{name: "Missing accent", borough: "Coyoacan"},
		{name: "Different case", borough: "tlalpan"},
		{name: "Trailing space", borough: "Tlalpan "},
		{name: "Empty", borough: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := enc.Encode(models.PropertyRecord{Borough: tt.borough, Area: 80})
			assert.Nil(t, vec)
			require.Error(t, err)
			assert.Equal(t, models.KindBoroughNotFound, models.KindOf(err))

			var de *models.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.borough, de.Subject)
		})
	}
}

func TestEncoder_FeatureOutOfRange(t *testing.T) {
	enc := newTestEncoder(t, map[string]config.Range{
		"metros_cuadrados": {Min: 20, Max: 1000},
		"recamaras":        {Min: 1, Max: 6},
	})

	_, err := enc.Encode(models.PropertyRecord{Borough: "Tlalpan", Area: 120, Bedrooms: 9, Bathrooms: 2})
	require.Error(t, err)
	var de *models.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, models.KindFeatureOutOfRange, de.Kind)
	assert.Equal(t, "recamaras", de.Subject)
	assert.Equal(t, 9.0, de.Value)
	assert.Equal(t, 1.0, de.Min)
	assert.Equal(t, 6.0, de.Max)

	_, err = enc.Encode(models.PropertyRecord{Borough: "Tlalpan", Area: 5000, Bedrooms: 3})
	assert.Equal(t, models.KindFeatureOutOfRange, models.KindOf(err))

	// Boundaries are inclusive
	_, err = enc.Encode(models.PropertyRecord{Borough: "Tlalpan", Area: 1000, Bedrooms: 6})
	assert.NoError(t, err)
}

func TestEncoder_BoroughCheckedBeforeRanges(t *testing.T) {
	enc := newTestEncoder(t, map[string]config.Range{"recamaras": {Min: 1, Max: 6}})

	_, err := enc.Encode(models.PropertyRecord{Borough: "Naucalpan", Area: 100, Bedrooms: 50})
	assert.Equal(t, models.KindBoroughNotFound, models.KindOf(err))
}

func TestEncoder_RespectsSchemaOrderAndAliases(t *testing.T) {
	// Column order of one family of house models, with the area named "dimensiones"
	schema, err := NewColumnSchema([]string{
		"recamaras", "banos", "estacionamientos", "dimensiones",
		"alcaldia_Tlalpan", "alcaldia_Coyoacán",
	})
	require.NoError(t, err)

	vec, err := NewEncoder(schema, nil).Encode(models.PropertyRecord{Borough: "Coyoacán", Area: 250, Bedrooms: 4, Bathrooms: 3, Parking: 2})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 3, 2, 250, 0, 1}, vec)
}

func TestEncoder_SchemaWithoutSomeFeaturesIgnoresThem(t *testing.T) {
	schema, err := NewColumnSchema([]string{"metros_cuadrados", "alcaldia_Tlalpan"})
	require.NoError(t, err)

	vec, err := NewEncoder(schema, nil).Encode(models.PropertyRecord{Borough: "Tlalpan", Area: 90, Bedrooms: 2, Parking: 1})
	require.NoError(t, err)
	assert.Equal(t, []float64{90, 1}, vec)
}

func TestNewColumnSchema_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{name: "Empty", columns: nil},
		{name: "Duplicate column", columns: []string{"recamaras", "recamaras", "alcaldia_Tlalpan"}},
		{name: "Empty name", columns: []string{"", "alcaldia_Tlalpan"}},
		{name: "No borough indicators", columns: []string{"metros_cuadrados", "recamaras"}},
		{name: "Unknown numeric feature", columns: []string{"antiguedad", "alcaldia_Tlalpan"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewColumnSchema(tt.columns)
			assert.Error(t, err)
		})
	}
}

func TestColumnSchema_Accessors(t *testing.T) {
	schema, err := NewColumnSchema(testColumns)
	require.NoError(t, err)

	assert.Equal(t, 8, schema.Len())
	assert.Equal(t, []string{"metros_cuadrados", "recamaras", "banos", "estacionamientos"}, schema.NumericColumns())
	assert.Equal(t, []string{"Benito Juárez", "Coyoacán", "Tlalpan", "Álvaro Obregón"}, schema.Boroughs())

	cols := schema.Columns()
	cols[0] = "changed"
	assert.Equal(t, "metros_cuadrados", schema.Columns()[0])
}
