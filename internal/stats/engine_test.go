package stats

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEngine() *Engine {
	return NewEngineFromRows(map[models.PropertyType][]PriceRow{
		models.House: {
			{Price: 10, PricePerArea: 1, Borough: "Tlalpan"},
			{Price: 12, PricePerArea: 2, Borough: "Tlalpan"},
			{Price: 12, PricePerArea: 2, Borough: "Coyoacán"},
			{Price: 13, PricePerArea: 3, Borough: "Coyoacán"},
			{Price: 14, PricePerArea: 3, Borough: "Tlalpan"},
			{Price: 100, PricePerArea: 50, Borough: "Tlalpan"},
		},
		models.Apartment: {
			{Price: 20, PricePerArea: 4, Borough: "Tlalpan"},
			{Price: 22, PricePerArea: 4, Borough: "Benito Juárez"},
			{Price: 24, PricePerArea: 5, Borough: "Benito Juárez"},
		},
	}, quietLogger())
}

func TestEngine_Stats(t *testing.T) {
	e := testEngine()

	s, err := e.Stats(models.House)
	require.NoError(t, err)
	assert.Equal(t, 10.0, s.Minimum)
	assert.Equal(t, 14.0, s.Maximum)
	assert.InDelta(t, 12.2, s.Mean, 1e-12)
	assert.Equal(t, 12.0, s.Median)
}

func TestEngine_PricePerArea(t *testing.T) {
	e := testEngine()

	// 50 is excluded as an outlier
	ppa, err := e.PricePerArea(models.House)
	require.NoError(t, err)
	assert.InDelta(t, 11.0/5, ppa, 1e-12)

	ppa, err = e.PricePerArea(models.Apartment)
	require.NoError(t, err)
	assert.InDelta(t, 13.0/3, ppa, 1e-12)
}

func TestEngine_Totals(t *testing.T) {
	e := testEngine()

	n, err := e.Total(models.House)
	require.NoError(t, err)
	assert.Equal(t, 6, n, "totals are unfiltered")

	n, err = e.Total(models.Apartment)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = e.TotalAll()
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestEngine_AvgPriceByBorough(t *testing.T) {
	e := testEngine()

	byBorough, err := e.AvgPriceByBorough(models.House)
	require.NoError(t, err)

	assert.Len(t, byBorough, 16, "every known borough is reported")
	assert.InDelta(t, 12.5, byBorough["Coyoacán"], 1e-12)
	assert.Equal(t, 0.0, byBorough["Milpa Alta"])
	assert.Equal(t, 0.0, byBorough["Benito Juárez"])

	// Tlalpan houses [10, 12, 14, 100]: Q1 = 11.5, Q3 = 35.5, upper bound 71.5
	assert.InDelta(t, 12.0, byBorough["Tlalpan"], 1e-12)
}

func TestEngine_AllIsUnionOfBothDatasets(t *testing.T) {
	e := testEngine()

	byBorough, err := e.AvgPriceByBorough(models.AllTypes)
	require.NoError(t, err)

	// Tlalpan union [10, 12, 14, 100, 20]: Q1 = 12, Q3 = 20, upper bound 32
	assert.InDelta(t, 14.0, byBorough["Tlalpan"], 1e-12)
	assert.InDelta(t, 23.0, byBorough["Benito Juárez"], 1e-12)

	ppa, err := e.PricePerAreaByBorough(models.AllTypes)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, ppa["Benito Juárez"], 1e-12)
	assert.Equal(t, 0.0, ppa["Xochimilco"])
}

func TestEngine_EmptyDatasetIsUnavailable(t *testing.T) {
	e := NewEngineFromRows(map[models.PropertyType][]PriceRow{
		models.House: {{Price: math.NaN(), PricePerArea: math.NaN()}},
	}, quietLogger())

	_, err := e.Stats(models.House)
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))

	_, err = e.PricePerArea(models.Apartment)
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))

	// Zero-data policy: per-borough and totals still answer
	byBorough, err := e.AvgPriceByBorough(models.Apartment)
	require.NoError(t, err)
	assert.Equal(t, 0.0, byBorough["Tlalpan"])

	n, err := e.Total(models.Apartment)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_NotLoaded(t *testing.T) {
	e := NewEngine(nil, 19.5, quietLogger(), nil)

	_, err := e.Stats(models.House)
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))
	_, err = e.TotalAll()
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))
	assert.False(t, e.Loaded())
}

func TestEngine_Reload(t *testing.T) {
	dir := t.TempDir()
	houses := filepath.Join(dir, "casas.csv")
	apartments := filepath.Join(dir, "departamentos.csv")
	require.NoError(t, os.WriteFile(houses, []byte("precio,precio_m2,alcaldia\n100,10,Tlalpan\n"), 0644))
	require.NoError(t, os.WriteFile(apartments, []byte("precio,precio_m2,alcaldia\n200,20,Coyoacán\n300,30,Coyoacán\n"), 0644))

	e := NewEngine(map[models.PropertyType]string{
		models.House:     houses,
		models.Apartment: apartments,
	}, 19.5, quietLogger(), nil)
	require.NoError(t, e.Reload())

	n, err := e.TotalAll()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// A broken file keeps the previous snapshot
	require.NoError(t, os.WriteFile(apartments, []byte("recamaras\n3\n"), 0644))
	err = e.Reload()
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))

	n, err = e.TotalAll()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, os.WriteFile(apartments, []byte("precio,precio_m2,alcaldia\n200,20,Coyoacán\n"), 0644))
	require.NoError(t, e.Reload())
	n, err = e.TotalAll()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEngine_MissingFileIsUnavailable(t *testing.T) {
	e := NewEngine(map[models.PropertyType]string{
		models.House: filepath.Join(t.TempDir(), "missing.csv"),
	}, 19.5, quietLogger(), nil)

	err := e.Reload()
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))
	assert.False(t, e.Loaded())
}

func TestEngine_UnknownTypeIsUnavailable(t *testing.T) {
	e := testEngine()

	_, err := e.Stats(models.PropertyType("terreno"))
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))
	_, err = e.Total(models.PropertyType("terreno"))
	assert.Equal(t, models.KindStatisticsUnavailable, models.KindOf(err))
}

func TestEngine_ObservesOperationDuration(t *testing.T) {
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	e := NewEngineFromRows(map[models.PropertyType][]PriceRow{
		models.House: {{Price: 10, PricePerArea: 1, Borough: "Tlalpan"}},
	}, quietLogger())
	e.metrics = collector

	_, err := e.PricePerArea(models.House)
	require.NoError(t, err)
	_, err = e.Stats(models.House)
	require.NoError(t, err)

	// one series per operation label
	assert.Equal(t, 2, testutil.CollectAndCount(collector.StatsCalculationDuration))
}
