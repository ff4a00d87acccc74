// Package stats computes outlier-robust market aggregates over the house and
// apartment price datasets.
package stats

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

var errNotLoaded = errors.New("datasets not loaded")

type snapshot struct {
	rows     map[models.PropertyType][]PriceRow
	loadedAt time.Time
}

// Engine answers statistics queries from an immutable snapshot of both
// datasets. Reload swaps the snapshot atomically.
type Engine struct {
	files    map[models.PropertyType]string
	usdToMXN float64
	boroughs []string
	current  atomic.Pointer[snapshot]
	logger   *logrus.Logger
	metrics  *metrics.Collector
}

// NewEngine creates an engine over the given dataset files, keyed by
// property type. Nothing is read until Reload.
func NewEngine(files map[models.PropertyType]string, usdToMXN float64, logger *logrus.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Engine{
		files:    files,
		usdToMXN: usdToMXN,
		boroughs: config.GetBoroughNames(),
		logger:   logger,
		metrics:  collector,
	}
}

// NewEngineFromRows builds a loaded engine over in-memory rows
func NewEngineFromRows(rows map[models.PropertyType][]PriceRow, logger *logrus.Logger) *Engine {
	e := NewEngine(nil, 0, logger, nil)
	e.current.Store(&snapshot{rows: rows, loadedAt: time.Now()})
	return e
}

// Reload reads every dataset file and swaps in the new snapshot. If any file
// fails, the previous snapshot stays active.
func (e *Engine) Reload() error {
	next := &snapshot{
		rows:     make(map[models.PropertyType][]PriceRow, len(e.files)),
		loadedAt: time.Now(),
	}
	for _, pt := range models.PredictableTypes {
		path, ok := e.files[pt]
		if !ok {
			continue
		}
		rows, err := LoadDataset(path, e.usdToMXN)
		if err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"property_type": pt,
				"path":          path,
				"kept_previous": e.current.Load() != nil,
			}).Error("Failed to load price dataset")
			return models.NewStatisticsUnavailable(string(pt), err)
		}
		next.rows[pt] = rows
		e.logger.WithFields(logrus.Fields{
			"property_type": pt,
			"path":          path,
			"rows":          len(rows),
		}).Info("Loaded price dataset")
	}

	e.current.Store(next)
	return nil
}

// Loaded reports whether a snapshot is available
func (e *Engine) Loaded() bool {
	return e.current.Load() != nil
}

// rows returns the rows of a type; AllTypes is the union of both datasets
func (e *Engine) rows(propertyType models.PropertyType) ([]PriceRow, error) {
	snap := e.current.Load()
	if snap == nil {
		return nil, models.NewStatisticsUnavailable(string(propertyType), errNotLoaded)
	}

	switch propertyType {
	case models.House, models.Apartment:
		return snap.rows[propertyType], nil
	case models.AllTypes:
		all := make([]PriceRow, 0, len(snap.rows[models.House])+len(snap.rows[models.Apartment]))
		all = append(all, snap.rows[models.House]...)
		all = append(all, snap.rows[models.Apartment]...)
		return all, nil
	}
	return nil, models.NewStatisticsUnavailable(string(propertyType), fmt.Errorf("unknown property type %q", propertyType))
}

// PricePerArea is the mean price per square metre after outlier filtering
func (e *Engine) PricePerArea(propertyType models.PropertyType) (float64, error) {
	defer e.metrics.StatsTimer("price_per_area").ObserveDuration()

	rows, err := e.rows(propertyType)
	if err != nil {
		return 0, err
	}
	filtered := FilterOutliers(rows, rowPricePerArea)
	if len(filtered) == 0 {
		return 0, models.NewStatisticsUnavailable(string(propertyType), errors.New("no price per area values after outlier filtering"))
	}
	return mean(column(filtered, rowPricePerArea)), nil
}

// Stats returns min, max, mean and median price after outlier filtering
func (e *Engine) Stats(propertyType models.PropertyType) (*models.AggregateStats, error) {
	defer e.metrics.StatsTimer("stats").ObserveDuration()

	rows, err := e.rows(propertyType)
	if err != nil {
		return nil, err
	}
	prices := column(FilterOutliers(rows, rowPrice), rowPrice)
	if len(prices) == 0 {
		return nil, models.NewStatisticsUnavailable(string(propertyType), errors.New("no prices after outlier filtering"))
	}

	out := &models.AggregateStats{
		Minimum: prices[0],
		Maximum: prices[0],
		Mean:    mean(prices),
		Median:  median(prices),
	}
	for _, p := range prices[1:] {
		if p < out.Minimum {
			out.Minimum = p
		}
		if p > out.Maximum {
			out.Maximum = p
		}
	}
	return out, nil
}

// Total is the unfiltered row count of a type
func (e *Engine) Total(propertyType models.PropertyType) (int, error) {
	rows, err := e.rows(propertyType)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// TotalAll is the unfiltered row count across both datasets
func (e *Engine) TotalAll() (int, error) {
	return e.Total(models.AllTypes)
}

// AvgPriceByBorough is the filtered mean price for every known borough.
// Boroughs without rows report 0.
func (e *Engine) AvgPriceByBorough(propertyType models.PropertyType) (models.BoroughValues, error) {
	defer e.metrics.StatsTimer("avg_price_by_borough").ObserveDuration()
	return e.byBorough(propertyType, rowPrice)
}

// PricePerAreaByBorough is the filtered mean price per square metre for
// every known borough. Boroughs without rows report 0.
func (e *Engine) PricePerAreaByBorough(propertyType models.PropertyType) (models.BoroughValues, error) {
	defer e.metrics.StatsTimer("price_per_area_by_borough").ObserveDuration()
	return e.byBorough(propertyType, rowPricePerArea)
}

func (e *Engine) byBorough(propertyType models.PropertyType, value func(PriceRow) float64) (models.BoroughValues, error) {
	rows, err := e.rows(propertyType)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]PriceRow, len(e.boroughs))
	for _, r := range rows {
		grouped[r.Borough] = append(grouped[r.Borough], r)
	}

	out := make(models.BoroughValues, len(e.boroughs))
	for _, b := range e.boroughs {
		filtered := FilterOutliers(grouped[b], value)
		if len(filtered) == 0 {
			out[b] = 0
			continue
		}
		out[b] = mean(column(filtered, value))
	}
	return out, nil
}

func column(rows []PriceRow, value func(PriceRow) float64) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = value(r)
	}
	return out
}
