package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides application metrics collection. A nil *Collector is
// valid and records nothing.
type Collector struct {
	// API Metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec
	APIErrorsTotal     *prometheus.CounterVec

	// Prediction Metrics
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration *prometheus.HistogramVec

	// Statistics Metrics
	StatsCalculationDuration *prometheus.HistogramVec

	// Quote Metrics
	QuoteFetchesTotal *prometheus.CounterVec

	// Reload Metrics
	ReloadsTotal *prometheus.CounterVec

	// Import Metrics
	ImportedRowsTotal prometheus.Counter
	ImportBatchSize   prometheus.Histogram
}

// NewCollector creates a new metrics collector registered on reg. A nil
// registerer falls back to the default Prometheus registry.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		APIRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_requests_total",
				Help:      "Total number of API requests by endpoint, method, and status",
			},
			[]string{"endpoint", "method", "status"},
		),

		APIRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
			},
			[]string{"endpoint"},
		),

		APIErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of API errors by kind",
			},
			[]string{"error_kind", "endpoint"},
		),

		PredictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Total number of price predictions by property type and outcome",
			},
			[]string{"property_type", "outcome"},
		),

		PredictionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Duration of a single prediction in seconds",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"property_type"},
		),

		StatsCalculationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stats_calculation_duration_seconds",
				Help:      "Duration of statistics calculation in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1.0},
			},
			[]string{"operation"},
		),

		QuoteFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_fetches_total",
				Help:      "Total number of quote lookups by ticker and the source that answered",
			},
			[]string{"ticker", "source"},
		),

		ReloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reloads_total",
				Help:      "Total number of artifact and dataset reloads by target and outcome",
			},
			[]string{"target", "outcome"},
		),

		ImportedRowsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "imported_quote_rows_total",
				Help:      "Total number of quote history rows written by the importer",
			},
		),

		ImportBatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "import_batch_size",
				Help:      "Number of rows per importer batch",
				Buckets:   []float64{1, 10, 50, 100, 500, 1000},
			},
		),
	}
}

// Timer measures one operation. A timer from a nil *Collector still
// reports the elapsed time.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// StartTimer starts a timer that observes nothing
func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

// StatsTimer starts timing a statistics operation
func (c *Collector) StatsTimer(operation string) *Timer {
	t := StartTimer()
	if c != nil {
		t.observer = c.StatsCalculationDuration.WithLabelValues(operation)
	}
	return t
}

// Elapsed returns the time since the timer started
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time on the timer's histogram
func (t *Timer) ObserveDuration() time.Duration {
	elapsed := t.Elapsed()
	if t.observer != nil {
		t.observer.Observe(elapsed.Seconds())
	}
	return elapsed
}

// RecordAPIRequest records a finished request
func (c *Collector) RecordAPIRequest(endpoint, method, status string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	c.APIRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// RecordAPIError increments API error counter
func (c *Collector) RecordAPIError(errorKind, endpoint string) {
	if c == nil {
		return
	}
	c.APIErrorsTotal.WithLabelValues(errorKind, endpoint).Inc()
}

// RecordPrediction counts a prediction outcome ("ok" or an error kind)
func (c *Collector) RecordPrediction(propertyType, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.PredictionsTotal.WithLabelValues(propertyType, outcome).Inc()
	c.PredictionDuration.WithLabelValues(propertyType).Observe(elapsed.Seconds())
}

// RecordQuote counts which source answered a quote lookup
func (c *Collector) RecordQuote(ticker, source string) {
	if c == nil {
		return
	}
	c.QuoteFetchesTotal.WithLabelValues(ticker, source).Inc()
}

// RecordReload counts a reload of "artifacts" or "datasets"
func (c *Collector) RecordReload(target string, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.ReloadsTotal.WithLabelValues(target, outcome).Inc()
}

// RecordImportBatch records one importer batch written to the store
func (c *Collector) RecordImportBatch(rows int) {
	if c == nil {
		return
	}
	c.ImportedRowsTotal.Add(float64(rows))
	c.ImportBatchSize.Observe(float64(rows))
}
