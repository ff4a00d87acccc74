package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/api"
	"github.com/bc144/fennec-prediccion/internal/database"
	"github.com/bc144/fennec-prediccion/internal/geometry"
	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
	"github.com/bc144/fennec-prediccion/internal/prediction"
	"github.com/bc144/fennec-prediccion/internal/quotes"
	"github.com/bc144/fennec-prediccion/internal/scheduler"
	"github.com/bc144/fennec-prediccion/internal/stats"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Logging.Level).Warn("Unknown log level, using info")
	}
	gin.SetMode(cfg.Server.GinMode)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("fennec", registry)

	// Prediction artifacts
	ranges, err := config.LoadFeatureRanges(cfg.Artifacts.RangesFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load feature ranges")
	}
	predictions, err := prediction.NewRegistry(cfg.Artifacts.Dir, ranges, logger, collector)
	if err != nil {
		logger.WithError(err).WithField("dir", cfg.Artifacts.Dir).Warn("Some prediction artifacts failed to load")
	}

	// Statistics datasets
	engine := stats.NewEngine(map[models.PropertyType]string{
		models.House:     cfg.Datasets.HousesFile,
		models.Apartment: cfg.Datasets.ApartmentsFile,
	}, cfg.Datasets.USDToMXN, logger, collector)
	if err := engine.Reload(); err != nil {
		logger.WithError(err).Warn("Statistics datasets failed to load")
	}

	// Market quotes, with the optional history store as first fallback
	var history quotes.HistoryStore
	if db := openHistory(cfg.Quotes.HistoryDB, logger); db != nil {
		defer db.Close()
		history = db
	}
	adapter := quotes.NewAdapter(
		quotes.NewYahooSource(cfg.Quotes.BaseURL, cfg.Quotes.Timeout, cfg.Quotes.RequestsPerSecond, logger),
		history,
		quotes.Options{
			MaxAttempts:       cfg.Quotes.MaxAttempts,
			Backoff:           cfg.Quotes.Backoff,
			Timeout:           cfg.Quotes.Timeout,
			Concurrency:       cfg.Quotes.Concurrency,
			SimulatedFallback: cfg.Quotes.SimulatedFallback,
		},
		logger,
		collector,
	)

	boroughs, err := geometry.LoadBoroughMap(cfg.Geometry.BoroughsFile, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load borough boundaries")
	}

	sched := scheduler.NewScheduler(predictions, engine, cfg.Reload.Interval, logger, collector)
	sched.Start()
	defer sched.Stop()

	handler := api.NewHandler(api.Services{
		Predictions: predictions,
		Stats:       engine,
		Quotes:      adapter,
		Boroughs:    boroughs,
		Reloader:    sched,
	}, logger, collector)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Gatherer:       registry,
		Metrics:        collector,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server shutdown failed")
	}
}

// openHistory opens the quote history database when the file exists
func openHistory(path string, logger *logrus.Logger) *database.Database {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		logger.WithField("path", path).Info("Quote history database not found, history fallback disabled")
		return nil
	}

	db, err := database.NewDatabase(path)
	if err != nil {
		logger.WithError(err).WithField("path", path).Warn("Failed to open quote history database")
		return nil
	}
	logger.WithField("path", path).Info("Using quote history database")
	return db
}
