package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/database"
	"github.com/bc144/fennec-prediccion/internal/importer"
	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/processor"
	"github.com/bc144/fennec-prediccion/internal/queue"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := run(logger); err != nil {
		logger.WithError(err).Error("Quote history import failed")
		os.Exit(1)
	}
}

func run(logger *logrus.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	csvPath := flag.String("csv", "fibras.csv", "quote history CSV with ticker,fecha,precio columns")
	dbPath := flag.String("db", cfg.Quotes.HistoryDB, "SQLite quote history database")
	flag.Parse()

	db, err := database.NewDatabase(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	f, err := os.Open(*csvPath)
	if err != nil {
		return fmt.Errorf("failed to open quote history CSV: %w", err)
	}
	defer f.Close()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector("fennec_importer", registry)
	quoteQueue := queue.NewQuoteQueue(cfg.BatchProcessing.QueueSize, logger)
	proc := processor.NewBatchProcessor(db.DB(), quoteQueue, cfg, logger, collector)
	imp := importer.NewImporter(quoteQueue, cfg.BatchProcessing.MaxBatchSize, logger)

	closes, err := imp.Read(f)
	if err != nil {
		return fmt.Errorf("failed to read quote history CSV: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc.Start()
	_, enqueueErr := imp.Enqueue(ctx, closes)
	quoteQueue.Close()
	proc.Wait()

	total, err := db.Count()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"csv":            *csvPath,
		"db":             *dbPath,
		"rows_read":      len(closes),
		"rows_skipped":   imp.Skipped(),
		"rows_written":   proc.Written(),
		"failed_batches": proc.Failed(),
		"stored_closes":  total,
	}).Info("Quote history import finished")
	logMetrics(registry, logger)

	if enqueueErr != nil {
		return enqueueErr
	}
	if failed := proc.Failed(); failed > 0 {
		return fmt.Errorf("%d batches could not be written", failed)
	}
	return nil
}

// logMetrics writes the importer's counters and histogram counts to the log
func logMetrics(gatherer prometheus.Gatherer, logger *logrus.Logger) {
	families, err := gatherer.Gather()
	if err != nil {
		logger.WithError(err).Warn("Failed to gather import metrics")
		return
	}

	fields := logrus.Fields{}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fields[family.GetName()] = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				fields[family.GetName()+"_count"] = m.GetHistogram().GetSampleCount()
				fields[family.GetName()+"_sum"] = m.GetHistogram().GetSampleSum()
			}
		}
	}
	logger.WithFields(fields).Info("Import metrics")
}
