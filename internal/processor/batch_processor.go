package processor

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/bc144/fennec-prediccion/config"
	"github.com/bc144/fennec-prediccion/internal/database"
	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
	"github.com/bc144/fennec-prediccion/internal/queue"
)

// Transactor is the part of *gorm.DB the processor needs
type Transactor interface {
	Transaction(fc func(*gorm.DB) error, opts ...*sql.TxOptions) error
}

// BatchProcessor writes quote history batches from the queue into the store
type BatchProcessor struct {
	db        Transactor
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.QuoteQueue
	metrics   *metrics.Collector
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	failed    atomic.Int64
	written   atomic.Int64
	sleep     func(time.Duration)
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(db Transactor, queue *queue.QuoteQueue, config *config.Config, logger *logrus.Logger, collector *metrics.Collector) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		db:      db,
		queue:   queue,
		config:  config,
		logger:  logger,
		metrics: collector,
		ctx:     ctx,
		cancel:  cancel,
		sleep:   time.Sleep,
	}
}

// Start launches the configured number of workers
func (p *BatchProcessor) Start() {
	workers := p.config.BatchProcessing.ProcessorCount
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
}

// Wait blocks until the queue is closed and fully drained
func (p *BatchProcessor) Wait() {
	p.waitGroup.Wait()
}

// Stop gracefully shuts down the processor, abandoning queued batches
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

// Failed returns the number of batches that exhausted their retries
func (p *BatchProcessor) Failed() int64 {
	return p.failed.Load()
}

// Written returns the number of rows successfully upserted
func (p *BatchProcessor) Written() int64 {
	return p.written.Load()
}

// processLoop handles the continuous processing of batches
func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case batch, ok := <-p.queue.Batches():
			if !ok {
				return
			}
			if err := p.processBatch(batch); err != nil {
				p.failed.Add(1)
				p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Dropping batch")
			}
		}
	}
}

// processBatch upserts a batch in one transaction, retrying on failure
func (p *BatchProcessor) processBatch(batch []models.QuoteClose) error {
	attempts := p.config.BatchProcessing.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			p.logger.WithFields(logrus.Fields{
				"attempt":      attempt,
				"max_attempts": attempts,
			}).Info("Retrying batch processing")
			p.sleep(delay)
		}

		err = p.db.Transaction(func(tx *gorm.DB) error {
			if err := database.UpsertQuotes(tx, batch); err != nil {
				return fmt.Errorf("failed to upsert quote batch: %w", err)
			}
			return nil
		})

		if err == nil {
			p.written.Add(int64(len(batch)))
			p.metrics.RecordImportBatch(len(batch))
			p.logger.WithField("batch_size", len(batch)).Info("Successfully processed batch")
			return nil
		}

		p.logger.WithError(err).Error("Batch processing failed")
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", attempts, err)
}
