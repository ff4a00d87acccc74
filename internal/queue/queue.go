package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// QuoteQueue is an in-memory queue of quote history batches
type QuoteQueue struct {
	items  chan []models.QuoteClose
	done   chan struct{}
	closed bool
	mu     sync.RWMutex
	once   sync.Once
	logger *logrus.Logger
}

// NewQuoteQueue creates a new queue with the specified buffer size
func NewQuoteQueue(bufferSize int, logger *logrus.Logger) *QuoteQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &QuoteQueue{
		items:  make(chan []models.QuoteClose, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Push adds a batch without blocking
func (q *QuoteQueue) Push(batch []models.QuoteClose) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// PushWait adds a batch, waiting for room until ctx is done or the queue closes
func (q *QuoteQueue) PushWait(ctx context.Context, batch []models.QuoteClose) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Batches is drained by consumers; it is closed once the queue is closed
// and every pending batch has been received
func (q *QuoteQueue) Batches() <-chan []models.QuoteClose {
	return q.items
}

// Close stops accepting batches. Batches already queued stay readable.
func (q *QuoteQueue) Close() error {
	// Wake blocked producers before taking the write lock they hold for reading
	q.once.Do(func() { close(q.done) })

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.items)
	return nil
}

// Len returns the current number of batches in the queue
func (q *QuoteQueue) Len() int {
	return len(q.items)
}

// Cap returns the number of batches the queue can hold
func (q *QuoteQueue) Cap() int {
	return cap(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *QuoteQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
