// Package quotes resolves the latest price of the listed real estate trusts
// (FIBRAs), falling back from the live market source to the local history
// store and finally to simulated values.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bc144/fennec-prediccion/internal/metrics"
	"github.com/bc144/fennec-prediccion/internal/models"
)

// Tickers maps the short FIBRA names to their market symbols
var Tickers = map[string]string{
	"FUNO":    "FUNO11.MX",
	"FMTY":    "FMTY14.MX",
	"FIBRAPL": "FIBRAPL14.MX",
	"DANHOS":  "DANHOS13.MX",
}

// simulatedBase is the reference price used when no source answers
var simulatedBase = map[string]float64{
	"FUNO":    25.50,
	"FMTY":    8.75,
	"FIBRAPL": 12.30,
	"DANHOS":  27.80,
}

// TickerNames returns the known short names in alphabetical order
func TickerNames() []string {
	names := make([]string, 0, len(Tickers))
	for name := range Tickers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTicker normalizes a short name and returns it with its symbol
func ResolveTicker(name string) (string, string, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	symbol, ok := Tickers[key]
	if !ok {
		return "", "", models.NewTickerNotFound(name)
	}
	return key, symbol, nil
}

// NormalizeTicker accepts a short name or a market symbol and returns the
// short name
func NormalizeTicker(s string) (string, error) {
	if ticker, _, err := ResolveTicker(s); err == nil {
		return ticker, nil
	}
	key := strings.ToUpper(strings.TrimSpace(s))
	for ticker, symbol := range Tickers {
		if symbol == key {
			return ticker, nil
		}
	}
	return "", models.NewTickerNotFound(s)
}

// HistoryStore returns the most recent stored closes of a ticker, newest first
type HistoryStore interface {
	LatestCloses(ticker string, n int) ([]models.QuoteClose, error)
}

// Options tunes retries and concurrency
type Options struct {
	MaxAttempts       int
	Backoff           time.Duration
	Timeout           time.Duration
	Concurrency       int
	SimulatedFallback bool
}

// Adapter answers quote lookups
type Adapter struct {
	source  Source
	history HistoryStore
	opts    Options
	logger  *logrus.Logger
	metrics *metrics.Collector

	randMu sync.Mutex
	rand   *rand.Rand
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an adapter. history may be nil.
func NewAdapter(source Source, history HistoryStore, opts Options, logger *logrus.Logger, collector *metrics.Collector) *Adapter {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = len(Tickers)
	}

	return &Adapter{
		source:  source,
		history: history,
		opts:    opts,
		logger:  logger,
		metrics: collector,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LatestQuote returns the latest quote of one FIBRA by short name
func (a *Adapter) LatestQuote(ctx context.Context, name string) (*models.Quote, error) {
	ticker, symbol, err := ResolveTicker(name)
	if err != nil {
		return nil, err
	}

	q, liveErr := a.fetchLive(ctx, ticker, symbol)
	if liveErr == nil {
		return a.record(q), nil
	}
	a.logger.WithError(liveErr).WithFields(logrus.Fields{
		"ticker": ticker,
		"symbol": symbol,
	}).Warn("Live quote unavailable, trying history store")

	q, histErr := a.fromHistory(ticker, symbol)
	if histErr == nil {
		return a.record(q), nil
	}
	a.logger.WithError(histErr).WithField("ticker", ticker).Warn("Quote history unavailable")

	if a.opts.SimulatedFallback {
		if q, ok := a.simulated(ticker, symbol); ok {
			a.logger.WithField("ticker", ticker).Warn("Serving simulated quote")
			return a.record(q), nil
		}
	}

	return nil, models.NewQuoteUnavailable(ticker, errors.Join(liveErr, histErr))
}

func (a *Adapter) record(q *models.Quote) *models.Quote {
	a.metrics.RecordQuote(q.Ticker, string(q.Source))
	return q
}

// fetchLive tries the live source with bounded attempts and a fixed backoff.
// Only transient failures are retried.
func (a *Adapter) fetchLive(ctx context.Context, ticker, symbol string) (*models.Quote, error) {
	if a.source == nil {
		return nil, errors.New("no live quote source configured")
	}

	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxAttempts; attempt++ {
		closes, err := a.fetchOnce(ctx, symbol)
		if err == nil {
			return buildQuote(ticker, symbol, closes, models.SourceLive)
		}
		lastErr = err

		if !IsTransient(err) || attempt == a.opts.MaxAttempts {
			break
		}
		a.logger.WithError(err).WithFields(logrus.Fields{
			"ticker":  ticker,
			"attempt": attempt,
		}).Debug("Retrying quote fetch")
		if err := a.sleep(ctx, a.opts.Backoff); err != nil {
			return nil, fmt.Errorf("retry aborted: %w", err)
		}
	}
	return nil, lastErr
}

func (a *Adapter) fetchOnce(ctx context.Context, symbol string) ([]Close, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	return a.source.Closes(ctx, symbol)
}

func (a *Adapter) fromHistory(ticker, symbol string) (*models.Quote, error) {
	if a.history == nil {
		return nil, errors.New("no history store configured")
	}
	stored, err := a.history.LatestCloses(ticker, 2)
	if err != nil {
		return nil, fmt.Errorf("failed to read quote history: %w", err)
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("no stored closes for %s", ticker)
	}

	// Stored closes come newest first
	closes := make([]Close, len(stored))
	for i, c := range stored {
		closes[len(stored)-1-i] = Close{Date: c.Date, Price: c.Close}
	}
	return buildQuote(ticker, symbol, closes, models.SourceHistory)
}

func (a *Adapter) simulated(ticker, symbol string) (*models.Quote, bool) {
	base, ok := simulatedBase[ticker]
	if !ok {
		return nil, false
	}

	a.randMu.Lock()
	drift := a.rand.Float64()*6 - 3
	variation := a.rand.Float64()*3 - 1.5
	a.randMu.Unlock()

	return &models.Quote{
		Ticker:           ticker,
		Symbol:           symbol,
		Price:            round2(base * (1 + drift/100)),
		VariationPercent: round2(variation),
		Date:             a.now().Format("2006-01-02"),
		Source:           models.SourceSimulated,
	}, true
}

// buildQuote takes closes oldest first
func buildQuote(ticker, symbol string, closes []Close, source models.QuoteSource) (*models.Quote, error) {
	if len(closes) == 0 {
		return nil, fmt.Errorf("no closes for %s", ticker)
	}
	last := closes[len(closes)-1]

	var variation float64
	if len(closes) > 1 {
		prev := closes[len(closes)-2].Price
		if prev == 0 {
			return nil, fmt.Errorf("previous close of %s is zero", ticker)
		}
		variation = (last.Price - prev) / prev * 100
	}

	return &models.Quote{
		Ticker:           ticker,
		Symbol:           symbol,
		Price:            round2(last.Price),
		VariationPercent: round2(variation),
		Date:             last.Date,
		Source:           source,
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// LatestQuotes fetches every known ticker concurrently. One ticker failing
// never cancels the others; failures are listed in the batch. If every
// ticker fails the batch fails with AllQuotesUnavailable.
func (a *Adapter) LatestQuotes(ctx context.Context) (*models.QuoteBatch, error) {
	names := TickerNames()
	results := make([]*models.Quote, len(names))

	var (
		mu     sync.Mutex
		failed = make(map[string]string)
		g      errgroup.Group
	)
	g.SetLimit(a.opts.Concurrency)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			q, err := a.LatestQuote(ctx, name)
			if err != nil {
				mu.Lock()
				failed[name] = err.Error()
				mu.Unlock()
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait()

	batch := &models.QuoteBatch{Quotes: make([]models.Quote, 0, len(names))}
	for _, q := range results {
		if q != nil {
			batch.Quotes = append(batch.Quotes, *q)
		}
	}
	if len(failed) > 0 {
		batch.Failed = failed
		a.logger.WithField("failed", failed).Warn("Some quotes could not be fetched")
	}
	if len(batch.Quotes) == 0 {
		return nil, models.NewAllQuotesUnavailable(failed)
	}
	return batch, nil
}
