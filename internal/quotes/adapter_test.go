package quotes

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bc144/fennec-prediccion/internal/models"
)

// sourceFunc adapts a function to Source
type sourceFunc func(ctx context.Context, symbol string) ([]Close, error)

func (f sourceFunc) Closes(ctx context.Context, symbol string) ([]Close, error) {
	return f(ctx, symbol)
}

// MockHistory is a mock implementation of HistoryStore
type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) LatestCloses(ticker string, n int) ([]models.QuoteClose, error) {
	args := m.Called(ticker, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QuoteClose), args.Error(1)
}

func newTestAdapter(source Source, history HistoryStore, opts Options) *Adapter {
	a := NewAdapter(source, history, opts, quietLogger(), nil)
	a.sleep = func(context.Context, time.Duration) error { return nil }
	a.rand = rand.New(rand.NewSource(1))
	a.now = func() time.Time { return time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC) }
	return a
}

func staticCloses(closes ...Close) Source {
	return sourceFunc(func(context.Context, string) ([]Close, error) { return closes, nil })
}

func TestResolveTicker(t *testing.T) {
	tests := []struct {
		input  string
		ticker string
		symbol string
	}{
		{input: "FUNO", ticker: "FUNO", symbol: "FUNO11.MX"},
		{input: " fmty ", ticker: "FMTY", symbol: "FMTY14.MX"},
		{input: "FibraPL", ticker: "FIBRAPL", symbol: "FIBRAPL14.MX"},
		{input: "danhos", ticker: "DANHOS", symbol: "DANHOS13.MX"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ticker, symbol, err := ResolveTicker(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.ticker, ticker)
			assert.Equal(t, tt.symbol, symbol)
		})
	}

	_, _, err := ResolveTicker("TERRA")
	assert.Equal(t, models.KindTickerNotFound, models.KindOf(err))
}

func TestNormalizeTicker(t *testing.T) {
	for input, want := range map[string]string{
		"funo":          "FUNO",
		"FUNO11.MX":     "FUNO",
		" fibrapl14.mx": "FIBRAPL",
		"DANHOS13.MX":   "DANHOS",
	} {
		got, err := NormalizeTicker(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got)
	}

	_, err := NormalizeTicker("TERRA13.MX")
	assert.True(t, models.IsKind(err, models.KindTickerNotFound))
}

func TestAdapter_LatestQuoteLive(t *testing.T) {
	a := newTestAdapter(staticCloses(
		Close{Date: "2025-03-05", Price: 25.00},
		Close{Date: "2025-03-06", Price: 25.50},
	), nil, Options{MaxAttempts: 3})

	q, err := a.LatestQuote(context.Background(), "funo")
	require.NoError(t, err)

	assert.Equal(t, "FUNO", q.Ticker)
	assert.Equal(t, "FUNO11.MX", q.Symbol)
	assert.Equal(t, 25.5, q.Price)
	assert.Equal(t, 2.0, q.VariationPercent)
	assert.Equal(t, "2025-03-06", q.Date)
	assert.Equal(t, models.SourceLive, q.Source)
}

func TestAdapter_SingleCloseHasZeroVariation(t *testing.T) {
	a := newTestAdapter(staticCloses(Close{Date: "2025-03-06", Price: 8.756}), nil, Options{})

	q, err := a.LatestQuote(context.Background(), "FMTY")
	require.NoError(t, err)
	assert.Equal(t, 8.76, q.Price)
	assert.Equal(t, 0.0, q.VariationPercent)
}

func TestAdapter_UnknownTicker(t *testing.T) {
	a := newTestAdapter(staticCloses(), nil, Options{})

	_, err := a.LatestQuote(context.Background(), "TERRA")
	assert.Equal(t, models.KindTickerNotFound, models.KindOf(err))
}

func TestAdapter_RetriesTransientFailures(t *testing.T) {
	calls := 0
	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		calls++
		if calls < 3 {
			return nil, &transientError{err: errors.New("status 503")}
		}
		return []Close{{Date: "2025-03-06", Price: 12.3}}, nil
	})
	a := newTestAdapter(src, nil, Options{MaxAttempts: 3})

	q, err := a.LatestQuote(context.Background(), "FIBRAPL")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, models.SourceLive, q.Source)
}

func TestAdapter_DoesNotRetryPermanentFailures(t *testing.T) {
	calls := 0
	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		calls++
		return nil, errors.New("status 404")
	})
	a := newTestAdapter(src, nil, Options{MaxAttempts: 5})

	_, err := a.LatestQuote(context.Background(), "FUNO")
	assert.Equal(t, models.KindQuoteUnavailable, models.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestAdapter_FallsBackToHistory(t *testing.T) {
	history := new(MockHistory)
	history.On("LatestCloses", "DANHOS", 2).Return([]models.QuoteClose{
		{Ticker: "DANHOS", Date: "2025-03-04", Close: 28.6},
		{Ticker: "DANHOS", Date: "2025-03-03", Close: 28.0},
	}, nil)

	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		return nil, &transientError{err: errors.New("connection refused")}
	})
	a := newTestAdapter(src, history, Options{MaxAttempts: 2, SimulatedFallback: true})

	q, err := a.LatestQuote(context.Background(), "DANHOS")
	require.NoError(t, err)

	assert.Equal(t, models.SourceHistory, q.Source)
	assert.Equal(t, 28.6, q.Price)
	assert.Equal(t, "2025-03-04", q.Date)
	assert.Equal(t, 2.14, q.VariationPercent)
	history.AssertExpectations(t)
}

func TestAdapter_FallsBackToSimulated(t *testing.T) {
	history := new(MockHistory)
	history.On("LatestCloses", "FUNO", 2).Return(nil, nil)

	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		return nil, errors.New("down")
	})
	a := newTestAdapter(src, history, Options{SimulatedFallback: true})

	q, err := a.LatestQuote(context.Background(), "FUNO")
	require.NoError(t, err)

	assert.Equal(t, models.SourceSimulated, q.Source)
	assert.Equal(t, "2025-03-07", q.Date)
	assert.InDelta(t, 25.50, q.Price, 25.50*0.03+0.01)
	assert.LessOrEqual(t, q.VariationPercent, 1.5)
	assert.GreaterOrEqual(t, q.VariationPercent, -1.5)
}

func TestAdapter_NoFallbackIsUnavailable(t *testing.T) {
	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		return nil, errors.New("down")
	})
	a := newTestAdapter(src, nil, Options{SimulatedFallback: false})

	_, err := a.LatestQuote(context.Background(), "FUNO")
	assert.Equal(t, models.KindQuoteUnavailable, models.KindOf(err))
	assert.Contains(t, err.Error(), "down")
}

func TestAdapter_LatestQuotesPartialFailure(t *testing.T) {
	src := sourceFunc(func(_ context.Context, symbol string) ([]Close, error) {
		if symbol == "FMTY14.MX" {
			return nil, errors.New("forced failure")
		}
		return []Close{{Date: "2025-03-06", Price: 10}}, nil
	})
	a := newTestAdapter(src, nil, Options{MaxAttempts: 2, Concurrency: 2})

	batch, err := a.LatestQuotes(context.Background())
	require.NoError(t, err)

	tickers := make([]string, len(batch.Quotes))
	for i, q := range batch.Quotes {
		tickers[i] = q.Ticker
	}
	assert.Equal(t, []string{"DANHOS", "FIBRAPL", "FUNO"}, tickers)
	require.Contains(t, batch.Failed, "FMTY")
	assert.Contains(t, batch.Failed["FMTY"], "forced failure")
}

func TestAdapter_LatestQuotesAllFailed(t *testing.T) {
	src := sourceFunc(func(context.Context, string) ([]Close, error) {
		return nil, errors.New("down")
	})
	a := newTestAdapter(src, nil, Options{})

	batch, err := a.LatestQuotes(context.Background())
	assert.Nil(t, batch)
	require.Error(t, err)

	var de *models.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, models.KindAllQuotesUnavailable, de.Kind)
	assert.Len(t, de.Failed, len(Tickers))
}

func TestAdapter_SlowTickerDoesNotBlockOthers(t *testing.T) {
	src := sourceFunc(func(ctx context.Context, symbol string) ([]Close, error) {
		if symbol == "FUNO11.MX" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []Close{{Date: "2025-03-06", Price: 10}}, nil
	})
	a := newTestAdapter(src, nil, Options{Timeout: 50 * time.Millisecond})

	start := time.Now()
	batch, err := a.LatestQuotes(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, batch.Quotes, 3)
	assert.Contains(t, batch.Failed, "FUNO")
}

func TestAdapter_WithYahooServer(t *testing.T) {
	var mu sync.Mutex
	hits := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := strings.TrimPrefix(r.URL.Path, "/v8/finance/chart/")
		mu.Lock()
		hits[symbol]++
		n := hits[symbol]
		mu.Unlock()

		// FIBRAPL fails once with a retryable status
		if symbol == "FIBRAPL14.MX" && n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chartJSON(symbol, 10.0, 10.5))
	}))
	defer srv.Close()

	src := NewYahooSource(srv.URL, time.Second, 0, quietLogger())
	a := newTestAdapter(src, nil, Options{MaxAttempts: 3, Timeout: time.Second, Concurrency: 4})

	batch, err := a.LatestQuotes(context.Background())
	require.NoError(t, err)
	assert.Len(t, batch.Quotes, 4)
	assert.Empty(t, batch.Failed)
	for _, q := range batch.Quotes {
		assert.Equal(t, 10.5, q.Price)
		assert.Equal(t, 5.0, q.VariationPercent)
		assert.Equal(t, models.SourceLive, q.Source)
	}
	assert.Equal(t, 2, hits["FIBRAPL14.MX"])
}
