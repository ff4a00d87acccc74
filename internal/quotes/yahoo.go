package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Close is one daily closing price
type Close struct {
	Date  string
	Price float64
}

// Source returns recent daily closes for a market symbol, oldest first
type Source interface {
	Closes(ctx context.Context, symbol string) ([]Close, error)
}

// transientError marks failures worth retrying
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// IsTransient reports whether err is a network failure, a timeout or a
// retryable HTTP status
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// YahooSource reads daily closes from the Yahoo Finance chart API
type YahooSource struct {
	logger  *logrus.Logger
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewYahooSource creates a source. requestsPerSecond <= 0 disables throttling.
func NewYahooSource(baseURL string, timeout time.Duration, requestsPerSecond float64, logger *logrus.Logger) *YahooSource {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	return &YahooSource{
		logger:  logger,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol               string `json:"symbol"`
				ExchangeTimezoneName string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Closes fetches the last five trading days of daily closes
func (y *YahooSource) Closes(ctx context.Context, symbol string) ([]Close, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, &transientError{err: fmt.Errorf("rate limiter: %w", err)}
	}

	params := url.Values{
		"range":    []string{"5d"},
		"interval": []string{"1d"},
	}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s", y.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fennec-prediccion/1.0)")
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		y.logger.WithError(err).WithField("symbol", symbol).Warn("Quote request failed")
		return nil, &transientError{err: fmt.Errorf("quote request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &transientError{err: fmt.Errorf("quote source returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quote source returned status %d", resp.StatusCode)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Chart.Error != nil {
		return nil, fmt.Errorf("quote source error %s: %s", parsed.Chart.Error.Code, parsed.Chart.Error.Description)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no data available for %s", symbol)
	}

	result := parsed.Chart.Result[0]
	loc, err := time.LoadLocation(result.Meta.ExchangeTimezoneName)
	if err != nil || result.Meta.ExchangeTimezoneName == "" {
		loc = time.UTC
	}

	prices := result.Indicators.Quote[0].Close
	closes := make([]Close, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		// Yahoo reports null for days without a close
		if i >= len(prices) || prices[i] == nil {
			continue
		}
		closes = append(closes, Close{
			Date:  time.Unix(ts, 0).In(loc).Format("2006-01-02"),
			Price: *prices[i],
		})
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("no closes available for %s", symbol)
	}
	sort.SliceStable(closes, func(i, j int) bool { return closes[i].Date < closes[j].Date })

	y.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"closes": len(closes),
		"last":   closes[len(closes)-1].Date,
	}).Debug("Fetched daily closes")

	return closes, nil
}
