// Package importer loads a quote history CSV (ticker,fecha,precio) and feeds
// it to the batch processors in fixed size batches.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bc144/fennec-prediccion/internal/models"
	"github.com/bc144/fennec-prediccion/internal/queue"
	"github.com/bc144/fennec-prediccion/internal/quotes"
	"github.com/bc144/fennec-prediccion/internal/stats"
)

var (
	tickerColumns = []string{"ticker", "symbol"}
	dateColumns   = []string{"fecha", "date"}
	priceColumns  = []string{"precio", "close", "price"}

	dateLayouts = []string{
		"2006-01-02",
		"2006-01-02 15:04:05",
		time.RFC3339,
		"02/01/2006",
	}
)

// Importer reads quote history rows and queues them in batches
type Importer struct {
	queue     *queue.QuoteQueue
	batchSize int
	logger    *logrus.Logger
	skipped   int
}

// NewImporter creates an importer pushing batches of at most batchSize rows
func NewImporter(q *queue.QuoteQueue, batchSize int, logger *logrus.Logger) *Importer {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if batchSize < 1 {
		batchSize = 1
	}
	return &Importer{queue: q, batchSize: batchSize, logger: logger}
}

// Skipped returns the number of rows dropped by the last Read
func (im *Importer) Skipped() int {
	return im.skipped
}

// Read parses the CSV. Rows with an unknown ticker or an unparsable date or
// price are logged and skipped; a missing column is an error.
func (im *Importer) Read(r io.Reader) ([]models.QuoteClose, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	tickerCol, dateCol, priceCol := column(header, tickerColumns), column(header, dateColumns), column(header, priceColumns)
	if tickerCol < 0 || dateCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("header %v must contain ticker, fecha and precio columns", header)
	}

	im.skipped = 0
	var closes []models.QuoteClose
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line %d: %w", line, err)
		}

		c, err := parseRow(record, tickerCol, dateCol, priceCol)
		if err != nil {
			im.skipped++
			im.logger.WithError(err).WithField("line", line).Warn("Skipping quote row")
			continue
		}
		closes = append(closes, c)
	}
	return closes, nil
}

func parseRow(record []string, tickerCol, dateCol, priceCol int) (models.QuoteClose, error) {
	if len(record) <= tickerCol || len(record) <= dateCol || len(record) <= priceCol {
		return models.QuoteClose{}, errors.New("row is missing columns")
	}

	ticker, err := quotes.NormalizeTicker(record[tickerCol])
	if err != nil {
		return models.QuoteClose{}, err
	}
	date, err := parseDate(record[dateCol])
	if err != nil {
		return models.QuoteClose{}, err
	}
	price, ok := stats.ParseNumber(record[priceCol])
	if !ok || price <= 0 {
		return models.QuoteClose{}, fmt.Errorf("invalid price %q", record[priceCol])
	}

	return models.QuoteClose{Ticker: ticker, Date: date, Close: price}, nil
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", s)
}

func column(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range names {
			if h == name {
				return i
			}
		}
	}
	return -1
}

// Enqueue splits closes into batches and pushes them, waiting for room in
// the queue. It returns the number of batches pushed.
func (im *Importer) Enqueue(ctx context.Context, closes []models.QuoteClose) (int, error) {
	batches := 0
	for start := 0; start < len(closes); start += im.batchSize {
		end := start + im.batchSize
		if end > len(closes) {
			end = len(closes)
		}
		if err := im.queue.PushWait(ctx, closes[start:end]); err != nil {
			return batches, fmt.Errorf("failed to queue batch %d: %w", batches+1, err)
		}
		batches++
	}

	im.logger.WithFields(logrus.Fields{
		"rows":           len(closes),
		"batches":        batches,
		"queue_capacity": im.queue.Cap(),
	}).Info("Queued quote history")
	return batches, nil
}
