package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bc144/fennec-prediccion/internal/database"
	"github.com/bc144/fennec-prediccion/internal/models"
	"github.com/bc144/fennec-prediccion/internal/queue"
)

func setupTestDB(t *testing.T) *database.Database {
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBatchProcessingIntegration(t *testing.T) {
	// Setup
	db := setupTestDB(t)
	cfg := testConfig(1, 3)
	quoteQueue := queue.NewQuoteQueue(10, quietLogger())
	processor := NewBatchProcessor(db.DB(), quoteQueue, cfg, quietLogger(), nil)
	processor.Start()

	batch := []models.QuoteClose{
		{Ticker: "FUNO", Date: "2025-03-03", Close: 25.1},
		{Ticker: "FUNO", Date: "2025-03-04", Close: 25.4},
	}
	require.NoError(t, quoteQueue.Push(batch))
	// Re-importing the same rows with a correction must not duplicate them
	require.NoError(t, quoteQueue.Push([]models.QuoteClose{{Ticker: "FUNO", Date: "2025-03-04", Close: 25.5}}))
	require.NoError(t, quoteQueue.Close())
	processor.Wait()

	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	closes, err := db.LatestCloses("FUNO", 2)
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, 25.5, closes[0].Close)
	assert.Equal(t, 25.1, closes[1].Close)
}

func TestBatchProcessingWithConcurrency(t *testing.T) {
	// Setup
	db := setupTestDB(t)
	cfg := testConfig(4, 5)
	quoteQueue := queue.NewQuoteQueue(4, quietLogger())
	processor := NewBatchProcessor(db.DB(), quoteQueue, cfg, quietLogger(), nil)
	processor.Start()

	tickers := []string{"FUNO", "FMTY", "FIBRAPL", "DANHOS", "FUNO2"}

	// Push batches concurrently
	var wg sync.WaitGroup
	for _, ticker := range tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			batch := make([]models.QuoteClose, 20)
			for j := range batch {
				batch[j] = models.QuoteClose{
					Ticker: ticker,
					Date:   fmt.Sprintf("2025-01-%02d", j+1),
					Close:  float64(10 + j),
				}
			}
			assert.NoError(t, quoteQueue.PushWait(context.Background(), batch))
		}(ticker)
	}

	// Wait for all pushes to complete
	wg.Wait()
	require.NoError(t, quoteQueue.Close())
	processor.Wait()

	// Verify all rows were stored
	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(100), n) // 5 batches * 20 closes
	assert.Equal(t, int64(100), processor.Written())
}
