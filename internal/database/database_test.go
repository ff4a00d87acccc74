package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bc144/fennec-prediccion/internal/models"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "quotes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestUpsertQuotes_IsIdempotent(t *testing.T) {
	db := newTestDatabase(t)

	batch := []models.QuoteClose{
		{Ticker: "FUNO", Date: "2025-03-03", Close: 25.1},
		{Ticker: "FUNO", Date: "2025-03-04", Close: 25.4},
		{Ticker: "FMTY", Date: "2025-03-04", Close: 8.7},
	}
	require.NoError(t, UpsertQuotes(db.DB(), batch))

	// Same keys again, one price corrected
	again := []models.QuoteClose{
		{Ticker: "FUNO", Date: "2025-03-03", Close: 25.1},
		{Ticker: "FUNO", Date: "2025-03-04", Close: 25.6},
		{Ticker: "FMTY", Date: "2025-03-04", Close: 8.7},
	}
	require.NoError(t, db.DB().Transaction(func(tx *gorm.DB) error {
		return UpsertQuotes(tx, again)
	}))

	n, err := db.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	closes, err := db.LatestCloses("FUNO", 1)
	require.NoError(t, err)
	require.Len(t, closes, 1)
	assert.Equal(t, 25.6, closes[0].Close)
}

func TestLatestCloses(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, UpsertQuotes(db.DB(), []models.QuoteClose{
		{Ticker: "DANHOS", Date: "2025-03-05", Close: 28.2},
		{Ticker: "DANHOS", Date: "2025-03-03", Close: 27.9},
		{Ticker: "DANHOS", Date: "2025-03-04", Close: 28.0},
	}))

	closes, err := db.LatestCloses("DANHOS", 2)
	require.NoError(t, err)
	require.Len(t, closes, 2)
	assert.Equal(t, "2025-03-05", closes[0].Date)
	assert.Equal(t, "2025-03-04", closes[1].Date)

	closes, err = db.LatestCloses("FIBRAPL", 2)
	require.NoError(t, err)
	assert.Empty(t, closes)
}

func TestTickers(t *testing.T) {
	db := newTestDatabase(t)
	require.NoError(t, UpsertQuotes(db.DB(), []models.QuoteClose{
		{Ticker: "FUNO", Date: "2025-03-03", Close: 25.1},
		{Ticker: "FMTY", Date: "2025-03-03", Close: 8.7},
		{Ticker: "FUNO", Date: "2025-03-04", Close: 25.2},
	}))

	tickers, err := db.Tickers()
	require.NoError(t, err)
	assert.Equal(t, []string{"FMTY", "FUNO"}, tickers)
}

func TestUpsertQuotes_EmptyBatch(t *testing.T) {
	db := newTestDatabase(t)
	assert.NoError(t, UpsertQuotes(db.DB(), nil))
}
