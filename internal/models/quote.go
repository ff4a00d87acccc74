package models

import "time"

// QuoteSource records where a quote came from
type QuoteSource string

const (
	SourceLive      QuoteSource = "live"
	SourceHistory   QuoteSource = "history"
	SourceSimulated QuoteSource = "simulated"
)

// Quote is the latest price of a FIBRA (Mexican REIT) ticker
type Quote struct {
	Ticker           string      `json:"ticker"`
	Symbol           string      `json:"symbol"`
	Price            float64     `json:"price"`
	VariationPercent float64     `json:"variation_percent"`
	Date             string      `json:"date"`
	Source           QuoteSource `json:"source"`
}

// QuoteBatch holds the quotes that succeeded and the reasons for those that didn't
type QuoteBatch struct {
	Quotes []Quote           `json:"quotes"`
	Failed map[string]string `json:"failed,omitempty"`
}

// QuoteClose is one historical daily close, stored in the quote history database
type QuoteClose struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Ticker    string    `gorm:"uniqueIndex:idx_quote_ticker_date;not null" json:"ticker"`
	Date      string    `gorm:"uniqueIndex:idx_quote_ticker_date;size:10;not null" json:"date"` // YYYY-MM-DD
	Close     float64   `gorm:"not null" json:"close"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name used by QuoteClose
func (QuoteClose) TableName() string {
	return "quote_closes"
}
