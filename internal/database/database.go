package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/bc144/fennec-prediccion/internal/models"
)

// Database is the SQLite quote history store
type Database struct {
	db *gorm.DB
}

// Open connects to the SQLite file at dbPath
func Open(dbPath string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get connection pool: %w", err)
	}
	// SQLite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// MigrateSchema creates or updates the quote tables
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.QuoteClose{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// NewDatabase opens the store and migrates its schema
func NewDatabase(dbPath string) (*Database, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := MigrateSchema(db); err != nil {
		return nil, err
	}
	return &Database{db: db}, nil
}

// DB exposes the underlying connection for transactional writers
func (d *Database) DB() *gorm.DB {
	return d.db
}

// UpsertQuotes inserts closes, overwriting the price of an existing
// (ticker, date) pair
func UpsertQuotes(tx *gorm.DB, closes []models.QuoteClose) error {
	if len(closes) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"close"}),
	}).Create(&closes).Error
}

// LatestCloses returns up to n closes of a ticker, newest first
func (d *Database) LatestCloses(ticker string, n int) ([]models.QuoteClose, error) {
	var closes []models.QuoteClose
	err := d.db.
		Where("ticker = ?", ticker).
		Order("date DESC").
		Limit(n).
		Find(&closes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query closes for %s: %w", ticker, err)
	}
	return closes, nil
}

// Tickers lists the tickers with stored closes
func (d *Database) Tickers() ([]string, error) {
	var tickers []string
	err := d.db.Model(&models.QuoteClose{}).
		Distinct("ticker").
		Order("ticker").
		Pluck("ticker", &tickers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tickers: %w", err)
	}
	return tickers, nil
}

// Count returns the number of stored closes
func (d *Database) Count() (int64, error) {
	var n int64
	if err := d.db.Model(&models.QuoteClose{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count closes: %w", err)
	}
	return n, nil
}

// Close releases the connection pool
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
