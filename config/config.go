package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port    int    `env:"PORT" envDefault:"8000"`
		GinMode string `env:"GIN_MODE" envDefault:"release"`

		// Comma separated list, "*" allows any origin
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Logging struct {
		Level string `env:"LOG_LEVEL" envDefault:"info"`
	}

	Artifacts struct {
		// Directory holding <type>_model.json, <type>_scaler.json and <type>_columns.json
		Dir string `env:"ARTIFACTS_DIR" envDefault:"artifacts"`

		// YAML file with plausible feature ranges per property type
		RangesFile string `env:"FEATURE_RANGES_FILE" envDefault:"config/feature_ranges.yaml"`
	}

	Datasets struct {
		HousesFile     string  `env:"HOUSES_DATASET" envDefault:"data/casas.csv"`
		ApartmentsFile string  `env:"APARTMENTS_DATASET" envDefault:"data/departamentos.csv"`
		USDToMXN       float64 `env:"USD_TO_MXN" envDefault:"19.5"`
	}

	Quotes struct {
		BaseURL string `env:"QUOTES_BASE_URL" envDefault:"https://query1.finance.yahoo.com"`

		// Timeout applies to each request against the quote source
		Timeout     time.Duration `env:"QUOTES_TIMEOUT" envDefault:"5s"`
		MaxAttempts int           `env:"QUOTES_MAX_ATTEMPTS" envDefault:"3"`
		Backoff     time.Duration `env:"QUOTES_BACKOFF" envDefault:"500ms"`

		RequestsPerSecond float64 `env:"QUOTES_RPS" envDefault:"2"`
		Concurrency       int     `env:"QUOTES_CONCURRENCY" envDefault:"4"`

		// Serve simulated values when neither the source nor the history database can
		SimulatedFallback bool   `env:"QUOTES_SIMULATED_FALLBACK" envDefault:"true"`
		HistoryDB         string `env:"QUOTES_HISTORY_DB" envDefault:"data/quotes.db"`
	}

	Reload struct {
		// Zero disables periodic reloads; POST /api/admin/reload still works
		Interval time.Duration `env:"RELOAD_INTERVAL" envDefault:"0s"`
	}

	Geometry struct {
		BoroughsFile string `env:"BOROUGHS_GEOJSON" envDefault:""`
	}

	// BatchProcessing configures the quote history importer
	BatchProcessing struct {
		// Maximum number of rows to accumulate before processing
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Capacity of the in-memory queue, in batches
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"16"`

		// Number of concurrent batch processors
		ProcessorCount int `env:"BATCH_PROCESSOR_COUNT" envDefault:"2"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}
}

// LoadConfig reads an optional .env file and then the process environment
func LoadConfig(dotenvFiles ...string) (*Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
