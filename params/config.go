package params

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Storage struct {
	// "memory" or "pebble"
	Backend string
	// Pebble data directory, unused for memory
	DataDir string
	// Command journal; empty disables journaling
	JournalFile string
}

type Log struct {
	File  string
	Level string
}

// Market holds defaults for books created by the synthetic feeder.
type Market struct {
	DefaultMinMargin   decimal.Decimal
	DefaultMaxLeverage decimal.Decimal
}

type Feeder struct {
	Enabled bool
	// "default" or "high"
	Mode     string
	Duration time.Duration // 0 runs until interrupted
}

type Config struct {
	Storage     Storage
	Log         Log
	Market      Market
	Feeder      Feeder
	MetricsAddr string
}

func Default() Config {
	return Config{
		Storage: Storage{
			Backend: "memory",
			DataDir: "data/pebble",
		},
		Log: Log{
			File:  "data/perpd.log",
			Level: "info",
		},
		Market: Market{
			DefaultMinMargin:   decimal.NewFromInt(10),
			DefaultMaxLeverage: decimal.NewFromInt(20),
		},
		Feeder: Feeder{
			Mode: "default",
		},
		MetricsAddr: ":9100",
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Storage.Backend = getEnv("STORE_BACKEND", cfg.Storage.Backend)
	cfg.Storage.DataDir = getEnv("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.JournalFile = getEnv("JOURNAL_FILE", cfg.Storage.JournalFile)
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	if cfg.Log.File == "-" {
		cfg.Log.File = "" // stdout only
	}
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.MetricsAddr = getEnv("METRICS_ADDR", cfg.MetricsAddr)

	if v := os.Getenv("DEFAULT_MIN_MARGIN"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Market.DefaultMinMargin = d
		}
	}
	if v := os.Getenv("DEFAULT_MAX_LEVERAGE"); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			cfg.Market.DefaultMaxLeverage = d
		}
	}

	if v := os.Getenv("ENABLE_TXGEN"); v != "" {
		cfg.Feeder.Enabled = v == "true"
	}
	cfg.Feeder.Mode = getEnv("TXGEN_MODE", cfg.Feeder.Mode)
	if v := os.Getenv("TXGEN_DURATION_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Feeder.Duration = time.Duration(ms) * time.Millisecond
		}
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
