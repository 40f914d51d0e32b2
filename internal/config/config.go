package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Storage
	DataBackend  string
	SQLiteDBPath string
	StoreTimeout time.Duration

	// AMQP (optional event publishing)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Budget rules and categories
	BudgetRulesFile string
	Categories      []string

	// Duplicate detection
	DuplicateWindowDays    int
	DuplicateLikelyScore   float64
	DuplicatePossibleScore float64
	// DuplicateCrossSourceFactor scales scores of pairs from different
	// sources.
	DuplicateCrossSourceFactor float64

	// Normalization
	DateSkewTolerance time.Duration

	// Insights
	TrendThreshold    float64
	AnomalyK          float64
	AnomalyMinSamples int
	TopMerchants      int

	// Summary cache
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/ledgerlens.db"),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "ledgerlens.events"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "ledger"),

		BudgetRulesFile: getEnv("BUDGET_RULES_FILE", ""),
		Categories:      getEnvList("CATEGORIES"),

		DuplicateWindowDays:        getEnvInt("DUPLICATE_WINDOW_DAYS", 3),
		DuplicateLikelyScore:       getEnvFloat("DUPLICATE_LIKELY_SCORE", 0.9),
		DuplicatePossibleScore:     getEnvFloat("DUPLICATE_POSSIBLE_SCORE", 0.6),
		DuplicateCrossSourceFactor: getEnvFloat("DUPLICATE_CROSS_SOURCE_FACTOR", 1.0),

		DateSkewTolerance: getEnvDuration("DATE_SKEW_TOLERANCE", 24*time.Hour),

		TrendThreshold:    getEnvFloat("TREND_THRESHOLD", 0.30),
		AnomalyK:          getEnvFloat("ANOMALY_K", 2.0),
		AnomalyMinSamples: getEnvInt("ANOMALY_MIN_SAMPLES", 5),
		TopMerchants:      getEnvInt("TOP_MERCHANTS", 5),

		SummaryCacheSize: getEnvInt("SUMMARY_CACHE_SIZE", 256),
		SummaryCacheTTL:  getEnvDuration("SUMMARY_CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate logging
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	// Validate SQLite configuration if backend is sqlite
	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}
	if c.StoreTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	// Validate rules file if provided
	if c.BudgetRulesFile != "" {
		if _, err := os.Stat(c.BudgetRulesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("budget rules file does not exist: %s", c.BudgetRulesFile))
		}
	}

	// Validate duplicate detection
	if c.DuplicateWindowDays < 0 || c.DuplicateWindowDays > 31 {
		errors = append(errors, fmt.Sprintf("invalid duplicate window %d: must be between 0 and 31 days", c.DuplicateWindowDays))
	}
	if !inUnit(c.DuplicatePossibleScore) || !inUnit(c.DuplicateLikelyScore) {
		errors = append(errors, "duplicate scores must be between 0 and 1")
	} else if c.DuplicatePossibleScore > c.DuplicateLikelyScore {
		errors = append(errors, fmt.Sprintf("duplicate possible score %.2f must not exceed likely score %.2f", c.DuplicatePossibleScore, c.DuplicateLikelyScore))
	}

	if c.DuplicateCrossSourceFactor <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cross-source factor %.2f: must be greater than 0", c.DuplicateCrossSourceFactor))
	}

	if c.DateSkewTolerance < 0 {
		errors = append(errors, fmt.Sprintf("invalid date skew tolerance %v: must not be negative", c.DateSkewTolerance))
	}

	// Validate insights
	if c.TrendThreshold <= 0 {
		errors = append(errors, fmt.Sprintf("invalid trend threshold %v: must be positive", c.TrendThreshold))
	}
	if c.AnomalyK <= 0 {
		errors = append(errors, fmt.Sprintf("invalid anomaly K %v: must be positive", c.AnomalyK))
	}
	if c.AnomalyMinSamples < 2 {
		errors = append(errors, fmt.Sprintf("invalid anomaly min samples %d: must be at least 2", c.AnomalyMinSamples))
	}
	if c.TopMerchants < 1 {
		errors = append(errors, fmt.Sprintf("invalid top merchants %d: must be at least 1", c.TopMerchants))
	}

	// Validate cache
	if c.SummaryCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid summary cache size %d: must be at least 1", c.SummaryCacheSize))
	}
	if c.SummaryCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid summary cache TTL %v: must be at least 1 second", c.SummaryCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
