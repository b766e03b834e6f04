package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"offerctr/domain/resample"
	"offerctr/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Data     DataConfig `validate:"required"`
	Feature  FeatureConfig
	Pipeline PipelineConfig
	Server   ServerConfig
}

// DatabaseConfig holds warehouse connection settings. An empty URL runs
// the pipeline against the CSV source instead.
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds snapshot store settings. An empty Addr disables the
// statistic warm start.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DataConfig names the input tables and the columns the pipeline reads
type DataConfig struct {
	Dir               string `validate:"required"`
	InteractionsTable string
	OffersTable       string
	TransactionsTable string
	ChunkRows         int
	BudgetBytes       int64

	RecordIDColumn  string
	TimestampColumn string
	LabelColumn     string
	UserColumn      string
	OfferColumn     string

	TransactionTimeColumn   string
	TransactionAmountColumn string

	NumericColumns     []string
	CategoricalColumns []string

	// OfferColumns are the attribute columns that live on the offers
	// table and join onto each interaction chunk; every other configured
	// attribute column is expected on the interactions table itself.
	OfferColumns []string

	// CategoryColumn keys the per-category and user-within-category
	// statistics
	CategoryColumn string
}

// FeatureConfig holds statistic and selection settings
type FeatureConfig struct {
	HalfLife            time.Duration
	SmoothingAlpha      float64
	PriorRate           float64
	CategoryHashBuckets int
	VarianceThreshold   float64
	TopK                int
}

// PipelineConfig holds training run settings
type PipelineConfig struct {
	Resample           resample.Method
	ValidationFraction float64
	Workers            int
	EnsembleFile       string
	SnapshotName       string
}

// ServerConfig holds report API settings
type ServerConfig struct {
	Port           string
	MetricsEnabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{}

	config.Database = loadDatabaseConfig()
	config.Redis = loadRedisConfig()
	config.Data = loadDataConfig()
	config.Feature = loadFeatureConfig()

	pipelineConfig, err := loadPipelineConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load pipeline configuration")
	}
	config.Pipeline = *pipelineConfig

	config.Server = loadServerConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnvOrDefault("REDIS_ADDR", ""),
		Password: getEnvOrDefault("REDIS_PASSWORD", ""),
		DB:       getEnvIntOrDefault("REDIS_DB", 0),
	}
}

func loadDataConfig() DataConfig {
	return DataConfig{
		Dir:               getEnvOrDefault("DATA_DIR", "./data"),
		InteractionsTable: getEnvOrDefault("INTERACTIONS_TABLE", "interactions"),
		OffersTable:       getEnvOrDefault("OFFERS_TABLE", "offers"),
		TransactionsTable: getEnvOrDefault("TRANSACTIONS_TABLE", "transactions"),
		ChunkRows:         getEnvIntOrDefault("CHUNK_ROWS", 5000),
		BudgetBytes:       int64(getEnvIntOrDefault("BUDGET_MB", 256)) << 20,

		RecordIDColumn:  getEnvOrDefault("RECORD_ID_COLUMN", "interaction_id"),
		TimestampColumn: getEnvOrDefault("TIMESTAMP_COLUMN", "event_at"),
		LabelColumn:     getEnvOrDefault("LABEL_COLUMN", "clicked"),
		UserColumn:      getEnvOrDefault("USER_COLUMN", "user_id"),
		OfferColumn:     getEnvOrDefault("OFFER_COLUMN", "offer_id"),

		TransactionTimeColumn:   getEnvOrDefault("TXN_TIME_COLUMN", "occurred_at"),
		TransactionAmountColumn: getEnvOrDefault("TXN_AMOUNT_COLUMN", "amount"),

		NumericColumns:     getEnvListOrDefault("NUMERIC_COLUMNS", []string{"reward", "difficulty", "duration_days"}),
		CategoricalColumns: getEnvListOrDefault("CATEGORICAL_COLUMNS", []string{"offer_type", "channel"}),
		OfferColumns:       getEnvListOrDefault("OFFER_COLUMNS", []string{"reward", "difficulty", "duration_days", "offer_type"}),
		CategoryColumn:     getEnvOrDefault("CATEGORY_COLUMN", "offer_type"),
	}
}

func loadFeatureConfig() FeatureConfig {
	return FeatureConfig{
		HalfLife:            getEnvDurationOrDefault("STAT_HALF_LIFE", 7*24*time.Hour),
		SmoothingAlpha:      getEnvFloatOrDefault("SMOOTHING_ALPHA", 20),
		PriorRate:           getEnvFloatOrDefault("PRIOR_CLICK_RATE", 0.05),
		CategoryHashBuckets: getEnvIntOrDefault("CATEGORY_HASH_BUCKETS", 64),
		VarianceThreshold:   getEnvFloatOrDefault("VARIANCE_THRESHOLD", 0),
		TopK:                getEnvIntOrDefault("SELECT_TOP_K", 0),
	}
}

func loadPipelineConfig() (*PipelineConfig, error) {
	// Resample names resolve to a variant here, never at run time: an
	// unknown name must fail before any data is read.
	method, err := resample.Parse(getEnvOrDefault("RESAMPLE_METHOD", "none"))
	if err != nil {
		return nil, err
	}

	return &PipelineConfig{
		Resample:           method,
		ValidationFraction: getEnvFloatOrDefault("VALIDATION_FRACTION", 0.2),
		Workers:            getEnvIntOrDefault("FIT_WORKERS", 0),
		EnsembleFile:       getEnvOrDefault("ENSEMBLE_CONFIG", ""),
		SnapshotName:       getEnvOrDefault("SNAPSHOT_NAME", "default"),
	}, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:           getEnvOrDefault("PORT", "8085"),
		MetricsEnabled: getEnvBoolOrDefault("METRICS_ENABLED", true),
	}
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" && config.Data.Dir == "" {
		return errors.ConfigInvalid("either DATABASE_URL or DATA_DIR is required")
	}
	if config.Data.ChunkRows <= 0 {
		return errors.ConfigInvalid("CHUNK_ROWS must be positive")
	}
	if config.Data.BudgetBytes <= 0 {
		return errors.ConfigInvalid("BUDGET_MB must be positive")
	}
	if config.Feature.HalfLife <= 0 {
		return errors.ConfigInvalid("STAT_HALF_LIFE must be positive")
	}
	if config.Feature.SmoothingAlpha < 0 {
		return errors.ConfigInvalid("SMOOTHING_ALPHA cannot be negative")
	}
	if p := config.Feature.PriorRate; p < 0 || p > 1 {
		return errors.ConfigInvalid("PRIOR_CLICK_RATE must be in [0,1]")
	}
	if f := config.Pipeline.ValidationFraction; f <= 0 || f >= 1 {
		return errors.ConfigInvalid("VALIDATION_FRACTION must be in (0,1)")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
