package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// ErrInvalidConfig is returned when settings cannot produce a sound pipeline.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server struct {
		Port        string   `env:"PORT" envDefault:"5250"`
		DBPath      string   `env:"DB_PATH" envDefault:"database/listings.db"`
		LogLevel    string   `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat   string   `env:"LOG_FORMAT" envDefault:"json"`
		CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`

		// Optional YAML file whose keys override the pipeline settings below
		ProfilePath string `env:"PIPELINE_PROFILE"`
	}

	// BatchProcessing configuration
	BatchProcessing struct {
		// Maximum number of listings accepted in one ingestion batch
		MaxBatchSize int `env:"BATCH_MAX_SIZE" envDefault:"100"`

		// Number of queued batches before pushes are refused
		QueueSize int `env:"BATCH_QUEUE_SIZE" envDefault:"32"`

		// Maximum number of retries for failed batches
		MaxRetries int `env:"BATCH_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BATCH_RETRY_DELAY" envDefault:"5"`
	}

	// Kafka ingestion is disabled unless brokers are set
	Kafka struct {
		Brokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
		Topic     string   `env:"KAFKA_TOPIC" envDefault:"raw-listings"`
		GroupID   string   `env:"KAFKA_GROUP_ID" envDefault:"athens-energy"`
		BatchSize int      `env:"KAFKA_BATCH_SIZE" envDefault:"50"`
	}

	// Periodic re-analysis of stored listings, off when the interval is zero
	Schedule struct {
		Interval      time.Duration `env:"ANALYSIS_INTERVAL" envDefault:"0s"`
		Neighborhoods []string      `env:"ANALYSIS_NEIGHBORHOODS" envSeparator:","`
	}

	// Neighborhood geocoding for block maps, disabled unless a URL is set
	Geocoder struct {
		URL      string `env:"GEOCODER_URL"`
		CacheDir string `env:"GEOCODE_CACHE_DIR" envDefault:"database/geocode"`
	}

	Pipeline Pipeline
}

// GeocoderEnabled reports whether a geocoding endpoint was configured.
func (c *Config) GeocoderEnabled() bool {
	return c.Geocoder.URL != ""
}

// KafkaEnabled reports whether a broker list was configured.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

// LoadConfig reads the environment, applies the optional pipeline profile and
// validates the result.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if cfg.Server.ProfilePath != "" {
		if err := LoadProfile(cfg.Server.ProfilePath, &cfg.Pipeline); err != nil {
			return nil, err
		}
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if cfg.BatchProcessing.MaxBatchSize <= 0 {
		return nil, fmt.Errorf("%w: BATCH_MAX_SIZE must be positive", ErrInvalidConfig)
	}
	if cfg.Schedule.Interval < 0 {
		return nil, fmt.Errorf("%w: ANALYSIS_INTERVAL must not be negative", ErrInvalidConfig)
	}
	if cfg.BatchProcessing.QueueSize <= 0 {
		return nil, fmt.Errorf("%w: BATCH_QUEUE_SIZE must be positive", ErrInvalidConfig)
	}
	return cfg, nil
}
