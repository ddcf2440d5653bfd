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
	// HTTP Server
	Port string

	// Database
	DataBackend  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Taxonomy remote fallback (object store)
	AWSRegion      string
	TaxonomyBucket string
	TaxonomyKey    string

	// Worker
	WorkerDialAttempts int

	// Totals response cache
	TotalsCacheSize int
	TotalsCacheTTL  time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8082"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/presupuesto.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "presupuesto"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "sync_totals"),

		AWSRegion:      getEnv("AWS_REGION", ""),
		TaxonomyBucket: getEnv("TAXONOMY_BUCKET", ""),
		TaxonomyKey:    getEnv("TAXONOMY_KEY", ""),

		WorkerDialAttempts: getEnvInt("WORKER_DIAL_ATTEMPTS", 10),

		TotalsCacheSize: getEnvInt("TOTALS_CACHE_SIZE", 100),
		TotalsCacheTTL:  getEnvDuration("TOTALS_CACHE_TTL", 5*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
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
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Taxonomy remote fallback needs both halves of the object location
	if (c.TaxonomyBucket == "") != (c.TaxonomyKey == "") {
		errors = append(errors, "taxonomy bucket and key must be set together")
	}

	// Validate worker configuration
	if c.WorkerDialAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid worker dial attempts %d: must be at least 1", c.WorkerDialAttempts))
	}

	// Validate totals cache configuration
	if c.TotalsCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid totals cache size %d: must be at least 1", c.TotalsCacheSize))
	}
	if c.TotalsCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid totals cache TTL %v: must be at least 1 second", c.TotalsCacheTTL))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// HasRemoteTaxonomy reports whether an object-store fallback is configured.
func (c *Config) HasRemoteTaxonomy() bool {
	return c.TaxonomyBucket != "" && c.TaxonomyKey != ""
}

// HasAMQP reports whether event publishing is configured.
func (c *Config) HasAMQP() bool {
	return c.AMQPURL != ""
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
