package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Backends accepted by DATA_BACKEND.
var validBackends = []string{"memory", "sqlite", "postgres"}

// MinReminderInterval is one calendar day.
const MinReminderInterval = 24 * time.Hour

type Config struct {
	// HTTP Server
	Port string

	// MetricsPort exposes /metrics from the worker binaries. Empty disables it.
	MetricsPort string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string
	DatabaseURL  string
	SeedFile     string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Reminders
	//
	// Reminder windows match exact calendar dates and runs are not deduplicated,
	// so a second tick on the same day resends every batch. ReminderInterval is
	// therefore at least one day; anything past a day skips reminder dates.
	ReminderInterval     time.Duration
	ReminderRunOnce      bool
	ReminderConcurrency  int
	ReminderSubject      string
	ReminderTriggerToken string

	// Summary
	SummaryHorizonDays int

	// Identity cache
	ContactCacheSize int
	ContactCacheTTL  time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		MetricsPort: getEnv("METRICS_PORT", ""),

		DataBackend: getEnv("DATA_BACKEND", "memory"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/costwatch.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SeedFile:     getEnv("SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "costwatch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "reminder_batches"),

		ReminderInterval:     getEnvDuration("REMINDER_INTERVAL", 24*time.Hour),
		ReminderRunOnce:      getEnvBool("REMINDER_RUN_ONCE", false),
		ReminderConcurrency:  getEnvInt("REMINDER_CONCURRENCY", 4),
		ReminderSubject:      getEnv("REMINDER_SUBJECT", "Upcoming payments and contract renewals"),
		ReminderTriggerToken: getEnv("REMINDER_TRIGGER_TOKEN", ""),

		SummaryHorizonDays: getEnvInt("SUMMARY_HORIZON_DAYS", 30),

		ContactCacheSize: getEnvInt("CONTACT_CACHE_SIZE", 1024),
		ContactCacheTTL:  getEnvDuration("CONTACT_CACHE_TTL", 15*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if msg := validatePort("port", c.Port); msg != "" {
		errors = append(errors, msg)
	}
	if c.MetricsPort != "" {
		if msg := validatePort("metrics port", c.MetricsPort); msg != "" {
			errors = append(errors, msg)
		} else if c.MetricsPort == c.Port {
			errors = append(errors, fmt.Sprintf("metrics port %s must differ from port", c.MetricsPort))
		}
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
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
	case "postgres":
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, "invalid DATABASE_URL: scheme must be 'postgres' or 'postgresql'")
		}
	case "memory":
		if c.SeedFile != "" {
			if _, err := os.Stat(c.SeedFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
			}
		}
	}

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

	if !c.ReminderRunOnce {
		if c.ReminderInterval < MinReminderInterval {
			errors = append(errors, fmt.Sprintf("invalid reminder interval %v: must be at least 24 hours", c.ReminderInterval))
		} else if c.ReminderInterval > 7*24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid reminder interval %v: must be at most 7 days", c.ReminderInterval))
		}
	}
	if c.ReminderConcurrency < 1 || c.ReminderConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid reminder concurrency %d: must be between 1 and 64", c.ReminderConcurrency))
	}
	if strings.TrimSpace(c.ReminderSubject) == "" {
		errors = append(errors, "reminder subject cannot be empty")
	}

	if c.SummaryHorizonDays < 0 || c.SummaryHorizonDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid summary horizon %d: must be between 0 and 366 days", c.SummaryHorizonDays))
	}

	if c.ContactCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid contact cache size %d: must be at least 1", c.ContactCacheSize))
	}
	if c.ContactCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid contact cache TTL %v: must be positive", c.ContactCacheTTL))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validatePort(name, value string) string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Sprintf("invalid %s '%s': must be a number", name, value)
	}
	if port < 1 || port > 65535 {
		return fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)
	}
	return ""
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
