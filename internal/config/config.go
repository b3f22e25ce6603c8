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

	// Member directory
	DataBackend      string // "remote" or "memory"
	DirectoryURL     string
	DirectoryTimeout time.Duration
	DataDir          string // seed files for the memory backend

	// Reconciliation
	ReconcileMaxBatch    int
	ReconcileConcurrency int

	// Viewer sessions
	SessionTTL          time.Duration
	SessionMax          int
	SessionSecureCookie bool // set behind TLS

	// AMQP event feed, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Payment ledger, disabled when LedgerDBPath is empty
	LedgerDBPath string

	// Google Sheets export, disabled when GoogleSpreadsheetID is empty
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Ledger worker
	ExportBatchSize int
	ExportInterval  time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:      getEnv("DATA_BACKEND", "remote"),
		DirectoryURL:     getEnv("DIRECTORY_URL", "http://localhost:3000"),
		DirectoryTimeout: getEnvDuration("DIRECTORY_TIMEOUT", 10*time.Second),
		DataDir:          getEnv("DATA_DIR", "./data"),

		ReconcileMaxBatch:    getEnvInt("RECONCILE_MAX_BATCH", 200),
		ReconcileConcurrency: getEnvInt("RECONCILE_CONCURRENCY", 1),

		SessionTTL:          getEnvDuration("SESSION_TTL", 30*time.Minute),
		SessionMax:          getEnvInt("SESSION_MAX", 1000),
		SessionSecureCookie: getEnvBool("SESSION_SECURE_COOKIE", false),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "committee"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "payment_events"),

		LedgerDBPath: getEnv("LEDGER_DB_PATH", ""),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Payments"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),

		ExportBatchSize: getEnvInt("EXPORT_BATCH_SIZE", 10),
		ExportInterval:  getEnvDuration("EXPORT_INTERVAL", 30*time.Second),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
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
	validBackends := []string{"remote", "memory"}
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

	// Validate directory service when backend is remote
	if c.DataBackend == "remote" {
		if c.DirectoryURL == "" {
			errors = append(errors, "directory URL cannot be empty when using remote backend")
		} else if parsedURL, err := url.Parse(c.DirectoryURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid directory URL '%s': %v", c.DirectoryURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid directory URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
		if c.DirectoryTimeout < 100*time.Millisecond {
			errors = append(errors, fmt.Sprintf("invalid directory timeout %v: must be at least 100ms", c.DirectoryTimeout))
		}
	}

	// Validate reconciliation bounds
	if c.ReconcileMaxBatch < 0 {
		errors = append(errors, fmt.Sprintf("invalid reconcile max batch %d: must not be negative", c.ReconcileMaxBatch))
	}
	if c.ReconcileConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid reconcile concurrency %d: must be at least 1", c.ReconcileConcurrency))
	} else if c.ReconcileConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid reconcile concurrency %d: must be at most 64", c.ReconcileConcurrency))
	}

	// Validate sessions
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	} else if c.SessionTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at most 24 hours", c.SessionTTL))
	}
	if c.SessionMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid session max %d: must be at least 1", c.SessionMax))
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

	// Validate ledger path if enabled
	if c.LedgerDBPath != "" {
		dir := filepath.Dir(c.LedgerDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create ledger database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate Google Sheets export if enabled
	if c.GoogleSpreadsheetID != "" {
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the sheets export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	// Validate worker configuration
	if c.ExportBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at least 1", c.ExportBatchSize))
	} else if c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be at most 1000", c.ExportBatchSize))
	}

	if c.ExportInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at least 1 second", c.ExportInterval))
	} else if c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be at most 24 hours", c.ExportInterval))
	}

	// Validate logging
	switch strings.ToLower(c.LogFormat) {
	case "text", "json", "tint":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of [text json tint]", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// EventsEnabled reports whether payment events are published.
func (c *Config) EventsEnabled() bool {
	return c.AMQPURL != ""
}

// LedgerEnabled reports whether the payment ledger is configured.
func (c *Config) LedgerEnabled() bool {
	return c.LedgerDBPath != ""
}

// SheetsEnabled reports whether the Google Sheets export is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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
