// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/aristath/simtrader/internal/utils"
	"github.com/joho/godotenv"
)

// Missing market data policies
const (
	MissingDataSkip = "skip"
	MissingDataHalt = "halt"
)

// Config holds application configuration
type Config struct {
	DataDir           string // Directory holding simtrader.db (always absolute)
	LogLevel          string
	LogPretty         bool
	Port              int
	DevMode           bool
	RiskFreeRate      float64  // Annual risk-free rate used by Sharpe/Sortino
	MissingDataPolicy string   // "skip" or "halt"
	Workers           int      // Bulk-run workers; 0 = physical cores - 1
	FractionalSectors []string // Sectors traded in fractional quantities
	EntryMinimum      bool     // Scale the smallest opening buy with portfolio size
	AutoStepEnabled   bool
	AutoStepSchedule  string // cron expression with seconds
	Backup            *BackupConfig
}

// BackupConfig holds S3-compatible backup settings
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Empty for AWS; R2/MinIO endpoint otherwise
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	Schedule        string
	RetentionDays   int // 0 keeps every backup
}

// Enabled reports whether enough settings are present to upload backups.
func (b *BackupConfig) Enabled() bool {
	return b != nil && b.Bucket != "" && b.AccessKeyID != "" && b.SecretAccessKey != ""
}

// DatabasePath returns the simulator database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "simtrader.db")
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:           dataDir,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogPretty:         getEnvAsBool("LOG_PRETTY", false),
		Port:              getEnvAsInt("PORT", 8080),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		RiskFreeRate:      getEnvAsFloat("RISK_FREE_RATE", 0),
		MissingDataPolicy: getEnv("MISSING_DATA_POLICY", MissingDataSkip),
		Workers:           getEnvAsInt("SIMULATION_WORKERS", 0),
		FractionalSectors: utils.ParseCSV(getEnv("FRACTIONAL_SECTORS", "Cryptocurrency")),
		EntryMinimum:      getEnvAsBool("ENTRY_MINIMUM", false),
		AutoStepEnabled:   getEnvAsBool("AUTO_STEP_ENABLED", true),
		AutoStepSchedule:  getEnv("AUTO_STEP_SCHEDULE", "0 30 22 * * MON-FRI"),
		Backup: &BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "simtrader/"),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 0 3 * * *"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	switch c.MissingDataPolicy {
	case MissingDataSkip, MissingDataHalt:
	default:
		return fmt.Errorf("invalid MISSING_DATA_POLICY %q (expected %q or %q)",
			c.MissingDataPolicy, MissingDataSkip, MissingDataHalt)
	}

	if c.RiskFreeRate < 0 {
		return fmt.Errorf("RISK_FREE_RATE must not be negative, got %v", c.RiskFreeRate)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}

	if c.Workers < 0 {
		return fmt.Errorf("SIMULATION_WORKERS must not be negative, got %d", c.Workers)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
