package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port the JSON API listens on.
	WebPort string

	// SnapshotInterval is how often pool snapshots are taken and gauges refreshed.
	SnapshotInterval time.Duration

	// CrucibleConfigFile is an optional TOML file overriding the default crucibles and fees.
	CrucibleConfigFile string

	// LogLevel is the zerolog level name ("debug", "info", ...).
	LogLevel string
	// LogFile, when set, tees logs into a rotating file.
	LogFile string

	// PersistenceEnabled mirrors transactions, snapshots and fee schedules into PostgreSQL.
	PersistenceEnabled bool

	// Database connection settings, only read when PersistenceEnabled is set.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

const (
	defaultWebPort          = "8080"
	defaultSnapshotInterval = time.Minute
	defaultDBPort           = 5432
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Only the database settings are required, and only when persistence is enabled.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", defaultWebPort)
	if _, err := strconv.ParseUint(WebPort, 10, 16); err != nil {
		return errors.New("environment variable WEB_PORT must be a valid port, got: " + WebPort)
	}

	SnapshotInterval, err = getEnvAsDuration("SNAPSHOT_INTERVAL", defaultSnapshotInterval)
	if err != nil {
		return err
	}

	CrucibleConfigFile = getEnvOrDefault("CRUCIBLE_CONFIG_FILE", "")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFile = getEnvOrDefault("LOG_FILE", "")

	PersistenceEnabled, err = getEnvAsBool("PERSISTENCE_ENABLED", false)
	if err != nil {
		return err
	}

	if PersistenceEnabled {
		if err := loadDatabaseConfig(); err != nil {
			return err
		}
	}

	log.Debug().
		Str("WebPort", WebPort).
		Dur("SnapshotInterval", SnapshotInterval).
		Str("CrucibleConfigFile", CrucibleConfigFile).
		Bool("PersistenceEnabled", PersistenceEnabled).
		Msg("Configuration loaded successfully.")

	return nil
}

func loadDatabaseConfig() error {
	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsInt("DB_PORT", defaultDBPort)
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword = getEnvOrDefault("DB_PASSWORD", "")

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an int, falling back when unset.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool accepts anything strconv.ParseBool does.
func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsDuration accepts Go duration strings such as "30s" or "5m".
func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return 0, errors.New("environment variable " + key + " must be a positive duration, got: " + valueStr)
	}
	return value, nil
}
