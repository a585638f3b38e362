// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool. It stays nil when persistence is disabled.
var DB *sql.DB

var errNotInitialized = errors.New("database not initialized")

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// Amounts are stored as scaled integers in NUMERIC(78, 0), wide enough for any uint256.
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS fee_schedules (
		schedule_id SERIAL PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 1,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		wrap_fee NUMERIC(20, 18) NOT NULL,
		unwrap_fee NUMERIC(20, 18) NOT NULL,
		leveraged_open_fee NUMERIC(20, 18) NOT NULL,
		leveraged_close_fee NUMERIC(20, 18) NOT NULL,
		yield_on_interest_fee NUMERIC(20, 18) NOT NULL,
		liquidation_fee NUMERIC(20, 18) NOT NULL,
		yield_share NUMERIC(20, 18) NOT NULL,
		CONSTRAINT uq_fee_schedules_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_fee_schedules_config_active ON fee_schedules(config_name, is_active, activated_at DESC);

	CREATE TABLE IF NOT EXISTS crucible_transactions (
		tx_id UUID PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		crucible_id VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		tx_timestamp TIMESTAMPTZ NOT NULL,
		base_amount NUMERIC(78, 0) NOT NULL,
		fee_amount NUMERIC(78, 0) NOT NULL,
		position_id UUID,
		payload JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_crucible_transactions_owner ON crucible_transactions(owner, tx_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_crucible_transactions_crucible ON crucible_transactions(crucible_id, tx_timestamp DESC);

	CREATE TABLE IF NOT EXISTS crucible_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_number INTEGER NOT NULL,
		cycle_id UUID NOT NULL,
		crucible_id VARCHAR(255) NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		exchange_rate_scaled NUMERIC(78, 0) NOT NULL,
		total_wrapped NUMERIC(78, 0) NOT NULL,
		base_custody NUMERIC(78, 0) NOT NULL,
		tvl_usd NUMERIC(38, 18) NOT NULL,
		base_price_usd NUMERIC(38, 18) NOT NULL,
		fees_collected NUMERIC(38, 18) NOT NULL,
		yield_distributed NUMERIC(38, 18) NOT NULL,
		payload JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_crucible_snapshots_crucible ON crucible_snapshots(crucible_id, snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_crucible_snapshots_cycle ON crucible_snapshots(cycle_number DESC);
`

// Tables lists every table EnsureSchema creates, in drop order.
var Tables = []string{"crucible_snapshots", "crucible_transactions", "fee_schedules", "cycle_counter"}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return errNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	if err := ensureCycleCounterTable(); err != nil {
		return err
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table EnsureSchema creates.
func DropSchema() error {
	if DB == nil {
		return errNotInitialized
	}
	for _, table := range Tables {
		if _, err := DB.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", table)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
		log.Info().Str("table", table).Msg("Dropped table")
	}
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
