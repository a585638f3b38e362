package main

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/forgelabs/crucible/internal/config"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/state"
)

// Drops every crucible table and recreates the schema. Reads the same environment as the engine.
func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Initialize(config.LogLevel)
	log.Info().Msg("Starting database reset script...")

	if !config.PersistenceEnabled {
		log.Fatal().Msg("PERSISTENCE_ENABLED is not set; refusing to touch the database.")
	}

	dbCfg := state.DBConfig{
		Host:     config.DBHost,
		Port:     config.DBPort,
		User:     config.DBUser,
		Password: config.DBPassword,
		DBName:   config.DBName,
		SSLMode:  config.DBSSLMode,
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Strs("tables", state.Tables).Msg("Connected to database. Attempting to drop all tables...")
	if err := state.DropSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to drop tables")
	}
	log.Info().Msg("Successfully dropped all tables")

	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}
	log.Info().Msg("Database reset complete!")
}
