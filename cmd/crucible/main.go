package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forgelabs/crucible/internal/config"
	"github.com/forgelabs/crucible/internal/crucible"
	"github.com/forgelabs/crucible/internal/datafetcher"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/metrics"
	"github.com/forgelabs/crucible/internal/service"
	"github.com/forgelabs/crucible/internal/state"
	"github.com/forgelabs/crucible/internal/web"
)

// main is the entry point for the crucible engine.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.InitializeWithOptions(logger.Options{Level: config.LogLevel, File: config.LogFile})
	log.Info().Msg("Crucible engine starting...")

	engineCfg, err := config.LoadEngineConfig(config.CrucibleConfigFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", config.CrucibleConfigFile).Msg("Failed to load crucible configuration")
	}

	// --- 2. Optional persistence ---
	var store service.Store
	if config.PersistenceEnabled {
		dbCfg := state.DBConfig{
			Host: config.DBHost, Port: config.DBPort,
			User: config.DBUser, Password: config.DBPassword,
			DBName: config.DBName, SSLMode: config.DBSSLMode,
		}
		if err := state.InitDB(dbCfg); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			log.Fatal().Err(err).Msg("Failed to ensure database schema")
		}

		// The stored active schedule wins over the configured one.
		schedule, err := state.LoadActiveFeeSchedule(service.DEFAULT_FEE_CONFIG_NAME)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load active fee schedule, saving the configured one.")
			version := service.DEFAULT_FEE_CONFIG_VERSION
			latest, err := state.LatestFeeScheduleVersion(service.DEFAULT_FEE_CONFIG_NAME)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to read fee schedule versions.")
			}
			if latest >= version {
				version = latest + 1
			}
			if _, err := state.SaveFeeSchedule(engineCfg.Fees, service.DEFAULT_FEE_CONFIG_NAME, version, true); err != nil {
				log.Fatal().Err(err).Msg("Failed to save initial fee schedule.")
			}
		} else {
			engineCfg.Fees = *schedule
		}
		log.Info().Msg("Fee schedule loaded successfully.")
		store = state.Store{}
	} else {
		log.Info().Msg("Persistence disabled, running in memory only")
	}

	// --- 3. Prices, metrics and the service ---
	seed, err := config.LoadPrices()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load prices")
	}
	prices := datafetcher.NewPriceTable(seed)

	svc, err := service.NewService(service.Config{
		Engine: crucible.Config{
			Crucibles: engineCfg.Crucibles,
			Fees:      engineCfg.Fees,
			Lending:   engineCfg.Lending,
			Prices:    prices,
		},
		Metrics: metrics.NewMetrics("", prometheus.NewRegistry()),
		Store:   store,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create crucible service")
	}

	// --- 4. Run until interrupted ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	webServer := web.NewWebServer(config.WebPort, svc, prices, config.PersistenceEnabled)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting crucible API")
		return webServer.Start(gctx)
	})
	g.Go(func() error {
		log.Info().Str("interval", config.SnapshotInterval.String()).Msg("Starting snapshot loop")
		svc.RunLoop(gctx, config.SnapshotInterval)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Crucible engine stopped with error")
	}
	log.Info().Msg("Crucible engine stopped")
}
