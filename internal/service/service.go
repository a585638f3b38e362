package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forgelabs/crucible/internal/crucible"
	"github.com/forgelabs/crucible/internal/logger"
	"github.com/forgelabs/crucible/internal/metrics"
	"github.com/forgelabs/crucible/internal/types"
)

const (
	// Export constants for use in main.go
	DEFAULT_FEE_CONFIG_NAME    = "default_crucible_fees"
	DEFAULT_FEE_CONFIG_VERSION = 1
)

// Store is the optional persistence mirror. The engine state never depends on it.
type Store interface {
	SaveTransaction(tx types.Transaction) error
	SavePoolSnapshot(cycleNumber int, cycleID string, at time.Time, s types.PoolSnapshot) error
	NextCycleNumber() (int, error)
}

// CycleStatus describes the last completed snapshot cycle.
type CycleStatus struct {
	CycleNumber int       `json:"cycle_number"`
	CycleID     string    `json:"cycle_id"`
	CompletedAt time.Time `json:"completed_at"`
	Crucibles   int       `json:"crucibles"`
	Error       string    `json:"error,omitempty"`
}

// Service owns the registry and mirrors everything it commits into metrics and the store.
type Service struct {
	logger   zerolog.Logger
	registry *crucible.Registry
	metrics  *metrics.Metrics
	store    Store

	mu         sync.Mutex
	cycleCount int
	last       *CycleStatus
}

// Config holds the configuration for creating a new Service instance
type Config struct {
	Engine  crucible.Config // Journal is set by NewService
	Metrics *metrics.Metrics
	Store   Store // optional
}

// NewService builds the registry with the service as its journal.
func NewService(cfg Config) (*Service, error) {
	if err := validateServiceConfig(cfg); err != nil {
		return nil, fmt.Errorf("service configuration validation failed: %w", err)
	}

	s := &Service{
		logger:  logger.GetForComponent("crucible_service"),
		metrics: cfg.Metrics,
		store:   cfg.Store,
	}

	engineCfg := cfg.Engine
	engineCfg.Journal = s
	registry, err := crucible.NewRegistry(engineCfg)
	if err != nil {
		return nil, err
	}
	s.registry = registry

	s.logger.Info().
		Int("crucibles", len(registry.CrucibleIDs())).
		Bool("persistence", s.store != nil).
		Msg("Crucible service created")
	return s, nil
}

func validateServiceConfig(cfg Config) error {
	if cfg.Metrics == nil {
		return fmt.Errorf("metrics cannot be nil")
	}
	if cfg.Engine.Journal != nil {
		return fmt.Errorf("engine journal is owned by the service and must be left unset")
	}
	return nil
}

func (s *Service) Registry() *crucible.Registry { return s.registry }

func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

// Record is called by the registry after every committed transaction.
func (s *Service) Record(tx types.Transaction) {
	s.metrics.ObserveTransaction(tx)
	if s.store == nil {
		return
	}
	if err := s.store.SaveTransaction(tx); err != nil {
		meta := tx.Meta()
		s.logger.Error().Err(err).
			Str("tx_id", meta.ID).
			Str("kind", string(tx.Kind())).
			Str("crucible", string(meta.CrucibleID)).
			Msg("Failed to persist transaction")
	}
}

// LastCycle returns the last completed snapshot cycle, if any.
func (s *Service) LastCycle() (CycleStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return CycleStatus{}, false
	}
	return *s.last, true
}

// RunLoop snapshots every crucible on a fixed interval until ctx is done.
func (s *Service) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().
		Dur("interval", interval).
		Msg("Starting snapshot loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Snapshot loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Service) runLogged(ctx context.Context) {
	if err := s.RunCycle(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Snapshot cycle finished with errors")
	}
}

// RunCycle takes one round of snapshots, refreshes every gauge and mirrors snapshots to the store.
func (s *Service) RunCycle(ctx context.Context) error {
	start := time.Now()
	cycleID := uuid.New().String()
	cycleNumber := s.nextCycleNumber()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Int("cycle", cycleNumber).Logger()

	snapshots, snapErr := s.registry.Snapshots()
	if snapErr != nil {
		cycleLogger.Warn().Err(snapErr).Msg("Some crucibles could not be priced")
	}

	var persistErr error
	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			persistErr = err
			break
		}
		s.metrics.ObservePool(snap)
		if s.store == nil {
			continue
		}
		if err := s.store.SavePoolSnapshot(cycleNumber, cycleID, start, snap); err != nil {
			cycleLogger.Error().Err(err).Str("crucible", string(snap.ID)).Msg("Failed to persist snapshot")
			if persistErr == nil {
				persistErr = err
			}
		}
	}
	s.metrics.ObserveLending(s.registry.LendingState())
	s.metrics.SetOpenPositions(len(s.registry.OpenPositions()))

	err := snapErr
	if err == nil {
		err = persistErr
	}
	s.metrics.ObserveSnapshotCycle(time.Since(start), err)

	status := CycleStatus{CycleNumber: cycleNumber, CycleID: cycleID, CompletedAt: time.Now().UTC(), Crucibles: len(snapshots)}
	if err != nil {
		status.Error = err.Error()
	}
	s.mu.Lock()
	s.last = &status
	s.mu.Unlock()

	cycleLogger.Info().
		Int("crucibles", len(snapshots)).
		Dur("took", time.Since(start)).
		Msg("Snapshot cycle completed")
	return err
}

// nextCycleNumber prefers the persisted counter so numbers survive restarts.
func (s *Service) nextCycleNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		n, err := s.store.NextCycleNumber()
		if err == nil {
			s.cycleCount = n
			return n
		}
		s.logger.Error().Err(err).Msg("Failed to increment cycle number, using local counter")
	}
	s.cycleCount++
	return s.cycleCount
}
