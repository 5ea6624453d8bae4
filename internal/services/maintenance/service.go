package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
)

// Service runs scheduled retention sweeps over the outcome archive so
// the badger store does not grow without bound.
type Service struct {
	storage   interfaces.OutcomeStorage
	config    *common.MaintenanceConfig
	retention time.Duration
	cron      *cron.Cron
	logger    arbor.ILogger
}

// NewService creates the maintenance service. Call Start to begin
// scheduled sweeps.
func NewService(storage interfaces.OutcomeStorage, config *common.MaintenanceConfig, retention time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		config:    config,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the cron entry and starts the scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Maintenance disabled, skipping retention sweeps")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.Schedule, s.sweep)
	if err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Dur("retention", s.retention).
		Msg("Maintenance service started")
	return nil
}

// Stop halts the cron scheduler, waiting for a running sweep to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Maintenance service stopped")
}

// garbageCollector is implemented by stores that can reclaim disk
// space after a purge.
type garbageCollector interface {
	RunGC() error
}

// Sweep runs one retention pass immediately. Exposed for tests and for
// administrative triggering.
func (s *Service) Sweep() (int, error) {
	cutoff := time.Now().Add(-s.retention)
	return s.storage.PurgeOlderThan(context.Background(), cutoff)
}

func (s *Service) sweep() {
	deleted, err := s.Sweep()
	if err != nil {
		s.logger.Error().Err(err).Msg("Retention sweep failed")
		return
	}

	if gc, ok := s.storage.(garbageCollector); ok {
		if err := gc.RunGC(); err != nil {
			s.logger.Warn().Err(err).Msg("Storage garbage collection failed")
		}
	}

	s.logger.Debug().
		Int("deleted", deleted).
		Msg("Retention sweep completed")
}
