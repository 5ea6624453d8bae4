package app

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/backends"
	"github.com/ternarybob/relay/internal/breaker"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/handlers"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/queue"
	"github.com/ternarybob/relay/internal/results"
	"github.com/ternarybob/relay/internal/services/events"
	"github.com/ternarybob/relay/internal/services/maintenance"
	storage "github.com/ternarybob/relay/internal/storage/badger"
	"github.com/ternarybob/relay/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService

	Queue     *queue.PriorityQueue
	Registry  *backends.Registry
	Scheduler *worker.Scheduler

	MaintenanceService *maintenance.Service

	// HTTP handlers
	OffloadHandler *handlers.OffloadHandler
	StatusHandler  *handlers.StatusHandler
	WSHandler      *handlers.WebSocketHandler
}

// New wires the application components. Startup order matters: storage
// first, then the queue/registry/scheduler chain, handlers last.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: config,
		Logger: logger,
	}

	// Storage
	storageManager, err := storage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	// Event bus
	a.EventService = events.NewService(logger)

	// Admission queue
	a.Queue = queue.New(config.Queue.MaxSize, logger)

	// Backend registry from config
	registry, err := backends.NewRegistryFromConfig(&config.Backends, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to build backend registry: %w", err)
	}
	a.Registry = registry

	// Result sinks: event bus for live telemetry, badger for diagnostics
	sink := results.NewMultiSink(logger,
		results.NewEventSink(a.EventService),
		results.NewArchiveSink(storageManager.OutcomeStorage()),
	)

	// Scheduler with one breaker per backend key
	breakerConfig := breaker.Config{
		FailureThreshold: config.Breaker.FailureThreshold,
		SuccessThreshold: config.Breaker.SuccessThreshold,
		OpenTimeout:      config.OpenTimeout(),
	}
	a.Scheduler = worker.NewScheduler(
		a.Queue,
		a.Registry,
		breakerConfig,
		sink,
		a.EventService,
		config.PollInterval(),
		logger,
	)

	// Maintenance
	a.MaintenanceService = maintenance.NewService(
		storageManager.OutcomeStorage(),
		&config.Maintenance,
		config.Retention(),
		logger,
	)

	// HTTP handlers
	a.OffloadHandler = handlers.NewOffloadHandler(
		a.Queue,
		a.Scheduler,
		storageManager.OutcomeStorage(),
		a.EventService,
		&config.Admission,
		logger,
	)
	a.StatusHandler = handlers.NewStatusHandler(a.Queue, a.Scheduler, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &config.WebSocket, logger)

	logger.Info().
		Int("queue_max_size", config.Queue.MaxSize).
		Int("backends", len(registry.Keys())).
		Msg("Application components initialized")

	return a, nil
}

// Start launches the background components.
func (a *App) Start() error {
	a.Scheduler.Start()
	if err := a.MaintenanceService.Start(); err != nil {
		return err
	}
	return nil
}

// Stop shuts the background components down in reverse order.
func (a *App) Stop() {
	a.MaintenanceService.Stop()
	a.Scheduler.Stop()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
	}
}
