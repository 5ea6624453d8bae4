package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/backends"
	"github.com/ternarybob/relay/internal/breaker"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
	"github.com/ternarybob/relay/internal/queue"
)

// errorPause throttles the loop after an unexpected error so a
// persistent fault cannot spin the consumer hot.
const errorPause = 500 * time.Millisecond

// Scheduler is the single consumer draining the priority queue. It
// resolves each item to a backend, executes it through that backend's
// circuit breaker, updates queue statistics and hands the outcome to
// the result sink. Exactly one item is in flight at a time.
type Scheduler struct {
	queue        *queue.PriorityQueue
	registry     *backends.Registry
	sink         interfaces.ResultSink
	events       interfaces.EventService
	logger       arbor.ILogger
	pollInterval time.Duration

	breakerConfig breaker.Config
	breakerMu     sync.Mutex
	breakers      map[string]*breaker.CircuitBreaker

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler wires the consumer loop. The registry and sink are
// explicit dependencies - there is no global backend state.
func NewScheduler(
	q *queue.PriorityQueue,
	registry *backends.Registry,
	breakerConfig breaker.Config,
	sink interfaces.ResultSink,
	events interfaces.EventService,
	pollInterval time.Duration,
	logger arbor.ILogger,
) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Scheduler{
		queue:         q,
		registry:      registry,
		sink:          sink,
		events:        events,
		logger:        logger,
		pollInterval:  pollInterval,
		breakerConfig: breakerConfig,
		breakers:      make(map[string]*breaker.CircuitBreaker),
	}
}

// Start launches the consumer loop. A second call while running is a
// logged no-op.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn().Msg("Scheduler already running, ignoring start")
		return
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go s.run()

	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Msg("Scheduler started")
}

// Stop cancels the loop and waits for it to exit. Context cancellation
// interrupts the blocking dequeue, so shutdown does not wait out the
// poll interval.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}

	s.logger.Info().Msg("Stopping scheduler...")
	s.cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		item := s.queue.Dequeue(s.ctx, s.pollInterval)
		if item == nil {
			// Timeout or shutdown; loop re-checks the context.
			continue
		}

		s.safeProcess(item)
	}
}

// safeProcess contains the per-item failure boundary: nothing escaping
// processOne may terminate the loop.
func (s *Scheduler) safeProcess(item *models.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("item_id", item.ID).
				Str("category", item.Category.String()).
				Msg(fmt.Sprintf("Unexpected panic processing work item: %v", r))
			time.Sleep(errorPause)
		}
	}()

	s.processOne(item)
}

func (s *Scheduler) processOne(item *models.WorkItem) {
	key := item.Category.Backend()

	backend, ok := s.registry.Lookup(key)
	if !ok {
		// Routing failure: no breaker involvement, immediate outcome.
		outcome := models.FailedOutcome(item.ID, fmt.Sprintf("no backend registered for category %s (backend key %q)", item.Category, key))
		s.finish(item, outcome)
		return
	}

	cb := s.breakerFor(key)

	primary := func(ctx context.Context) (*models.Outcome, error) {
		return backend.Process(ctx, item)
	}
	fallback := func(_ context.Context) (*models.Outcome, error) {
		outcome := models.FailedOutcome(item.ID, fmt.Sprintf("backend %s unavailable, local fallback required", key))
		outcome.SetMeta(models.MetaFallbackRequired, "true")
		outcome.SetMeta("fallbackReason", string(cb.State().State))
		return outcome, nil
	}

	start := time.Now()
	outcome, err := cb.Call(s.ctx, primary, fallback)
	elapsed := time.Since(start)

	if err != nil {
		// Only reachable without a fallback; keep the containment
		// guarantee anyway.
		outcome = models.FailedOutcome(item.ID, err.Error())
	}
	if outcome.ID == "" {
		outcome.ID = item.ID
	}
	outcome.ProcessingTimeMs = elapsed.Milliseconds()

	s.finish(item, outcome)
}

// finish merges metadata, updates stats and reports the outcome. The
// work item is not retained afterwards.
func (s *Scheduler) finish(item *models.WorkItem, outcome *models.Outcome) {
	outcome.MergeMeta(item.Meta)

	if outcome.Completed() {
		s.queue.RecordProcessed()
	} else {
		s.queue.RecordFailed()
	}

	s.logger.Debug().
		Str("item_id", item.ID).
		Str("category", item.Category.String()).
		Int("priority", item.Priority).
		Str("status", string(outcome.Status)).
		Int64("processing_time_ms", outcome.ProcessingTimeMs).
		Msg("Work item processed")

	if s.sink == nil {
		return
	}
	if err := s.sink.OnResult(s.ctx, item, outcome); err != nil {
		s.logger.Error().
			Err(err).
			Str("item_id", item.ID).
			Msg("Failed to report outcome")
	}
}

// breakerFor returns the circuit breaker guarding one backend key,
// creating it on first use.
func (s *Scheduler) breakerFor(key string) *breaker.CircuitBreaker {
	s.breakerMu.Lock()
	defer s.breakerMu.Unlock()

	if cb, ok := s.breakers[key]; ok {
		return cb
	}

	cb := breaker.New(key, s.breakerConfig, s.logger)
	if s.events != nil {
		cb.OnStateChange(func(name string, from, to breaker.State) {
			s.events.Publish(context.Background(), interfaces.Event{
				Type:  interfaces.EventBreakerStateChanged,
				Topic: fmt.Sprintf("breaker.%s", name),
				Payload: map[string]string{
					"backend": name,
					"from":    string(from),
					"to":      string(to),
				},
			})
		})
	}
	s.breakers[key] = cb
	return cb
}

// BreakerStates returns a snapshot per backend key for observability.
func (s *Scheduler) BreakerStates() map[string]breaker.Snapshot {
	s.breakerMu.Lock()
	defer s.breakerMu.Unlock()

	states := make(map[string]breaker.Snapshot, len(s.breakers))
	for key, cb := range s.breakers {
		states[key] = cb.State()
	}
	return states
}

// ResetBreaker is the administrative override for one backend key.
func (s *Scheduler) ResetBreaker(key string) error {
	s.breakerMu.Lock()
	cb, ok := s.breakers[key]
	s.breakerMu.Unlock()

	if !ok {
		return fmt.Errorf("no circuit breaker for backend %s", key)
	}
	cb.Reset()
	return nil
}

// Running reports whether the consumer loop is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}
