package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/backends"
	"github.com/ternarybob/relay/internal/breaker"
	"github.com/ternarybob/relay/internal/models"
	"github.com/ternarybob/relay/internal/queue"
)

func createTestLogger() arbor.ILogger {
	return arbor.NewLogger()
}

// stubBackend scripts Process results for the scheduler tests.
type stubBackend struct {
	name    string
	process func(ctx context.Context, item *models.WorkItem) (*models.Outcome, error)
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Process(ctx context.Context, item *models.WorkItem) (*models.Outcome, error) {
	return b.process(ctx, item)
}

// captureSink records every reported outcome.
type captureSink struct {
	results chan capturedResult
}

type capturedResult struct {
	item    *models.WorkItem
	outcome *models.Outcome
}

func newCaptureSink() *captureSink {
	return &captureSink{results: make(chan capturedResult, 64)}
}

func (s *captureSink) OnResult(_ context.Context, item *models.WorkItem, outcome *models.Outcome) error {
	s.results <- capturedResult{item: item, outcome: outcome}
	return nil
}

func (s *captureSink) next(t *testing.T) capturedResult {
	t.Helper()
	select {
	case r := <-s.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return capturedResult{}
	}
}

func testScheduler(t *testing.T, registry *backends.Registry, breakerConfig breaker.Config) (*Scheduler, *queue.PriorityQueue, *captureSink) {
	t.Helper()
	q := queue.New(100, createTestLogger())
	sink := newCaptureSink()
	s := NewScheduler(q, registry, breakerConfig, sink, nil, 50*time.Millisecond, createTestLogger())
	return s, q, sink
}

func defaultBreakerConfig() breaker.Config {
	return breaker.Config{FailureThreshold: 3, SuccessThreshold: 2, OpenTimeout: time.Minute}
}

func submit(t *testing.T, q *queue.PriorityQueue, id string, category models.Category) *models.WorkItem {
	t.Helper()
	item := models.NewWorkItem(id, category, []byte(`{"data":1}`), map[string]string{"correlation": id})
	require.True(t, q.Enqueue(item))
	return item
}

func TestScheduler_ProcessesItemThroughBackend(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("text", &stubBackend{
		name: "stub:text",
		process: func(_ context.Context, item *models.WorkItem) (*models.Outcome, error) {
			outcome := models.CompletedOutcome(item.ID, []byte(`{"answer":42}`))
			outcome.SetMeta("engine", "stub:text")
			return outcome, nil
		},
	})

	s, q, sink := testScheduler(t, registry, defaultBreakerConfig())
	s.Start()
	defer s.Stop()

	submit(t, q, "item-1", models.CategoryTextGenerate)

	result := sink.next(t)
	assert.Equal(t, "item-1", result.outcome.ID)
	assert.Equal(t, models.StatusCompleted, result.outcome.Status)
	// Item meta is merged without clobbering backend meta.
	assert.Equal(t, "item-1", result.outcome.Meta["correlation"])
	assert.Equal(t, "stub:text", result.outcome.Meta["engine"])

	stats := q.Stats()
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(0), stats.TotalFailed)
}

func TestScheduler_MissingBackend(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())

	s, q, sink := testScheduler(t, registry, defaultBreakerConfig())
	s.Start()
	defer s.Stop()

	submit(t, q, "item-2", models.CategoryVisionFrame)

	result := sink.next(t)
	assert.Equal(t, models.StatusFailed, result.outcome.Status)
	assert.Contains(t, result.outcome.Error, "vision")
	assert.Contains(t, result.outcome.Error, "no backend registered")

	// Routing failures never touch circuit breaker accounting.
	assert.Empty(t, s.BreakerStates())
	assert.Equal(t, int64(1), q.Stats().TotalFailed)
}

func TestScheduler_BackendErrorSignalsFallback(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("voice", &stubBackend{
		name: "stub:voice",
		process: func(_ context.Context, _ *models.WorkItem) (*models.Outcome, error) {
			return nil, errors.New("asr runtime unavailable")
		},
	})

	s, q, sink := testScheduler(t, registry, defaultBreakerConfig())
	s.Start()
	defer s.Stop()

	submit(t, q, "item-3", models.CategoryVoiceASR)

	result := sink.next(t)
	assert.Equal(t, models.StatusFailed, result.outcome.Status)
	assert.True(t, result.outcome.FallbackRequired())
	assert.Equal(t, int64(1), q.Stats().TotalFailed)

	states := s.BreakerStates()
	require.Contains(t, states, "voice")
	assert.Equal(t, 1, states["voice"].FailureCount)
}

func TestScheduler_OpenCircuitSkipsBackend(t *testing.T) {
	backendCalls := 0
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("voice", &stubBackend{
		name: "stub:voice",
		process: func(_ context.Context, _ *models.WorkItem) (*models.Outcome, error) {
			backendCalls++
			return nil, errors.New("still down")
		},
	})

	config := breaker.Config{FailureThreshold: 2, SuccessThreshold: 1, OpenTimeout: time.Hour}
	s, q, sink := testScheduler(t, registry, config)
	s.Start()
	defer s.Stop()

	// Two failures open the circuit; the third item goes straight to
	// the fallback without a backend call.
	for i, id := range []string{"v-1", "v-2", "v-3"} {
		submit(t, q, id, models.CategoryVoiceASR)
		result := sink.next(t)
		assert.Equal(t, models.StatusFailed, result.outcome.Status, "item %d", i)
		assert.True(t, result.outcome.FallbackRequired(), "item %d", i)
	}

	assert.Equal(t, 2, backendCalls)
	assert.Equal(t, breaker.StateOpen, s.BreakerStates()["voice"].State)
}

func TestScheduler_BackendPanicContained(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("text", &stubBackend{
		name: "stub:text",
		process: func(_ context.Context, _ *models.WorkItem) (*models.Outcome, error) {
			panic("backend bug")
		},
	})

	s, q, sink := testScheduler(t, registry, defaultBreakerConfig())
	s.Start()
	defer s.Stop()

	submit(t, q, "boom", models.CategoryTextNLU)
	result := sink.next(t)
	assert.Equal(t, models.StatusFailed, result.outcome.Status)
	assert.True(t, result.outcome.FallbackRequired())

	// The loop survives and keeps processing.
	registry.Register("text", &stubBackend{
		name: "stub:text",
		process: func(_ context.Context, item *models.WorkItem) (*models.Outcome, error) {
			return models.CompletedOutcome(item.ID, nil), nil
		},
	})
	submit(t, q, "after-boom", models.CategoryTextNLU)
	assert.Equal(t, models.StatusCompleted, sink.next(t).outcome.Status)
}

func TestScheduler_ProcessingTimeRecorded(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("text", &stubBackend{
		name: "stub:text",
		process: func(_ context.Context, item *models.WorkItem) (*models.Outcome, error) {
			time.Sleep(30 * time.Millisecond)
			return models.CompletedOutcome(item.ID, nil), nil
		},
	})

	s, q, sink := testScheduler(t, registry, defaultBreakerConfig())
	s.Start()
	defer s.Stop()

	submit(t, q, "timed", models.CategoryTextGenerate)
	result := sink.next(t)
	assert.GreaterOrEqual(t, result.outcome.ProcessingTimeMs, int64(30))
}

func TestScheduler_StartIsIdempotent(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	s, _, _ := testScheduler(t, registry, defaultBreakerConfig())

	s.Start()
	s.Start() // no-op, must not spawn a second consumer
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	s.Stop() // second stop is harmless
}

func TestScheduler_StopIsPrompt(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	q := queue.New(10, createTestLogger())
	// Long poll interval: shutdown must still be immediate.
	s := NewScheduler(q, registry, defaultBreakerConfig(), newCaptureSink(), nil, 10*time.Second, createTestLogger())

	s.Start()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

func TestScheduler_ResetBreaker(t *testing.T) {
	registry := backends.NewRegistry(createTestLogger())
	registry.Register("voice", &stubBackend{
		name: "stub:voice",
		process: func(_ context.Context, _ *models.WorkItem) (*models.Outcome, error) {
			return nil, errors.New("down")
		},
	})

	config := breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour}
	s, q, sink := testScheduler(t, registry, config)
	s.Start()
	defer s.Stop()

	submit(t, q, "open-it", models.CategoryVoiceTTS)
	sink.next(t)
	require.Equal(t, breaker.StateOpen, s.BreakerStates()["voice"].State)

	require.NoError(t, s.ResetBreaker("voice"))
	assert.Equal(t, breaker.StateClosed, s.BreakerStates()["voice"].State)

	assert.Error(t, s.ResetBreaker("nope"))
}
