package results

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
)

type recordingSink struct {
	calls int
	err   error
}

func (s *recordingSink) OnResult(ctx context.Context, item *models.WorkItem, outcome *models.Outcome) error {
	s.calls++
	return s.err
}

type recordingBus struct {
	events []interfaces.Event
}

func (b *recordingBus) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	return nil
}

func (b *recordingBus) Publish(ctx context.Context, event interfaces.Event) error {
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) PublishSync(ctx context.Context, event interfaces.Event) error {
	return b.Publish(ctx, event)
}

func testItem() *models.WorkItem {
	return &models.WorkItem{
		ID:        "work_test",
		Category:  models.CategoryVisionFrame,
		Payload:   json.RawMessage(`{"frame":1}`),
		Meta:      map[string]string{"source": "camera-0"},
		Priority:  models.PriorityHighest,
		CreatedAt: time.Now(),
	}
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	first := &recordingSink{}
	second := &recordingSink{}
	sink := NewMultiSink(arbor.NewLogger(), first, second)

	err := sink.OnResult(context.Background(), testItem(), models.CompletedOutcome("work_test", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestMultiSink_FailureDoesNotStopOthers(t *testing.T) {
	failing := &recordingSink{err: errors.New("archive unavailable")}
	healthy := &recordingSink{}
	sink := NewMultiSink(arbor.NewLogger(), failing, healthy)

	err := sink.OnResult(context.Background(), testItem(), models.CompletedOutcome("work_test", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "archive unavailable")
	assert.Equal(t, 1, healthy.calls)
}

func TestEventSink_PublishesOnBackendTopic(t *testing.T) {
	bus := &recordingBus{}
	sink := NewEventSink(bus)
	outcome := models.CompletedOutcome("work_test", json.RawMessage(`{"detections":[]}`))

	require.NoError(t, sink.OnResult(context.Background(), testItem(), outcome))
	require.Len(t, bus.events, 1)

	event := bus.events[0]
	assert.Equal(t, interfaces.EventOffloadResult, event.Type)
	assert.Equal(t, "result.vision", event.Topic)

	payload, ok := event.Payload.(ResultEvent)
	require.True(t, ok)
	assert.Equal(t, "work_test", payload.Outcome.ID)
}

func TestNewOutcomeRecord(t *testing.T) {
	item := testItem()
	outcome := models.FailedOutcome("work_test", "backend timeout")
	outcome.ProcessingTimeMs = 87
	outcome.SetMeta(models.MetaFallbackRequired, "true")

	record := NewOutcomeRecord(item, outcome)

	assert.Equal(t, "work_test", record.ID)
	assert.Equal(t, models.CategoryVisionFrame, record.Category)
	assert.Equal(t, models.PriorityHighest, record.Priority)
	assert.Equal(t, models.StatusFailed, record.Status)
	assert.Equal(t, "backend timeout", record.Error)
	assert.Equal(t, int64(87), record.DurationMs)
	assert.Equal(t, "true", record.Meta[models.MetaFallbackRequired])
	assert.Equal(t, item.CreatedAt, record.SubmittedAt)
	assert.False(t, record.CompletedAt.IsZero())
}
