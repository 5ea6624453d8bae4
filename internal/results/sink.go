package results

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
)

// MultiSink fans an outcome out to several sinks. Each sink gets the
// result even when another fails; errors are collected into one.
type MultiSink struct {
	sinks  []interfaces.ResultSink
	logger arbor.ILogger
}

// NewMultiSink creates a fan-out sink.
func NewMultiSink(logger arbor.ILogger, sinks ...interfaces.ResultSink) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger,
	}
}

func (s *MultiSink) OnResult(ctx context.Context, item *models.WorkItem, outcome *models.Outcome) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.OnResult(ctx, item, outcome); err != nil {
			s.logger.Warn().
				Err(err).
				Str("item_id", item.ID).
				Msg("Result sink failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ResultEvent is the payload published on the event bus for every
// outcome.
type ResultEvent struct {
	Item    *models.WorkItem `json:"item"`
	Outcome *models.Outcome  `json:"outcome"`
}

// EventSink publishes outcomes to the internal event bus under a
// category-specific topic ("result.vision", "result.voice", ...) so the
// websocket layer can relay them back to the producer.
type EventSink struct {
	events interfaces.EventService
}

// NewEventSink creates a sink publishing to the given bus.
func NewEventSink(events interfaces.EventService) *EventSink {
	return &EventSink{events: events}
}

func (s *EventSink) OnResult(ctx context.Context, item *models.WorkItem, outcome *models.Outcome) error {
	return s.events.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventOffloadResult,
		Topic:   fmt.Sprintf("result.%s", item.Category.Backend()),
		Payload: ResultEvent{Item: item, Outcome: outcome},
	})
}

// ArchiveSink records outcomes in the badger-backed archive for
// diagnostics. It keeps no reference to the work item afterwards.
type ArchiveSink struct {
	storage interfaces.OutcomeStorage
}

// NewArchiveSink creates a sink writing to outcome storage.
func NewArchiveSink(storage interfaces.OutcomeStorage) *ArchiveSink {
	return &ArchiveSink{storage: storage}
}

func (s *ArchiveSink) OnResult(ctx context.Context, item *models.WorkItem, outcome *models.Outcome) error {
	record := NewOutcomeRecord(item, outcome)
	if err := s.storage.SaveRecord(ctx, record); err != nil {
		return fmt.Errorf("failed to archive outcome %s: %w", outcome.ID, err)
	}
	return nil
}
