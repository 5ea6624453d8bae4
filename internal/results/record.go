package results

import (
	"time"

	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
)

// NewOutcomeRecord flattens an item/outcome pair into the archive shape.
func NewOutcomeRecord(item *models.WorkItem, outcome *models.Outcome) *interfaces.OutcomeRecord {
	return &interfaces.OutcomeRecord{
		ID:          outcome.ID,
		Category:    item.Category,
		Priority:    item.Priority,
		Status:      outcome.Status,
		Error:       outcome.Error,
		DurationMs:  outcome.ProcessingTimeMs,
		Meta:        outcome.Meta,
		SubmittedAt: item.CreatedAt,
		CompletedAt: time.Now(),
	}
}
