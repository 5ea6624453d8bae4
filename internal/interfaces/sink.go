package interfaces

import (
	"context"

	"github.com/ternarybob/relay/internal/models"
)

// ResultSink receives completed and failed outcomes for delivery back to
// the producer. Implementations are fire-and-forget from the scheduler's
// point of view: errors are logged by the caller, never propagated, and
// OnResult must not block the scheduler loop for more than a bounded,
// short duration.
type ResultSink interface {
	OnResult(ctx context.Context, item *models.WorkItem, outcome *models.Outcome) error
}
