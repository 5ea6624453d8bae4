package interfaces

import (
	"context"

	"github.com/ternarybob/relay/internal/models"
)

// Backend is a pluggable processor for one category of offloaded work.
// Process may return a Failed outcome directly, or an error - the
// scheduler converts errors into Failed outcomes and counts them toward
// circuit breaker accounting.
type Backend interface {
	// Name identifies the backend in logs and outcome metadata.
	Name() string

	// Process executes one work item. Implementations may block on I/O
	// or compute for arbitrary durations and must honor ctx cancellation.
	Process(ctx context.Context, item *models.WorkItem) (*models.Outcome, error)
}
