package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/relay/internal/models"
)

// OutcomeRecord is an archived outcome with its routing context, kept
// for diagnostics after the work item itself has been discarded.
type OutcomeRecord struct {
	ID          string               `json:"id" badgerhold:"key"`
	Category    models.Category      `json:"category"`
	Priority    int                  `json:"priority"`
	Status      models.OutcomeStatus `json:"status"`
	Error       string               `json:"error,omitempty"`
	DurationMs  int64                `json:"duration_ms"`
	Meta        map[string]string    `json:"meta,omitempty"`
	SubmittedAt time.Time            `json:"submitted_at"`
	CompletedAt time.Time            `json:"completed_at"`
}

// OutcomeListOptions filters archive queries.
type OutcomeListOptions struct {
	Status   models.OutcomeStatus
	Category models.Category
	Limit    int
}

// OutcomeStorage archives outcomes for later inspection.
type OutcomeStorage interface {
	SaveRecord(ctx context.Context, record *OutcomeRecord) error
	GetRecord(ctx context.Context, id string) (*OutcomeRecord, error)
	ListRecords(ctx context.Context, opts *OutcomeListOptions) ([]*OutcomeRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// StorageManager owns the database connection and its stores.
type StorageManager interface {
	OutcomeStorage() OutcomeStorage
	Close() error
}
