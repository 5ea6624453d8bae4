package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// OutcomeStorage implements the OutcomeStorage interface for Badger
type OutcomeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewOutcomeStorage creates a new OutcomeStorage instance
func NewOutcomeStorage(db *BadgerDB, logger arbor.ILogger) interfaces.OutcomeStorage {
	return &OutcomeStorage{
		db:     db,
		logger: logger,
	}
}

func (s *OutcomeStorage) SaveRecord(ctx context.Context, record *interfaces.OutcomeRecord) error {
	if record.ID == "" {
		return fmt.Errorf("outcome record ID is required")
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save outcome record: %w", err)
	}
	return nil
}

func (s *OutcomeStorage) GetRecord(ctx context.Context, id string) (*interfaces.OutcomeRecord, error) {
	var record interfaces.OutcomeRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("outcome record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get outcome record: %w", err)
	}
	return &record, nil
}

func (s *OutcomeStorage) ListRecords(ctx context.Context, opts *interfaces.OutcomeListOptions) ([]*interfaces.OutcomeRecord, error) {
	query := badgerhold.Where("ID").Ne("")

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(opts.Status)
		}
		if opts.Category != "" {
			query = query.And("Category").Eq(opts.Category)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}
	query = query.SortBy("CompletedAt").Reverse()

	var records []*interfaces.OutcomeRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list outcome records: %w", err)
	}
	return records, nil
}

func (s *OutcomeStorage) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []*interfaces.OutcomeRecord
	query := badgerhold.Where("CompletedAt").Lt(cutoff)
	if err := s.db.Store().Find(&stale, query); err != nil {
		return 0, fmt.Errorf("failed to find stale outcome records: %w", err)
	}

	deleted := 0
	for _, record := range stale {
		if err := s.db.Store().Delete(record.ID, &interfaces.OutcomeRecord{}); err != nil {
			s.logger.Warn().
				Err(err).
				Str("record_id", record.ID).
				Msg("Failed to delete stale outcome record")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Info().
			Int("deleted", deleted).
			Str("cutoff", cutoff.String()).
			Msg("Purged stale outcome records")
	}

	return deleted, nil
}

// RunGC reclaims value log space after a purge. Exposed so maintenance
// sweeps can trigger it without reaching into the connection.
func (s *OutcomeStorage) RunGC() error {
	return s.db.RunGC()
}

func (s *OutcomeStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&interfaces.OutcomeRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count outcome records: %w", err)
	}
	return int(count), nil
}
