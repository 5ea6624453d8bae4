package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
	"github.com/ternarybob/relay/internal/models"
)

func setupTestStorage(t *testing.T) interfaces.OutcomeStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: t.TempDir() + "/relay-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewOutcomeStorage(db, logger)
}

func testRecord(id string, status models.OutcomeStatus, completedAt time.Time) *interfaces.OutcomeRecord {
	return &interfaces.OutcomeRecord{
		ID:          id,
		Category:    models.CategoryVoiceASR,
		Priority:    5,
		Status:      status,
		DurationMs:  12,
		SubmittedAt: completedAt.Add(-time.Second),
		CompletedAt: completedAt,
	}
}

func TestOutcomeStorage_SaveAndGet(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	record := testRecord("work_1", models.StatusCompleted, time.Now())
	require.NoError(t, storage.SaveRecord(ctx, record))

	got, err := storage.GetRecord(ctx, "work_1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.Category, got.Category)
	assert.Equal(t, record.Status, got.Status)
}

func TestOutcomeStorage_SaveRequiresID(t *testing.T) {
	storage := setupTestStorage(t)

	err := storage.SaveRecord(context.Background(), &interfaces.OutcomeRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ID is required")
}

func TestOutcomeStorage_GetMissing(t *testing.T) {
	storage := setupTestStorage(t)

	_, err := storage.GetRecord(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOutcomeStorage_ListWithFilters(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		status := models.StatusCompleted
		if i%2 == 1 {
			status = models.StatusFailed
		}
		record := testRecord(fmt.Sprintf("work_%d", i), status, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, storage.SaveRecord(ctx, record))
	}

	all, err := storage.ListRecords(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	// Newest first
	assert.Equal(t, "work_4", all[0].ID)

	failed, err := storage.ListRecords(ctx, &interfaces.OutcomeListOptions{Status: models.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	limited, err := storage.ListRecords(ctx, &interfaces.OutcomeListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestOutcomeStorage_PurgeOlderThan(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, storage.SaveRecord(ctx, testRecord("old_1", models.StatusCompleted, now.Add(-48*time.Hour))))
	require.NoError(t, storage.SaveRecord(ctx, testRecord("old_2", models.StatusFailed, now.Add(-25*time.Hour))))
	require.NoError(t, storage.SaveRecord(ctx, testRecord("fresh", models.StatusCompleted, now)))

	deleted, err := storage.PurgeOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := storage.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = storage.GetRecord(ctx, "fresh")
	assert.NoError(t, err)
}
