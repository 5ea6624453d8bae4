package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	outcome interfaces.OutcomeStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		outcome: NewOutcomeStorage(db, logger),
		logger:  logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// OutcomeStorage returns the Outcome storage interface
func (m *Manager) OutcomeStorage() interfaces.OutcomeStorage {
	return m.outcome
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
