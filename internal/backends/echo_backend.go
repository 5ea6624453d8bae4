package backends

import (
	"context"
	"fmt"

	"github.com/ternarybob/relay/internal/models"
)

// EchoBackend returns the work item payload unchanged as the result.
// Useful as a loopback target for smoke tests and development setups
// where no inference sidecar is running.
type EchoBackend struct {
	key string
}

// NewEchoBackend creates a loopback backend for the given key.
func NewEchoBackend(key string) *EchoBackend {
	return &EchoBackend{key: key}
}

func (b *EchoBackend) Name() string {
	return fmt.Sprintf("echo:%s", b.key)
}

func (b *EchoBackend) Process(_ context.Context, item *models.WorkItem) (*models.Outcome, error) {
	outcome := models.CompletedOutcome(item.ID, item.Payload)
	outcome.SetMeta("engine", b.Name())
	return outcome, nil
}
