package backends

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/common"
	"github.com/ternarybob/relay/internal/interfaces"
)

// Registry maps backend keys (the segment before the first "." in a
// work item category) to their processing backend. It is an explicit
// dependency injected into the scheduler, never a package-level global.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]interfaces.Backend
	logger   arbor.ILogger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		backends: make(map[string]interfaces.Backend),
		logger:   logger,
	}
}

// NewRegistryFromConfig builds a registry from the [backends] config
// section.
func NewRegistryFromConfig(config *common.BackendsConfig, logger arbor.ILogger) (*Registry, error) {
	registry := NewRegistry(logger)

	for key, entry := range config.Entries {
		backend, err := newBackend(key, entry, logger)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", key, err)
		}
		registry.Register(key, backend)
	}

	return registry, nil
}

func newBackend(key string, entry common.BackendEntry, logger arbor.ILogger) (interfaces.Backend, error) {
	switch entry.Type {
	case "http":
		timeout := 30 * time.Second
		if entry.Timeout != "" {
			parsed, err := time.ParseDuration(entry.Timeout)
			if err != nil {
				return nil, fmt.Errorf("invalid timeout: %w", err)
			}
			timeout = parsed
		}
		return NewHTTPBackend(key, entry.BaseURL, timeout, logger), nil
	case "echo":
		return NewEchoBackend(key), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", entry.Type)
	}
}

// Register adds or replaces the backend for a key.
func (r *Registry) Register(key string, backend interfaces.Backend) {
	r.mu.Lock()
	r.backends[key] = backend
	r.mu.Unlock()

	r.logger.Info().
		Str("backend_key", key).
		Str("backend", backend.Name()).
		Msg("Backend registered")
}

// Lookup returns the backend for a key, or false when none is
// registered.
func (r *Registry) Lookup(key string) (interfaces.Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[key]
	return backend, ok
}

// Keys returns the registered backend keys, sorted for stable output.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.backends))
	for key := range r.backends {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
