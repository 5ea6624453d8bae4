package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/relay/internal/models"
)

// HTTPBackend forwards work items to an inference sidecar over HTTP.
// The sidecar receives the full work item as JSON on
// POST {base_url}/v1/process/{key} and answers with an Outcome.
type HTTPBackend struct {
	key     string
	baseURL string
	client  *http.Client
	logger  arbor.ILogger
}

// NewHTTPBackend creates a backend targeting the given sidecar base URL.
func NewHTTPBackend(key, baseURL string, timeout time.Duration, logger arbor.ILogger) *HTTPBackend {
	return &HTTPBackend{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Name identifies the backend in logs and outcome metadata.
func (b *HTTPBackend) Name() string {
	return fmt.Sprintf("http:%s", b.key)
}

// Process sends the work item to the sidecar and decodes the outcome.
// Transport errors and non-2xx responses are returned as errors so the
// circuit breaker counts them; a decoded Failed outcome is passed
// through as the backend's answer.
func (b *HTTPBackend) Process(ctx context.Context, item *models.WorkItem) (*models.Outcome, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode work item %s: %w", item.ID, err)
	}

	url := fmt.Sprintf("%s/v1/process/%s", b.baseURL, b.key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend %s unreachable: %w", b.key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("backend %s returned status %d: %s", b.key, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var outcome models.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return nil, fmt.Errorf("backend %s returned invalid outcome: %w", b.key, err)
	}

	if outcome.ID == "" {
		outcome.ID = item.ID
	}
	outcome.SetMeta("engine", b.Name())

	b.logger.Debug().
		Str("item_id", item.ID).
		Str("backend", b.Name()).
		Dur("duration", time.Since(start)).
		Str("status", string(outcome.Status)).
		Msg("Backend call completed")

	return &outcome, nil
}
