package models

import "encoding/json"

// OutcomeStatus is the terminal state of one processing attempt.
type OutcomeStatus string

const (
	StatusCompleted OutcomeStatus = "completed"
	StatusFailed    OutcomeStatus = "failed"
)

// MetaFallbackRequired marks an outcome whose item should be processed
// locally by the producer because the offload path is unhealthy.
const MetaFallbackRequired = "fallbackRequired"

// Outcome is produced exactly once per accepted work item.
type Outcome struct {
	ID               string            `json:"id"`
	Status           OutcomeStatus     `json:"status"`
	Result           json.RawMessage   `json:"result,omitempty"`
	Error            string            `json:"error,omitempty"`
	ProcessingTimeMs int64             `json:"processing_time_ms"`
	Meta             map[string]string `json:"meta,omitempty"`
}

// CompletedOutcome builds a successful outcome for the given item ID.
func CompletedOutcome(id string, result json.RawMessage) *Outcome {
	return &Outcome{
		ID:     id,
		Status: StatusCompleted,
		Result: result,
	}
}

// FailedOutcome builds a failed outcome with a human-readable reason.
func FailedOutcome(id string, reason string) *Outcome {
	return &Outcome{
		ID:     id,
		Status: StatusFailed,
		Error:  reason,
	}
}

// Completed reports whether the outcome is a success.
func (o *Outcome) Completed() bool {
	return o.Status == StatusCompleted
}

// MergeMeta copies annotations from the work item into the outcome
// without overwriting keys the backend already set.
func (o *Outcome) MergeMeta(meta map[string]string) {
	if len(meta) == 0 {
		return
	}
	if o.Meta == nil {
		o.Meta = make(map[string]string, len(meta))
	}
	for k, v := range meta {
		if _, exists := o.Meta[k]; !exists {
			o.Meta[k] = v
		}
	}
}

// SetMeta sets a single annotation, allocating the map on first use.
func (o *Outcome) SetMeta(key, value string) {
	if o.Meta == nil {
		o.Meta = make(map[string]string)
	}
	o.Meta[key] = value
}

// FallbackRequired reports whether the producer should process the item
// locally instead.
func (o *Outcome) FallbackRequired() bool {
	return o.Meta[MetaFallbackRequired] == "true"
}
