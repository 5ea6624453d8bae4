package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Category identifies the kind of offloaded work. The value is
// dot-separated: the segment before the first "." selects the backend,
// the remainder names the operation within it.
type Category string

const (
	CategoryVisionFrame  Category = "vision.frame"
	CategoryVoiceASR     Category = "voice.asr"
	CategoryVoiceTTS     Category = "voice.tts"
	CategoryTextGenerate Category = "text.generate"
	CategoryTextNLU      Category = "text.nlu"
)

// Categories lists every category accepted at the admission boundary.
var Categories = []Category{
	CategoryVisionFrame,
	CategoryVoiceASR,
	CategoryVoiceTTS,
	CategoryTextGenerate,
	CategoryTextNLU,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Backend returns the backend key for this category (the segment before
// the first dot). "voice.asr" routes to the "voice" backend.
func (c Category) Backend() string {
	s := string(c)
	if idx := strings.Index(s, "."); idx >= 0 {
		return s[:idx]
	}
	return s
}

func (c Category) String() string {
	return string(c)
}

// Priority bounds. Lower numbers are more urgent.
const (
	PriorityHighest = 1
	PriorityDefault = 5
	PriorityLowest  = 10
)

// WorkItem is one unit of offloaded work submitted by the edge device.
// Treat it as immutable once admitted - the queue and scheduler pass it
// through without modifying it.
type WorkItem struct {
	ID        string            `json:"id"`
	Category  Category          `json:"category"`
	Payload   json.RawMessage   `json:"payload,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Priority  int               `json:"priority"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewWorkItem creates a work item with the default priority and an
// admission timestamp. The caller supplies a unique ID.
func NewWorkItem(id string, category Category, payload json.RawMessage, meta map[string]string) *WorkItem {
	return &WorkItem{
		ID:        id,
		Category:  category,
		Payload:   payload,
		Meta:      meta,
		Priority:  PriorityDefault,
		CreatedAt: time.Now(),
	}
}
