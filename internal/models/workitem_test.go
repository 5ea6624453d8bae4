package models

import (
	"testing"
)

func TestCategory_Backend(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryVisionFrame, "vision"},
		{CategoryVoiceASR, "voice"},
		{CategoryVoiceTTS, "voice"},
		{CategoryTextGenerate, "text"},
		{CategoryTextNLU, "text"},
		{Category("bare"), "bare"},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			if got := tt.category.Backend(); got != tt.want {
				t.Errorf("Backend() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCategory_Valid(t *testing.T) {
	for _, category := range Categories {
		if !category.Valid() {
			t.Errorf("category %s should be valid", category)
		}
	}

	for _, invalid := range []Category{"", "vision", "vision.unknown", "music.play"} {
		if invalid.Valid() {
			t.Errorf("category %s should be invalid", invalid)
		}
	}
}

func TestNewWorkItem_Defaults(t *testing.T) {
	item := NewWorkItem("work_1", CategoryVoiceASR, []byte(`{"audio":"..."}`), nil)

	if item.Priority != PriorityDefault {
		t.Errorf("Priority = %d, want %d", item.Priority, PriorityDefault)
	}
	if item.CreatedAt.IsZero() {
		t.Error("CreatedAt should be stamped at creation")
	}
}

func TestOutcome_MergeMeta(t *testing.T) {
	outcome := CompletedOutcome("work_1", nil)
	outcome.SetMeta("engine", "http:voice")

	outcome.MergeMeta(map[string]string{
		"correlation": "abc",
		"engine":      "should-not-overwrite",
	})

	if outcome.Meta["correlation"] != "abc" {
		t.Errorf("correlation = %q, want %q", outcome.Meta["correlation"], "abc")
	}
	if outcome.Meta["engine"] != "http:voice" {
		t.Errorf("backend meta was overwritten: engine = %q", outcome.Meta["engine"])
	}
}

func TestOutcome_FallbackRequired(t *testing.T) {
	outcome := FailedOutcome("work_1", "backend down")
	if outcome.FallbackRequired() {
		t.Error("plain failure should not require fallback")
	}

	outcome.SetMeta(MetaFallbackRequired, "true")
	if !outcome.FallbackRequired() {
		t.Error("flagged failure should require fallback")
	}
}
