package logging

import (
	"errors"
	"log/slog"
	"testing"
)

func TestFieldHelpers(t *testing.T) {
	tests := []struct {
		name  string
		attr  slog.Attr
		key   string
		value string
	}{
		{"service", Service("guard"), FieldService, "guard"},
		{"subject", SubjectID("rep-1"), FieldSubjectID, "rep-1"},
		{"session", SessionID("sess-1"), FieldSessionID, "sess-1"},
		{"identity", Identity("a1b2c3"), FieldIdentity, "a1b2c3"},
		{"method", Method("POST"), FieldMethod, "POST"},
		{"path", Path("/api/rep/login"), FieldPath, "/api/rep/login"},
		{"error", Error(errors.New("boom")), FieldError, "boom"},
		{"event id", EventID("evt-1"), FieldEventID, "evt-1"},
		{"event type", EventType("xss_attempt"), FieldEventType, "xss_attempt"},
		{"severity", Severity("critical"), FieldSeverity, "critical"},
		{"limiter", LimiterClass("auth"), FieldLimiter, "auth"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, tt.attr.Key)
			}
			if tt.attr.Value.String() != tt.value {
				t.Errorf("expected value %q, got %q", tt.value, tt.attr.Value.String())
			}
		})
	}
}

func TestNumericFields(t *testing.T) {
	if got := Status(429).Value.Int64(); got != 429 {
		t.Errorf("expected 429, got %d", got)
	}
	if got := Duration(15).Value.Int64(); got != 15 {
		t.Errorf("expected 15, got %d", got)
	}
}
