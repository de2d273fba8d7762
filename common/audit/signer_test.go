package audit

import (
	"testing"
	"time"
)

func TestNewEventSigner(t *testing.T) {
	signer := NewEventSigner("test-secret-key")
	if signer == nil {
		t.Fatal("expected non-nil signer")
	}
	if string(signer.secretKey) != "test-secret-key" {
		t.Errorf("unexpected secret key %q", string(signer.secretKey))
	}
}

func TestEventSigner_Sign(t *testing.T) {
	signer := NewEventSigner("test-secret")
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	data := []byte(`{"type":"xss_attempt"}`)

	signature := signer.Sign("event-123", timestamp, "a1b2c3d4e5f60718", data)
	if signature == "" {
		t.Fatal("expected non-empty signature")
	}
	if signature != signer.Sign("event-123", timestamp, "a1b2c3d4e5f60718", data) {
		t.Error("expected deterministic signatures for same input")
	}
	if signature == signer.Sign("event-124", timestamp, "a1b2c3d4e5f60718", data) {
		t.Error("expected different signatures for different event IDs")
	}
}

func TestEventSigner_Verify(t *testing.T) {
	signer := NewEventSigner("test-secret")
	timestamp := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	data := []byte(`{"severity":"high"}`)
	signature := signer.Sign("event-1", timestamp, "abc", data)

	tests := []struct {
		name     string
		eventID  string
		identity string
		data     []byte
		sig      string
		want     bool
	}{
		{"valid", "event-1", "abc", data, signature, true},
		{"tampered data", "event-1", "abc", []byte(`{"severity":"low"}`), signature, false},
		{"tampered identity", "event-1", "abd", data, signature, false},
		{"garbage signature", "event-1", "abc", data, "deadbeef", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := signer.Verify(tt.eventID, timestamp, tt.identity, tt.data, tt.sig); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}

	other := NewEventSigner("other-secret")
	if other.Verify("event-1", timestamp, "abc", data, signature) {
		t.Error("expected verification to fail with a different key")
	}
}

func TestIdentityHasher(t *testing.T) {
	h := NewIdentityHasher("salt-1")

	first := h.Hash("203.0.113.7")
	if len(first) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", first)
	}
	if first != h.Hash("203.0.113.7") {
		t.Error("expected stable hash for the same identity")
	}
	if first == h.Hash("203.0.113.8") {
		t.Error("expected different hashes for different identities")
	}
	if first == NewIdentityHasher("salt-2").Hash("203.0.113.7") {
		t.Error("expected salt to change the hash")
	}
	if first == "203.0.113.7" {
		t.Error("hash must not equal the raw identity")
	}
}
