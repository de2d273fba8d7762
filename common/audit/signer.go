// Package audit provides the primitives that keep the security event trail
// private and tamper-evident: salted identity hashing and HMAC signatures.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// hashedIdentityLen is the number of hex characters kept from the digest.
const hashedIdentityLen = 16

// EventSigner signs security events with an HMAC-SHA256 key.
type EventSigner struct {
	secretKey []byte
}

func NewEventSigner(secretKey string) *EventSigner {
	return &EventSigner{
		secretKey: []byte(secretKey),
	}
}

func (s *EventSigner) Sign(eventID string, timestamp time.Time, hashedIdentity string, data []byte) string {
	payload := eventID + timestamp.UTC().Format(time.RFC3339Nano) + hashedIdentity + string(data)
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *EventSigner) Verify(eventID string, timestamp time.Time, hashedIdentity string, data []byte, signature string) bool {
	expected := s.Sign(eventID, timestamp, hashedIdentity, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// IdentityHasher turns client identities into irreversible, salted tokens
// that can still be grouped for analysis.
type IdentityHasher struct {
	salt string
}

func NewIdentityHasher(salt string) *IdentityHasher {
	return &IdentityHasher{salt: salt}
}

// Hash returns the first 16 hex characters of SHA-256(identity || salt).
func (h *IdentityHasher) Hash(identity string) string {
	sum := sha256.Sum256([]byte(identity + h.salt))
	return hex.EncodeToString(sum[:])[:hashedIdentityLen]
}
