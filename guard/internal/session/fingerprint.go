package session

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/rahnavardnetwork/sos/common/httputil"
)

// Fingerprint hashes the request context a session is bound to.
func Fingerprint(identity, userAgent, acceptLanguage string) string {
	if userAgent == "" {
		userAgent = httputil.UnknownIdentity
	}
	sum := sha256.Sum256([]byte(identity + "|" + userAgent + "|" + acceptLanguage))
	return hex.EncodeToString(sum[:])
}

// RequestFingerprint computes the fingerprint of r.
func RequestFingerprint(r *http.Request) string {
	return Fingerprint(httputil.ClientIdentity(r), r.UserAgent(), r.Header.Get(httputil.HeaderAcceptLang))
}

// ValidateFingerprint requires an exact match.
func ValidateFingerprint(stored, current string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(current)) == 1
}
