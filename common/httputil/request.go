package httputil

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// UnknownIdentity is returned when no proxy header names the client.
const UnknownIdentity = "unknown"

// Header names consulted when resolving the client identity, in precedence order.
const (
	HeaderCDNClientIP   = "CF-Connecting-IP"
	HeaderForwardedFor  = "X-Forwarded-For"
	HeaderRealIP        = "X-Real-IP"
	HeaderUserAgent     = "User-Agent"
	HeaderAcceptLang    = "Accept-Language"
	HeaderAuthorization = "Authorization"
)

// ClientIdentity resolves the client address used as the key for blocking
// and rate limiting. Precedence:
//  1. CF-Connecting-IP (set by the CDN)
//  2. X-Forwarded-For (first entry is the original client)
//  3. X-Real-IP
//  4. "unknown"
//
// RemoteAddr is deliberately not consulted: behind the CDN it is always the
// edge node and would merge every client into one bucket.
//
// The result is never empty.
func ClientIdentity(r *http.Request) string {
	if cdn := strings.TrimSpace(r.Header.Get(HeaderCDNClientIP)); cdn != "" {
		return cdn
	}
	if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
		parts := strings.Split(xff, ",")
		if first := strings.TrimSpace(parts[0]); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get(HeaderRealIP)); xri != "" {
		return xri
	}
	return UnknownIdentity
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header. It returns "" when the header is absent or malformed.
func BearerToken(r *http.Request) string {
	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequestContext holds the client attributes the guard records for each request.
type RequestContext struct {
	Identity       string
	UserAgent      string
	AcceptLanguage string
	Method         string
	Path           string
}

type requestContextKey struct{}

// NewRequestContext creates a RequestContext from an HTTP request.
func NewRequestContext(r *http.Request) *RequestContext {
	return &RequestContext{
		Identity:       ClientIdentity(r),
		UserAgent:      r.Header.Get(HeaderUserAgent),
		AcceptLanguage: r.Header.Get(HeaderAcceptLang),
		Method:         r.Method,
		Path:           r.URL.Path,
	}
}

// WithRequestContext adds RequestContext to the context.
func WithRequestContext(ctx context.Context, reqCtx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, reqCtx)
}

// GetRequestContext retrieves RequestContext from the context.
// Returns nil if not present.
func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return rc
	}
	return nil
}

// ParseIntParam parses an integer query parameter with a default value.
// Returns defaultVal if the parameter is empty or invalid.
//
// Example:
//
//	limit := httputil.ParseIntParam(r.URL.Query().Get("limit"), 100)
func ParseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return defaultVal
}
