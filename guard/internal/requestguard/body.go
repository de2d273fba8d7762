package requestguard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	ErrBodyTooLarge  = errors.New("request body too large")
	ErrBodyMalformed = errors.New("request body is not a JSON object")
)

// BodyError is the failed side of a BodyResult.
type BodyError struct {
	Status int
	Err    error
}

func (e *BodyError) Error() string { return e.Err.Error() }
func (e *BodyError) Unwrap() error { return e.Err }

// BodyResult is the parsed request body or the reason it could not be parsed.
// An empty body parses to no fields.
type BodyResult struct {
	Raw    []byte
	Fields map[string]any
	Err    *BodyError
}

// OK reports whether the body parsed.
func (b BodyResult) OK() bool { return b.Err == nil }

// String returns a top-level string field, or "" when absent or not a string.
func (b BodyResult) String(field string) string {
	s, _ := b.Fields[field].(string)
	return s
}

// Decode unmarshals the raw body into v.
func (b BodyResult) Decode(v any) error {
	if len(b.Raw) == 0 {
		return ErrBodyMalformed
	}
	return json.Unmarshal(b.Raw, v)
}

// ReadBody reads at most limit bytes and parses them as a JSON object.
// r.Body is replaced so the handler can read it again.
func ReadBody(r *http.Request, limit int64) BodyResult {
	if r.Body == nil || r.Body == http.NoBody {
		return BodyResult{Fields: map[string]any{}}
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return BodyResult{Err: &BodyError{Status: http.StatusBadRequest, Err: fmt.Errorf("read body: %w", err)}}
	}
	if int64(len(raw)) > limit {
		return BodyResult{Err: &BodyError{Status: http.StatusRequestEntityTooLarge, Err: ErrBodyTooLarge}}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return BodyResult{Raw: raw, Fields: map[string]any{}}
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return BodyResult{Raw: raw, Err: &BodyError{Status: http.StatusBadRequest, Err: ErrBodyMalformed}}
	}
	return BodyResult{Raw: raw, Fields: fields}
}
