package requestguard

import (
	"fmt"
	"math"
	"net/http"
	"time"
)

// Code is the machine-readable category of a rejection.
type Code string

const (
	CodeMethodNotAllowed Code = "method_not_allowed"
	CodeIPBlocked        Code = "ip_blocked"
	CodeRateLimited      Code = "rate_limited"
	CodeUnauthorized     Code = "unauthorized"
	CodeMFARequired      Code = "mfa_required"
	CodeForbidden        Code = "forbidden"
	CodeCSRF             Code = "csrf_violation"
	CodeBodyTooLarge     Code = "body_too_large"
	CodeInvalidInput     Code = "invalid_input"
	CodeServerError      Code = "server_error"
)

// Rejection is a stage failure. Message is safe to show to clients.
type Rejection struct {
	Status     int
	Code       Code
	Message    string
	RetryAfter time.Duration
	Data       map[string]any
	// Stage names the pipeline stage that rejected; internal only.
	Stage string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %d %s", r.Stage, r.Status, r.Code)
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (r *Rejection) RetryAfterSeconds() int {
	s := int(math.Ceil(r.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

func (g *Guard) reject(stage string, status int, code Code) *Rejection {
	return &Rejection{
		Stage:   stage,
		Status:  status,
		Code:    code,
		Message: g.messages.Text(code),
	}
}

// statusCodes maps codes to their HTTP status for callers that reject by code.
var statusCodes = map[Code]int{
	CodeMethodNotAllowed: http.StatusMethodNotAllowed,
	CodeIPBlocked:        http.StatusTooManyRequests,
	CodeRateLimited:      http.StatusTooManyRequests,
	CodeUnauthorized:     http.StatusUnauthorized,
	CodeMFARequired:      http.StatusForbidden,
	CodeForbidden:        http.StatusForbidden,
	CodeCSRF:             http.StatusForbidden,
	CodeBodyTooLarge:     http.StatusRequestEntityTooLarge,
	CodeInvalidInput:     http.StatusBadRequest,
	CodeServerError:      http.StatusInternalServerError,
}

// Reject builds a rejection for code with the localized message. Handlers
// use it to answer in the same shape as the pipeline.
func (g *Guard) Reject(code Code) *Rejection {
	status, ok := statusCodes[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return g.reject("handler", status, code)
}
