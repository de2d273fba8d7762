package logging

import "log/slog"

// Common field names for consistent logging across the guard.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldSubjectID = "subject_id"
	FieldSessionID = "session_id"
	FieldIdentity  = "identity"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
	FieldEventID   = "event_id"
	FieldEventType = "event_type"
	FieldSeverity  = "severity"
	FieldLimiter   = "limiter_class"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// SubjectID returns a slog attribute for the authenticated subject.
func SubjectID(id string) slog.Attr {
	return slog.String(FieldSubjectID, id)
}

// SessionID returns a slog attribute for a session identifier.
func SessionID(id string) slog.Attr {
	return slog.String(FieldSessionID, id)
}

// Identity returns a slog attribute for a client identity.
// Callers pass the hashed form; raw addresses do not belong in logs.
func Identity(hashed string) slog.Attr {
	return slog.String(FieldIdentity, hashed)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for a security event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// EventType returns a slog attribute for a security event type.
func EventType(t string) slog.Attr {
	return slog.String(FieldEventType, t)
}

// Severity returns a slog attribute for a security event severity.
func Severity(s string) slog.Attr {
	return slog.String(FieldSeverity, s)
}

// LimiterClass returns a slog attribute for a rate limiter class.
func LimiterClass(class string) slog.Attr {
	return slog.String(FieldLimiter, class)
}
