// Package secevent records security events with hashed client identities and
// provides the query, analysis and reporting views over them.
package secevent

import (
	"fmt"
	"time"
)

// Severity grades a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity from lowest to highest.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Elevated reports whether s counts toward suspicious-pattern analysis.
func (s Severity) Elevated() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// EventType names what happened.
type EventType string

const (
	TypeAuthSuccess                EventType = "auth_success"
	TypeAuthFailure                EventType = "auth_failure"
	TypeRateLimitExceeded          EventType = "rate_limit_exceeded"
	TypeInvalidToken               EventType = "invalid_token"
	TypeSessionHijackAttempt       EventType = "session_hijack_attempt"
	TypeSQLInjectionAttempt        EventType = "sql_injection_attempt"
	TypeXSSAttempt                 EventType = "xss_attempt"
	TypeCSRFViolation              EventType = "csrf_violation"
	TypeSuspiciousInput            EventType = "suspicious_input"
	TypeIPBlocked                  EventType = "ip_blocked"
	TypeMFAFailure                 EventType = "mfa_failure"
	TypePasswordChange             EventType = "password_change"
	TypeAccountLocked              EventType = "account_locked"
	TypePrivilegeEscalationAttempt EventType = "privilege_escalation_attempt"
	TypeDataBreachAttempt          EventType = "data_breach_attempt"
	TypePolicyViolation            EventType = "policy_violation"
)

// Event is a stored security event. The raw client identity never appears
// here, only its salted hash.
type Event struct {
	ID             string         `json:"id"`
	Timestamp      time.Time      `json:"timestamp"`
	Type           EventType      `json:"event_type"`
	Severity       Severity       `json:"severity"`
	HashedIdentity string         `json:"hashed_identity"`
	SubjectID      string         `json:"subject_id,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Endpoint       string         `json:"endpoint,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Signature      string         `json:"signature"`
}

// Entry is the input to Log.Record.
type Entry struct {
	Type      EventType
	Severity  Severity
	Identity  string
	SubjectID string
	UserAgent string
	Endpoint  string
	Details   map[string]any
}

// Filter selects events in Log.Query. Zero fields match everything.
// Identity is a raw client identity and is hashed before matching.
type Filter struct {
	Type      EventType
	Severity  Severity
	Identity  string
	SubjectID string
	Start     time.Time
	End       time.Time
	// Limit keeps only the most recent Limit matches.
	Limit int
}

func (f Filter) match(ev Event, hashedIdentity string) bool {
	if f.Type != "" && ev.Type != f.Type {
		return false
	}
	if f.Severity != "" && ev.Severity != f.Severity {
		return false
	}
	if hashedIdentity != "" && ev.HashedIdentity != hashedIdentity {
		return false
	}
	if f.SubjectID != "" && ev.SubjectID != f.SubjectID {
		return false
	}
	if !f.Start.IsZero() && ev.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && ev.Timestamp.After(f.End) {
		return false
	}
	return true
}

// Period is a reporting window.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// ParsePeriod accepts day, week or month. An empty string means day.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case "", PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Duration returns the length of the period. A month is 30 days.
func (p Period) Duration() time.Duration {
	switch p {
	case PeriodWeek:
		return 7 * 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// IdentityCount is a hashed identity with its elevated-event count.
type IdentityCount struct {
	HashedIdentity string `json:"hashed_identity"`
	Count          int    `json:"count"`
}

// SubjectCount is a subject with its elevated-event count.
type SubjectCount struct {
	SubjectID string `json:"subject_id"`
	Count     int    `json:"count"`
}

// TypeCount is an event type with its frequency.
type TypeCount struct {
	Type  EventType `json:"type"`
	Count int       `json:"count"`
}

// Analysis is the suspicious-pattern view over the last 24 hours.
type Analysis struct {
	Since                time.Time       `json:"since"`
	SuspiciousIdentities []IdentityCount `json:"suspicious_identities"`
	SuspiciousSubjects   []SubjectCount  `json:"suspicious_subjects"`
	CommonEventTypes     []TypeCount     `json:"common_event_types"`
}

// Report summarises a period.
type Report struct {
	Period             Period           `json:"period"`
	Start              time.Time        `json:"start"`
	End                time.Time        `json:"end"`
	TotalEvents        int              `json:"total_events"`
	BySeverity         map[Severity]int `json:"by_severity"`
	TopEventTypes      []TypeCount      `json:"top_event_types"`
	AffectedSubjects   int              `json:"affected_subjects"`
	AffectedIdentities int              `json:"affected_identities"`
}
