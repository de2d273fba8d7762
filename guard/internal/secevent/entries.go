package secevent

const maxLoggedInput = 200

// Common entries. Identity is always the raw client identity; Record hashes it.

func AuthSuccess(identity, subjectID, userAgent string) Entry {
	return Entry{
		Type:      TypeAuthSuccess,
		Severity:  SeverityLow,
		Identity:  identity,
		SubjectID: subjectID,
		UserAgent: userAgent,
		Details:   map[string]any{"success": true},
	}
}

func AuthFailure(identity, username, userAgent, reason string) Entry {
	return Entry{
		Type:      TypeAuthFailure,
		Severity:  SeverityMedium,
		Identity:  identity,
		UserAgent: userAgent,
		Details:   map[string]any{"username": truncate(username), "reason": reason},
	}
}

func RateLimitExceeded(identity, endpoint, class string) Entry {
	return Entry{
		Type:     TypeRateLimitExceeded,
		Severity: SeverityMedium,
		Identity: identity,
		Endpoint: endpoint,
		Details:  map[string]any{"endpoint": endpoint, "class": class},
	}
}

func SQLInjectionAttempt(identity, input, endpoint string) Entry {
	return Entry{
		Type:     TypeSQLInjectionAttempt,
		Severity: SeverityCritical,
		Identity: identity,
		Endpoint: endpoint,
		Details:  map[string]any{"input": truncate(input)},
	}
}

func XSSAttempt(identity, input, endpoint string) Entry {
	return Entry{
		Type:     TypeXSSAttempt,
		Severity: SeverityHigh,
		Identity: identity,
		Endpoint: endpoint,
		Details:  map[string]any{"input": truncate(input)},
	}
}

func CSRFViolation(identity, subjectID, endpoint, reason string) Entry {
	return Entry{
		Type:      TypeCSRFViolation,
		Severity:  SeverityHigh,
		Identity:  identity,
		SubjectID: subjectID,
		Endpoint:  endpoint,
		Details:   map[string]any{"endpoint": endpoint, "reason": reason},
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxLoggedInput {
		return s
	}
	return string(r[:maxLoggedInput])
}
