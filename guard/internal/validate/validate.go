// Package validate checks user-supplied fields against format rules and
// reports detected threats alongside a sanitized value.
package validate

import (
	"net"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rahnavardnetwork/sos/guard/internal/threat"
)

// DefaultMaxInputLength caps free-text fields.
const DefaultMaxInputLength = 10000

const maxEmailLength = 255

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	phonePattern    = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	phoneSeparators = strings.NewReplacer(" ", "", "-", "", "\t", "")
)

// Result is the outcome of validating a single value.
type Result struct {
	Valid     bool           `json:"valid"`
	Sanitized string         `json:"sanitized,omitempty"`
	Errors    []string       `json:"errors,omitempty"`
	Threats   []threat.Label `json:"threats,omitempty"`
}

func newResult(sanitized string, errs []string, threats []threat.Label) Result {
	return Result{
		Valid:     len(errs) == 0 && len(threats) == 0,
		Sanitized: sanitized,
		Errors:    errs,
		Threats:   threats,
	}
}

// Validator runs format rules and threat detection over individual fields.
type Validator struct {
	detector  *threat.Detector
	sanitizer *threat.Sanitizer
	policy    PasswordPolicy
	maxInput  int
}

// New creates a Validator. maxInput <= 0 selects DefaultMaxInputLength.
func New(detector *threat.Detector, sanitizer *threat.Sanitizer, policy PasswordPolicy, maxInput int) *Validator {
	if maxInput <= 0 {
		maxInput = DefaultMaxInputLength
	}
	return &Validator{detector: detector, sanitizer: sanitizer, policy: policy, maxInput: maxInput}
}

// Email validates an address and lowercases its domain.
func (v *Validator) Email(email string) Result {
	threats := v.detector.Detect(email)
	var errs []string
	sanitized := email

	switch {
	case email == "":
		errs = append(errs, "email is required")
	case len(email) > maxEmailLength:
		errs = append(errs, "email is too long")
	default:
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || addr.Name != "" {
			errs = append(errs, "email format is invalid")
			break
		}
		at := strings.LastIndex(email, "@")
		sanitized = email[:at] + strings.ToLower(email[at:])
	}

	return newResult(sanitized, errs, threats)
}

// Username validates a rep login name.
func (v *Validator) Username(username string) Result {
	threats := v.detector.Detect(username)
	var errs []string
	n := utf8.RuneCountInString(username)

	switch {
	case username == "":
		errs = append(errs, "username is required")
	case n < 3:
		errs = append(errs, "username must be at least 3 characters")
	case n > 50:
		errs = append(errs, "username is too long")
	case !usernamePattern.MatchString(username):
		errs = append(errs, "username may only contain letters, digits, _ . -")
	}

	return newResult(v.sanitizer.Sanitize(username), errs, threats)
}

// Phone validates a phone number after removing spaces and dashes.
func (v *Validator) Phone(phone string) Result {
	threats := v.detector.Detect(phone)
	clean := phoneSeparators.Replace(phone)
	var errs []string

	switch {
	case clean == "":
		errs = append(errs, "phone number is required")
	case !phonePattern.MatchString(clean):
		errs = append(errs, "phone number format is invalid")
	}

	return newResult(clean, errs, threats)
}

// URL validates an absolute http(s) URL.
func (v *Validator) URL(raw string) Result {
	threats := v.detector.Detect(raw)
	var errs []string

	if raw == "" {
		errs = append(errs, "URL is required")
	} else if u, err := url.ParseRequestURI(raw); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, "URL format is invalid")
	}

	return newResult(v.sanitizer.Sanitize(raw), errs, threats)
}

// Input validates a generic text field. maxLen <= 0 uses the validator's cap.
func (v *Validator) Input(value, field string, required bool, maxLen int) Result {
	if value == "" {
		if required {
			return newResult("", []string{field + " is required"}, nil)
		}
		return newResult("", nil, nil)
	}

	if maxLen <= 0 {
		maxLen = v.maxInput
	}

	var errs []string
	if utf8.RuneCountInString(value) > maxLen {
		errs = append(errs, field+" is too long")
	}

	return newResult(v.sanitizer.Sanitize(value), errs, v.detector.Detect(value))
}

// IsValidIP reports whether s is a literal IPv4 or IPv6 address.
func IsValidIP(s string) bool {
	return net.ParseIP(s) != nil
}
