package validate

import (
	"regexp"
	"strings"
)

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`\d`)
	specialPattern = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	weakPasswords = []string{"password", "12345678", "qwerty", "admin", "letmein"}
	weakFragments = []string{"123", "abc", "password", "admin"}
)

// PasswordPolicy describes the complexity rules a new password must meet.
type PasswordPolicy struct {
	MinLength           int  `mapstructure:"min_length"`
	RequireUppercase    bool `mapstructure:"require_uppercase"`
	RequireLowercase    bool `mapstructure:"require_lowercase"`
	RequireNumbers      bool `mapstructure:"require_numbers"`
	RequireSpecialChars bool `mapstructure:"require_special_chars"`
}

// DefaultPasswordPolicy requires 12 characters from all four classes.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           12,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
	}
}

// Password checks a candidate password against the policy. Passwords are
// never sanitized or scanned for threats; they are only ever hashed.
func (v *Validator) Password(password string) Result {
	if password == "" {
		return Result{Valid: false, Errors: []string{"password is required"}}
	}

	var errs []string
	p := v.policy

	if len(password) < p.MinLength {
		errs = append(errs, "password is too short")
	}
	if p.RequireUppercase && !upperPattern.MatchString(password) {
		errs = append(errs, "password must contain an uppercase letter")
	}
	if p.RequireLowercase && !lowerPattern.MatchString(password) {
		errs = append(errs, "password must contain a lowercase letter")
	}
	if p.RequireNumbers && !digitPattern.MatchString(password) {
		errs = append(errs, "password must contain a digit")
	}
	if p.RequireSpecialChars && !specialPattern.MatchString(password) {
		errs = append(errs, "password must contain a special character")
	}

	lower := strings.ToLower(password)
	for _, weak := range weakPasswords {
		if strings.Contains(lower, weak) {
			errs = append(errs, "password is too weak")
			break
		}
	}

	return Result{Valid: len(errs) == 0, Sanitized: password, Errors: errs}
}

// Strength scores a password from 0 to 4 with suggestions for improving it.
func Strength(password string) (int, []string) {
	score := 0
	var feedback []string

	checks := []struct {
		ok   bool
		hint string
	}{
		{len(password) >= 12, "use at least 12 characters"},
		{upperPattern.MatchString(password), "add uppercase letters"},
		{lowerPattern.MatchString(password), "add lowercase letters"},
		{digitPattern.MatchString(password), "add digits"},
		{specialPattern.MatchString(password), "add special characters"},
	}
	for _, c := range checks {
		if c.ok {
			score++
		} else {
			feedback = append(feedback, c.hint)
		}
	}

	lower := strings.ToLower(password)
	for _, frag := range weakFragments {
		if strings.Contains(lower, frag) {
			score = max(0, score-2)
			feedback = append(feedback, "avoid common patterns")
			break
		}
	}

	return min(score, 4), feedback
}

// MaskKind selects how Mask redacts a value.
type MaskKind string

const (
	MaskEmail MaskKind = "email"
	MaskPhone MaskKind = "phone"
	MaskCard  MaskKind = "card"
)

// Mask redacts a value for display.
func Mask(value string, kind MaskKind) string {
	switch kind {
	case MaskEmail:
		user, domain, ok := strings.Cut(value, "@")
		if !ok {
			return "***"
		}
		if len(user) > 2 {
			user = user[:2]
		}
		return user + "***@" + domain
	case MaskPhone:
		return "***" + lastN(value, 4)
	case MaskCard:
		return "****-****-****-" + lastN(value, 4)
	default:
		return "***"
	}
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
