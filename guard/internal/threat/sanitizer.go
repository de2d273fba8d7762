package threat

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var scriptBlock = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
	`\`, "&#x5C;",
	"`", "&#96;",
)

// Sanitizer strips every tag from its input and escapes what remains.
//
// The output of Sanitize is a fixed point: Sanitize(Sanitize(s)) ==
// Sanitize(s). Entities left by the tag stripper are decoded once before the
// final escape so they are never double-escaped.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer returns a Sanitizer that allows zero tags.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes markup and script blocks, HTML-escapes special
// characters and trims surrounding whitespace.
func (s *Sanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}

	text := html.UnescapeString(s.policy.Sanitize(input))

	// Encoded script blocks only become visible after decoding, and removing
	// one can splice a new one together, so strip until nothing changes.
	for {
		stripped := scriptBlock.ReplaceAllString(text, "")
		if stripped == text {
			break
		}
		text = stripped
	}

	return strings.TrimSpace(escaper.Replace(text))
}
