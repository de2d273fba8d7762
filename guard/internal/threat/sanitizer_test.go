package threat

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
)

func TestSanitizer_Sanitize(t *testing.T) {
	s := NewSanitizer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain text", input: "hello world", expected: "hello world"},
		{name: "persian text untouched", input: "  کمک فوری  ", expected: "کمک فوری"},
		{name: "script removed with body", input: "hi<script>alert(1)</script>there", expected: "hithere"},
		{name: "tags stripped", input: "<b>bold</b> <i>text</i>", expected: "bold text"},
		{name: "special characters escaped", input: `a & b "c" 'd'`, expected: "a &amp; b &quot;c&quot; &#x27;d&#x27;"},
		{name: "slash and backtick escaped", input: "a/b`c", expected: "a&#x2F;b&#96;c"},
		{name: "encoded script removed", input: "&lt;script&gt;alert(1)&lt;/script&gt;ok", expected: "ok"},
		{name: "whitespace trimmed", input: "\n\t value \n", expected: "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.Sanitize(tt.input))
		})
	}
}

func TestSanitizer_Idempotent(t *testing.T) {
	s := NewSanitizer()

	inputs := []string{
		"",
		"plain",
		"a & b",
		"&amp;",
		"&amp;amp;",
		"&lt;b&gt;",
		"<",
		">",
		"5 < 6 && 7 > 3",
		`"quoted" 'single' /slash\ back` + "`tick`",
		"<script>alert(1)</script>",
		"&lt;scr&lt;script&gt;&lt;/script&gt;ipt&gt;alert(1)&lt;/script&gt;",
		"<a href=\"javascript:alert(1)\">click</a>",
		"<img src=x onerror=alert(1)>",
		"&notanentity; &#x27; &#39;",
		"  padded  ",
		"line\r\nbreak",
		"سلام <b>دنیا</b>",
	}

	gofakeit.Seed(42)
	for i := 0; i < 50; i++ {
		inputs = append(inputs, gofakeit.HackerPhrase(), gofakeit.Sentence(8))
	}

	for _, in := range inputs {
		once := s.Sanitize(in)
		assert.Equal(t, once, s.Sanitize(once), "sanitize not idempotent for %q", in)
	}
}
