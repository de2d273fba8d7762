// Package threat classifies and neutralises hostile input: SQL injection,
// markup injection, shell metacharacters and directory traversal.
package threat

import "regexp"

// Label names a family of hostile input.
type Label string

const (
	LabelSQLInjection     Label = "sql_injection"
	LabelXSS              Label = "xss"
	LabelCommandInjection Label = "command_injection"
	LabelPathTraversal    Label = "path_traversal"
)

type family struct {
	label    Label
	patterns []*regexp.Regexp
}

var (
	sqlInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\bOR\b|\bAND\b).*?=`),
		regexp.MustCompile(`(?i)UNION.*?SELECT`),
		regexp.MustCompile(`(?i)DROP.*?TABLE`),
		regexp.MustCompile(`(?i)INSERT.*?INTO`),
		regexp.MustCompile(`(?i)DELETE.*?FROM`),
		regexp.MustCompile(`(?i)UPDATE.*?SET`),
		regexp.MustCompile(`(?i)EXEC(\s|\+)+(s|x)p\w+`),
		regexp.MustCompile(`'.*?--`),
		regexp.MustCompile(`'.*?;.*?'`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)<iframe`),
		regexp.MustCompile(`(?i)<embed`),
		regexp.MustCompile(`(?i)<object`),
	}

	commandInjectionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\|\s*\w+`),
		regexp.MustCompile(`;\s*\w+`),
		regexp.MustCompile("`.*?`"),
		regexp.MustCompile(`\$\(.*?\)`),
	}

	pathTraversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.\./`),
		regexp.MustCompile(`\.\.\\`),
		regexp.MustCompile(`(?i)%2e%2e`),
	}
)

// Families selects which pattern families a Detector runs.
type Families struct {
	SQLInjection     bool `mapstructure:"sql_injection"`
	XSS              bool `mapstructure:"xss"`
	CommandInjection bool `mapstructure:"command_injection"`
	PathTraversal    bool `mapstructure:"path_traversal"`
}

// AllFamilies enables every family.
func AllFamilies() Families {
	return Families{SQLInjection: true, XSS: true, CommandInjection: true, PathTraversal: true}
}

// Detector is a stateless pattern classifier. It is safe for concurrent use.
//
// Detection is intentionally permissive: free text such as "AND x = y"
// is flagged. It is not a parser.
type Detector struct {
	families []family
}

// NewDetector builds a Detector running the selected families in the fixed
// order SQL injection, XSS, command injection, path traversal.
func NewDetector(enabled Families) *Detector {
	d := &Detector{}
	if enabled.SQLInjection {
		d.families = append(d.families, family{LabelSQLInjection, sqlInjectionPatterns})
	}
	if enabled.XSS {
		d.families = append(d.families, family{LabelXSS, xssPatterns})
	}
	if enabled.CommandInjection {
		d.families = append(d.families, family{LabelCommandInjection, commandInjectionPatterns})
	}
	if enabled.PathTraversal {
		d.families = append(d.families, family{LabelPathTraversal, pathTraversalPatterns})
	}
	return d
}

// Detect returns one label per family that matches input, in family order.
// Each family stops at its first matching pattern. The empty string yields nil.
func (d *Detector) Detect(input string) []Label {
	if input == "" {
		return nil
	}

	var labels []Label
	for _, f := range d.families {
		for _, p := range f.patterns {
			if p.MatchString(input) {
				labels = append(labels, f.label)
				break
			}
		}
	}
	return labels
}

// LabelStrings converts labels for logging and event details.
func LabelStrings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
