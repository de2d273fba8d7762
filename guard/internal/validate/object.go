package validate

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/rahnavardnetwork/sos/guard/internal/threat"
)

// ObjectResult is the outcome of validating a decoded JSON object.
type ObjectResult struct {
	Valid     bool              `json:"valid"`
	Sanitized map[string]any    `json:"sanitized,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
	Threats   []threat.Label    `json:"threats,omitempty"`
	Fields    map[string]Result `json:"-"`
}

// Schema wraps a compiled JSON schema used to validate request bodies.
type Schema struct {
	schema *gojsonschema.Schema
}

// CompileSchema compiles a JSON schema document.
func CompileSchema(doc string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompileSchema is like CompileSchema but panics on error.
func MustCompileSchema(doc string) *Schema {
	s, err := CompileSchema(doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Object validates obj against the schema, then runs Input over every
// top-level string field. Non-string values are passed through unchanged.
func (v *Validator) Object(obj map[string]any, schema *Schema) ObjectResult {
	res := ObjectResult{
		Sanitized: make(map[string]any, len(obj)),
		Fields:    make(map[string]Result),
	}

	if schema != nil {
		out, err := schema.schema.Validate(gojsonschema.NewGoLoader(obj))
		if err != nil {
			res.Errors = append(res.Errors, "body could not be validated")
			return res
		}
		for _, e := range out.Errors() {
			res.Errors = append(res.Errors, e.String())
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s, ok := obj[k].(string)
		if !ok {
			res.Sanitized[k] = obj[k]
			continue
		}
		fr := v.Input(s, k, false, 0)
		res.Fields[k] = fr
		res.Sanitized[k] = fr.Sanitized
		res.Errors = append(res.Errors, fr.Errors...)
		res.Threats = append(res.Threats, fr.Threats...)
	}

	res.Valid = len(res.Errors) == 0 && len(res.Threats) == 0
	return res
}
