package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_Password(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{name: "strong", password: "Tr33-Hou$e-Lamp", valid: true},
		{name: "empty", password: "", valid: false},
		{name: "too short", password: "Aa1!aa", valid: false},
		{name: "no uppercase", password: "tr33-hou$e-lamp", valid: false},
		{name: "no digit", password: "Tree-Hou$e-Lamp", valid: false},
		{name: "no special", password: "Tr33HouseLamp9", valid: false},
		{name: "weak word", password: "MyPassword#2024", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Password(tt.password)
			assert.Equal(t, tt.valid, res.Valid, "errors: %v", res.Errors)
			assert.Empty(t, res.Threats)
		})
	}
}

func TestStrength(t *testing.T) {
	score, feedback := Strength("Tr33-Hou$e-Lamp")
	assert.Equal(t, 4, score)
	assert.Empty(t, feedback)

	score, feedback = Strength("abc")
	assert.Equal(t, 0, score)
	assert.Contains(t, feedback, "avoid common patterns")

	score, _ = Strength("lowercaseonly")
	assert.Equal(t, 2, score)
}

func TestMask(t *testing.T) {
	assert.Equal(t, "re***@example.org", Mask("rep@example.org", MaskEmail))
	assert.Equal(t, "a***@example.org", Mask("a@example.org", MaskEmail))
	assert.Equal(t, "***", Mask("no-at-sign", MaskEmail))
	assert.Equal(t, "***6789", Mask("09123456789", MaskPhone))
	assert.Equal(t, "****-****-****-4242", Mask("4242424242424242", MaskCard))
	assert.Equal(t, "***", Mask("x", MaskKind("other")))
}
