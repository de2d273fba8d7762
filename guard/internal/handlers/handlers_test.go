package handlers

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/threat"
)

func TestInjectionEntry(t *testing.T) {
	tests := []struct {
		name   string
		labels []threat.Label
		want   secevent.EventType
	}{
		{"sql wins", []threat.Label{threat.LabelXSS, threat.LabelSQLInjection}, secevent.TypeSQLInjectionAttempt},
		{"xss", []threat.Label{threat.LabelXSS}, secevent.TypeXSSAttempt},
		{"other", []threat.Label{threat.LabelPathTraversal}, secevent.TypeSuspiciousInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := injectionEntry("192.0.2.1", "input", "/api/rep/login", tt.labels)
			assert.Equal(t, tt.want, e.Type)
			assert.Equal(t, secevent.SeverityCritical, e.Severity)
			assert.Equal(t, threat.LabelStrings(tt.labels), e.Details["threats"])
		})
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Correct-Horse-1"), bcrypt.MinCost)
	require.NoError(t, err)
	h := New(Deps{Logger: logging.Discard()})

	rep := &models.Rep{PasswordHash: string(hash)}
	assert.True(t, h.checkPassword(rep, "Correct-Horse-1"))
	assert.False(t, h.checkPassword(rep, "correct-horse-1"))
	assert.False(t, h.checkPassword(nil, "Correct-Horse-1"))
}

func TestLogCodeSender_MasksEmail(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, slog.LevelDebug, "json")
	s := LogCodeSender{Logger: logger}

	err := s.SendCode(context.Background(), &models.Rep{ID: "r1", Email: "maryam@example.org"}, "A1B2C3")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "A1B2C3")
	assert.NotContains(t, buf.String(), "maryam@example.org")
}
