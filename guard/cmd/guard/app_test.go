package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("GUARD_TOKEN_SECRET", "app-test-secret")
	t.Setenv("GUARD_EVENTS_IDENTITY_SALT", "app-test-salt")
	t.Setenv("GUARD_EVENTS_SIGNING_KEY", "app-test-key")
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestBuildApplication_InMemory(t *testing.T) {
	cfg := testConfig(t)
	app, err := buildApplication(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/security/events", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHashPassword(t *testing.T) {
	v := newValidator(testConfig(t))
	var hints bytes.Buffer

	_, err := hashPassword(v, "short", &hints)
	assert.Error(t, err)

	hash, err := hashPassword(v, "Kh0rshid!Sahar#2024", &hints)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("Kh0rshid!Sahar#2024")))
	assert.Empty(t, hints.String())

	_, err = hashPassword(v, "Abc!defgh1234", &hints)
	require.NoError(t, err)
	assert.Contains(t, hints.String(), "avoid common patterns")
}
