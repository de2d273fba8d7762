package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossOrigin(t *testing.T) {
	mw, err := CrossOrigin([]string{"https://app.example.org"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	require.NoError(t, err)
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		method string
		site   string
		origin string
		want   int
	}{
		{"same origin post", http.MethodPost, "same-origin", "", http.StatusNoContent},
		{"cross site post", http.MethodPost, "cross-site", "https://evil.example.net", http.StatusTeapot},
		{"trusted origin post", http.MethodPost, "cross-site", "https://app.example.org", http.StatusNoContent},
		{"cross site get", http.MethodGet, "cross-site", "https://evil.example.net", http.StatusNoContent},
		{"non-browser client", http.MethodPost, "", "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/api/rep/logout", nil)
			if tt.site != "" {
				r.Header.Set("Sec-Fetch-Site", tt.site)
			}
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestCrossOrigin_InvalidTrustedOrigin(t *testing.T) {
	_, err := CrossOrigin([]string{"not a url"}, nil)
	assert.Error(t, err)
}
