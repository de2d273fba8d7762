package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/middleware"
	"github.com/rahnavardnetwork/sos/guard/internal/handlers"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
)

// Config selects the outer middleware.
type Config struct {
	CORS middleware.CORSConfig
	// TrustedOrigins enables cross-origin protection for browser requests
	// when non-nil. Listed origins may make cross-site state changes.
	TrustedOrigins []string
}

var (
	post = []string{http.MethodPost}
	get  = []string{http.MethodGet}
)

// NewRouter constructs the guard's HTTP API.
func NewRouter(g *requestguard.Guard, h *handlers.Handler, cfg Config) (http.Handler, error) {
	mux := http.NewServeMux()

	// Rep endpoints
	mux.Handle("/api/rep/login", g.Protect(requestguard.Options{
		Methods:  post,
		Class:    ratelimit.ClassAuth,
		ScanBody: true,
		SoftFail: true,
	}, h.Login))
	mux.Handle("/api/rep/mfa/verify", g.Protect(requestguard.Options{
		Methods:     post,
		Class:       ratelimit.ClassAuth,
		RequireAuth: true,
		ScanBody:    true,
	}, h.VerifyMFA))
	mux.Handle("/api/rep/logout", g.Protect(requestguard.Options{
		Methods:     post,
		RequireAuth: true,
		RequireCSRF: true,
	}, h.Logout))
	mux.Handle("/api/security/csrf-token", g.Protect(requestguard.Options{
		Methods:     get,
		Class:       ratelimit.ClassGeneral,
		RequireAuth: true,
	}, h.CSRFToken))

	// Security administration, admin only
	admin := requestguard.Options{Methods: get, Class: ratelimit.ClassSensitive, RequireMFA: true}
	mux.Handle("/api/security/events", g.RequireRole(admin, h.ListEvents, models.RoleAdmin))
	mux.Handle("/api/security/analysis", g.RequireRole(admin, h.Analysis, models.RoleAdmin))
	mux.Handle("/api/security/report", g.RequireRole(admin, h.Report, models.RoleAdmin))
	mux.Handle("/api/security/blocks", g.RequireRole(admin, h.ListBlocks, models.RoleAdmin))
	mux.Handle("/api/security/unblock", g.RequireRole(requestguard.Options{
		Methods:     post,
		Class:       ratelimit.ClassSensitive,
		RequireMFA:  true,
		RequireCSRF: true,
		ScanBody:    true,
	}, h.Unblock, models.RoleAdmin))

	mux.HandleFunc("GET /healthz", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if cfg.TrustedOrigins != nil {
		protect, err := middleware.CrossOrigin(cfg.TrustedOrigins, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.WriteRejection(w, r, g.Reject(requestguard.CodeCSRF))
		}))
		if err != nil {
			return nil, err
		}
		handler = protect(handler)
	}
	handler = withRequestContext(handler)
	handler = middleware.CORS(cfg.CORS)(handler)
	return middleware.RequestID(handler), nil
}

func withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := httputil.WithRequestContext(r.Context(), httputil.NewRequestContext(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
