package requestguard

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
)

// HandlerFunc is a guarded handler. A returned error becomes an opaque 500.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, res *Result) error

type resultKey struct{}

// WithResult stores res in ctx.
func WithResult(ctx context.Context, res *Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// FromContext returns the Result of the guard that admitted the request.
func FromContext(ctx context.Context) (*Result, bool) {
	res, ok := ctx.Value(resultKey{}).(*Result)
	return res, ok
}

// Protect wraps next with the pipeline described by opts.
func (g *Guard) Protect(opts Options, next HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.SetSecurityHeaders(w.Header())

		res, rej := g.Check(r, opts)
		if rej != nil {
			metrics.RequestsTotal.WithLabelValues(r.URL.Path, "rejected").Inc()
			g.WriteRejection(w, r, rej)
			return
		}

		if res.Auth != nil && res.Auth.RotatedToken != "" {
			w.Header().Set(session.HeaderSessionToken, res.Auth.RotatedToken)
		}

		r = r.WithContext(WithResult(r.Context(), res))
		if err := g.run(w, r, res, next); err != nil {
			metrics.RequestsTotal.WithLabelValues(r.URL.Path, "error").Inc()
			g.handlerFailed(w, r, res, err)
			return
		}
		metrics.RequestsTotal.WithLabelValues(r.URL.Path, "ok").Inc()
	}
}

// RequireRole protects next for authenticated reps holding one of roles.
func (g *Guard) RequireRole(opts Options, next HandlerFunc, roles ...string) http.HandlerFunc {
	opts.RequireAuth = true
	opts.Roles = append(append([]string(nil), opts.Roles...), roles...)
	return g.Protect(opts, next)
}

func (g *Guard) run(w http.ResponseWriter, r *http.Request, res *Result, next HandlerFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return next(w, r, res)
}

func (g *Guard) handlerFailed(w http.ResponseWriter, r *http.Request, res *Result, err error) {
	ctx := r.Context()
	g.logger.WithContext(ctx).Error("guarded handler failed",
		logging.Path(r.URL.Path),
		logging.Method(r.Method),
		logging.Identity(res.HashedIdentity),
		logging.Error(err),
	)
	g.deps.Events.Record(ctx, secevent.Entry{
		Type:      secevent.TypeDataBreachAttempt,
		Severity:  secevent.SeverityHigh,
		Identity:  res.Identity,
		SubjectID: res.SubjectID(),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Details:   map[string]any{"error": err.Error()},
	})
	httputil.WriteFailure(w, r, http.StatusInternalServerError, g.messages.Text(CodeServerError), nil)
}

// WriteRejection writes rej as an envelope with Retry-After on 429s.
func (g *Guard) WriteRejection(w http.ResponseWriter, r *http.Request, rej *Rejection) {
	if rej.Status == http.StatusTooManyRequests && rej.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(rej.RetryAfterSeconds()))
	}
	if rej.Status == http.StatusMethodNotAllowed {
		if allowed, ok := rej.Data["allowed"].([]string); ok {
			for _, m := range allowed {
				w.Header().Add("Allow", m)
			}
		}
	}

	data := map[string]any{"code": rej.Code}
	for k, v := range rej.Data {
		data[k] = v
	}
	if rej.RetryAfter > 0 {
		data["retryAfter"] = rej.RetryAfterSeconds()
	}
	httputil.WriteFailure(w, r, rej.Status, rej.Message, data)
}
