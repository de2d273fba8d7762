// Package requestguard runs the per-request security pipeline in front of
// every guarded handler: method, IP block, rate limit, authentication,
// CSRF and body threat scan, in that order. The first failing stage wins.
package requestguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/csrf"
	"github.com/rahnavardnetwork/sos/guard/internal/ipblock"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
	"github.com/rahnavardnetwork/sos/guard/internal/threat"
	"github.com/rahnavardnetwork/sos/guard/internal/validate"
)

// HeaderCSRFToken carries the CSRF token on mutating requests.
const HeaderCSRFToken = "X-CSRF-Token"

const (
	StageMethod = "method"
	StageBlock  = "ip_block"
	StageRate   = "rate_limit"
	StageAuth   = "auth"
	StageMFA    = "mfa"
	StageRole   = "role"
	StageCSRF   = "csrf"
	StageBody   = "body"
)

// Config holds guard-wide behavior.
type Config struct {
	// BlockOnDetection rejects bodies with detected threats. When false every
	// route runs in soft-fail mode.
	BlockOnDetection bool   `mapstructure:"block_on_detection"`
	MaxBodyBytes     int64  `mapstructure:"max_body_bytes"`
	Locale           Locale `mapstructure:"locale"`
}

func DefaultConfig() Config {
	return Config{
		BlockOnDetection: true,
		MaxBodyBytes:     1 << 20,
		Locale:           LocaleFA,
	}
}

// Options describe one route's requirements.
type Options struct {
	// Methods lists the allowed methods. Empty allows any.
	Methods []string
	// Class is the limiter class. Empty infers it from the path.
	Class       ratelimit.Class
	RequireAuth bool
	RequireMFA  bool
	// Roles restricts the route to these roles and implies RequireAuth.
	Roles       []string
	RequireCSRF bool
	ScanBody    bool
	// MaxBodyBytes overrides Config.MaxBodyBytes when positive.
	MaxBodyBytes int64
	// SoftFail logs body threats without rejecting.
	SoftFail bool
}

func (o Options) needsAuth() bool {
	return o.RequireAuth || o.RequireMFA || len(o.Roles) > 0
}

// Result is what a passing request carries into its handler.
type Result struct {
	Identity       string
	HashedIdentity string
	Class          ratelimit.Class
	// Auth is nil on routes that do not require authentication.
	Auth *session.Identity
	Body BodyResult
	// Threats maps body field paths to what was detected in them. Only
	// populated in soft-fail mode; otherwise threats reject the request.
	Threats map[string][]threat.Label
}

// SubjectID returns the authenticated rep id, or "".
func (r *Result) SubjectID() string {
	if r.Auth == nil || r.Auth.Rep == nil {
		return ""
	}
	return r.Auth.Rep.ID
}

// CSRFKey is the key CSRF tokens for this request are stored under.
func (r *Result) CSRFKey() string {
	if r.Auth != nil && r.Auth.Session != nil {
		return r.Auth.Session.ID
	}
	return csrf.AnonymousKey(r.HashedIdentity)
}

// Deps are the collaborators the pipeline consults.
type Deps struct {
	Blocks    *ipblock.Registry
	Limiter   *ratelimit.Limiter
	Sessions  *session.Manager
	CSRF      *csrf.Guard
	Events    *secevent.Log
	Validator *validate.Validator
}

// Guard is the request pipeline.
type Guard struct {
	deps     Deps
	cfg      Config
	messages Messages
	logger   *logging.Logger
	now      func() time.Time
}

type Option func(*Guard)

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func New(deps Deps, cfg Config, logger *logging.Logger, opts ...Option) *Guard {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	g := &Guard{
		deps:     deps,
		cfg:      cfg,
		messages: NewMessages(cfg.Locale),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Events exposes the event log to handlers.
func (g *Guard) Events() *secevent.Log { return g.deps.Events }

// Check runs every applicable stage against r. Exactly one of the return
// values is non-nil. Check may replace r.Body with a rereadable copy.
func (g *Guard) Check(r *http.Request, opts Options) (*Result, *Rejection) {
	start := time.Now()
	defer func() { metrics.CheckDuration.Observe(time.Since(start).Seconds()) }()

	ctx := r.Context()
	identity := httputil.ClientIdentity(r)
	if rc := httputil.GetRequestContext(ctx); rc != nil {
		identity = rc.Identity
	}
	res := &Result{
		Identity:       identity,
		HashedIdentity: g.deps.Events.HashIdentity(identity),
		Class:          opts.Class,
	}
	if res.Class == "" {
		res.Class = ratelimit.ClassForPath(r.URL.Path)
	}

	stages := []func(context.Context, *http.Request, Options, *Result) *Rejection{
		g.checkMethod,
		g.checkBlock,
		g.checkRate,
		g.checkAuth,
		g.checkCSRF,
		g.checkBody,
	}
	for _, stage := range stages {
		if rej := stage(ctx, r, opts, res); rej != nil {
			metrics.RejectionsTotal.WithLabelValues(rej.Stage, strconv.Itoa(rej.Status)).Inc()
			g.logger.WithContext(ctx).Debug("request rejected",
				slog.String("stage", rej.Stage),
				logging.Status(rej.Status),
				logging.Identity(res.HashedIdentity),
				logging.Path(r.URL.Path),
			)
			return nil, rej
		}
	}
	return res, nil
}

func (g *Guard) checkMethod(ctx context.Context, r *http.Request, opts Options, res *Result) *Rejection {
	if len(opts.Methods) == 0 || slices.Contains(opts.Methods, r.Method) {
		return nil
	}
	rej := g.reject(StageMethod, http.StatusMethodNotAllowed, CodeMethodNotAllowed)
	rej.Data = map[string]any{"allowed": opts.Methods}
	g.recordPolicyViolation(ctx, r, res, secevent.SeverityLow, rej)
	return rej
}

// recordPolicyViolation logs rejections that have no more specific event type.
func (g *Guard) recordPolicyViolation(ctx context.Context, r *http.Request, res *Result, sev secevent.Severity, rej *Rejection) {
	g.deps.Events.Record(ctx, secevent.Entry{
		Type:      secevent.TypePolicyViolation,
		Severity:  sev,
		Identity:  res.Identity,
		SubjectID: res.SubjectID(),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Details:   map[string]any{"stage": rej.Stage, "code": string(rej.Code), "method": r.Method},
	})
}

func (g *Guard) checkBlock(ctx context.Context, r *http.Request, _ Options, res *Result) *Rejection {
	status, err := g.deps.Blocks.IsBlocked(ctx, res.Identity)
	if err != nil {
		g.logger.WarnContext(ctx, "block lookup failed, allowing request", logging.Error(err))
		return nil
	}
	if !status.Blocked {
		return nil
	}

	g.deps.Events.Record(ctx, secevent.Entry{
		Type:      secevent.TypeIPBlocked,
		Severity:  secevent.SeverityHigh,
		Identity:  res.Identity,
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Details:   map[string]any{"reason": status.Reason, "permanent": status.Permanent},
	})

	rej := g.reject(StageBlock, http.StatusTooManyRequests, CodeIPBlocked)
	rej.Data = map[string]any{"reason": status.Reason}
	if status.Permanent {
		rej.Data["permanent"] = true
	} else {
		rej.Data["until"] = status.Until
		rej.RetryAfter = status.Until.Sub(g.now())
	}
	return rej
}

func (g *Guard) checkRate(ctx context.Context, r *http.Request, _ Options, res *Result) *Rejection {
	decision, err := g.deps.Limiter.Consume(ctx, res.Identity, res.Class)
	if err != nil {
		g.logger.WarnContext(ctx, "rate limit store failed, allowing request",
			logging.LimiterClass(string(res.Class)), logging.Error(err))
		return nil
	}
	if decision.Allowed {
		return nil
	}

	metrics.RateLimitHits.WithLabelValues(string(res.Class)).Inc()
	g.deps.Events.Record(ctx, secevent.RateLimitExceeded(res.Identity, r.URL.Path, string(res.Class)))

	if _, err := g.deps.Blocks.RecordFailedAttempt(ctx, res.Identity); err != nil {
		g.logger.WarnContext(ctx, "failed to record failed attempt", logging.Error(err))
	}

	policy := g.deps.Limiter.Policy(res.Class)
	if decision.Exhausted && policy.PromoteToBlock {
		reason := fmt.Sprintf("rate limit exceeded (%s)", res.Class)
		if _, err := g.deps.Blocks.Block(ctx, res.Identity, reason, policy.BlockDuration); err != nil {
			g.logger.WarnContext(ctx, "failed to block identity", logging.Error(err))
		} else {
			g.deps.Events.Record(ctx, secevent.Entry{
				Type:     secevent.TypeIPBlocked,
				Severity: secevent.SeverityHigh,
				Identity: res.Identity,
				Endpoint: r.URL.Path,
				Details:  map[string]any{"reason": reason, "duration": policy.BlockDuration.String()},
			})
		}
	}

	rej := g.reject(StageRate, http.StatusTooManyRequests, CodeRateLimited)
	rej.RetryAfter = decision.RetryAfter
	return rej
}

func (g *Guard) checkAuth(ctx context.Context, r *http.Request, opts Options, res *Result) *Rejection {
	if !opts.needsAuth() {
		return nil
	}

	id, err := g.deps.Sessions.Verify(ctx, r)
	if err != nil {
		g.deps.Events.Record(ctx, secevent.Entry{
			Type:      secevent.TypeAuthFailure,
			Severity:  secevent.SeverityMedium,
			Identity:  res.Identity,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details:   map[string]any{"reason": authReason(err)},
		})
		return g.reject(StageAuth, http.StatusUnauthorized, CodeUnauthorized)
	}
	res.Auth = id

	if len(opts.Roles) > 0 && !slices.Contains(opts.Roles, id.Rep.Role) {
		g.deps.Events.Record(ctx, secevent.Entry{
			Type:      secevent.TypePrivilegeEscalationAttempt,
			Severity:  secevent.SeverityCritical,
			Identity:  res.Identity,
			SubjectID: id.Rep.ID,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details:   map[string]any{"role": id.Rep.Role, "required": opts.Roles},
		})
		return g.reject(StageRole, http.StatusForbidden, CodeForbidden)
	}

	if opts.RequireMFA && !id.Session.MFAVerified {
		rej := g.reject(StageMFA, http.StatusForbidden, CodeMFARequired)
		g.recordPolicyViolation(ctx, r, res, secevent.SeverityMedium, rej)
		return rej
	}
	return nil
}

func authReason(err error) string {
	for _, known := range []error{
		session.ErrMissingToken,
		session.ErrInvalidToken,
		session.ErrSessionNotFound,
		session.ErrSubjectInactive,
		session.ErrSessionExpired,
		session.ErrFingerprintMismatch,
		session.ErrAbsoluteTimeout,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "verification error"
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func (g *Guard) checkCSRF(ctx context.Context, r *http.Request, opts Options, res *Result) *Rejection {
	if !opts.RequireCSRF || !isMutating(r.Method) {
		return nil
	}

	err := g.deps.CSRF.Validate(ctx, res.CSRFKey(), r.Header.Get(HeaderCSRFToken))
	if err == nil {
		return nil
	}
	g.deps.Events.Record(ctx, secevent.CSRFViolation(res.Identity, res.SubjectID(), r.URL.Path, err.Error()))
	return g.reject(StageCSRF, http.StatusForbidden, CodeCSRF)
}

func (g *Guard) checkBody(ctx context.Context, r *http.Request, opts Options, res *Result) *Rejection {
	if !opts.ScanBody {
		return nil
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil
	}

	limit := g.cfg.MaxBodyBytes
	if opts.MaxBodyBytes > 0 {
		limit = opts.MaxBodyBytes
	}
	res.Body = ReadBody(r, limit)
	if !res.Body.OK() {
		rej, sev := g.reject(StageBody, http.StatusBadRequest, CodeInvalidInput), secevent.SeverityLow
		if res.Body.Err.Status == http.StatusRequestEntityTooLarge {
			rej, sev = g.reject(StageBody, http.StatusRequestEntityTooLarge, CodeBodyTooLarge), secevent.SeverityMedium
		}
		g.recordPolicyViolation(ctx, r, res, sev, rej)
		return rej
	}

	threats := g.scanFields(res.Body.Fields)
	if len(threats) == 0 {
		return nil
	}
	for field, labels := range threats {
		for _, l := range labels {
			metrics.ThreatsDetected.WithLabelValues(string(l)).Inc()
		}
		g.deps.Events.Record(ctx, secevent.Entry{
			Type:      secevent.TypeSuspiciousInput,
			Severity:  secevent.SeverityHigh,
			Identity:  res.Identity,
			SubjectID: res.SubjectID(),
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details:   map[string]any{"field": field, "threats": threat.LabelStrings(labels)},
		})
	}

	if g.cfg.BlockOnDetection && !opts.SoftFail {
		return g.reject(StageBody, http.StatusBadRequest, CodeInvalidInput)
	}
	res.Threats = threats
	return nil
}

// scanFields runs the detector over every string in the body, nested
// objects and arrays included. Keys are dotted field paths.
func (g *Guard) scanFields(fields map[string]any) map[string][]threat.Label {
	found := map[string][]threat.Label{}
	var walk func(path string, v any)
	walk = func(path string, v any) {
		switch val := v.(type) {
		case string:
			if labels := g.deps.Validator.Input(val, path, false, 0).Threats; len(labels) > 0 {
				found[path] = labels
			}
		case map[string]any:
			for k, child := range val {
				p := k
				if path != "" {
					p = path + "." + k
				}
				walk(p, child)
			}
		case []any:
			for i, child := range val {
				walk(fmt.Sprintf("%s[%d]", path, i), child)
			}
		}
	}
	walk("", fields)
	return found
}
