package handlers

import (
	"errors"
	"net/http"
	"slices"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/repository"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
	"github.com/rahnavardnetwork/sos/guard/internal/threat"
)

const loginSchema = `{
	"type": "object",
	"required": ["username", "password"],
	"properties": {
		"username": {"type": "string", "minLength": 1, "maxLength": 100},
		"password": {"type": "string", "minLength": 1, "maxLength": 256}
	}
}`

const reasonInjection = "injection attempt on login"

// Login authenticates a rep by username and password.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request, res *requestguard.Result) error {
	ctx := r.Context()
	checked := h.Validator.Object(res.Body.Fields, h.loginSchema)

	username := res.Body.String("username")
	if threats := checked.Fields["username"].Threats; len(threats) > 0 {
		h.Events.Record(ctx, injectionEntry(res.Identity, username, r.URL.Path, threats))
		if _, err := h.Blocks.BlockDefault(ctx, res.Identity, reasonInjection); err != nil {
			h.Logger.WarnContext(ctx, "failed to block identity", logging.Error(err))
		}
		return h.reject(w, r, requestguard.CodeForbidden)
	}

	var req models.LoginRequest
	if len(checked.Errors) > 0 || res.Body.Decode(&req) != nil || !h.Validator.Username(req.Username).Valid {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}

	rep, err := h.Repo.GetRepByUsername(ctx, req.Username)
	if err != nil && !errors.Is(err, repository.ErrRepNotFound) {
		return err
	}
	if !h.checkPassword(rep, req.Password) || !rep.IsActive() {
		reason := "invalid credentials"
		if rep != nil && !rep.IsActive() {
			reason = "inactive account"
		}
		h.Events.Record(ctx, secevent.AuthFailure(res.Identity, req.Username, r.UserAgent(), reason))
		if _, err := h.Blocks.RecordFailedAttempt(ctx, res.Identity); err != nil {
			h.Logger.WarnContext(ctx, "failed to record failed attempt", logging.Error(err))
		}
		return h.reject(w, r, requestguard.CodeUnauthorized)
	}

	token, sess, err := h.Sessions.Create(ctx, rep, r)
	if err != nil {
		return err
	}
	if err := h.Blocks.Clear(ctx, res.Identity); err != nil {
		h.Logger.WarnContext(ctx, "failed to clear failed attempts", logging.Error(err))
	}
	h.Events.Record(ctx, secevent.AuthSuccess(res.Identity, rep.ID, r.UserAgent()))
	h.logActivity(ctx, rep.ID, models.ActivityLogin, res.HashedIdentity, map[string]any{
		"user_agent": r.UserAgent(),
	})

	mfaRequired := h.MFA.Enabled() && (h.MFA.Required() || rep.MFAEnabled)
	if mfaRequired {
		code, err := h.MFA.GenerateCode()
		if err != nil {
			return err
		}
		if err := h.MFA.StoreCode(ctx, rep.ID, code); err != nil {
			return err
		}
		if err := h.Codes.SendCode(ctx, rep, code); err != nil {
			return err
		}
	}

	csrfToken, err := h.CSRF.Generate(ctx, sess.ID)
	if err != nil {
		return err
	}

	httputil.WriteSuccess(w, r, http.StatusOK, models.LoginResponse{
		Token:       token,
		ExpiresAt:   sess.ExpiresAt,
		CSRFToken:   csrfToken,
		MFARequired: mfaRequired,
		Rep:         rep.ToResponse(),
	})
	return nil
}

func injectionEntry(identity, input, endpoint string, labels []threat.Label) secevent.Entry {
	var e secevent.Entry
	switch {
	case slices.Contains(labels, threat.LabelSQLInjection):
		e = secevent.SQLInjectionAttempt(identity, input, endpoint)
	case slices.Contains(labels, threat.LabelXSS):
		e = secevent.XSSAttempt(identity, input, endpoint)
		e.Severity = secevent.SeverityCritical
	default:
		e = secevent.SQLInjectionAttempt(identity, input, endpoint)
		e.Type = secevent.TypeSuspiciousInput
	}
	e.Details["threats"] = threat.LabelStrings(labels)
	return e
}

// VerifyMFA checks the code sent at login and marks the session verified.
func (h *Handler) VerifyMFA(w http.ResponseWriter, r *http.Request, res *requestguard.Result) error {
	ctx := r.Context()
	var req models.MFAVerifyRequest
	if err := res.Body.Decode(&req); err != nil || req.Code == "" {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}

	rep, sess := res.Auth.Rep, res.Auth.Session
	if err := h.MFA.VerifyCode(ctx, rep.ID, req.Code); err != nil {
		severity := secevent.SeverityMedium
		if errors.Is(err, session.ErrTooManyAttempts) {
			severity = secevent.SeverityHigh
		}
		h.Events.Record(ctx, secevent.Entry{
			Type:      secevent.TypeMFAFailure,
			Severity:  severity,
			Identity:  res.Identity,
			SubjectID: rep.ID,
			UserAgent: r.UserAgent(),
			Endpoint:  r.URL.Path,
			Details:   map[string]any{"reason": err.Error()},
		})
		return h.reject(w, r, requestguard.CodeUnauthorized)
	}

	if err := h.Sessions.MarkMFAVerified(ctx, sess.ID); err != nil {
		return err
	}
	h.logActivity(ctx, rep.ID, models.ActivityMFAVerified, res.HashedIdentity, nil)
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]bool{"mfa_verified": true})
	return nil
}

// Logout ends the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request, res *requestguard.Result) error {
	ctx := r.Context()
	sess := res.Auth.Session
	if err := h.Sessions.Revoke(ctx, sess.ID); err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return err
	}
	if err := h.CSRF.Revoke(ctx, sess.ID); err != nil {
		h.Logger.WarnContext(ctx, "failed to revoke csrf token", logging.SessionID(sess.ID), logging.Error(err))
	}
	h.logActivity(ctx, res.SubjectID(), models.ActivityLogout, res.HashedIdentity, nil)
	httputil.WriteSuccess(w, r, http.StatusOK, nil)
	return nil
}

// CSRFToken returns the caller's active CSRF token, issuing one if needed.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request, res *requestguard.Result) error {
	token, err := h.CSRF.Issue(r.Context(), res.CSRFKey())
	if err != nil {
		return err
	}
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]string{"csrf_token": token})
	return nil
}
