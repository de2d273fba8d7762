// Package handlers implements the rep and security-administration endpoints
// that run behind the request guard.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/csrf"
	"github.com/rahnavardnetwork/sos/guard/internal/ipblock"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/repository"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/session"
	"github.com/rahnavardnetwork/sos/guard/internal/validate"
)

// CodeSender delivers MFA codes to reps.
type CodeSender interface {
	SendCode(ctx context.Context, rep *models.Rep, code string) error
}

// LogCodeSender writes codes to the debug log. For development only.
type LogCodeSender struct {
	Logger *logging.Logger
}

func (s LogCodeSender) SendCode(ctx context.Context, rep *models.Rep, code string) error {
	s.Logger.DebugContext(ctx, "mfa code issued",
		logging.SubjectID(rep.ID),
		slog.String("email", validate.Mask(rep.Email, validate.MaskEmail)),
		slog.String("code", code),
	)
	return nil
}

// Deps are the collaborators of Handler.
type Deps struct {
	Guard     *requestguard.Guard
	Repo      repository.Repository
	Sessions  *session.Manager
	MFA       *session.MFA
	Codes     CodeSender
	CSRF      *csrf.Guard
	Blocks    *ipblock.Registry
	Limiter   *ratelimit.Limiter
	Events    *secevent.Log
	Validator *validate.Validator
	Logger    *logging.Logger
	Now       func() time.Time
}

type Handler struct {
	Deps
	loginSchema *validate.Schema

	dummyOnce sync.Once
	dummyHash []byte
}

func New(deps Deps) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Codes == nil {
		deps.Codes = LogCodeSender{Logger: deps.Logger}
	}
	return &Handler{
		Deps:        deps,
		loginSchema: validate.MustCompileSchema(loginSchema),
	}
}

// checkPassword compares against a throwaway hash when rep is nil so that
// unknown usernames cost the same as wrong passwords.
func (h *Handler) checkPassword(rep *models.Rep, password string) bool {
	if rep == nil {
		h.dummyOnce.Do(func() {
			h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
		})
		_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(rep.PasswordHash), []byte(password)) == nil
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, code requestguard.Code) error {
	h.Guard.WriteRejection(w, r, h.Guard.Reject(code))
	return nil
}

func (h *Handler) logActivity(ctx context.Context, repID, activityType, hashedIdentity string, details map[string]any) {
	err := h.Repo.LogActivity(ctx, &models.Activity{
		ID:             uuid.NewString(),
		RepID:          repID,
		Type:           activityType,
		HashedIdentity: hashedIdentity,
		Details:        details,
		CreatedAt:      h.Now(),
	})
	if err != nil {
		h.Logger.WarnContext(ctx, "failed to record activity",
			logging.SubjectID(repID), slog.String("activity", activityType), logging.Error(err))
	}
}

// HealthCheck is unguarded.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
