package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rahnavardnetwork/sos/common/httputil"
	"github.com/rahnavardnetwork/sos/guard/internal/models"
	"github.com/rahnavardnetwork/sos/guard/internal/ratelimit"
	"github.com/rahnavardnetwork/sos/guard/internal/requestguard"
	"github.com/rahnavardnetwork/sos/guard/internal/secevent"
	"github.com/rahnavardnetwork/sos/guard/internal/validate"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// ListEvents returns events matching the query string filter.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request, _ *requestguard.Result) error {
	q := r.URL.Query()
	limit := httputil.ParseIntParam(q.Get("limit"), defaultEventLimit)
	if limit <= 0 || limit > maxEventLimit {
		limit = defaultEventLimit
	}

	f := secevent.Filter{
		Type:      secevent.EventType(q.Get("type")),
		Severity:  secevent.Severity(q.Get("severity")),
		Identity:  q.Get("identity"),
		SubjectID: q.Get("subject_id"),
		Limit:     limit,
	}
	var err error
	if f.Start, err = parseTime(q.Get("start")); err != nil {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}
	if f.End, err = parseTime(q.Get("end")); err != nil {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}

	events, err := h.Events.Query(r.Context(), f)
	if err != nil {
		return err
	}
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]any{"events": events, "count": len(events)})
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Analysis returns the suspicious-pattern view of the last day.
func (h *Handler) Analysis(w http.ResponseWriter, r *http.Request, _ *requestguard.Result) error {
	a, err := h.Events.Analyze(r.Context())
	if err != nil {
		return err
	}
	httputil.WriteSuccess(w, r, http.StatusOK, a)
	return nil
}

// Report summarizes events over ?period=day|week|month.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request, _ *requestguard.Result) error {
	period, err := secevent.ParsePeriod(r.URL.Query().Get("period"))
	if errors.Is(err, secevent.ErrInvalidPeriod) {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}
	if err != nil {
		return err
	}
	report, err := h.Events.Report(r.Context(), period)
	if err != nil {
		return err
	}
	httputil.WriteSuccess(w, r, http.StatusOK, report)
	return nil
}

// ListBlocks returns the blocks in effect.
func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request, _ *requestguard.Result) error {
	blocks, err := h.Blocks.List(r.Context())
	if err != nil {
		return err
	}
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]any{"blocks": blocks, "count": len(blocks)})
	return nil
}

// Unblock lifts a block placed on an identity.
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request, res *requestguard.Result) error {
	var req models.UnblockRequest
	if err := res.Body.Decode(&req); err != nil || !validate.IsValidIP(req.Identity) {
		return h.reject(w, r, requestguard.CodeInvalidInput)
	}

	ctx := r.Context()
	if err := h.Blocks.Unblock(ctx, req.Identity); err != nil {
		return err
	}
	// An unblocked identity would otherwise still sit in an exhausted class block.
	for _, class := range ratelimit.Classes {
		if err := h.Limiter.Reset(ctx, req.Identity, class); err != nil {
			return err
		}
	}
	h.logActivity(ctx, res.SubjectID(), models.ActivityUnblock, res.HashedIdentity, map[string]any{
		"unblocked": h.Events.HashIdentity(req.Identity),
	})
	httputil.WriteSuccess(w, r, http.StatusOK, map[string]bool{"unblocked": true})
	return nil
}
