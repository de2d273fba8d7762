package secevent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rahnavardnetwork/sos/common/audit"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
)

var (
	ErrInvalidPeriod = errors.New("invalid report period")
	ErrThrottled     = errors.New("notification throttled")
)

const (
	analysisWindow = 24 * time.Hour
	topTypesLimit  = 10
	reportTopTypes = 5
	sideTimeout    = 5 * time.Second
)

// Store holds events in insertion order.
type Store interface {
	Append(ctx context.Context, ev Event) error
	// Events returns events with Timestamp >= since, oldest first.
	// A zero since returns everything.
	Events(ctx context.Context, since time.Time) ([]Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Notifier receives critical events on the side channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Forwarder archives events outside the process.
type Forwarder interface {
	Forward(ctx context.Context, ev Event) error
}

// Config tunes the event log.
type Config struct {
	Capacity   int           `mapstructure:"capacity"`
	PruneBatch int           `mapstructure:"prune_batch"`
	Retention  time.Duration `mapstructure:"retention"`
	// IdentityThreshold and SubjectThreshold are the elevated-event counts
	// above which an identity or subject is reported as suspicious.
	IdentityThreshold int    `mapstructure:"identity_threshold"`
	SubjectThreshold  int    `mapstructure:"subject_threshold"`
	IdentitySalt      string `mapstructure:"identity_salt"`
	SigningKey        string `mapstructure:"signing_key"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:          10000,
		PruneBatch:        1000,
		Retention:         90 * 24 * time.Hour,
		IdentityThreshold: 10,
		SubjectThreshold:  5,
	}
}

// Log is the security event log.
type Log struct {
	store      Store
	cfg        Config
	hasher     *audit.IdentityHasher
	signer     *audit.EventSigner
	logger     *logging.Logger
	notifier   Notifier
	forwarders []Forwarder
	now        func() time.Time
}

type Option func(*Log)

func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithNotifier sets the side channel for critical events.
func WithNotifier(n Notifier) Option {
	return func(l *Log) { l.notifier = n }
}

// WithForwarder adds an archive destination for every event.
func WithForwarder(f Forwarder) Option {
	return func(l *Log) { l.forwarders = append(l.forwarders, f) }
}

func NewLog(store Store, cfg Config, logger *logging.Logger, opts ...Option) *Log {
	l := &Log{
		store:  store,
		cfg:    cfg,
		hasher: audit.NewIdentityHasher(cfg.IdentitySalt),
		signer: audit.NewEventSigner(cfg.SigningKey),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HashIdentity returns the stored form of a raw client identity.
func (l *Log) HashIdentity(identity string) string {
	return l.hasher.Hash(identity)
}

// Record stores an event. It never fails: store, notifier and forwarder
// errors are logged and dropped.
func (l *Log) Record(ctx context.Context, e Entry) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	ev := Event{
		ID:             id.String(),
		Timestamp:      l.now().UTC(),
		Type:           e.Type,
		Severity:       e.Severity,
		HashedIdentity: l.hasher.Hash(e.Identity),
		SubjectID:      e.SubjectID,
		UserAgent:      e.UserAgent,
		Endpoint:       e.Endpoint,
		Details:        e.Details,
	}
	ev.Signature = l.sign(ev)

	if err := l.store.Append(ctx, ev); err != nil {
		l.logger.WarnContext(ctx, "failed to store security event",
			logging.EventID(ev.ID), logging.Error(err))
	}

	l.emit(ctx, ev)
	metrics.SecurityEvents.WithLabelValues(string(ev.Type), string(ev.Severity)).Inc()

	if ev.Severity == SeverityCritical && l.notifier != nil {
		go l.side(ev, "notify critical security event", l.notifier.Notify)
	}
	for _, f := range l.forwarders {
		go l.side(ev, "forward security event", f.Forward)
	}
	return ev
}

func (l *Log) side(ev Event, what string, fn func(context.Context, Event) error) {
	ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
	defer cancel()
	if err := fn(ctx, ev); err != nil && !errors.Is(err, ErrThrottled) {
		l.logger.Warn("failed to "+what, logging.EventID(ev.ID), logging.Error(err))
	}
}

func (l *Log) emit(ctx context.Context, ev Event) {
	level := slog.LevelWarn
	if ev.Severity.Elevated() {
		level = slog.LevelError
	}
	attrs := []any{
		logging.EventID(ev.ID),
		logging.EventType(string(ev.Type)),
		logging.Severity(string(ev.Severity)),
		logging.Identity(ev.HashedIdentity),
	}
	if ev.SubjectID != "" {
		attrs = append(attrs, logging.SubjectID(ev.SubjectID))
	}
	if ev.Endpoint != "" {
		attrs = append(attrs, logging.Path(ev.Endpoint))
	}
	if len(ev.Details) > 0 {
		attrs = append(attrs, slog.Any("details", ev.Details))
	}
	l.logger.WithContext(ctx).Log(ctx, level, "security event", attrs...)
}

func (l *Log) sign(ev Event) string {
	data := []byte(string(ev.Type) + "|" + string(ev.Severity))
	return l.signer.Sign(ev.ID, ev.Timestamp, ev.HashedIdentity, data)
}

// Verify reports whether ev carries a valid signature for its id,
// timestamp, type, severity and hashed identity.
func (l *Log) Verify(ev Event) bool {
	data := []byte(string(ev.Type) + "|" + string(ev.Severity))
	return l.signer.Verify(ev.ID, ev.Timestamp, ev.HashedIdentity, data, ev.Signature)
}

// Query returns matching events, oldest first.
func (l *Log) Query(ctx context.Context, f Filter) ([]Event, error) {
	events, err := l.store.Events(ctx, f.Start)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	var hashed string
	if f.Identity != "" {
		hashed = l.hasher.Hash(f.Identity)
	}
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		if f.match(ev, hashed) {
			out = append(out, ev)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// Analyze looks for identities and subjects with repeated high or critical
// events over the last 24 hours, and ranks the event types seen.
func (l *Log) Analyze(ctx context.Context) (Analysis, error) {
	since := l.now().Add(-analysisWindow)
	events, err := l.store.Events(ctx, since)
	if err != nil {
		return Analysis{}, fmt.Errorf("load events: %w", err)
	}

	byIdentity := make(map[string]int)
	bySubject := make(map[string]int)
	byType := make(map[EventType]int)
	for _, ev := range events {
		byType[ev.Type]++
		if !ev.Severity.Elevated() {
			continue
		}
		byIdentity[ev.HashedIdentity]++
		if ev.SubjectID != "" {
			bySubject[ev.SubjectID]++
		}
	}

	a := Analysis{
		Since:                since,
		SuspiciousIdentities: []IdentityCount{},
		SuspiciousSubjects:   []SubjectCount{},
	}
	for id, n := range byIdentity {
		if n > l.cfg.IdentityThreshold {
			a.SuspiciousIdentities = append(a.SuspiciousIdentities, IdentityCount{HashedIdentity: id, Count: n})
		}
	}
	sort.Slice(a.SuspiciousIdentities, func(i, j int) bool {
		x, y := a.SuspiciousIdentities[i], a.SuspiciousIdentities[j]
		if x.Count != y.Count {
			return x.Count > y.Count
		}
		return x.HashedIdentity < y.HashedIdentity
	})
	for id, n := range bySubject {
		if n > l.cfg.SubjectThreshold {
			a.SuspiciousSubjects = append(a.SuspiciousSubjects, SubjectCount{SubjectID: id, Count: n})
		}
	}
	sort.Slice(a.SuspiciousSubjects, func(i, j int) bool {
		x, y := a.SuspiciousSubjects[i], a.SuspiciousSubjects[j]
		if x.Count != y.Count {
			return x.Count > y.Count
		}
		return x.SubjectID < y.SubjectID
	})
	a.CommonEventTypes = topTypes(byType, topTypesLimit)
	return a, nil
}

// Report summarises the events of the period ending now.
func (l *Log) Report(ctx context.Context, period Period) (Report, error) {
	end := l.now()
	start := end.Add(-period.Duration())
	events, err := l.store.Events(ctx, start)
	if err != nil {
		return Report{}, fmt.Errorf("load events: %w", err)
	}

	r := Report{
		Period:     period,
		Start:      start,
		End:        end,
		BySeverity: make(map[Severity]int, len(Severities)),
	}
	for _, s := range Severities {
		r.BySeverity[s] = 0
	}
	byType := make(map[EventType]int)
	subjects := make(map[string]struct{})
	identities := make(map[string]struct{})
	for _, ev := range events {
		r.TotalEvents++
		r.BySeverity[ev.Severity]++
		byType[ev.Type]++
		if ev.SubjectID != "" {
			subjects[ev.SubjectID] = struct{}{}
		}
		identities[ev.HashedIdentity] = struct{}{}
	}
	r.TopEventTypes = topTypes(byType, reportTopTypes)
	r.AffectedSubjects = len(subjects)
	r.AffectedIdentities = len(identities)
	return r, nil
}

// Prune removes events older than the retention window.
func (l *Log) Prune(ctx context.Context) (int, error) {
	cutoff := l.now().Add(-l.cfg.Retention)
	n, err := l.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

func topTypes(counts map[EventType]int, limit int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
