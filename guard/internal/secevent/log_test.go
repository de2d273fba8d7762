package secevent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahnavardnetwork/sos/common/logging"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IdentitySalt = "test-salt"
	cfg.SigningKey = "test-key"
	return cfg
}

func newTestLog(t *testing.T, clk *clock, opts ...Option) (*Log, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(100, 10)
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewLog(store, testConfig(), logging.Discard(), opts...), store
}

type failingStore struct{ MemoryStore }

func (*failingStore) Append(context.Context, Event) error {
	return errors.New("store down")
}

type recordingNotifier struct {
	ch chan Event
}

func (n *recordingNotifier) Notify(_ context.Context, ev Event) error {
	n.ch <- ev
	return nil
}

func TestLog_RecordHashesIdentity(t *testing.T) {
	clk := newClock()
	l, store := newTestLog(t, clk)

	ev := l.Record(context.Background(), Entry{
		Type:      TypeAuthFailure,
		Severity:  SeverityMedium,
		Identity:  "203.0.113.7",
		SubjectID: "rep-1",
		Endpoint:  "/api/rep/login",
		Details:   map[string]any{"reason": "bad password"},
	})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, clk.Now(), ev.Timestamp)
	assert.Len(t, ev.HashedIdentity, 16)
	assert.NotContains(t, ev.HashedIdentity, "203.0.113.7")
	assert.Equal(t, l.HashIdentity("203.0.113.7"), ev.HashedIdentity)
	assert.Equal(t, 1, store.Len())

	stored, err := store.Events(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, ev, stored[0])
}

func TestLog_RecordSurvivesStoreFailure(t *testing.T) {
	l := NewLog(&failingStore{}, testConfig(), logging.Discard())

	assert.NotPanics(t, func() {
		ev := l.Record(context.Background(), Entry{Type: TypeAuthFailure, Severity: SeverityLow, Identity: "x"})
		assert.NotEmpty(t, ev.ID)
	})
}

func TestLog_Verify(t *testing.T) {
	l, _ := newTestLog(t, newClock())
	ev := l.Record(context.Background(), Entry{Type: TypeCSRFViolation, Severity: SeverityHigh, Identity: "1.2.3.4"})

	assert.True(t, l.Verify(ev))

	tampered := ev
	tampered.Severity = SeverityLow
	assert.False(t, l.Verify(tampered))

	tampered = ev
	tampered.HashedIdentity = l.HashIdentity("5.6.7.8")
	assert.False(t, l.Verify(tampered))
}

func TestLog_CriticalEventsNotify(t *testing.T) {
	n := &recordingNotifier{ch: make(chan Event, 4)}
	l, _ := newTestLog(t, newClock(), WithNotifier(n))

	l.Record(context.Background(), Entry{Type: TypeAuthFailure, Severity: SeverityHigh, Identity: "a"})
	crit := l.Record(context.Background(), Entry{Type: TypeSessionHijackAttempt, Severity: SeverityCritical, Identity: "b"})

	select {
	case got := <-n.ch:
		assert.Equal(t, crit.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("critical event was not notified")
	}

	select {
	case got := <-n.ch:
		t.Fatalf("unexpected notification for %s", got.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLog_Query(t *testing.T) {
	clk := newClock()
	l, _ := newTestLog(t, clk)
	ctx := context.Background()

	start := clk.Now()
	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "1.1.1.1", SubjectID: "u1"})
	clk.Advance(time.Minute)
	l.Record(ctx, Entry{Type: TypeXSSAttempt, Severity: SeverityHigh, Identity: "2.2.2.2"})
	clk.Advance(time.Minute)
	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "1.1.1.1", SubjectID: "u2"})
	clk.Advance(time.Minute)
	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "3.3.3.3", SubjectID: "u1"})

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{name: "all", filter: Filter{}, want: 4},
		{name: "by type", filter: Filter{Type: TypeAuthFailure}, want: 3},
		{name: "by severity", filter: Filter{Severity: SeverityHigh}, want: 1},
		{name: "by raw identity", filter: Filter{Identity: "1.1.1.1"}, want: 2},
		{name: "by subject", filter: Filter{SubjectID: "u1"}, want: 2},
		{name: "start", filter: Filter{Start: start.Add(90 * time.Second)}, want: 2},
		{name: "end", filter: Filter{End: start.Add(90 * time.Second)}, want: 2},
		{name: "limit keeps latest", filter: Filter{Limit: 1}, want: 1},
		{name: "no match", filter: Filter{Identity: "9.9.9.9"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}

	latest, err := l.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, l.HashIdentity("3.3.3.3"), latest[0].HashedIdentity)
}

func TestLog_Analyze(t *testing.T) {
	clk := newClock()
	l, _ := newTestLog(t, clk)
	ctx := context.Background()

	// Outside the 24h window.
	for i := 0; i < 20; i++ {
		l.Record(ctx, Entry{Type: TypeSQLInjectionAttempt, Severity: SeverityCritical, Identity: "old"})
	}
	clk.Advance(25 * time.Hour)

	for i := 0; i < 11; i++ {
		l.Record(ctx, Entry{Type: TypeXSSAttempt, Severity: SeverityHigh, Identity: "noisy", SubjectID: "rep-7"})
	}
	for i := 0; i < 10; i++ {
		l.Record(ctx, Entry{Type: TypeCSRFViolation, Severity: SeverityHigh, Identity: "borderline"})
	}
	for i := 0; i < 30; i++ {
		l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "quiet", SubjectID: "rep-8"})
	}

	a, err := l.Analyze(ctx)
	require.NoError(t, err)

	require.Len(t, a.SuspiciousIdentities, 1)
	assert.Equal(t, l.HashIdentity("noisy"), a.SuspiciousIdentities[0].HashedIdentity)
	assert.Equal(t, 11, a.SuspiciousIdentities[0].Count)

	require.Len(t, a.SuspiciousSubjects, 1)
	assert.Equal(t, "rep-7", a.SuspiciousSubjects[0].SubjectID)

	require.Len(t, a.CommonEventTypes, 3)
	assert.Equal(t, TypeAuthFailure, a.CommonEventTypes[0].Type)
	assert.Equal(t, 30, a.CommonEventTypes[0].Count)
	assert.Equal(t, TypeXSSAttempt, a.CommonEventTypes[1].Type)
}

func TestLog_AnalyzeCapsEventTypes(t *testing.T) {
	l, _ := newTestLog(t, newClock())
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		l.Record(ctx, Entry{Type: EventType(fmt.Sprintf("type_%02d", i)), Severity: SeverityLow, Identity: "x"})
	}

	a, err := l.Analyze(ctx)
	require.NoError(t, err)
	assert.Len(t, a.CommonEventTypes, 10)
}

func TestLog_Report(t *testing.T) {
	clk := newClock()
	l, _ := newTestLog(t, clk)
	ctx := context.Background()

	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "a", SubjectID: "u1"})
	clk.Advance(3 * 24 * time.Hour)
	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityMedium, Identity: "a", SubjectID: "u1"})
	l.Record(ctx, Entry{Type: TypeRateLimitExceeded, Severity: SeverityMedium, Identity: "b"})
	l.Record(ctx, Entry{Type: TypeSessionHijackAttempt, Severity: SeverityCritical, Identity: "c", SubjectID: "u2"})

	day, err := l.Report(ctx, PeriodDay)
	require.NoError(t, err)
	assert.Equal(t, 3, day.TotalEvents)
	assert.Equal(t, map[Severity]int{SeverityLow: 0, SeverityMedium: 2, SeverityHigh: 0, SeverityCritical: 1}, day.BySeverity)
	assert.Equal(t, 2, day.AffectedSubjects)
	assert.Equal(t, 3, day.AffectedIdentities)
	assert.Len(t, day.TopEventTypes, 3)

	week, err := l.Report(ctx, PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, 4, week.TotalEvents)
	assert.Equal(t, TypeAuthFailure, week.TopEventTypes[0].Type)
	assert.Equal(t, 2, week.TopEventTypes[0].Count)
}

func TestLog_Prune(t *testing.T) {
	clk := newClock()
	l, store := newTestLog(t, clk)
	ctx := context.Background()

	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityLow, Identity: "a"})
	clk.Advance(91 * 24 * time.Hour)
	l.Record(ctx, Entry{Type: TypeAuthFailure, Severity: SeverityLow, Identity: "b"})

	n, err := l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Len())
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		in      string
		want    Period
		wantErr bool
	}{
		{in: "", want: PeriodDay},
		{in: "day", want: PeriodDay},
		{in: "week", want: PeriodWeek},
		{in: "month", want: PeriodMonth},
		{in: "year", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPeriod)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 30*24*time.Hour, PeriodMonth.Duration())
}
