package secevent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahnavardnetwork/sos/common/config"
	"github.com/rahnavardnetwork/sos/common/messaging"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (p *fakePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func TestMessagingNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMessagingNotifier(pub, DefaultNotifierConfig())

	ev := Event{ID: "e1", Type: TypeSessionHijackAttempt, Severity: SeverityCritical, HashedIdentity: "abcd"}
	require.NoError(t, n.Notify(context.Background(), ev))

	require.Len(t, pub.msgs, 1)
	msg := pub.msgs[0]
	assert.Equal(t, messaging.SubjectSecurityEventsCritical, msg.Subject)
	assert.Equal(t, "session_hijack_attempt", msg.Metadata[messaging.HeaderEventType])
	assert.Equal(t, "critical", msg.Metadata[messaging.HeaderSeverity])

	var got Event
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "e1", got.ID)
}

func TestMessagingNotifier_Throttles(t *testing.T) {
	pub := &fakePublisher{}
	n := NewMessagingNotifier(pub, NotifierConfig{Rate: 0.001, Burst: 2})

	ctx := context.Background()
	require.NoError(t, n.Notify(ctx, Event{ID: "1"}))
	require.NoError(t, n.Notify(ctx, Event{ID: "2"}))
	assert.ErrorIs(t, n.Notify(ctx, Event{ID: "3"}), ErrThrottled)
	assert.Len(t, pub.msgs, 2)
}

func TestMessagingNotifier_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats down")}
	n := NewMessagingNotifier(pub, DefaultNotifierConfig())

	err := n.Notify(context.Background(), Event{ID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats down")
}

func newMockOpenSearch(t *testing.T, indexed chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/" {
			w.Write([]byte(`{"name":"node","cluster_name":"test","version":{"number":"2.11.0"}}`))
			return
		}
		if r.Method == http.MethodPut || r.Method == http.MethodPost {
			indexed <- r.URL.Path
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"result":"created"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenSearchForwarder_Forward(t *testing.T) {
	indexed := make(chan string, 1)
	srv := newMockOpenSearch(t, indexed)

	f, err := NewOpenSearchForwarder(config.OpenSearchConfig{URL: srv.URL, Index: "sos-security-events"})
	require.NoError(t, err)

	require.NoError(t, f.Forward(context.Background(), Event{ID: "evt-1", Type: TypeXSSAttempt}))
	assert.Equal(t, "/sos-security-events/_doc/evt-1", <-indexed)
}

func TestOpenSearchForwarder_WiredIntoLog(t *testing.T) {
	indexed := make(chan string, 1)
	srv := newMockOpenSearch(t, indexed)

	f, err := NewOpenSearchForwarder(config.OpenSearchConfig{URL: srv.URL, Index: "events"})
	require.NoError(t, err)

	l, _ := newTestLog(t, newClock(), WithForwarder(f))
	ev := l.Record(context.Background(), Entry{Type: TypeAuthFailure, Severity: SeverityLow, Identity: "x"})

	select {
	case path := <-indexed:
		assert.Equal(t, "/events/_doc/"+ev.ID, path)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded")
	}
}

func TestNewOpenSearchForwarder_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewOpenSearchForwarder(config.OpenSearchConfig{URL: srv.URL, Index: "events"})
	assert.Error(t, err)
}
