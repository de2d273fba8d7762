package ipblock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahnavardnetwork/sos/common/messaging"
)

type capturePublisher struct {
	msgs []*messaging.Message
}

func (p *capturePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return p.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

func (p *capturePublisher) PublishMsg(_ context.Context, msg *messaging.Message) error {
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func TestMessagingListener_HashesIdentity(t *testing.T) {
	pub := &capturePublisher{}
	hash := func(s string) string {
		sum := sha256.Sum256([]byte("salt:" + s))
		return hex.EncodeToString(sum[:])
	}
	l := NewMessagingListener(pub, hash)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	err := l.BlockPlaced(context.Background(), Record{
		Identity:  "203.0.113.9",
		Reason:    ReasonTooManyFailures,
		BlockedAt: at,
		Until:     at.Add(time.Hour),
	})
	require.NoError(t, err)

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, messaging.SubjectSecurityBlocksCreated, pub.msgs[0].Subject)
	assert.NotContains(t, string(pub.msgs[0].Data), "203.0.113.9")

	var notice BlockNotice
	require.NoError(t, json.Unmarshal(pub.msgs[0].Data, &notice))
	assert.Equal(t, hash("203.0.113.9"), notice.HashedIdentity)
	assert.Len(t, notice.HashedIdentity, 64)
	assert.Equal(t, ReasonTooManyFailures, notice.Reason)
	assert.False(t, notice.Permanent)
}
