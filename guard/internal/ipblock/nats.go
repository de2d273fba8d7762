package ipblock

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rahnavardnetwork/sos/common/messaging"
)

// BlockNotice is the internal bus announcement of a new block. The
// identity is hashed; the bus is not a firewall feed.
type BlockNotice struct {
	HashedIdentity string    `json:"hashed_identity"`
	Reason         string    `json:"reason"`
	BlockedAt      time.Time `json:"blocked_at"`
	Until          time.Time `json:"until"`
	Permanent      bool      `json:"permanent"`
	Escalations    int       `json:"escalations"`
}

// MessagingListener publishes block notices on the message bus.
type MessagingListener struct {
	pub     messaging.Publisher
	subject string
	hash    func(string) string
}

// NewMessagingListener publishes to messaging.SubjectSecurityBlocksCreated.
// hash is applied to the identity before it leaves the process.
func NewMessagingListener(pub messaging.Publisher, hash func(string) string) *MessagingListener {
	return &MessagingListener{pub: pub, subject: messaging.SubjectSecurityBlocksCreated, hash: hash}
}

func (l *MessagingListener) BlockPlaced(ctx context.Context, rec Record) error {
	body, err := json.Marshal(BlockNotice{
		HashedIdentity: l.hash(rec.Identity),
		Reason:         rec.Reason,
		BlockedAt:      rec.BlockedAt,
		Until:          rec.Until,
		Permanent:      rec.Permanent,
		Escalations:    rec.Escalations,
	})
	if err != nil {
		return fmt.Errorf("marshal block notice: %w", err)
	}
	return l.pub.PublishMsg(ctx, messaging.NewMessage(l.subject, body,
		messaging.WithHeader("X-Block-Reason", rec.Reason),
	))
}
