package secevent

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rahnavardnetwork/sos/common/messaging"
	"github.com/rahnavardnetwork/sos/guard/internal/metrics"
)

// NotifierConfig bounds the rate of critical-event notifications.
type NotifierConfig struct {
	Subject string  `mapstructure:"subject"`
	Rate    float64 `mapstructure:"rate"`
	Burst   int     `mapstructure:"burst"`
}

func DefaultNotifierConfig() NotifierConfig {
	return NotifierConfig{
		Subject: messaging.SubjectSecurityEventsCritical,
		Rate:    5,
		Burst:   20,
	}
}

// MessagingNotifier publishes critical events to the message bus. A burst
// of critical events past the limiter is dropped, not queued.
type MessagingNotifier struct {
	pub     messaging.Publisher
	subject string
	limiter *rate.Limiter
}

func NewMessagingNotifier(pub messaging.Publisher, cfg NotifierConfig) *MessagingNotifier {
	subject := cfg.Subject
	if subject == "" {
		subject = messaging.SubjectSecurityEventsCritical
	}
	return &MessagingNotifier{
		pub:     pub,
		subject: subject,
		limiter: rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst),
	}
}

func (n *MessagingNotifier) Notify(ctx context.Context, ev Event) error {
	if !n.limiter.Allow() {
		metrics.NotificationsDropped.Inc()
		return ErrThrottled
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := messaging.NewMessage(n.subject, data,
		messaging.WithHeader(messaging.HeaderEventType, string(ev.Type)),
		messaging.WithHeader(messaging.HeaderSeverity, string(ev.Severity)),
	)
	if err := n.pub.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	return nil
}
