package ipblock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// permanentDuration is what edge blockers receive for permanent blocks.
const permanentDuration = "permanent"

// BlockMessage is published to the blocking exchange for edge firewalls.
type BlockMessage struct {
	IPs      []string `json:"ips"`
	Duration string   `json:"duration"`
	Reason   string   `json:"reason"`
}

// AMQPBroadcaster fans block decisions out to edge blockers through a
// RabbitMQ fanout exchange.
type AMQPBroadcaster struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewAMQPBroadcaster dials url and declares a durable fanout exchange.
func NewAMQPBroadcaster(url, exchange string) (*AMQPBroadcaster, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}
	return &AMQPBroadcaster{conn: conn, ch: ch, exchange: exchange}, nil
}

// NewBlockMessage converts a Record into the edge blocker wire format.
func NewBlockMessage(rec Record) BlockMessage {
	duration := permanentDuration
	if !rec.Permanent {
		duration = rec.Until.Sub(rec.BlockedAt).String()
	}
	return BlockMessage{IPs: []string{rec.Identity}, Duration: duration, Reason: rec.Reason}
}

func (b *AMQPBroadcaster) BlockPlaced(ctx context.Context, rec Record) error {
	body, err := json.Marshal(NewBlockMessage(rec))
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.BlockedAt,
		Body:         body,
	})
}

func (b *AMQPBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_ = b.ch.Close()
	return b.conn.Close()
}
