// Package nats publishes guard notifications over a core NATS connection.
package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rahnavardnetwork/sos/common/config"
	"github.com/rahnavardnetwork/sos/common/logging"
	"github.com/rahnavardnetwork/sos/common/messaging"
)

const (
	connectTimeout = 5 * time.Second
	drainTimeout   = 3 * time.Second
)

// Client is a messaging.Publisher over one NATS connection.
type Client struct {
	conn *nats.Conn
}

// NewClient connects to cfg.URL. Disconnects and reconnects are logged
// through logger; publishing while disconnected buffers in the NATS client.
func NewClient(cfg config.NATSConfig, name string, logger *logging.Logger) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.DrainTimeout(drainTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	return c.PublishMsg(ctx, messaging.NewMessage(subject, data))
}

// PublishMsg copies msg.Metadata into NATS headers.
func (c *Client) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := nats.NewMsg(msg.Subject)
	out.Data = msg.Data
	for k, v := range msg.Metadata {
		out.Header.Set(k, v)
	}
	return c.conn.PublishMsg(out)
}

// Close drains pending publishes, giving up after the drain timeout.
func (c *Client) Close() error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
