// Package natspub publishes outbox entries to NATS. The subject carries
// the event name and the Nats-Msg-Id header carries the outbox id, so
// JetStream consumers deduplicate redeliveries for free.
package natspub

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/plaenen/commercecore/pkg/domain"
	"github.com/plaenen/commercecore/pkg/store"
)

// SubjectPrefix roots every published subject, e.g.
// commerce.events.variant.created.
const SubjectPrefix = "commerce.events"

// MsgIDHeader is the standard NATS deduplication header.
const MsgIDHeader = "Nats-Msg-Id"

// defaultFlushTimeout bounds the broker round-trip when the caller's
// context carries no deadline.
const defaultFlushTimeout = 5 * time.Second

// Publisher delivers outbox entries over a NATS connection.
type Publisher struct {
	conn *nats.Conn
}

// New wraps an existing connection.
func New(conn *nats.Conn) *Publisher {
	return &Publisher{conn: conn}
}

// Connect dials url and returns a publisher over the new connection.
func Connect(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("commercecore-outbox"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish sends one entry. The full event document rides as the payload;
// the outbox id rides as the message id.
func (p *Publisher) Publish(ctx context.Context, entry *store.OutboxEntry) error {
	msg := nats.NewMsg(SubjectPrefix + "." + entry.EventName)
	msg.Header.Set(MsgIDHeader, entry.ID)
	msg.Data = entry.Payload

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrExternalDelivery)
	}
	// Flush so a broker outage surfaces as a delivery failure instead of
	// silently buffering in the client. The processor polls with a plain
	// background context, so derive a timeout rather than requiring the
	// context to carry a deadline.
	timeout := defaultFlushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrExternalDelivery)
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
