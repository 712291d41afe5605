package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is the JSON document published for each notification. A mail
// worker subscribed to the subject renders and delivers it.
type Event struct {
	To      string    `json:"to"`
	Kind    Kind      `json:"kind"`
	Payload Payload   `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSPublisher publishes notification events to a JetStream subject.
type NATSPublisher struct {
	conn    *nats.Conn
	js      jetStreamPublisher
	subject string
	now     func() time.Time
}

func NewNATSPublisher(url, subject string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}

	return &NATSPublisher{conn: nc, js: js, subject: subject, now: time.Now}, nil
}

func (p *NATSPublisher) Send(ctx context.Context, to string, kind Kind, payload Payload) error {
	data, err := json.Marshal(Event{To: to, Kind: kind, Payload: payload, SentAt: p.now().UTC()})
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(p.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

// Close drains the connection, falling back to a hard close.
func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
