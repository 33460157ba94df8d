package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-vms-monitor/internal/config"
	"github.com/technosupport/ts-vms-monitor/internal/data"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, payload []byte) error
	Drain() error
}

// NATSPublisher publishes events on <subject>.<event type>.
type NATSPublisher struct {
	conn       Conn
	subject    string
	maxRetries int
	backoff    time.Duration
}

func NewNATSPublisher(conn Conn, subject string, maxRetries int) *NATSPublisher {
	return &NATSPublisher{
		conn:       conn,
		subject:    subject,
		maxRetries: maxRetries,
		backoff:    100 * time.Millisecond,
	}
}

// DialNATS connects with reconnects left to the nats client.
func DialNATS(cfg config.NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("ts-vms-monitor"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	return NewNATSPublisher(nc, cfg.Subject, cfg.MaxRetries), nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Subject(evt data.DomainEvent) string {
	if evt.Type == "" {
		return p.subject
	}
	return p.subject + "." + evt.Type
}

func (p *NATSPublisher) Publish(evt data.DomainEvent) error {
	payload, err := encode(evt)
	if err != nil {
		return err
	}

	subj := p.Subject(evt)
	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subj, payload)
		if err == nil {
			return nil
		}

		// Backoff
		time.Sleep(time.Duration(i) * p.backoff)
	}

	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
