package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/technosupport/ts-vms-monitor/internal/data"
	"github.com/technosupport/ts-vms-monitor/internal/metrics"
)

// Publisher forwards a decoded domain event to an external sink.
type Publisher interface {
	Name() string
	Publish(evt data.DomainEvent) error
	Close() error
}

// Envelope is the payload written to every sink.
type Envelope struct {
	Source string           `json:"source"`
	Event  data.DomainEvent `json:"event"`
	Meta   data.EventMeta   `json:"meta"`
}

func encode(evt data.DomainEvent) ([]byte, error) {
	b, err := json.Marshal(Envelope{Source: "ts-vms-monitor", Event: evt, Meta: evt.Meta()})
	if err != nil {
		return nil, fmt.Errorf("marshal error: %w", err)
	}
	return b, nil
}

// Fanout publishes to every sink. A failing sink does not stop the others.
type Fanout struct {
	sinks []Publisher
	log   *zap.Logger
}

func NewFanout(log *zap.Logger, sinks ...Publisher) *Fanout {
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Len() int { return len(f.sinks) }

// Publish returns the joined sink errors, if any.
func (f *Fanout) Publish(evt data.DomainEvent) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(evt); err != nil {
			metrics.RelayPublishTotal.WithLabelValues(s.Name(), "error").Inc()
			f.log.Warn("event relay failed",
				zap.String("sink", s.Name()),
				zap.String("event_id", evt.ID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.RelayPublishTotal.WithLabelValues(s.Name(), "ok").Inc()
	}
	return errors.Join(errs...)
}

// OnEvent adapts Publish to a hub subscriber callback.
func (f *Fanout) OnEvent(evt data.DomainEvent) {
	_ = f.Publish(evt)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
