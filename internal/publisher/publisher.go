package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/goldline/ratedesk/internal/metrics"
	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/logger"
	"github.com/goldline/ratedesk/pkg/model"
)

const envelopeVersion = "1.0.0"

// SnapshotSubject is the subject a snapshot for base is published on.
func SnapshotSubject(base model.CurrencyCode) string {
	return "evt.rates.snapshot.v1." + string(base)
}

// TradeSubject is the subject a trade mutation is published on.
func TradeSubject(op model.TradeOp) string {
	return fmt.Sprintf("evt.trade.%s.v1", op)
}

// jetStream is the part of nats.JetStreamContext the publisher needs.
type jetStream interface {
	PublishMsg(msg *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Publisher wraps a NATS connection and publishes canonical rate and trade events.
type Publisher struct {
	nc      *nats.Conn
	js      jetStream
	service string
}

// New creates a Publisher with JetStream enabled.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc, js: js, service: service}, nil
}

// Attach forwards snapshot and trade events from the bus to NATS.
func (p *Publisher) Attach(bus *eventbus.EventBus) {
	eventbus.Subscribe(bus, func(e model.SnapshotEvent) {
		_ = p.PublishSnapshot(context.Background(), e)
	})
	eventbus.Subscribe(bus, func(e model.TradeEvent) {
		_ = p.PublishTrade(context.Background(), e)
	})
}

// PublishSnapshot emits rates.snapshot.applied for e.Base.
func (p *Publisher) PublishSnapshot(ctx context.Context, e model.SnapshotEvent) error {
	return p.publishPayload(ctx, SnapshotSubject(e.Base), "rates.snapshot.applied", e)
}

// PublishTrade emits trade.<op>.
func (p *Publisher) PublishTrade(ctx context.Context, e model.TradeEvent) error {
	return p.publishPayload(ctx, TradeSubject(e.Op), "trade."+string(e.Op), e)
}

func (p *Publisher) publishPayload(ctx context.Context, subject, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         subject,
		EventType:     eventType,
		Version:       envelopeVersion,
		Timestamp:     time.Now().UTC(),
		Payload:       data,
	}
	return p.PublishEnvelope(ctx, subject, env)
}

// PublishEnvelope serializes and publishes a canonical event envelope to NATS.
func (p *Publisher) PublishEnvelope(_ context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
	)
	metrics.IncNATSMessage(subject, "ok")
	return nil
}

// HealthCheck reports whether the NATS connection is up.
func (p *Publisher) HealthCheck() error {
	if p.nc == nil || !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
