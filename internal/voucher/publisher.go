package voucher

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/goldline/ratedesk/internal/metrics"
	"github.com/goldline/ratedesk/pkg/eventbus"
	"github.com/goldline/ratedesk/pkg/model"
)

// RoutingKeyPrefix is prepended to the trade op to form the routing key.
const RoutingKeyPrefix = "vouchers.trades."

// RoutingKey returns the queue a trade mutation is routed to.
func RoutingKey(op model.TradeOp) string { return RoutingKeyPrefix + string(op) }

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher hands persisted trades to the voucher generator over RabbitMQ.
type Publisher struct {
	conn    *amqp.Connection
	channel channel
	logger  *zap.Logger
}

// NewPublisher dials url and subscribes to trade events on bus.
func NewPublisher(url string, bus *eventbus.EventBus, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p := &Publisher{conn: conn, channel: ch, logger: logger}
	p.subscribe(bus)
	return p, nil
}

func (p *Publisher) subscribe(bus *eventbus.EventBus) {
	if bus == nil {
		return
	}
	eventbus.Subscribe(bus, func(e model.TradeEvent) {
		_ = p.PublishTrade(context.Background(), e)
	})
}

// PublishTrade publishes e on vouchers.trades.<op>. Deletions go out with
// raised priority so voucher cancellation overtakes pending generation.
func (p *Publisher) PublishTrade(ctx context.Context, e model.TradeEvent) error {
	if e.Trade.OrderID == "" {
		p.logger.Error("voucher.missing_order_id", zap.String("op", string(e.Op)))
		return fmt.Errorf("voucher: trade event without order id")
	}

	body, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("voucher.marshal_failed", zap.Error(err))
		metrics.IncError("voucher", "marshal_failed")
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.Trade.OrderID,
		Timestamp:    e.Timestamp,
		Body:         body,
	}
	if e.Op == model.TradeRemoved {
		msg.Priority = 10
	}

	key := RoutingKey(e.Op)
	if err := p.channel.PublishWithContext(ctx,
		"",    // exchange
		key,   // routing key
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		p.logger.Error("voucher.publish_failed",
			zap.String("routing_key", key),
			zap.String("order_id", e.Trade.OrderID),
			zap.Error(err))
		metrics.IncError("voucher", "publish_failed")
		return err
	}

	p.logger.Info("voucher.published",
		zap.String("routing_key", key),
		zap.String("order_id", e.Trade.OrderID))
	return nil
}

// Close closes the publisher
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
