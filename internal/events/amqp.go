package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/agenthands/docgraph/internal/core/model"
	"github.com/agenthands/docgraph/internal/logger"
)

const publishTimeout = 5 * time.Second

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes every status event to a topic exchange with the
// routing key "document.<phase>". Wrap it in Async; a publish can block.
type AMQPPublisher struct {
	ch       publisher
	conn     *amqp.Connection
	exchange string
}

// DialAMQP connects to the broker and declares the topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{ch: ch, conn: conn, exchange: exchange}, nil
}

func newAMQPPublisher(ch publisher, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

func RoutingKey(phase model.Phase) string {
	return "document." + string(phase)
}

func (p *AMQPPublisher) Notify(ev model.StatusEvent) {
	if err := p.Publish(context.Background(), ev); err != nil {
		logger.Warn("Failed to publish status event", "phase", ev.Phase, "document_id", ev.DocumentID, "err", err)
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev model.StatusEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Phase), false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Transient,
		Timestamp:    ev.Time,
		MessageId:    ev.DocumentID + ":" + string(ev.Phase),
	})
}

func (p *AMQPPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
