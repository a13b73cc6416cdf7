package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange, routed by type.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   zerolog.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string, logger zerolog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange declare: %w", err)
	}
	logger.Info().Str("exchange", exchange).Msg("amqp publisher ready")
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, logger zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange, logger: logger}
}

// Publish sends e as a persistent JSON message with the event type as routing key.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx,
		p.exchange,     // exchange
		string(e.Type), // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID.String(),
			Type:         string(e.Type),
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.OccurredAt,
		},
	)
	if err != nil {
		p.logger.Error().Err(err).Str("event", string(e.Type)).Msg("amqp publish failed")
		return fmt.Errorf("amqp publish: %w", err)
	}
	p.logger.Debug().Str("event", string(e.Type)).Str("event_id", e.ID.String()).Msg("amqp published")
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
