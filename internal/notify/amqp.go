package notify

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher is the part of *amqp.Channel the sink uses.
type AMQPPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink fans events out to a topic exchange, one message per event with
// the topic as routing key.
type AMQPSink struct {
	ch       AMQPPublisher
	exchange string
}

func NewAMQPSink(ch AMQPPublisher, exchange string) *AMQPSink {
	return &AMQPSink{ch: ch, exchange: exchange}
}

func (s *AMQPSink) Publish(ctx context.Context, events []Event) error {
	for _, ev := range events {
		err := s.ch.PublishWithContext(ctx,
			s.exchange, // exchange
			ev.Topic,   // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				DeliveryMode: amqp.Transient,
				ContentType:  "application/json",
				Body:         ev.Payload,
				Timestamp:    ev.At,
			})
		if err != nil {
			return fmt.Errorf("publish %s: %w", ev.Topic, err)
		}
	}
	return nil
}

// DialAMQP opens a connection and channel and declares the topic exchange.
// The caller closes the returned connection.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
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
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}
