package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

// Exchange is the fanout exchange remote push workers bind to.
const Exchange = "notifications_fanout"

const publishTimeout = 5 * time.Second

// publisher is the subset of *amqp.Channel used for publishing.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPChannel publishes notifications to RabbitMQ for remote delivery.
type AMQPChannel struct {
	url string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	pub  publisher
}

// DialAMQP connects to url and declares the notifications exchange.
func DialAMQP(url string) (*AMQPChannel, error) {
	a := &AMQPChannel{url: url}
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *AMQPChannel) connect() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	a.conn, a.ch, a.pub = conn, ch, ch
	return nil
}

// ScheduleLocal publishes n as JSON. A closed connection is re-dialed once.
func (a *AMQPChannel) ScheduleLocal(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.publish(ctx, body)
	if errors.Is(err, amqp.ErrClosed) && a.url != "" {
		log.Warn().Msg("notify: rabbitmq connection closed, reconnecting")
		if err := a.connect(); err != nil {
			return err
		}
		err = a.publish(ctx, body)
	}
	return err
}

func (a *AMQPChannel) publish(ctx context.Context, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return a.pub.PublishWithContext(ctx,
		Exchange, // exchange
		"",       // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		})
}

// Close closes the channel and connection.
func (a *AMQPChannel) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	if a.ch != nil && !a.ch.IsClosed() {
		errs = append(errs, a.ch.Close())
	}
	if a.conn != nil && !a.conn.IsClosed() {
		errs = append(errs, a.conn.Close())
	}
	return errors.Join(errs...)
}
