// Package amqpbus carries courier notifications over a RabbitMQ topic
// exchange, one routing key per courier channel.
package amqpbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/logx"
)

// Exchange is the topic exchange every courier channel is routed through.
const Exchange = bus.ChannelPrefix

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("publish nacked by broker")

// Bus publishes with confirms and consumes through an exclusive queue.
type Bus struct {
	conn   *amqp.Connection
	logger logx.Logger

	mu   sync.Mutex
	ch   *amqp.Channel
	acks <-chan amqp.Confirmation
}

// Dial connects to uri, declares the exchange and enables publisher
// confirms.
func Dial(uri string, logger logx.Logger) (*Bus, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := declare(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	return &Bus{
		conn:   conn,
		ch:     ch,
		acks:   ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger: logx.Component(logger, "amqpbus"),
	}, nil
}

func declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return nil
}

// Publish sends msg routed by channel and waits for the broker confirm.
// Publishes are serialized so that confirms match their message.
func (b *Bus) Publish(ctx context.Context, channel string, msg bus.Message) error {
	data, err := bus.Encode(msg)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.ch.PublishWithContext(ctx, Exchange, channel, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Type,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", channel, err)
	}
	return awaitConfirm(ctx, b.acks)
}

func awaitConfirm(ctx context.Context, acks <-chan amqp.Confirmation) error {
	select {
	case conf, ok := <-acks:
		if !ok {
			return amqp.ErrClosed
		}
		if !conf.Ack {
			return fmt.Errorf("delivery tag %d: %w", conf.DeliveryTag, ErrNacked)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe binds a server-named exclusive queue to every courier channel
// and consumes it until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, h bus.Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()
	if err := declare(ch); err != nil {
		return err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "#", Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q.Name, err)
	}
	closed := ch.NotifyClose(make(chan *amqp.Error, 1))
	b.logger.Info("subscribed", logx.String("queue", q.Name))

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-closed:
			if ok && e != nil {
				return fmt.Errorf("amqp channel closed: %w", e)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			b.deliver(ctx, h, d.RoutingKey, d.Body)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, h bus.Handler, channel string, body []byte) {
	if _, ok := bus.CourierFromChannel(channel); !ok {
		b.logger.Debug("routing key is not a courier channel", logx.String("routingKey", channel))
		return
	}
	if err := bus.Deliver(ctx, h, channel, body); err != nil {
		b.logger.Warn("bus message not handled", logx.String("channel", channel), logx.Err(err))
	}
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	return b.conn.Close()
}

var (
	_ bus.Publisher  = (*Bus)(nil)
	_ bus.Subscriber = (*Bus)(nil)
)
