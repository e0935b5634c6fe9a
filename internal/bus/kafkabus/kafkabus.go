// Package kafkabus carries courier notifications over a kafka topic keyed
// by channel.
package kafkabus

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/logx"
)

// Topic carries every courier channel.
const Topic = bus.ChannelPrefix

const defaultGroup = "courier-simulator"

var (
	newConsumerGroup = sarama.NewConsumerGroup
	newSyncProducer  = sarama.NewSyncProducer
)

// Endpoint is a parsed kafka:// bus uri.
type Endpoint struct {
	Brokers []string
	Group   string
}

// ParseURI reads kafka://host:port[,host:port][?group=name].
func ParseURI(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse kafka uri: %w", err)
	}
	if u.Scheme != "kafka" {
		return Endpoint{}, fmt.Errorf("kafka uri scheme %q: %w", u.Scheme, apperr.ErrInvalid)
	}
	var brokers []string
	for _, b := range strings.Split(u.Host, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return Endpoint{}, fmt.Errorf("kafka uri without brokers: %w", apperr.ErrInvalid)
	}
	group := u.Query().Get("group")
	if group == "" {
		group = defaultGroup
	}
	return Endpoint{Brokers: brokers, Group: group}, nil
}

// Publisher sends each message synchronously, keyed by channel.
type Publisher struct {
	producer sarama.SyncProducer
	logger   logx.Logger
}

// NewPublisher connects a sync producer to the brokers of uri.
func NewPublisher(uri string, logger logx.Logger) (*Publisher, error) {
	ep, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3

	producer, err := newSyncProducer(ep.Brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return &Publisher{producer: producer, logger: logx.Component(logger, "kafkabus")}, nil
}

func (p *Publisher) Publish(_ context.Context, channel string, msg bus.Message) error {
	data, err := bus.Encode(msg)
	if err != nil {
		return err
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: Topic,
		Key:   sarama.StringEncoder(channel),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", channel, err)
	}
	p.logger.Debug("kafka message sent",
		logx.String("channel", channel),
		logx.Int("partition", int(partition)),
		logx.Int64("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error { return p.producer.Close() }

// Subscriber reads the topic through a consumer group.
type Subscriber struct {
	group  sarama.ConsumerGroup
	logger logx.Logger
}

// NewSubscriber joins the consumer group named in uri.
func NewSubscriber(uri string, logger logx.Logger) (*Subscriber, error) {
	ep, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	cfg := sarama.NewConfig()
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	group, err := newConsumerGroup(ep.Brokers, ep.Group, cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{group: group, logger: logx.Component(logger, "kafkabus")}, nil
}

// Subscribe consumes until ctx is done.
func (s *Subscriber) Subscribe(ctx context.Context, h bus.Handler) error {
	gh := &groupHandler{logger: s.logger, handler: h}
	for {
		if err := s.group.Consume(ctx, []string{Topic}, gh); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("kafka consume error", logx.Err(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Subscriber) Close() error { return s.group.Close() }

type groupHandler struct {
	logger  logx.Logger
	handler bus.Handler
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every message, handled or not; the bus is best effort.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		channel := string(msg.Key)
		if _, ok := bus.CourierFromChannel(channel); !ok {
			h.logger.Warn("kafka message without courier channel", logx.String("key", channel), logx.Int64("offset", msg.Offset))
			sess.MarkMessage(msg, "")
			continue
		}
		if err := bus.Deliver(sess.Context(), h.handler, channel, msg.Value); err != nil {
			h.logger.Warn("kafka handle failed, skipping message", logx.String("channel", channel), logx.Err(err))
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}

var (
	_ bus.Publisher  = (*Publisher)(nil)
	_ bus.Subscriber = (*Subscriber)(nil)
)
