// Package redisbus carries courier notifications over Redis pub/sub.
package redisbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/logx"
)

// Bus publishes and pattern-subscribes on courier channels.
type Bus struct {
	client *redis.Client
	logger logx.Logger
}

// New connects to the redis:// uri.
func New(ctx context.Context, uri string, logger logx.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis uri: %w", err)
	}
	b := NewWithClient(redis.NewClient(opts), logger)
	if err := b.client.Ping(ctx).Err(); err != nil {
		_ = b.client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return b, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger logx.Logger) *Bus {
	return &Bus{client: client, logger: logx.Component(logger, "redisbus")}
}

func (b *Bus) Publish(ctx context.Context, channel string, msg bus.Message) error {
	data, err := bus.Encode(msg)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe receives every courier channel until ctx is done.
func (b *Bus) Subscribe(ctx context.Context, h bus.Handler) error {
	ps := b.client.PSubscribe(ctx, bus.ChannelPrefix+":*")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis psubscribe: %w", err)
	}
	b.logger.Info("subscribed", logx.String("pattern", bus.ChannelPrefix+":*"))

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			if err := bus.Deliver(ctx, h, m.Channel, []byte(m.Payload)); err != nil {
				b.logger.Warn("bus message not handled", logx.String("channel", m.Channel), logx.Err(err))
			}
		}
	}
}

func (b *Bus) Close() error { return b.client.Close() }

var (
	_ bus.Publisher  = (*Bus)(nil)
	_ bus.Subscriber = (*Bus)(nil)
)
