package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/bus/amqpbus"
	"delivery-orchestrator/internal/bus/kafkabus"
	"delivery-orchestrator/internal/bus/redisbus"
	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/repository"
	"delivery-orchestrator/internal/repository/mongorepo"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/store/memstore"
)

// StoreOpener opens the backend named by the store URI.
type StoreOpener func(ctx context.Context, cfg config.Store, logger logx.Logger) (store.Store, error)

// PublisherOpener opens the notification bus publisher.
type PublisherOpener func(ctx context.Context, cfg config.Bus, logger logx.Logger) (bus.Publisher, error)

// SubscriberOpener opens a subscriber on every courier channel; it returns
// nil when no bus is configured.
type SubscriberOpener func(ctx context.Context, cfg config.Bus, logger logx.Logger) (bus.Subscriber, error)

const storeAttemptTimeout = 15 * time.Second

func openStore(ctx context.Context, cfg config.Store, logger logx.Logger) (store.Store, error) {
	switch cfg.Scheme() {
	case "memory":
		return memstore.New(), nil
	case "postgres", "postgresql":
		st, err := repository.Open(ctx, cfg.URI, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "mongodb", "mongodb+srv":
		st, err := mongorepo.Open(ctx, cfg.URI, cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, usageError("STORE_URI: unsupported scheme %q", cfg.Scheme())
	}
}

// connectStoreWithRetry opens the store, retrying up to cfg.ConnectRetries
// times with backoff. Exhausted retries are reported as unavailable.
func connectStoreWithRetry(ctx context.Context, open StoreOpener, cfg config.Store, logger logx.Logger) (store.Store, error) {
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}
	var lastErr error
	for i := 1; i <= retries; i++ {
		attemptCtx, cancel := context.WithTimeout(ctx, storeAttemptTimeout)
		st, err := open(attemptCtx, cfg, logger)
		cancel()
		if err == nil {
			logger.Info("store connected", logx.String("scheme", cfg.Scheme()), logx.Int("attempt", i))
			return st, nil
		}
		if errors.Is(err, ErrConfig) {
			return nil, err
		}
		lastErr = err
		logger.Warn("store connect failed",
			logx.Int("attempt", i),
			logx.Int("retries", retries),
			logx.Err(err),
		)
		if i < retries && !store.SleepContext(ctx, store.Backoff(cfg.RetryBase, cfg.RetryMax, i)) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("store connect failed after %d attempts: %w", retries, apperr.Unavailable(lastErr))
}

func openPublisher(ctx context.Context, cfg config.Bus, logger logx.Logger) (bus.Publisher, error) {
	switch cfg.Scheme() {
	case "":
		logger.Info("bus disabled, notifications are stored only")
		return bus.Nop{}, nil
	case "redis", "rediss":
		return redisbus.New(ctx, cfg.URI, logger)
	case "kafka":
		return kafkabus.NewPublisher(cfg.URI, logger)
	case "amqp", "amqps":
		return amqpbus.Dial(cfg.URI, logger)
	default:
		return nil, usageError("BUS_URI: unsupported scheme %q", cfg.Scheme())
	}
}

func openSubscriber(ctx context.Context, cfg config.Bus, logger logx.Logger) (bus.Subscriber, error) {
	switch cfg.Scheme() {
	case "":
		return nil, nil
	case "redis", "rediss":
		return redisbus.New(ctx, cfg.URI, logger)
	case "kafka":
		return kafkabus.NewSubscriber(cfg.URI, logger)
	case "amqp", "amqps":
		return amqpbus.Dial(cfg.URI, logger)
	default:
		return nil, usageError("BUS_URI: unsupported scheme %q", cfg.Scheme())
	}
}
