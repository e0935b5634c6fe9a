// Package config loads settings in order: .env (if present), environment,
// then command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config is the whole process configuration.
type Config struct {
	Store     Store
	Bus       Bus
	HTTP      HTTP
	Log       Log
	Dispatch  Dispatch
	Watch     Watch
	Sweep     Sweep
	Simulator Simulator
}

// Store selects and tunes the document store backend.
type Store struct {
	URI            string        `env:"STORE_URI"`
	DB             string        `env:"STORE_DB"`
	RetryBase      time.Duration `env:"STORE_RETRY_BASE"`
	RetryMax       time.Duration `env:"STORE_RETRY_MAX"`
	ConnectRetries int           `env:"STORE_CONNECT_RETRIES"`
}

// Scheme returns the lower-cased scheme of URI.
func (s Store) Scheme() string {
	return scheme(s.URI)
}

// Bus selects the notification bus; empty disables publishing.
type Bus struct {
	URI string `env:"BUS_URI"`
}

// Scheme returns the lower-cased scheme of URI, "" when unset.
func (b Bus) Scheme() string {
	return scheme(b.URI)
}

// HTTP is the ops server.
type HTTP struct {
	Addr string `env:"HTTP_ADDR"`
	// InspectRate and InspectBurst bound GET /orders/{orderNo} per client.
	InspectRate  float64 `env:"HTTP_INSPECT_RATE"`
	InspectBurst int     `env:"HTTP_INSPECT_BURST"`
	PprofUser    string  `env:"PPROF_USER"`
	PprofPass    string  `env:"PPROF_PASS"`
}

// Enabled reports whether the ops server should listen.
func (h HTTP) Enabled() bool {
	a := strings.TrimSpace(h.Addr)
	return a != "" && a != "off" && a != "-"
}

// Log tunes the logger.
type Log struct {
	Level  string `env:"LOG_LEVEL"`
	Format string `env:"LOG_FORMAT"`
}

// Dispatch bounds the restaurant and courier negotiation.
type Dispatch struct {
	FanOut          int   `env:"COURIER_FAN_OUT"`
	MaxWaves        int   `env:"MAX_DISPATCH_WAVES"`
	RestaurantTTLms int64 `env:"RESTAURANT_TTL_MS"`
	CourierTTLms    int64 `env:"COURIER_TTL_MS"`
}

// RestaurantTTL is how long a restaurant may leave a request unanswered.
func (d Dispatch) RestaurantTTL() time.Duration {
	return time.Duration(d.RestaurantTTLms) * time.Millisecond
}

// CourierTTL is how long a courier may leave an offer unanswered.
func (d Dispatch) CourierTTL() time.Duration {
	return time.Duration(d.CourierTTLms) * time.Millisecond
}

// Watch tunes the change-feed consumer.
type Watch struct {
	Partitions    int           `env:"WATCH_PARTITIONS"`
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE"`
}

// Sweep tunes the TTL sweeper.
type Sweep struct {
	Interval time.Duration `env:"SWEEP_INTERVAL"`
}

// Simulator drives the external collaborators of cmd/simulator.
type Simulator struct {
	RestaurantAcceptRate float64       `env:"RESTAURANT_ACCEPT_RATE"`
	CourierAcceptRate    float64       `env:"COURIER_ACCEPT_RATE"`
	ReplyDelayMin        time.Duration `env:"SIM_REPLY_DELAY_MIN"`
	ReplyDelayMax        time.Duration `env:"SIM_REPLY_DELAY_MAX"`
	DeliveryDuration     time.Duration `env:"SIM_DELIVERY_DURATION"`
	SeedCouriers         int           `env:"SIM_SEED_COURIERS"`
	SeedRestaurants      int           `env:"SIM_SEED_RESTAURANTS"`
	OrderInterval        time.Duration `env:"SIM_ORDER_INTERVAL"`
	Orders               int           `env:"SIM_ORDERS"`
	Seed                 int64         `env:"SIM_SEED"`
}

// Load reads configuration in order: .env (if present) → environment →
// flags. Flags are registered on flags and parsed from args; the remaining
// positional arguments stay available through flags.Args().
func Load(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	bindFlags(flags, cfg)
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func bindFlags(flags *pflag.FlagSet, cfg *Config) {
	flags.StringVar(&cfg.Store.URI, "store-uri", cfg.Store.URI, "document store uri (memory://, postgres://, mongodb://)")
	flags.StringVar(&cfg.Store.DB, "store-db", cfg.Store.DB, "logical database name")
	flags.StringVar(&cfg.Bus.URI, "bus-uri", cfg.Bus.URI, "notification bus uri (redis://, kafka://, amqp://), empty disables")
	flags.StringVar(&cfg.HTTP.Addr, "http-addr", cfg.HTTP.Addr, "ops http listen address, off disables")
	flags.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	flags.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "json or zap")
	flags.IntVar(&cfg.Dispatch.FanOut, "fan-out", cfg.Dispatch.FanOut, "couriers offered per wave")
	flags.IntVar(&cfg.Dispatch.MaxWaves, "max-waves", cfg.Dispatch.MaxWaves, "dispatch waves before an order fails")
	flags.IntVar(&cfg.Watch.Partitions, "partitions", cfg.Watch.Partitions, "change-feed partitions")
	flags.DurationVar(&cfg.Watch.ShutdownGrace, "shutdown-grace", cfg.Watch.ShutdownGrace, "drain bound on shutdown")
}

var (
	storeSchemes = map[string]bool{"memory": true, "postgres": true, "postgresql": true, "mongodb": true, "mongodb+srv": true}
	busSchemes   = map[string]bool{"": true, "redis": true, "rediss": true, "kafka": true, "amqp": true, "amqps": true}
	logLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	logFormats   = map[string]bool{"json": true, "zap": true}
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(storeSchemes[c.Store.Scheme()], "STORE_URI: unsupported scheme %q", c.Store.Scheme())
	check(c.Store.RetryBase > 0, "STORE_RETRY_BASE must be positive, got %s", c.Store.RetryBase)
	check(c.Store.RetryMax >= c.Store.RetryBase, "STORE_RETRY_MAX must not be below STORE_RETRY_BASE")
	check(c.Store.ConnectRetries >= 1, "STORE_CONNECT_RETRIES must be at least 1, got %d", c.Store.ConnectRetries)
	check(busSchemes[c.Bus.Scheme()], "BUS_URI: unsupported scheme %q", c.Bus.Scheme())
	check(c.HTTP.InspectRate > 0, "HTTP_INSPECT_RATE must be positive, got %v", c.HTTP.InspectRate)
	check(c.HTTP.InspectBurst >= 1, "HTTP_INSPECT_BURST must be at least 1, got %d", c.HTTP.InspectBurst)
	check(logLevels[strings.ToLower(c.Log.Level)], "LOG_LEVEL: unknown level %q", c.Log.Level)
	check(logFormats[strings.ToLower(c.Log.Format)], "LOG_FORMAT: unknown format %q", c.Log.Format)
	check(c.Dispatch.FanOut >= 1, "COURIER_FAN_OUT must be at least 1, got %d", c.Dispatch.FanOut)
	check(c.Dispatch.MaxWaves >= 1, "MAX_DISPATCH_WAVES must be at least 1, got %d", c.Dispatch.MaxWaves)
	check(c.Dispatch.RestaurantTTLms > 0, "RESTAURANT_TTL_MS must be positive, got %d", c.Dispatch.RestaurantTTLms)
	check(c.Dispatch.CourierTTLms > 0, "COURIER_TTL_MS must be positive, got %d", c.Dispatch.CourierTTLms)
	check(c.Watch.Partitions >= 1, "WATCH_PARTITIONS must be at least 1, got %d", c.Watch.Partitions)
	check(c.Watch.ShutdownGrace > 0, "SHUTDOWN_GRACE must be positive, got %s", c.Watch.ShutdownGrace)
	check(c.Sweep.Interval > 0, "SWEEP_INTERVAL must be positive, got %s", c.Sweep.Interval)

	s := c.Simulator
	check(s.RestaurantAcceptRate >= 0 && s.RestaurantAcceptRate <= 1, "RESTAURANT_ACCEPT_RATE must be within [0,1], got %v", s.RestaurantAcceptRate)
	check(s.CourierAcceptRate >= 0 && s.CourierAcceptRate <= 1, "COURIER_ACCEPT_RATE must be within [0,1], got %v", s.CourierAcceptRate)
	check(s.ReplyDelayMin >= 0 && s.ReplyDelayMax >= s.ReplyDelayMin, "SIM_REPLY_DELAY_MIN/MAX must satisfy 0 <= min <= max")
	check(s.DeliveryDuration >= 0, "SIM_DELIVERY_DURATION must not be negative")
	check(s.SeedCouriers >= 0 && s.SeedRestaurants >= 0 && s.Orders >= 0, "SIM_SEED_* and SIM_ORDERS must not be negative")
	check(s.OrderInterval >= 0, "SIM_ORDER_INTERVAL must not be negative")

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func scheme(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return ""
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		if i := strings.Index(uri, "://"); i > 0 {
			return strings.ToLower(uri[:i])
		}
		return "?"
	}
	return strings.ToLower(u.Scheme)
}
