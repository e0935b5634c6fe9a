package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/simulate"
)

// SimulatorMain runs the simulated restaurants, couriers and clients
// against the configured store and returns the exit code.
func SimulatorMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return NewCLI(stdout, stderr).Simulate(ctx, args)
}

// Simulate parses the simulator flags and runs until ctx is done.
func (c *CLI) Simulate(ctx context.Context, args []string) int {
	flags := newFlagSet("simulator")
	orders := flags.Int("orders", 0, "orders to generate; 0 means no cap")
	interval := flags.Duration("order-interval", 0, "delay between generated orders; 0 disables the generator")
	seed := flags.Int64("seed", 0, "random seed; 0 seeds from the clock")
	restaurantRate := flags.Float64("restaurant-accept-rate", 0, "probability a restaurant accepts")
	courierRate := flags.Float64("courier-accept-rate", 0, "probability a courier accepts")

	cfg, _, err := c.load(flags, args, 0)
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	if err == nil {
		applySimulatorFlags(flags, cfg, *orders, *interval, *seed, *restaurantRate, *courierRate)
		err = configError(cfg.Validate())
	}
	if err == nil {
		err = c.simulate(ctx, cfg)
	}

	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(c.stderr, "simulator: %v\n", err)
	}
	return code
}

// applySimulatorFlags overrides the environment with the flags actually
// given on the command line.
func applySimulatorFlags(flags *pflag.FlagSet, cfg *config.Config, orders int, interval time.Duration, seed int64, restaurantRate, courierRate float64) {
	sc := &cfg.Simulator
	if flags.Changed("orders") {
		sc.Orders = orders
	}
	if flags.Changed("order-interval") {
		sc.OrderInterval = interval
	}
	if flags.Changed("seed") {
		sc.Seed = seed
	}
	if flags.Changed("restaurant-accept-rate") {
		sc.RestaurantAcceptRate = restaurantRate
	}
	if flags.Changed("courier-accept-rate") {
		sc.CourierAcceptRate = courierRate
	}
}

func (c *CLI) simulate(ctx context.Context, cfg *config.Config) error {
	container, err := c.newBuilder().WithSimulator().Build(ctx, cfg)
	if err != nil {
		return err
	}
	err = invoke(container, func(sim *simulate.Simulator, cfg *config.Config, logger logx.Logger, res *resources) error {
		sub, err := c.openSubscriber(ctx, cfg.Bus, logger)
		if err != nil {
			return fmt.Errorf("open bus: %w", err)
		}
		if sub != nil {
			res.add("subscriber", func(context.Context) error { return sub.Close() })
		}
		return sim.Run(ctx, sub)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *CLI) openSubscriber(ctx context.Context, cfg config.Bus, logger logx.Logger) (bus.Subscriber, error) {
	if c.subscriber != nil {
		return c.subscriber(ctx, cfg, logger)
	}
	return openSubscriber(ctx, cfg, logger)
}
