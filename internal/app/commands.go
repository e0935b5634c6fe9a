package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/dig"

	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/archive"
	"delivery-orchestrator/internal/service/inspect"
	"delivery-orchestrator/internal/service/lifecycle"
	"delivery-orchestrator/internal/service/orders"
	"delivery-orchestrator/internal/service/sweep"
)

// CLI is the orchestrator command line.
type CLI struct {
	stdout     io.Writer
	stderr     io.Writer
	newBuilder func() *ContainerBuilder
	subscriber SubscriberOpener
	commands   map[string]command
}

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, name string, args []string) error
}

// NewCLI returns a CLI printing results on stdout and diagnostics on
// stderr.
func NewCLI(stdout, stderr io.Writer) *CLI {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	c := &CLI{stdout: stdout, stderr: stderr, newBuilder: NewContainerBuilder}
	c.commands = map[string]command{
		"run":     {usage: "run [--simulate]", summary: "start every watcher, the sweeper and the ops server", run: c.runCmd},
		"replay":  {usage: "replay <token> [--watcher name]", summary: "like run, starting a watcher after token", run: c.replayCmd},
		"sweep":   {usage: "sweep", summary: "expire overdue requests once", run: c.sweepCmd},
		"inspect": {usage: "inspect <orderNo>", summary: "print every document of an order", run: c.inspectCmd},
		"cancel":  {usage: "cancel <orderNo> [--reason r]", summary: "cancel an order not yet assigned", run: c.cancelCmd},
		"deliver": {usage: "deliver <orderNo>", summary: "mark an in-progress order delivered", run: c.deliverCmd},
		"stats":   {usage: "stats [--last N]", summary: "assignment delay distribution", run: c.statsCmd},
		"archive": {usage: "archive [--dry-run] [--from d] [--to d]", summary: "archive delivered orders once", run: c.archiveCmd},
	}
	return c
}

// WithBuilder replaces the container builder factory.
func (c *CLI) WithBuilder(fn func() *ContainerBuilder) *CLI {
	if fn != nil {
		c.newBuilder = fn
	}
	return c
}

// WithSubscriberOpener replaces how the simulator subscribes to the bus.
func (c *CLI) WithSubscriberOpener(fn SubscriberOpener) *CLI {
	c.subscriber = fn
	return c
}

// Main runs the orchestrator command line and returns the exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return NewCLI(stdout, stderr).Main(ctx, args)
}

// Main dispatches args[0] and returns the process exit code.
func (c *CLI) Main(ctx context.Context, args []string) int {
	if len(args) == 0 {
		c.usage()
		return ExitConfig
	}
	name := args[0]
	switch name {
	case "help", "-h", "--help":
		c.usage()
		return ExitOK
	}
	cmd, ok := c.commands[name]
	if !ok {
		fmt.Fprintf(c.stderr, "unknown command %q\n\n", name)
		c.usage()
		return ExitConfig
	}

	err := cmd.run(ctx, name, args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return ExitOK
	}
	code := ExitCode(err)
	if code != ExitOK {
		fmt.Fprintf(c.stderr, "%s: %v\n", name, err)
	}
	return code
}

func (c *CLI) usage() {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintln(c.stderr, "usage: orchestrator <command> [flags]")
	fmt.Fprintln(c.stderr)
	for _, n := range names {
		fmt.Fprintf(c.stderr, "  %-40s %s\n", c.commands[n].usage, c.commands[n].summary)
	}
	fmt.Fprintln(c.stderr)
	fmt.Fprintln(c.stderr, "Settings come from .env, the environment and the flags of each command.")
}

// load parses the command flags on top of .env and the environment and
// checks the number of positional arguments.
func (c *CLI) load(flags *pflag.FlagSet, args []string, positional int) (*config.Config, []string, error) {
	flags.SetOutput(c.stderr)
	cfg, err := config.Load(flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		return nil, nil, err
	}
	if err != nil {
		return nil, nil, configError(err)
	}
	rest := flags.Args()
	if len(rest) != positional {
		return nil, nil, usageError("expected %d argument(s), got %d", positional, len(rest))
	}
	return cfg, rest, nil
}

func newFlagSet(name string) *pflag.FlagSet {
	return pflag.NewFlagSet(name, pflag.ContinueOnError)
}

// oneShot builds a container for a short command: logs go to stderr and
// store calls give up after the configured connect retries.
func (c *CLI) oneShot(ctx context.Context, cfg *config.Config) (*dig.Container, error) {
	return c.newBuilder().
		WithLogOutput(c.stderr).
		WithStoreAttempts(cfg.Store.ConnectRetries).
		Build(ctx, cfg)
}

// invoke runs fn out of container and closes what it opened.
func invoke(container *dig.Container, fn any) error {
	defer func() {
		_ = container.Invoke(func(ctx context.Context, res *resources, logger logx.Logger) {
			res.closeAll(context.WithoutCancel(ctx), logger)
			_ = logger.Sync()
		})
	}()
	return container.Invoke(fn)
}

func (c *CLI) runCmd(ctx context.Context, name string, args []string) error {
	flags := newFlagSet(name)
	simulated := flags.Bool("simulate", false, "run the simulated restaurants, couriers and clients in process")
	cfg, _, err := c.load(flags, args, 0)
	if err != nil {
		return err
	}
	b := c.newBuilder()
	if *simulated {
		b = b.WithSimulator()
	}
	return c.serve(ctx, b, cfg)
}

func (c *CLI) replayCmd(ctx context.Context, name string, args []string) error {
	flags := newFlagSet(name)
	watcher := flags.String("watcher", "", "watcher to replay ("+strings.Join(watcherNames(), ", ")+"); all when empty")
	cfg, rest, err := c.load(flags, args, 1)
	if err != nil {
		return err
	}
	if *watcher != "" {
		if _, ok := orders.SourceByName(*watcher); !ok {
			return usageError("unknown watcher %q", *watcher)
		}
	}
	token := strings.TrimSpace(rest[0])
	if token == "" {
		return usageError("empty resume token")
	}
	return c.serve(ctx, c.newBuilder().WithReplay(*watcher, token), cfg)
}

func (c *CLI) serve(ctx context.Context, b *ContainerBuilder, cfg *config.Config) error {
	container, err := b.Build(ctx, cfg)
	if err != nil {
		return err
	}
	return NewRunner().Run(container)
}

func (c *CLI) sweepCmd(ctx context.Context, name string, args []string) error {
	cfg, _, err := c.load(newFlagSet(name), args, 0)
	if err != nil {
		return err
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(s *sweep.Sweeper) error {
		res, err := s.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "expired %d restaurant request(s), %d delivery request(s)\n", res.Restaurant, res.Delivery)
		return nil
	})
}

func (c *CLI) inspectCmd(ctx context.Context, name string, args []string) error {
	cfg, rest, err := c.load(newFlagSet(name), args, 1)
	if err != nil {
		return err
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(s *inspect.Service) error {
		report, err := s.Dump(ctx, rest[0])
		if err != nil {
			return err
		}
		return c.printJSON(report)
	})
}

func (c *CLI) cancelCmd(ctx context.Context, name string, args []string) error {
	flags := newFlagSet(name)
	reason := flags.String("reason", "", "cancellation reason (default cancelled_by_client)")
	cfg, rest, err := c.load(flags, args, 1)
	if err != nil {
		return err
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(s *lifecycle.Service) error {
		res, err := s.Cancel(ctx, rest[0], *reason)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "order %s cancelled (was %s), withdrew %d restaurant request(s) and %d delivery request(s)\n",
			rest[0], res.PriorStatus, res.RestaurantRequests, res.DeliveryRequests)
		return nil
	})
}

func (c *CLI) deliverCmd(ctx context.Context, name string, args []string) error {
	cfg, rest, err := c.load(newFlagSet(name), args, 1)
	if err != nil {
		return err
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(s *lifecycle.Service) error {
		o, err := s.Deliver(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(c.stdout, "order %s delivered by %s\n", o.OrderNo, o.CourierID)
		return nil
	})
}

func (c *CLI) statsCmd(ctx context.Context, name string, args []string) error {
	flags := newFlagSet(name)
	last := flags.Int("last", 100, "number of most recent assignments; 0 means all")
	cfg, _, err := c.load(flags, args, 0)
	if err != nil {
		return err
	}
	if *last < 0 {
		return usageError("--last must not be negative")
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(s *inspect.Service) error {
		stats, err := s.Stats(ctx, *last)
		if err != nil {
			return err
		}
		return c.printJSON(stats)
	})
}

func (c *CLI) archiveCmd(ctx context.Context, name string, args []string) error {
	flags := newFlagSet(name)
	dryRun := flags.Bool("dry-run", false, "count what would be archived without writing")
	from := flags.String("from", "", "only orders created at or after this date (YYYY-MM-DD or RFC 3339)")
	to := flags.String("to", "", "only orders created at or before this date (YYYY-MM-DD or RFC 3339)")
	cfg, _, err := c.load(flags, args, 0)
	if err != nil {
		return err
	}
	opts := archive.BatchOptions{DryRun: *dryRun}
	if opts.From, err = parseDate("--from", *from, false); err != nil {
		return err
	}
	if opts.To, err = parseDate("--to", *to, true); err != nil {
		return err
	}
	if !opts.From.IsZero() && !opts.To.IsZero() && opts.To.Before(opts.From) {
		return usageError("--to is before --from")
	}
	container, err := c.oneShot(ctx, cfg)
	if err != nil {
		return err
	}
	return invoke(container, func(a *archive.Archiver) error {
		stats, err := a.Batch(ctx, opts)
		if err != nil {
			return err
		}
		return c.printJSON(stats)
	})
}

// parseDate reads a day or an RFC 3339 instant. A bare day used as an upper
// bound covers the whole day.
func parseDate(flag, v string, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, usageError("%s: invalid date %q", flag, v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func (c *CLI) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func watcherNames() []string {
	sources := orders.Sources()
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return names
}
