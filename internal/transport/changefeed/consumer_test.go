package changefeed_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orders"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/store/memstore"
	testlog "delivery-orchestrator/internal/testutil"
	"delivery-orchestrator/internal/transport/changefeed"
)

var orderSource = []orders.Source{{
	Name:  orders.OrderWatcher,
	Watch: store.WatchOptions{Collection: store.Orders, Kinds: []store.EventKind{store.Insert}},
}}

func fastConfig() changefeed.Config {
	return changefeed.Config{
		Partitions:    4,
		Grace:         time.Second,
		RetryBase:     time.Millisecond,
		RetryMax:      5 * time.Millisecond,
		FlushInterval: 5 * time.Millisecond,
	}
}

func insertOrders(t *testing.T, st store.Store, nos ...string) {
	t.Helper()
	for _, no := range nos {
		require.NoError(t, st.Insert(context.Background(), store.Orders, store.Doc{"orderNo": no, "status": "pending"}))
	}
}

// recorder collects handled order numbers and signals once want were seen.
type recorder struct {
	mu   sync.Mutex
	seen []string
	want int
	done chan struct{}
	fail func(orderNo string, calls int) error
	hits map[string]int
}

func newRecorder(want int) *recorder {
	return &recorder{want: want, done: make(chan struct{}), hits: make(map[string]int)}
}

func (r *recorder) Handle(_ context.Context, ev store.Event) error {
	no := ev.Doc.String("orderNo")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[no]++
	if r.fail != nil {
		if err := r.fail(no, r.hits[no]); err != nil {
			return err
		}
	}
	r.seen = append(r.seen, no)
	if len(r.seen) == r.want {
		close(r.done)
	}
	return nil
}

func (r *recorder) calls(no string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits[no]
}

func runUntil(t *testing.T, c *changefeed.Consumer, done <-chan struct{}) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not handled in time")
	}
	cancel()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
		return nil
	}
}

func TestConsumer_HandlesFromOriginAndSavesCursor(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A", "B", "C")
	last := st.LastToken()

	rec := newRecorder(3)
	logs := testlog.New()
	c := changefeed.New(st, orderSource, rec, fastConfig(), logs.Logger())

	require.NoError(t, runUntil(t, c, rec.done))
	require.ElementsMatch(t, []string{"A", "B", "C"}, rec.seen)

	token, err := store.NewCursorStore(st).Load(context.Background(), orders.OrderWatcher)
	require.NoError(t, err)
	require.Equal(t, last, token)
	require.Equal(t, 1, logs.Count("info", "change feed consumer stopped"))
}

func TestConsumer_ResumesAfterSavedCursor(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A", "B")
	require.NoError(t, store.NewCursorStore(st).Save(context.Background(), orders.OrderWatcher, st.LastToken()))
	insertOrders(t, st, "C")

	rec := newRecorder(1)
	c := changefeed.New(st, orderSource, rec, fastConfig(), logx.Nop())

	require.NoError(t, runUntil(t, c, rec.done))
	require.Equal(t, []string{"C"}, rec.seen)
}

func TestConsumer_StartTokenOverridesCursor(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A", "B")
	require.NoError(t, store.NewCursorStore(st).Save(context.Background(), orders.OrderWatcher, st.LastToken()))

	rec := newRecorder(2)
	c := changefeed.New(st, orderSource, rec, fastConfig(), logx.Nop(),
		changefeed.WithStartToken("", store.TokenOrigin))

	require.NoError(t, runUntil(t, c, rec.done))
	require.ElementsMatch(t, []string{"A", "B"}, rec.seen)
}

func TestConsumer_KeepsPerOrderOrder(t *testing.T) {
	st := memstore.New()
	ctx := context.Background()
	insertOrders(t, st, "A")
	for i := 1; i <= 20; i++ {
		_, err := st.UpdateOneIf(ctx, store.Orders, store.Where(store.Eq("orderNo", "A")), store.Set(store.Doc{"step": int64(i)}))
		require.NoError(t, err)
	}

	var (
		mu    sync.Mutex
		steps []int64
		done  = make(chan struct{})
	)
	h := changefeed.HandleFunc(func(_ context.Context, ev store.Event) error {
		mu.Lock()
		defer mu.Unlock()
		steps = append(steps, ev.Doc.Int("step"))
		if len(steps) == 21 {
			close(done)
		}
		return nil
	})
	src := []orders.Source{{Name: "order-updates", Watch: store.WatchOptions{Collection: store.Orders}}}
	c := changefeed.New(st, src, h, fastConfig(), logx.Nop())

	require.NoError(t, runUntil(t, c, done))
	for i, s := range steps {
		require.Equal(t, int64(i), s)
	}
}

func TestConsumer_RetriesTransientFailures(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A")

	rec := newRecorder(1)
	rec.fail = func(_ string, calls int) error {
		if calls < 3 {
			return apperr.Unavailable(errors.New("socket closed"))
		}
		return nil
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_total"}, []string{"watcher", "outcome"})
	c := changefeed.New(st, orderSource, rec, fastConfig(), logx.Nop(), changefeed.WithEventsCounter(events))

	require.NoError(t, runUntil(t, c, rec.done))
	require.Equal(t, 3, rec.calls("A"))
	require.Equal(t, 1.0, promtest.ToFloat64(events.WithLabelValues(orders.OrderWatcher, changefeed.OutcomeHandled)))
}

func TestConsumer_SkipsAfterMaxAttempts(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A", "B")
	last := st.LastToken()

	rec := newRecorder(1)
	rec.fail = func(no string, _ int) error {
		if no == "A" {
			return errors.New("boom")
		}
		return nil
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "events_total"}, []string{"watcher", "outcome"})
	logs := testlog.New()
	cfg := fastConfig()
	cfg.Partitions = 1
	c := changefeed.New(st, orderSource, rec, cfg, logs.Logger(), changefeed.WithEventsCounter(events))

	require.NoError(t, runUntil(t, c, rec.done))
	require.Equal(t, 3, rec.calls("A"))
	require.Equal(t, 1, logs.Count("error", "event skipped"))
	require.Equal(t, 1.0, promtest.ToFloat64(events.WithLabelValues(orders.OrderWatcher, changefeed.OutcomeSkipped)))

	token, err := store.NewCursorStore(st).Load(context.Background(), orders.OrderWatcher)
	require.NoError(t, err)
	require.Equal(t, last, token)
}

func TestConsumer_PermanentErrorSkippedAtOnce(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A", "B")

	rec := newRecorder(1)
	rec.fail = func(no string, _ int) error {
		if no == "A" {
			return changefeed.Permanent(fmt.Errorf("malformed order"))
		}
		return nil
	}
	cfg := fastConfig()
	cfg.Partitions = 1
	c := changefeed.New(st, orderSource, rec, cfg, logx.Nop())

	require.NoError(t, runUntil(t, c, rec.done))
	require.Equal(t, 1, rec.calls("A"))
}

func TestConsumer_CommitConflictAcknowledged(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A")
	last := st.LastToken()

	done := make(chan struct{})
	h := changefeed.HandleFunc(func(context.Context, store.Event) error {
		defer close(done)
		return fmt.Errorf("order A: %w", apperr.ErrCommitConflict)
	})
	c := changefeed.New(st, orderSource, h, fastConfig(), logx.Nop())

	require.NoError(t, runUntil(t, c, done))
	token, err := store.NewCursorStore(st).Load(context.Background(), orders.OrderWatcher)
	require.NoError(t, err)
	require.Equal(t, last, token)
}

func TestConsumer_InvariantViolationHaltsAndHoldsCursor(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A")
	before := st.LastToken()
	insertOrders(t, st, "B")

	rec := newRecorder(1)
	rec.fail = func(no string, _ int) error {
		if no == "B" {
			return fmt.Errorf("courier C1 engaged twice: %w", apperr.ErrInvariantViolation)
		}
		return nil
	}
	cfg := fastConfig()
	cfg.Partitions = 1
	c := changefeed.New(st, orderSource, rec, cfg, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	<-rec.done
	require.Eventually(t, func() bool { return c.Err() != nil }, 5*time.Second, 5*time.Millisecond)
	cancel()

	err := <-errCh
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)
	token, err := store.NewCursorStore(st).Load(context.Background(), orders.OrderWatcher)
	require.NoError(t, err)
	require.Equal(t, before, token)
}

func TestConsumer_GraceAbandonsSlowHandler(t *testing.T) {
	st := memstore.New()
	insertOrders(t, st, "A")

	started := make(chan struct{})
	h := changefeed.HandleFunc(func(ctx context.Context, _ store.Event) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	cfg := fastConfig()
	cfg.Grace = 20 * time.Millisecond
	logs := testlog.New()
	c := changefeed.New(st, orderSource, h, cfg, logs.Logger())

	require.NoError(t, runUntil(t, c, started))
	require.Equal(t, 1, logs.Count("warn", "shutdown grace elapsed, abandoning in-flight events"))

	token, err := store.NewCursorStore(st).Load(context.Background(), orders.OrderWatcher)
	require.NoError(t, err)
	require.Empty(t, token)
}
