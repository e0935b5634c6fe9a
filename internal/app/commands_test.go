package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/archive"
	"delivery-orchestrator/internal/service/inspect"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/store/memstore"
)

type cliHarness struct {
	st     *memstore.Store
	stdout bytes.Buffer
	stderr bytes.Buffer
	cli    *CLI
}

func newCLI(t *testing.T) *cliHarness {
	t.Helper()

	h := &cliHarness{st: memstore.New()}
	h.cli = NewCLI(&h.stdout, &h.stderr).WithBuilder(func() *ContainerBuilder {
		return testBuilder(func(context.Context, config.Store, logx.Logger) (store.Store, error) {
			return keepOpen{h.st}, nil
		})
	})
	return h
}

func (h *cliHarness) run(args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	return h.cli.Main(context.Background(), args)
}

func (h *cliHarness) insert(t *testing.T, collection string, doc store.Doc) {
	t.Helper()
	require.NoError(t, h.st.Insert(context.Background(), collection, doc))
}

func TestCLI_Usage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"no command", nil, ExitConfig, "usage: orchestrator"},
		{"help", []string{"help"}, ExitOK, "replay <token> [--watcher name]"},
		{"unknown command", []string{"launch"}, ExitConfig, `unknown command "launch"`},
		{"missing order number", []string{"inspect"}, ExitConfig, "expected 1 argument(s), got 0"},
		{"extra argument", []string{"sweep", "now"}, ExitConfig, "expected 0 argument(s), got 1"},
		{"unknown flag", []string{"stats", "--bogus"}, ExitConfig, "unknown flag: --bogus"},
		{"negative last", []string{"stats", "--last", "-1"}, ExitConfig, "--last must not be negative"},
		{"unknown watcher", []string{"replay", "42", "--watcher", "couriers"}, ExitConfig, `unknown watcher "couriers"`},
		{"blank token", []string{"replay", " "}, ExitConfig, "empty resume token"},
		{"flag help", []string{"inspect", "--help"}, ExitOK, "--store-uri"},
		{"bad date", []string{"archive", "--from", "yesterday"}, ExitConfig, `--from: invalid date "yesterday"`},
		{"reversed range", []string{"archive", "--from", "2024-05-02", "--to", "2024-05-01"}, ExitConfig, "--to is before --from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newCLI(t)
			require.Equal(t, tt.code, h.run(tt.args...))
			require.Contains(t, h.stderr.String(), tt.stderr)
		})
	}
}

func TestCLI_Inspect(t *testing.T) {
	t.Parallel()

	h := newCLI(t)
	h.insert(t, store.Orders, domain.Order{OrderNo: "O1", ClientID: "C1", RestaurantID: "R1", Status: domain.OrderPending, CreatedAt: orderstate.Now()}.Doc())
	h.insert(t, store.RestaurantRequests, domain.RestaurantRequest{
		ID: domain.RestaurantRequestID("O1", "R1"), OrderNo: "O1", RestaurantID: "R1",
		Status: domain.RequestRequested, RequestedAt: orderstate.Now(),
	}.Doc())

	require.Equal(t, ExitOK, h.run("inspect", "O1"))

	var report struct {
		Order              map[string]any   `json:"order"`
		RestaurantRequests []map[string]any `json:"restaurantRequests"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	require.Equal(t, "O1", report.Order["orderNo"])
	require.Len(t, report.RestaurantRequests, 1)

	require.Equal(t, ExitConfig, h.run("inspect", "O404"))
	require.Contains(t, h.stderr.String(), "not found")
}

func TestCLI_Stats(t *testing.T) {
	t.Parallel()

	h := newCLI(t)
	base := orderstate.Now().Add(-time.Minute)
	h.insert(t, store.Metrics, domain.NewMetric("O1", "L1", base, base.Add(400*time.Millisecond)).Doc())
	h.insert(t, store.Metrics, domain.NewMetric("O2", "L2", base, base.Add(800*time.Millisecond)).Doc())

	require.Equal(t, ExitOK, h.run("stats", "--last", "10"))

	var stats inspect.Stats
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &stats))
	require.Equal(t, 2, stats.Count)
	require.Equal(t, int64(400), stats.Min)
	require.Equal(t, int64(800), stats.Max)
	require.InDelta(t, 600, stats.Avg, 0.001)
}

func TestCLI_CancelAndDeliver(t *testing.T) {
	t.Parallel()

	h := newCLI(t)
	now := orderstate.Now()
	h.insert(t, store.Orders, domain.Order{OrderNo: "O9", ClientID: "C1", RestaurantID: "R1", Status: domain.OrderPending, CreatedAt: now}.Doc())
	h.insert(t, store.Orders, domain.Order{OrderNo: "O10", ClientID: "C1", Status: domain.OrderInProgress, CourierID: "L1", CreatedAt: now, AssignedAt: now}.Doc())
	h.insert(t, store.Couriers, domain.Courier{CourierID: "L1", Name: "Camille", Status: domain.CourierEnCourse, CurrentOrderNo: "O10"}.Doc())

	require.Equal(t, ExitOK, h.run("cancel", "O9", "--reason", "changed_mind"))
	require.Contains(t, h.stdout.String(), "order O9 cancelled (was pending)")

	m := orderstate.New(h.st, logx.Nop(), nil)
	o, err := m.Order(context.Background(), "O9")
	require.NoError(t, err)
	require.Equal(t, domain.OrderCancelled, o.Status)
	require.Equal(t, "changed_mind", o.Reason)

	require.Equal(t, ExitOK, h.run("deliver", "O10"))
	require.Contains(t, h.stdout.String(), "order O10 delivered by L1")
	c, err := m.Courier(context.Background(), "L1")
	require.NoError(t, err)
	require.Equal(t, domain.CourierAvailable, c.Status)

	require.Equal(t, ExitConfig, h.run("deliver", "O9"))
	require.Contains(t, h.stderr.String(), "is cancelled")
}

func TestCLI_Sweep(t *testing.T) {
	t.Parallel()

	h := newCLI(t)
	h.insert(t, store.RestaurantRequests, domain.RestaurantRequest{
		ID: domain.RestaurantRequestID("O1", "R1"), OrderNo: "O1", RestaurantID: "R1",
		Status: domain.RequestRequested, RequestedAt: orderstate.Now().Add(-time.Hour),
	}.Doc())

	require.Equal(t, ExitOK, h.run("sweep"))
	require.Contains(t, h.stdout.String(), "expired 1 restaurant request(s), 0 delivery request(s)")

	d, err := h.st.FindOne(context.Background(), store.RestaurantRequests, store.Where(store.Eq("orderNo", "O1")))
	require.NoError(t, err)
	require.Equal(t, string(domain.RequestExpired), d.String("status"))
}

func TestCLI_Archive(t *testing.T) {
	t.Parallel()

	h := newCLI(t)
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	h.insert(t, store.Couriers, domain.Courier{CourierID: "L1", Name: "Camille", Status: domain.CourierAvailable}.Doc())
	h.insert(t, store.Orders, domain.Order{OrderNo: "O1", ClientID: "C1", RestaurantID: "R1", Status: domain.OrderDelivered, CourierID: "L1", CreatedAt: created}.Doc())
	h.insert(t, store.Orders, domain.Order{OrderNo: "O2", ClientID: "C1", RestaurantID: "R1", Status: domain.OrderDelivered, CourierID: "L1", CreatedAt: created.AddDate(0, 0, 1)}.Doc())

	require.Equal(t, ExitOK, h.run("archive", "--dry-run"))
	var stats archive.Stats
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &stats))
	require.Equal(t, archive.Stats{Found: 2, Archived: 2, Incomplete: 2}, stats)
	require.Empty(t, h.st.Snapshot(store.Archives))

	require.Equal(t, ExitOK, h.run("archive", "--to", "2024-05-01"))
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &stats))
	require.Equal(t, archive.Stats{Found: 1, Archived: 1, Incomplete: 1}, stats)
	require.Len(t, h.st.Snapshot(store.Archives), 1)
}

func TestCLI_StoreUnreachable(t *testing.T) {
	t.Setenv("STORE_CONNECT_RETRIES", "2")
	t.Setenv("STORE_RETRY_BASE", "1ms")
	t.Setenv("STORE_RETRY_MAX", "2ms")

	var stdout, stderr bytes.Buffer
	cli := NewCLI(&stdout, &stderr).WithBuilder(func() *ContainerBuilder {
		return testBuilder(func(context.Context, config.Store, logx.Logger) (store.Store, error) {
			return nil, apperr.Unavailable(errors.New("connection refused"))
		})
	})

	require.Equal(t, ExitStoreUnreachable, cli.Main(context.Background(), []string{"inspect", "O1"}))
	require.Contains(t, stderr.String(), "store connect failed after 2 attempts")
}

func TestCLI_InvalidEnvironment(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	h := newCLI(t)
	require.Equal(t, ExitConfig, h.run("run"))
	require.Contains(t, h.stderr.String(), "LOG_LEVEL")
}

func TestCLI_RunWithSimulatorDeliversOrders(t *testing.T) {
	t.Setenv("HTTP_ADDR", "off")
	t.Setenv("RESTAURANT_ACCEPT_RATE", "1")
	t.Setenv("COURIER_ACCEPT_RATE", "1")
	t.Setenv("SIM_REPLY_DELAY_MIN", "0s")
	t.Setenv("SIM_REPLY_DELAY_MAX", "5ms")
	t.Setenv("SIM_DELIVERY_DURATION", "10ms")
	t.Setenv("SIM_ORDER_INTERVAL", "20ms")
	t.Setenv("SIM_ORDERS", "3")
	t.Setenv("SIM_SEED", "7")

	h := newCLI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- h.cli.Main(ctx, []string{"run", "--simulate"}) }()

	delivered := func() int {
		docs, err := h.st.FindMany(context.Background(), store.Orders, store.Where(store.Eq("status", domain.OrderDelivered)), store.FindOptions{})
		if err != nil {
			return 0
		}
		return len(docs)
	}
	requireEventually(t, 10*time.Second, 20*time.Millisecond, func() bool { return delivered() == 3 },
		"simulated orders were not all delivered")

	notes, err := h.st.FindMany(context.Background(), store.Notifications, store.Where(), store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, notes, 3)

	cancel()
	select {
	case code := <-done:
		require.Equal(t, ExitOK, code, h.stderr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop")
	}
}
