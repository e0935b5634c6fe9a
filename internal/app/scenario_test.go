package app

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/config"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
	"delivery-orchestrator/internal/store/memstore"
	testlog "delivery-orchestrator/internal/testutil"
)

const (
	eventually = 5 * time.Second
	tick       = 10 * time.Millisecond
)

// requireEventually polls condition until it holds or timeout elapses.
func requireEventually(t *testing.T, timeout time.Duration, tick time.Duration, condition func() bool, msgAndArgs ...any) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			if len(msgAndArgs) > 0 {
				t.Fatalf(msgAndArgs[0].(string), msgAndArgs[1:]...)
			}
			t.Fatalf("condition not satisfied within %s", timeout)
		}
		<-ticker.C
	}
}

func scenarioConfig() *config.Config {
	cfg := config.Default()
	cfg.HTTP.Addr = "off"
	cfg.Store.RetryBase = 5 * time.Millisecond
	cfg.Store.RetryMax = 50 * time.Millisecond
	cfg.Watch.ShutdownGrace = 2 * time.Second
	cfg.Sweep.Interval = time.Second
	return cfg
}

// keepOpen lets assertions read the store after the run closed it.
type keepOpen struct {
	*memstore.Store
}

func (keepOpen) Close(context.Context) error { return nil }

// orchestrator runs the whole container against an in-memory store.
type orchestrator struct {
	t    *testing.T
	cfg  *config.Config
	st   *memstore.Store
	m    *orderstate.Machine
	logs *testlog.Recorder

	once   sync.Once
	cancel context.CancelFunc
	done   chan error
}

func newOrchestrator(t *testing.T, mutate func(*config.Config)) *orchestrator {
	t.Helper()

	cfg := scenarioConfig()
	if mutate != nil {
		mutate(cfg)
	}
	st := memstore.New()
	o := &orchestrator{
		t:    t,
		cfg:  cfg,
		st:   st,
		m:    orderstate.New(st, logx.Nop(), nil),
		logs: testlog.New(),
		done: make(chan error, 1),
	}
	t.Cleanup(func() { _ = o.stop() })
	return o
}

func (o *orchestrator) start() {
	o.t.Helper()
	o.startWith(nil)
}

func (o *orchestrator) startWith(configure func(*ContainerBuilder)) {
	o.t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	b := NewContainerBuilder().
		WithStoreOpener(func(context.Context, config.Store, logx.Logger) (store.Store, error) { return keepOpen{o.st}, nil }).
		WithLogger(o.logs.Logger())
	if configure != nil {
		configure(b)
	}
	container, err := b.Build(ctx, o.cfg)
	require.NoError(o.t, err)

	go func() { o.done <- NewRunner().Run(container) }()
}

// stop cancels the run and returns what it ended with.
func (o *orchestrator) stop() error {
	var err error
	o.once.Do(func() {
		if o.cancel == nil {
			return
		}
		o.cancel()
		select {
		case err = <-o.done:
		case <-time.After(10 * time.Second):
			o.t.Error("orchestrator did not stop")
		}
	})
	return err
}

// rerun starts a second run on the same store.
func (o *orchestrator) rerun(configure func(*ContainerBuilder)) *orchestrator {
	o.t.Helper()

	next := &orchestrator{
		t:    o.t,
		cfg:  o.cfg,
		st:   o.st,
		m:    o.m,
		logs: testlog.New(),
		done: make(chan error, 1),
	}
	o.t.Cleanup(func() { _ = next.stop() })
	next.startWith(configure)
	return next
}

func (o *orchestrator) insert(collection string, doc store.Doc) {
	o.t.Helper()
	require.NoError(o.t, o.st.Insert(context.Background(), collection, doc))
}

func (o *orchestrator) restaurant(id string, status domain.RestaurantStatus) {
	o.insert(store.Restaurants, domain.Restaurant{RestaurantID: id, Name: "Chez " + id, Status: status}.Doc())
}

func (o *orchestrator) courier(id string, status domain.CourierStatus, orderNo string) {
	o.insert(store.Couriers, domain.Courier{
		CourierID:      id,
		Name:           "Livreur " + id,
		Phone:          "+33 6 00 00 00 00",
		Status:         status,
		CurrentOrderNo: orderNo,
	}.Doc())
}

func (o *orchestrator) order(orderNo, restaurantID string) {
	o.insert(store.Orders, domain.Order{
		OrderNo:      orderNo,
		ClientID:     "C1",
		RestaurantID: restaurantID,
		Items:        []domain.Item{{Name: "galette", Quantity: 2}},
		CreatedAt:    orderstate.Now(),
		Status:       domain.OrderPending,
	}.Doc())
}

func (o *orchestrator) getOrder(orderNo string) domain.Order {
	o.t.Helper()
	ord, err := o.m.Order(context.Background(), orderNo)
	require.NoError(o.t, err)
	return ord
}

func (o *orchestrator) getCourier(id string) domain.Courier {
	o.t.Helper()
	c, err := o.m.Courier(context.Background(), id)
	require.NoError(o.t, err)
	return c
}

func (o *orchestrator) find(collection, orderNo string) []store.Doc {
	o.t.Helper()
	docs, err := o.st.FindMany(context.Background(), collection, store.Where(store.Eq("orderNo", orderNo)), store.FindOptions{})
	require.NoError(o.t, err)
	return docs
}

func (o *orchestrator) status(orderNo string) domain.OrderStatus {
	ord, err := o.m.Order(context.Background(), orderNo)
	if err != nil {
		return ""
	}
	return ord.Status
}

// reply answers a request once it exists, the way a restaurant or a
// courier would.
func (o *orchestrator) reply(collection, id string, to domain.RequestStatus) {
	o.t.Helper()
	requireEventually(o.t, eventually, tick, func() bool {
		_, err := o.st.FindOne(context.Background(), collection, store.Where(store.Eq("id", id)))
		return err == nil
	}, "request %s never issued", id)
	ok, err := o.m.CloseRequest(context.Background(), collection, id, to)
	require.NoError(o.t, err)
	require.True(o.t, ok, "request %s already answered", id)
}

func (o *orchestrator) waitStatus(orderNo string, want domain.OrderStatus) {
	o.t.Helper()
	requireEventually(o.t, eventually, tick, func() bool { return o.status(orderNo) == want },
		"order %s never reached %s", orderNo, want)
}

func TestScenario_HappyPath(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L1", domain.CourierAvailable, "")
	o.start()

	o.order("O1", "R1")
	o.reply(store.RestaurantRequests, domain.RestaurantRequestID("O1", "R1"), domain.RequestAccepted)
	o.reply(store.DeliveryRequests, domain.DeliveryRequestID("O1", 1, "L1"), domain.RequestAccepted)
	o.waitStatus("O1", domain.OrderInProgress)

	requireEventually(t, eventually, tick, func() bool { return len(o.find(store.Metrics, "O1")) == 1 })

	ord := o.getOrder("O1")
	require.Equal(t, "L1", ord.CourierID)
	require.Equal(t, domain.CourierEnCourse, o.getCourier("L1").Status)

	notes := o.find(store.Notifications, "O1")
	require.Len(t, notes, 1)
	msg := domain.NotificationFromDoc(notes[0]).Message
	require.True(t, strings.Contains(msg, "O1") && strings.Contains(msg, "L1"), msg)

	metric := domain.MetricFromDoc(o.find(store.Metrics, "O1")[0])
	require.GreaterOrEqual(t, metric.AssignmentDelayMs, int64(0))
	require.LessOrEqual(t, metric.AssignmentDelayMs, int64(2000))
	require.Equal(t, metric.AssignedAt.Sub(metric.DeliveryRequestTs).Milliseconds(), metric.AssignmentDelayMs)

	require.NoError(t, o.stop())
}

func TestScenario_RestaurantRefuses(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L1", domain.CourierAvailable, "")
	o.start()

	o.order("O2", "R1")
	o.reply(store.RestaurantRequests, domain.RestaurantRequestID("O2", "R1"), domain.RequestRejected)
	o.waitStatus("O2", domain.OrderFailed)

	require.Equal(t, domain.ReasonRestaurantDeclined, o.getOrder("O2").Reason)
	require.Empty(t, o.find(store.DeliveryRequests, "O2"))
	require.Empty(t, o.find(store.Notifications, "O2"))
	require.Equal(t, domain.CourierAvailable, o.getCourier("L1").Status)
}

func TestScenario_TwoCouriersAccept(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L1", domain.CourierAvailable, "")
	o.courier("L2", domain.CourierAvailable, "")
	o.start()

	o.order("O3", "R1")
	o.reply(store.RestaurantRequests, domain.RestaurantRequestID("O3", "R1"), domain.RequestAccepted)

	ids := []string{domain.DeliveryRequestID("O3", 1, "L1"), domain.DeliveryRequestID("O3", 1, "L2")}
	requireEventually(t, eventually, tick, func() bool { return len(o.find(store.DeliveryRequests, "O3")) == 2 })

	var wg sync.WaitGroup
	errs := make(chan error, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.m.CloseRequest(context.Background(), store.DeliveryRequests, id, domain.RequestAccepted)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	o.waitStatus("O3", domain.OrderInProgress)
	winner := o.getOrder("O3").CourierID
	loser := "L1"
	if winner == "L1" {
		loser = "L2"
	}
	require.Contains(t, []string{"L1", "L2"}, winner)

	requireEventually(t, eventually, tick, func() bool {
		return o.getCourier(loser).Status == domain.CourierAvailable && len(o.find(store.Metrics, "O3")) == 1
	}, "loser %s never released", loser)

	require.Equal(t, domain.CourierEnCourse, o.getCourier(winner).Status)
	require.Empty(t, o.getCourier(loser).CurrentOrderNo)
	require.Len(t, o.find(store.Notifications, "O3"), 1)
	require.Len(t, o.find(store.Metrics, "O3"), 1)
	for _, d := range o.find(store.DeliveryRequests, "O3") {
		dr := domain.DeliveryRequestFromDoc(d)
		if dr.CourierID == loser {
			require.Contains(t, []domain.RequestStatus{domain.RequestAccepted, domain.RequestCancelled}, dr.Status)
		}
	}
}

func TestScenario_TimeoutThenSecondWave(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, func(cfg *config.Config) {
		cfg.Dispatch.FanOut = 1
		cfg.Dispatch.MaxWaves = 2
		cfg.Dispatch.CourierTTLms = 200
	})
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L1", domain.CourierAvailable, "")
	o.courier("L2", domain.CourierAvailable, "")
	o.start()

	o.order("O4", "R1")
	o.reply(store.RestaurantRequests, domain.RestaurantRequestID("O4", "R1"), domain.RequestAccepted)

	first := domain.DeliveryRequestID("O4", 1, "L1")
	requireEventually(t, eventually, tick, func() bool {
		d, err := o.st.FindOne(context.Background(), store.DeliveryRequests, store.Where(store.Eq("id", first)))
		return err == nil && domain.DeliveryRequestFromDoc(d).Status == domain.RequestExpired
	}, "first offer never expired")

	second := domain.DeliveryRequestID("O4", 2, "L2")
	o.reply(store.DeliveryRequests, second, domain.RequestAccepted)
	o.waitStatus("O4", domain.OrderInProgress)
	requireEventually(t, eventually, tick, func() bool { return len(o.find(store.Metrics, "O4")) == 1 })

	require.Equal(t, "L2", o.getOrder("O4").CourierID)
	require.Equal(t, domain.CourierAvailable, o.getCourier("L1").Status)

	d, err := o.st.FindOne(context.Background(), store.DeliveryRequests, store.Where(store.Eq("id", second)))
	require.NoError(t, err)
	metric := domain.MetricFromDoc(o.find(store.Metrics, "O4")[0])
	require.True(t, metric.DeliveryRequestTs.Equal(domain.DeliveryRequestFromDoc(d).RequestedAt),
		"metric measured from %s", metric.DeliveryRequestTs)
}

func TestScenario_StoreOutageMidCommit(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	ctx := context.Background()
	requestedAt := orderstate.Now().Add(-300 * time.Millisecond)
	assignedAt := requestedAt.Add(120 * time.Millisecond)

	// State left behind by a commit interrupted after the courier
	// transition: order in progress, courier en_course, no notification.
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L1", domain.CourierEnCourse, "O5")
	o.insert(store.Orders, domain.Order{
		OrderNo:      "O5",
		ClientID:     "C1",
		RestaurantID: "R1",
		CreatedAt:    requestedAt.Add(-time.Second),
		Status:       domain.OrderInProgress,
		CourierID:    "L1",
		Wave:         1,
		AssignedAt:   assignedAt,
	}.Doc())
	dr := domain.DeliveryRequest{
		ID:          domain.DeliveryRequestID("O5", 1, "L1"),
		OrderNo:     "O5",
		CourierID:   "L1",
		Wave:        1,
		Status:      domain.RequestRequested,
		RequestedAt: requestedAt,
	}
	o.insert(store.DeliveryRequests, dr.Doc())
	ok, err := o.m.CloseRequest(ctx, store.DeliveryRequests, dr.ID, domain.RequestAccepted)
	require.NoError(t, err)
	require.True(t, ok)

	o.st.SetUnavailable(true)
	o.start()
	requireEventually(t, eventually, tick, func() bool { return o.logs.Count("warn", "store retry") > 0 })
	o.st.SetUnavailable(false)

	requireEventually(t, eventually, tick, func() bool {
		return len(o.find(store.Notifications, "O5")) == 1 && len(o.find(store.Metrics, "O5")) == 1
	}, "commit never resumed")

	require.Equal(t, domain.OrderInProgress, o.getOrder("O5").Status)
	require.Equal(t, domain.CourierEnCourse, o.getCourier("L1").Status)
	metric := domain.MetricFromDoc(o.find(store.Metrics, "O5")[0])
	require.Equal(t, int64(120), metric.AssignmentDelayMs)

	require.NoError(t, o.stop())
	require.Len(t, o.find(store.Notifications, "O5"), 1)
}

func TestScenario_NoCourierAvailable(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	o.restaurant("R1", domain.RestaurantOpen)
	o.courier("L9", domain.CourierOffline, "")
	o.start()

	o.order("O6", "R1")
	o.reply(store.RestaurantRequests, domain.RestaurantRequestID("O6", "R1"), domain.RequestAccepted)
	o.waitStatus("O6", domain.OrderFailed)

	require.Equal(t, domain.ReasonNoCourierAvailable, o.getOrder("O6").Reason)
	require.Empty(t, o.find(store.DeliveryRequests, "O6"))
	require.Empty(t, o.find(store.Notifications, "O6"))
}

func TestScenario_InvariantViolationEndsRunWithExitCode3(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, nil)
	now := orderstate.Now()
	o.courier("L1", domain.CourierEnCourse, "O7")
	o.courier("L2", domain.CourierEnCourse, "O7")
	o.insert(store.Orders, domain.Order{
		OrderNo:    "O7",
		ClientID:   "C1",
		CreatedAt:  now,
		Status:     domain.OrderInProgress,
		CourierID:  "L1",
		Wave:       1,
		AssignedAt: now,
	}.Doc())
	dr := domain.DeliveryRequest{
		ID:          domain.DeliveryRequestID("O7", 1, "L1"),
		OrderNo:     "O7",
		CourierID:   "L1",
		Wave:        1,
		Status:      domain.RequestRequested,
		RequestedAt: now,
	}
	o.insert(store.DeliveryRequests, dr.Doc())
	_, err := o.m.CloseRequest(context.Background(), store.DeliveryRequests, dr.ID, domain.RequestAccepted)
	require.NoError(t, err)

	o.start()
	o.waitStatus("O7", domain.OrderFailed)
	require.Equal(t, domain.ReasonInvariantViolation, o.getOrder("O7").Reason)

	err = o.stop()
	require.ErrorIs(t, err, apperr.ErrInvariantViolation)
	require.Equal(t, ExitInvariant, ExitCode(err))
	require.Empty(t, o.find(store.Notifications, "O7"))
}
