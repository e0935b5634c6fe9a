package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

// Config bounds the courier search.
type Config struct {
	FanOut   int
	MaxWaves int
}

type labeledCounter interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Dispatcher asks restaurants, then fans offers out to couriers.
type Dispatcher struct {
	m      *orderstate.Machine
	st     store.Store
	cfg    Config
	logger logx.Logger
	offers labeledCounter
}

// New returns a Dispatcher. offers may be nil.
func New(m *orderstate.Machine, cfg Config, logger logx.Logger, offers labeledCounter) *Dispatcher {
	if cfg.FanOut < 1 {
		cfg.FanOut = 5
	}
	if cfg.MaxWaves < 1 {
		cfg.MaxWaves = 2
	}
	return &Dispatcher{
		m:      m,
		st:     m.Store(),
		cfg:    cfg,
		logger: logx.Component(logger, "dispatcher"),
		offers: offers,
	}
}

// OnOrderCreated requests the first eligible restaurant of a pending order.
// The insert event may be stale (replay, backlog), so the order is read
// back and only a still pending order is dispatched.
func (d *Dispatcher) OnOrderCreated(ctx context.Context, o domain.Order) error {
	cur, err := d.m.Order(ctx, o.OrderNo)
	if err != nil {
		return ignoreNotFound(err)
	}
	if cur.Status != domain.OrderPending {
		d.logger.Debug("order insert ignored", logx.String("orderNo", cur.OrderNo), logx.String("status", string(cur.Status)))
		return nil
	}
	return d.requestRestaurant(ctx, cur, 0)
}

// OnRestaurantReply reacts to a restaurant answer or expiry.
func (d *Dispatcher) OnRestaurantReply(ctx context.Context, rr domain.RestaurantRequest) error {
	switch {
	case rr.Status == domain.RequestAccepted:
		return d.onRestaurantAccepted(ctx, rr)
	case rr.Status.Declined():
		return d.onRestaurantDeclined(ctx, rr)
	default:
		return nil
	}
}

// requestRestaurant walks the order's restaurants from position from and
// requests the first open one. With none left the order fails.
func (d *Dispatcher) requestRestaurant(ctx context.Context, o domain.Order, from int) error {
	restaurants := o.Restaurants()
	for i := from; i < len(restaurants); i++ {
		rid := restaurants[i]
		doc, err := d.st.FindOne(ctx, store.Restaurants, store.Where(store.Eq("restaurantId", rid)))
		if errors.Is(err, apperr.ErrNotFound) {
			d.logger.Warn("restaurant unknown, skipped", logx.String("orderNo", o.OrderNo), logx.String("restaurantId", rid))
			continue
		}
		if err != nil {
			return err
		}
		if !domain.RestaurantFromDoc(doc).Open() {
			d.logger.Info("restaurant closed, skipped", logx.String("orderNo", o.OrderNo), logx.String("restaurantId", rid))
			continue
		}

		rr := domain.RestaurantRequest{
			ID:           domain.RestaurantRequestID(o.OrderNo, rid),
			OrderNo:      o.OrderNo,
			RestaurantID: rid,
			Attempt:      i,
			Status:       domain.RequestRequested,
			RequestedAt:  d.m.Now(),
		}
		err = d.st.Insert(ctx, store.RestaurantRequests, rr.Doc())
		if errors.Is(err, apperr.ErrDuplicate) {
			d.logger.Debug("restaurant request replayed", logx.String("id", rr.ID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert restaurant request: %w", err)
		}
		// A cancel that listed the open requests before this insert left it behind.
		if withdrawn, err := d.withdrawIfClosed(ctx, rr); withdrawn || err != nil {
			return err
		}
		d.logger.Info("restaurant requested",
			logx.String("orderNo", o.OrderNo),
			logx.String("restaurantId", rid),
			logx.Int("attempt", i),
		)
		return nil
	}

	_, err := d.m.FailOrder(ctx, o.OrderNo, []domain.OrderStatus{domain.OrderPending}, domain.ReasonRestaurantDeclined)
	return err
}

func (d *Dispatcher) withdrawIfClosed(ctx context.Context, rr domain.RestaurantRequest) (bool, error) {
	o, err := d.m.Order(ctx, rr.OrderNo)
	if err != nil {
		return false, ignoreNotFound(err)
	}
	if !o.Status.Terminal() {
		return false, nil
	}
	if _, err := d.m.CloseRequest(ctx, store.RestaurantRequests, rr.ID, domain.RequestCancelled); err != nil {
		return true, err
	}
	d.logger.Info("restaurant request withdrawn",
		logx.String("orderNo", rr.OrderNo),
		logx.String("restaurantId", rr.RestaurantID),
		logx.String("status", string(o.Status)),
	)
	return true, nil
}

func (d *Dispatcher) onRestaurantAccepted(ctx context.Context, rr domain.RestaurantRequest) error {
	_, err := d.m.AdvanceOrder(ctx, rr.OrderNo,
		[]domain.OrderStatus{domain.OrderPending},
		domain.OrderAcceptedByRestaurant,
		store.Doc{"restaurantId": rr.RestaurantID},
	)
	if errors.Is(err, apperr.ErrNotMatched) {
		// Either another worker progressed the order, or we crashed between
		// the transition and the first wave.
		o, err := d.m.Order(ctx, rr.OrderNo)
		if err != nil {
			return ignoreNotFound(err)
		}
		if o.Status != domain.OrderAcceptedByRestaurant || o.RestaurantID != rr.RestaurantID || o.Wave > 0 {
			d.logger.Debug("restaurant acceptance already handled", logx.String("orderNo", rr.OrderNo))
			return nil
		}
	} else if err != nil {
		return err
	}

	d.logger.Info("restaurant accepted", logx.String("orderNo", rr.OrderNo), logx.String("restaurantId", rr.RestaurantID))
	_, err = d.Dispatch(ctx, rr.OrderNo, 1)
	return err
}

func (d *Dispatcher) onRestaurantDeclined(ctx context.Context, rr domain.RestaurantRequest) error {
	o, err := d.m.Order(ctx, rr.OrderNo)
	if err != nil {
		return ignoreNotFound(err)
	}
	if o.Status != domain.OrderPending {
		return nil
	}
	open, err := d.m.RestaurantRequests(ctx, rr.OrderNo, domain.RequestRequested)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return nil
	}
	d.logger.Info("restaurant declined",
		logx.String("orderNo", rr.OrderNo),
		logx.String("restaurantId", rr.RestaurantID),
		logx.String("status", string(rr.Status)),
	)
	return d.requestRestaurant(ctx, o, rr.Attempt+1)
}

// Dispatch runs fan-out wave number wave for orderNo and returns how many
// couriers hold an offer of that wave. Offers already issued for the wave
// (replayed event) count towards the fan-out. With no offer at all the
// order fails.
func (d *Dispatcher) Dispatch(ctx context.Context, orderNo string, wave int) (int, error) {
	o, err := d.m.Order(ctx, orderNo)
	if err != nil {
		return 0, ignoreNotFound(err)
	}
	if o.Status != domain.OrderAcceptedByRestaurant && o.Status != domain.OrderSearchingCourier {
		return 0, nil
	}

	previous, err := d.m.DeliveryRequests(ctx, orderNo)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(previous))
	issued := 0
	for _, dr := range previous {
		seen[dr.CourierID] = true
		if dr.Wave == wave && !dr.Status.Declined() {
			issued++
		}
	}

	// Couriers left offered without a request by an interrupted wave.
	stranded, err := d.m.OfferedCouriers(ctx, orderNo)
	if err != nil {
		return 0, err
	}
	for _, c := range stranded {
		if seen[c.CourierID] {
			continue
		}
		seen[c.CourierID] = true
		if err := d.insertOffer(ctx, orderNo, c.CourierID, wave); err != nil {
			return issued, err
		}
		issued++
	}

	if need := d.cfg.FanOut - issued; need > 0 {
		n, err := d.offerCandidates(ctx, orderNo, wave, need, seen)
		issued += n
		if err != nil {
			return issued, err
		}
	}

	if issued == 0 {
		reason := domain.ReasonNoCourierAvailable
		if wave > 1 {
			reason = domain.ReasonCourierDeclined
		}
		_, err := d.m.FailOrder(ctx, orderNo, domain.Dispatching(), reason)
		return 0, err
	}

	_, err = d.m.AdvanceOrder(ctx, orderNo, domain.Dispatching(), domain.OrderSearchingCourier,
		store.Doc{"wave": int64(wave)},
		store.Ne("wave", wave),
	)
	if err != nil && !errors.Is(err, apperr.ErrNotMatched) {
		return issued, err
	}
	d.logger.Info("couriers offered",
		logx.String("orderNo", orderNo),
		logx.Int("wave", wave),
		logx.Int("offers", issued),
	)
	return issued, nil
}

func (d *Dispatcher) offerCandidates(ctx context.Context, orderNo string, wave, need int, exclude map[string]bool) (int, error) {
	ids := make([]string, 0, len(exclude))
	for id := range exclude {
		ids = append(ids, id)
	}
	filter := store.Where(store.Eq("status", domain.CourierAvailable))
	if len(ids) > 0 {
		filter = append(filter, store.Nin("courierId", ids...))
	}
	candidates, err := d.st.FindMany(ctx, store.Couriers, filter, store.FindOptions{
		Sort:  []store.SortKey{store.Asc("lastOfferedAt"), store.Asc("courierId")},
		Limit: need,
	})
	if err != nil {
		return 0, err
	}

	offered := 0
	for _, doc := range candidates {
		c := domain.CourierFromDoc(doc)
		err := d.m.OfferCourier(ctx, c.CourierID, orderNo)
		if errors.Is(err, apperr.ErrNotMatched) {
			continue
		}
		if err != nil {
			return offered, err
		}
		if err := d.insertOffer(ctx, orderNo, c.CourierID, wave); err != nil {
			if _, relErr := d.m.ReleaseCourier(ctx, c.CourierID, orderNo); relErr != nil {
				d.logger.Warn("courier release after failed offer", logx.String("courierId", c.CourierID), logx.Err(relErr))
			}
			return offered, err
		}
		offered++
	}
	return offered, nil
}

func (d *Dispatcher) insertOffer(ctx context.Context, orderNo, courierID string, wave int) error {
	dr := domain.DeliveryRequest{
		ID:          domain.DeliveryRequestID(orderNo, wave, courierID),
		OrderNo:     orderNo,
		CourierID:   courierID,
		Wave:        wave,
		Status:      domain.RequestRequested,
		RequestedAt: d.m.Now(),
	}
	err := d.st.Insert(ctx, store.DeliveryRequests, dr.Doc())
	if errors.Is(err, apperr.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("insert delivery request: %w", err)
	}
	if d.offers != nil {
		d.offers.WithLabelValues(strconv.Itoa(wave)).Inc()
	}
	return nil
}

// AfterOfferClosed is called when an offer of orderNo ended without a
// commit. When no offer is outstanding anymore it starts the next wave, or
// fails the order once MaxWaves waves were spent.
func (d *Dispatcher) AfterOfferClosed(ctx context.Context, orderNo string) error {
	o, err := d.m.Order(ctx, orderNo)
	if err != nil {
		return ignoreNotFound(err)
	}
	if o.Status != domain.OrderAcceptedByRestaurant && o.Status != domain.OrderSearchingCourier {
		return nil
	}
	open, err := d.m.DeliveryRequests(ctx, orderNo, domain.RequestRequested)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		return nil
	}

	wave := o.Wave
	if wave < 1 {
		wave = 1
	}
	if wave >= d.cfg.MaxWaves {
		_, err := d.m.FailOrder(ctx, orderNo, domain.Dispatching(), domain.ReasonCourierDeclined)
		return err
	}
	_, err = d.Dispatch(ctx, orderNo, wave+1)
	return err
}

func ignoreNotFound(err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	return err
}
