// Package orderstate holds the conditional transitions shared by the
// dispatcher, committer, sweeper and lifecycle commands. Every transition is
// a single UpdateOneIf whose filter encodes the expected prior state.
package orderstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/store"
)

type labeledCounter interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Machine applies order, courier and request transitions.
type Machine struct {
	st     store.Store
	logger logx.Logger
	failed labeledCounter
	now    func() time.Time
}

// New returns a Machine. failed may be nil.
func New(st store.Store, logger logx.Logger, failed labeledCounter) *Machine {
	return &Machine{
		st:     st,
		logger: logx.Component(logger, "orderstate"),
		failed: failed,
		now:    Now,
	}
}

// Now is the wall clock used for every persisted timestamp, at the
// millisecond precision every backend can store.
func Now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// WithClock replaces the clock; used by tests.
func (m *Machine) WithClock(now func() time.Time) *Machine {
	m.now = now
	return m
}

// Now returns the current time of the machine's clock.
func (m *Machine) Now() time.Time { return m.now() }

// Store returns the underlying store.
func (m *Machine) Store() store.Store { return m.st }

// Order loads an order by number.
func (m *Machine) Order(ctx context.Context, orderNo string) (domain.Order, error) {
	d, err := m.st.FindOne(ctx, store.Orders, store.Where(store.Eq("orderNo", orderNo)))
	if err != nil {
		return domain.Order{}, err
	}
	return domain.OrderFromDoc(d), nil
}

// Courier loads a courier by id.
func (m *Machine) Courier(ctx context.Context, courierID string) (domain.Courier, error) {
	d, err := m.st.FindOne(ctx, store.Couriers, store.Where(store.Eq("courierId", courierID)))
	if err != nil {
		return domain.Courier{}, err
	}
	return domain.CourierFromDoc(d), nil
}

// AdvanceOrder moves an order whose status is one of from to status to,
// setting extra fields. It returns the order as it was before.
func (m *Machine) AdvanceOrder(
	ctx context.Context,
	orderNo string,
	from []domain.OrderStatus,
	to domain.OrderStatus,
	set store.Doc,
	extra ...store.Cond,
) (domain.Order, error) {
	fields := store.Doc{"status": to, "updatedAt": m.now()}
	for k, v := range set {
		fields[k] = v
	}
	filter := append(store.Where(store.Eq("orderNo", orderNo), store.In("status", from...)), extra...)
	prior, err := m.st.UpdateOneIf(ctx, store.Orders, filter, store.Set(fields))
	if err != nil {
		return domain.Order{}, err
	}
	return domain.OrderFromDoc(prior), nil
}

// FailOrder marks the order failed with reason if its status is one of
// from. It reports whether this call made the transition.
func (m *Machine) FailOrder(ctx context.Context, orderNo string, from []domain.OrderStatus, reason string) (bool, error) {
	prior, err := m.AdvanceOrder(ctx, orderNo, from, domain.OrderFailed, store.Doc{"reason": reason})
	if errors.Is(err, apperr.ErrNotMatched) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m.failed != nil {
		m.failed.WithLabelValues(reason).Inc()
	}
	m.logger.Info("order failed",
		logx.String("orderNo", orderNo),
		logx.String("from", string(prior.Status)),
		logx.String("reason", reason),
	)
	return true, nil
}

// OfferCourier moves an available courier to offered for orderNo.
func (m *Machine) OfferCourier(ctx context.Context, courierID, orderNo string) error {
	_, err := m.st.UpdateOneIf(ctx, store.Couriers,
		store.Where(store.Eq("courierId", courierID), store.Eq("status", domain.CourierAvailable)),
		store.Set(store.Doc{
			"status":         domain.CourierOffered,
			"currentOrderNo": orderNo,
			"lastOfferedAt":  m.now(),
		}),
	)
	return err
}

// ReleaseCourier moves a courier offered for orderNo back to available. It
// is idempotent: a courier in any other state is left alone.
func (m *Machine) ReleaseCourier(ctx context.Context, courierID, orderNo string) (bool, error) {
	_, err := m.st.UpdateOneIf(ctx, store.Couriers,
		store.Where(
			store.Eq("courierId", courierID),
			store.Eq("status", domain.CourierOffered),
			store.Eq("currentOrderNo", orderNo),
		),
		store.Set(store.Doc{"status": domain.CourierAvailable}).AndUnset("currentOrderNo"),
	)
	if errors.Is(err, apperr.ErrNotMatched) {
		return false, nil
	}
	return err == nil, err
}

// EngageCourier moves the courier offered for orderNo to en_course.
// apperr.ErrNotMatched is returned untouched.
func (m *Machine) EngageCourier(ctx context.Context, courierID, orderNo string) error {
	_, err := m.st.UpdateOneIf(ctx, store.Couriers,
		store.Where(
			store.Eq("courierId", courierID),
			store.Eq("status", domain.CourierOffered),
			store.Eq("currentOrderNo", orderNo),
		),
		store.Set(store.Doc{"status": domain.CourierEnCourse}),
	)
	return err
}

// FinishCourier frees a courier that was en_course on orderNo.
func (m *Machine) FinishCourier(ctx context.Context, courierID, orderNo string) (bool, error) {
	_, err := m.st.UpdateOneIf(ctx, store.Couriers,
		store.Where(
			store.Eq("courierId", courierID),
			store.Eq("status", domain.CourierEnCourse),
			store.Eq("currentOrderNo", orderNo),
		),
		store.Set(store.Doc{"status": domain.CourierAvailable}).AndUnset("currentOrderNo"),
	)
	if errors.Is(err, apperr.ErrNotMatched) {
		return false, nil
	}
	return err == nil, err
}

// CloseRequest moves a still requested RestaurantRequest or DeliveryRequest
// to a terminal status. It reports whether this call made the transition.
func (m *Machine) CloseRequest(ctx context.Context, collection, id string, to domain.RequestStatus) (bool, error) {
	if !to.Terminal() {
		return false, fmt.Errorf("close request to %q: %w", to, apperr.ErrInvalid)
	}
	_, err := m.st.UpdateOneIf(ctx, collection,
		store.Where(store.Eq("id", id), store.Eq("status", domain.RequestRequested)),
		store.Set(store.Doc{"status": to, "respondedAt": m.now()}),
	)
	if errors.Is(err, apperr.ErrNotMatched) {
		return false, nil
	}
	return err == nil, err
}

// DeliveryRequests lists the offers of an order, optionally restricted to
// some statuses.
func (m *Machine) DeliveryRequests(ctx context.Context, orderNo string, statuses ...domain.RequestStatus) ([]domain.DeliveryRequest, error) {
	filter := store.Where(store.Eq("orderNo", orderNo))
	if len(statuses) > 0 {
		filter = append(filter, store.In("status", statuses...))
	}
	docs, err := m.st.FindMany(ctx, store.DeliveryRequests, filter, store.FindOptions{Sort: []store.SortKey{store.Asc("requestedAt")}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeliveryRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.DeliveryRequestFromDoc(d))
	}
	return out, nil
}

// RestaurantRequests lists the restaurant requests of an order.
func (m *Machine) RestaurantRequests(ctx context.Context, orderNo string, statuses ...domain.RequestStatus) ([]domain.RestaurantRequest, error) {
	filter := store.Where(store.Eq("orderNo", orderNo))
	if len(statuses) > 0 {
		filter = append(filter, store.In("status", statuses...))
	}
	docs, err := m.st.FindMany(ctx, store.RestaurantRequests, filter, store.FindOptions{Sort: []store.SortKey{store.Asc("attempt")}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.RestaurantRequest, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.RestaurantRequestFromDoc(d))
	}
	return out, nil
}

// OfferedCouriers lists couriers currently offered orderNo.
func (m *Machine) OfferedCouriers(ctx context.Context, orderNo string) ([]domain.Courier, error) {
	return m.couriersOn(ctx, orderNo, domain.CourierOffered)
}

// EngagedCouriers lists couriers en_course on orderNo.
func (m *Machine) EngagedCouriers(ctx context.Context, orderNo string) ([]domain.Courier, error) {
	return m.couriersOn(ctx, orderNo, domain.CourierEnCourse)
}

func (m *Machine) couriersOn(ctx context.Context, orderNo string, status domain.CourierStatus) ([]domain.Courier, error) {
	docs, err := m.st.FindMany(ctx, store.Couriers,
		store.Where(store.Eq("status", status), store.Eq("currentOrderNo", orderNo)),
		store.FindOptions{},
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Courier, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.CourierFromDoc(d))
	}
	return out, nil
}

// ReleaseOffers cancels every requested offer of orderNo except the one
// made to keep, and frees the couriers behind them. Best effort: the first
// error is returned after every item was tried.
func (m *Machine) ReleaseOffers(ctx context.Context, orderNo, keep string) (int, error) {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	cancelled := 0
	drs, err := m.DeliveryRequests(ctx, orderNo, domain.RequestRequested)
	note(err)
	for _, dr := range drs {
		if dr.CourierID == keep {
			continue
		}
		ok, err := m.CloseRequest(ctx, store.DeliveryRequests, dr.ID, domain.RequestCancelled)
		note(err)
		if ok {
			cancelled++
		}
	}

	offered, err := m.OfferedCouriers(ctx, orderNo)
	note(err)
	for _, c := range offered {
		if c.CourierID == keep {
			continue
		}
		_, err := m.ReleaseCourier(ctx, c.CourierID, orderNo)
		note(err)
	}
	return cancelled, firstErr
}
