package commit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

type counter interface {
	Inc()
}

// Committer turns the first accepted DeliveryRequest of an order into an
// assignment. It is safe to call again with the same request: a resumed
// commit skips the transitions that already happened.
type Committer struct {
	m         *orderstate.Machine
	st        store.Store
	builder   NotificationBuilder
	recorder  LatencyRecorder
	publisher Publisher
	logger    logx.Logger

	assignments counter
	conflicts   counter
}

// Option tunes a Committer.
type Option func(*Committer)

// WithPublisher enables the bus attribution message.
func WithPublisher(p Publisher) Option {
	return func(c *Committer) { c.publisher = p }
}

// WithCounters wires the assignment and conflict counters.
func WithCounters(assignments, conflicts counter) Option {
	return func(c *Committer) {
		c.assignments = assignments
		c.conflicts = conflicts
	}
}

// New returns a Committer.
func New(m *orderstate.Machine, recorder LatencyRecorder, logger logx.Logger, opts ...Option) *Committer {
	c := &Committer{
		m:        m,
		st:       m.Store(),
		recorder: recorder,
		logger:   logx.Component(logger, "committer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Commit assigns dr.CourierID to dr.OrderNo.
//
// It returns nil when the offer lost (another courier won, or the order is
// no longer dispatching), apperr.ErrCommitConflict after compensating an
// order whose courier left the offered state, and
// apperr.ErrInvariantViolation when two couriers are en_course on the order.
func (c *Committer) Commit(ctx context.Context, dr domain.DeliveryRequest) error {
	log := c.logger.With(logx.String("orderNo", dr.OrderNo), logx.String("courierId", dr.CourierID))

	assignedAt := c.m.Now()
	prior, err := c.m.AdvanceOrder(ctx, dr.OrderNo, domain.Dispatching(), domain.OrderInProgress,
		store.Doc{"courierId": dr.CourierID, "assignedAt": assignedAt},
	)
	resumed := false
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotMatched):
		cur, err := c.m.Order(ctx, dr.OrderNo)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if cur.Status != domain.OrderInProgress || cur.CourierID != dr.CourierID {
			if _, err := c.m.ReleaseCourier(ctx, dr.CourierID, dr.OrderNo); err != nil {
				return err
			}
			log.Info("offer lost", logx.String("orderStatus", string(cur.Status)), logx.String("winner", cur.CourierID))
			return nil
		}
		resumed = true
		prior = domain.Order{Status: domain.OrderSearchingCourier}
		if !cur.AssignedAt.IsZero() {
			assignedAt = cur.AssignedAt
		}
	default:
		return err
	}

	if err := c.engage(ctx, dr, prior.Status, log); err != nil {
		return err
	}

	engaged, err := c.m.EngagedCouriers(ctx, dr.OrderNo)
	if err != nil {
		return err
	}
	if len(engaged) > 1 {
		ids := make([]string, 0, len(engaged))
		for _, e := range engaged {
			ids = append(ids, e.CourierID)
		}
		// The couriers stay en_course: an operator decides which one keeps
		// the delivery and resets the others to available.
		log.Error("several couriers en_course on one order",
			logx.String("courierIds", strings.Join(ids, ",")),
			logx.Int("count", len(ids)),
		)
		if _, err := c.m.FailOrder(ctx, dr.OrderNo, []domain.OrderStatus{domain.OrderInProgress}, domain.ReasonInvariantViolation); err != nil {
			log.Error("failing order after invariant violation", logx.Err(err))
		}
		return fmt.Errorf("order %s has couriers %s en_course: %w", dr.OrderNo, strings.Join(ids, ", "), apperr.ErrInvariantViolation)
	}

	if n, err := c.m.ReleaseOffers(ctx, dr.OrderNo, dr.CourierID); err != nil {
		log.Warn("sibling offers not fully released", logx.Err(err))
	} else if n > 0 {
		log.Debug("sibling offers cancelled", logx.Int("count", n))
	}

	courier, err := c.m.Courier(ctx, dr.CourierID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	msg, err := c.builder.Build(NotificationInput{
		OrderNo:      dr.OrderNo,
		CourierName:  courier.DisplayName(),
		CourierID:    dr.CourierID,
		CourierPhone: courier.Phone,
	})
	if err != nil {
		return err
	}

	order, err := c.m.Order(ctx, dr.OrderNo)
	if err != nil {
		return err
	}
	n := domain.Notification{
		OrderNo:   dr.OrderNo,
		ClientID:  order.ClientID,
		CourierID: dr.CourierID,
		Message:   msg,
		SentAt:    c.m.Now(),
	}
	fresh := true
	if err := c.st.Insert(ctx, store.Notifications, n.Doc()); err != nil {
		if !errors.Is(err, apperr.ErrDuplicate) {
			return fmt.Errorf("insert notification: %w", err)
		}
		fresh = false
	}

	metric, recorded, err := c.recorder.Record(ctx, dr.OrderNo, dr.CourierID, dr.RequestedAt, assignedAt)
	if err != nil {
		return err
	}

	if fresh && c.assignments != nil {
		c.assignments.Inc()
	}
	if fresh {
		c.publish(ctx, dr, msg, log)
	}

	log.Info("courier assigned",
		logx.String("event", "courier_assigned"),
		logx.Int64("assignmentDelayMs", metric.AssignmentDelayMs),
		logx.Int("wave", dr.Wave),
		logx.Bool("resumed", resumed),
		logx.Bool("metricWritten", recorded),
	)
	return nil
}

// engage moves the courier to en_course. When the courier is no longer
// offered the order goes back to restore and ErrCommitConflict is returned.
func (c *Committer) engage(ctx context.Context, dr domain.DeliveryRequest, restore domain.OrderStatus, log logx.Logger) error {
	err := c.m.EngageCourier(ctx, dr.CourierID, dr.OrderNo)
	if err == nil {
		return nil
	}
	if !errors.Is(err, apperr.ErrNotMatched) {
		return err
	}

	cur, err := c.m.Courier(ctx, dr.CourierID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if cur.Status == domain.CourierEnCourse && cur.CurrentOrderNo == dr.OrderNo {
		return nil
	}

	if restore != domain.OrderAcceptedByRestaurant {
		restore = domain.OrderSearchingCourier
	}
	_, err = c.st.UpdateOneIf(ctx, store.Orders,
		store.Where(
			store.Eq("orderNo", dr.OrderNo),
			store.Eq("status", domain.OrderInProgress),
			store.Eq("courierId", dr.CourierID),
		),
		store.Set(store.Doc{"status": restore, "updatedAt": c.m.Now()}).AndUnset("courierId", "assignedAt"),
	)
	if err != nil && !errors.Is(err, apperr.ErrNotMatched) {
		return err
	}
	if c.conflicts != nil {
		c.conflicts.Inc()
	}
	log.Warn("commit compensated",
		logx.String("courierStatus", string(cur.Status)),
		logx.String("restoredTo", string(restore)),
	)
	return fmt.Errorf("order %s courier %s: %w", dr.OrderNo, dr.CourierID, apperr.ErrCommitConflict)
}

func (c *Committer) publish(ctx context.Context, dr domain.DeliveryRequest, msg string, log logx.Logger) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.Publish(ctx, bus.CourierChannel(dr.CourierID), bus.Message{
		Type:      bus.TypeAttribution,
		OrderNo:   dr.OrderNo,
		CourierID: dr.CourierID,
		Message:   msg,
	})
	if err != nil {
		log.Warn("attribution publish failed", logx.Err(err))
	}
}
