// Package lifecycle applies the client and courier driven transitions that
// bracket the orchestrator's work: cancellation and delivery.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

// Service cancels and delivers orders.
type Service struct {
	m      *orderstate.Machine
	logger logx.Logger
}

// New returns a Service.
func New(m *orderstate.Machine, logger logx.Logger) *Service {
	return &Service{m: m, logger: logx.Component(logger, "lifecycle")}
}

// CancelResult describes what a cancellation withdrew.
type CancelResult struct {
	PriorStatus        domain.OrderStatus
	RestaurantRequests int
	DeliveryRequests   int
}

// Cancel moves a not yet assigned order to cancelled, withdraws its open
// requests and frees the couriers holding an offer. Orders already in
// progress or terminal yield apperr.ErrInvalid.
func (s *Service) Cancel(ctx context.Context, orderNo, reason string) (CancelResult, error) {
	if reason == "" {
		reason = domain.ReasonCancelledByClient
	}
	prior, err := s.m.AdvanceOrder(ctx, orderNo, domain.Cancellable(), domain.OrderCancelled, store.Doc{"reason": reason})
	if errors.Is(err, apperr.ErrNotMatched) {
		cur, err := s.m.Order(ctx, orderNo)
		if err != nil {
			return CancelResult{}, err
		}
		return CancelResult{}, fmt.Errorf("order %s is %s: %w", orderNo, cur.Status, apperr.ErrInvalid)
	}
	if err != nil {
		return CancelResult{}, err
	}

	res := CancelResult{PriorStatus: prior.Status}
	rrs, err := s.m.RestaurantRequests(ctx, orderNo, domain.RequestRequested)
	if err != nil {
		return res, err
	}
	for _, rr := range rrs {
		ok, err := s.m.CloseRequest(ctx, store.RestaurantRequests, rr.ID, domain.RequestCancelled)
		if err != nil {
			return res, err
		}
		if ok {
			res.RestaurantRequests++
		}
	}

	n, err := s.m.ReleaseOffers(ctx, orderNo, "")
	res.DeliveryRequests = n
	if err != nil {
		return res, err
	}

	s.logger.Info("order cancelled",
		logx.String("orderNo", orderNo),
		logx.String("from", string(prior.Status)),
		logx.String("reason", reason),
		logx.Int("restaurantRequests", res.RestaurantRequests),
		logx.Int("deliveryRequests", res.DeliveryRequests),
	)
	return res, nil
}

// Deliver closes an in-progress order and frees its courier. Delivering an
// already delivered order only finishes a courier left en_course.
func (s *Service) Deliver(ctx context.Context, orderNo string) (domain.Order, error) {
	prior, err := s.m.AdvanceOrder(ctx, orderNo, []domain.OrderStatus{domain.OrderInProgress}, domain.OrderDelivered, nil)
	if errors.Is(err, apperr.ErrNotMatched) {
		cur, err := s.m.Order(ctx, orderNo)
		if err != nil {
			return domain.Order{}, err
		}
		if cur.Status != domain.OrderDelivered {
			return cur, fmt.Errorf("order %s is %s: %w", orderNo, cur.Status, apperr.ErrInvalid)
		}
		prior = cur
	} else if err != nil {
		return domain.Order{}, err
	}

	freed, err := s.m.FinishCourier(ctx, prior.CourierID, orderNo)
	if err != nil {
		return prior, err
	}
	if freed {
		s.logger.Info("order delivered",
			logx.String("orderNo", orderNo),
			logx.String("courierId", prior.CourierID),
		)
	}
	return prior, nil
}
