package simulate

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/store"
)

// answerRestaurants accepts each new RestaurantRequest with
// RestaurantAcceptRate after a reply delay.
func (s *Simulator) answerRestaurants(ctx context.Context, stream store.ChangeStream) error {
	return s.answer(ctx, stream, store.RestaurantRequests, s.cfg.RestaurantAcceptRate, func(ev store.Event) (string, string) {
		rr := domain.RestaurantRequestFromDoc(ev.Doc)
		if rr.Status != domain.RequestRequested {
			return "", ""
		}
		return rr.ID, rr.RestaurantID
	})
}

// answerCouriers does the same for DeliveryRequests with CourierAcceptRate.
// Couriers that stay silent are left to the TTL sweeper.
func (s *Simulator) answerCouriers(ctx context.Context, stream store.ChangeStream) error {
	return s.answer(ctx, stream, store.DeliveryRequests, s.cfg.CourierAcceptRate, func(ev store.Event) (string, string) {
		dr := domain.DeliveryRequestFromDoc(ev.Doc)
		if dr.Status != domain.RequestRequested {
			return "", ""
		}
		return dr.ID, dr.CourierID
	})
}

func (s *Simulator) answer(
	ctx context.Context,
	stream store.ChangeStream,
	collection string,
	rate float64,
	pick func(store.Event) (id, actor string),
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.inFlight)

	err := s.follow(ctx, stream, requestFeed(collection), func(ev store.Event) {
		id, actor := pick(ev)
		if id == "" {
			return
		}
		to := domain.RequestRejected
		if s.chance(rate) {
			to = domain.RequestAccepted
		}
		delay := s.replyDelay()
		g.Go(func() error {
			if !store.SleepContext(gctx, delay) {
				return nil
			}
			answered, err := s.m.CloseRequest(gctx, collection, id, to)
			if err != nil {
				if gctx.Err() == nil {
					s.logger.Warn("answer failed", logx.String("collection", collection), logx.String("id", id), logx.Err(err))
				}
				return nil
			}
			if answered {
				s.logger.Info("request answered",
					logx.String("collection", collection),
					logx.String("id", id),
					logx.String("actor", actor),
					logx.String("status", string(to)),
				)
			}
			return nil
		})
	})
	_ = g.Wait()
	return err
}

// finishDeliveries marks orders delivered DeliveryDuration after their
// courier got it: on attribution messages when sub is set, else on Order
// updates to in_progress.
func (s *Simulator) finishDeliveries(ctx context.Context, sub bus.Subscriber, orders store.ChangeStream) error {
	var (
		g, gctx   = errgroup.WithContext(ctx)
		scheduled = newOnce()
	)
	g.SetLimit(s.inFlight)

	schedule := func(orderNo string) {
		if orderNo == "" || !scheduled.first(orderNo) {
			return
		}
		g.Go(func() error {
			if !store.SleepContext(gctx, s.cfg.DeliveryDuration) {
				return nil
			}
			o, err := s.delivery.Deliver(gctx, orderNo)
			switch {
			case errors.Is(err, apperr.ErrInvalid), errors.Is(err, apperr.ErrNotFound):
				s.logger.Debug("delivery skipped", logx.String("orderNo", orderNo), logx.Err(err))
			case err != nil:
				if gctx.Err() == nil {
					s.logger.Warn("delivery failed", logx.String("orderNo", orderNo), logx.Err(err))
				}
			default:
				s.logger.Info("delivery finished", logx.String("orderNo", orderNo), logx.String("courierId", o.CourierID))
			}
			return nil
		})
	}

	var err error
	if sub != nil {
		err = sub.Subscribe(ctx, func(_ context.Context, _ string, msg bus.Message) error {
			if msg.Type == bus.TypeAttribution {
				schedule(msg.OrderNo)
			}
			return nil
		})
	} else {
		err = s.follow(ctx, orders, progressFeed(), func(ev store.Event) {
			if domain.OrderStatus(ev.Doc.String("status")) == domain.OrderInProgress {
				schedule(ev.Doc.String("orderNo"))
			}
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
