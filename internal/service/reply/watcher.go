package reply

import (
	"context"
	"errors"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
)

// Watcher reacts to courier answers on DeliveryRequests.
type Watcher struct {
	committer  Committer
	dispatcher Dispatcher
	couriers   CourierReleaser
	logger     logx.Logger
}

// New returns a Watcher.
func New(c Committer, d Dispatcher, r CourierReleaser, logger logx.Logger) *Watcher {
	return &Watcher{committer: c, dispatcher: d, couriers: r, logger: logx.Component(logger, "reply-watcher")}
}

// OnDeliveryReply forwards acceptances to the committer. A declined or
// expired offer frees its courier and, once no offer of the order is
// outstanding, hands over to the dispatcher.
func (w *Watcher) OnDeliveryReply(ctx context.Context, dr domain.DeliveryRequest) error {
	switch {
	case dr.Status == domain.RequestAccepted:
		err := w.committer.Commit(ctx, dr)
		if !errors.Is(err, apperr.ErrCommitConflict) {
			return err
		}
		w.logger.Warn("commit conflict, waiting for next reply",
			logx.String("orderNo", dr.OrderNo),
			logx.String("courierId", dr.CourierID),
		)
		return w.dispatcher.AfterOfferClosed(ctx, dr.OrderNo)

	case dr.Status.Declined():
		released, err := w.couriers.ReleaseCourier(ctx, dr.CourierID, dr.OrderNo)
		if err != nil {
			return err
		}
		w.logger.Info("offer declined",
			logx.String("orderNo", dr.OrderNo),
			logx.String("courierId", dr.CourierID),
			logx.String("status", string(dr.Status)),
			logx.Bool("courierReleased", released),
		)
		return w.dispatcher.AfterOfferClosed(ctx, dr.OrderNo)

	default:
		return nil
	}
}
