package orders

import (
	"context"

	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/store"
)

// Processor routes change events to the component owning them.
type Processor struct {
	dispatcher OrderDispatcher
	replies    ReplyHandler
	archiver   OrderArchiver
	factory    *actionFactory
}

// NewProcessor returns a Processor.
func NewProcessor(dispatcher OrderDispatcher, replies ReplyHandler) *Processor {
	p := &Processor{dispatcher: dispatcher, replies: replies}
	p.factory = newActionFactory(p.onOrderInserted, p.onOrderUpdated, p.onRestaurantReply, p.onDeliveryReply)
	return p
}

// WithArchiver routes delivered orders to a. Without one, order updates
// are dropped.
func (p *Processor) WithArchiver(a OrderArchiver) *Processor {
	p.archiver = a
	return p
}

// Handle processes a single change event. Events nobody handles are
// dropped.
func (p *Processor) Handle(ctx context.Context, ev store.Event) error {
	fn, ok := p.factory.get(ev)
	if !ok {
		return nil
	}
	return fn(ctx, ev)
}

func (p *Processor) onOrderInserted(ctx context.Context, ev store.Event) error {
	return p.dispatcher.OnOrderCreated(ctx, domain.OrderFromDoc(ev.Doc))
}

func (p *Processor) onOrderUpdated(ctx context.Context, ev store.Event) error {
	if p.archiver == nil {
		return nil
	}
	o := domain.OrderFromDoc(ev.Doc)
	if o.Status != domain.OrderDelivered {
		return nil
	}
	return p.archiver.OnOrderUpdated(ctx, o)
}

func (p *Processor) onRestaurantReply(ctx context.Context, ev store.Event) error {
	rr := domain.RestaurantRequestFromDoc(ev.Doc)
	if !rr.Status.Terminal() {
		return nil
	}
	return p.dispatcher.OnRestaurantReply(ctx, rr)
}

func (p *Processor) onDeliveryReply(ctx context.Context, ev store.Event) error {
	dr := domain.DeliveryRequestFromDoc(ev.Doc)
	if !dr.Status.Terminal() {
		return nil
	}
	return p.replies.OnDeliveryReply(ctx, dr)
}
