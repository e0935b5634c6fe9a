package orders

import (
	"context"

	"delivery-orchestrator/internal/store"
)

type actionFunc func(context.Context, store.Event) error

type actionFactory struct {
	byKind map[string]actionFunc
}

func actionKey(collection string, kind store.EventKind) string {
	return collection + "/" + string(kind)
}

func newActionFactory(onOrderInserted, onOrderUpdated, onRestaurantReply, onDeliveryReply actionFunc) *actionFactory {
	return &actionFactory{
		byKind: map[string]actionFunc{
			actionKey(store.Orders, store.Insert):             onOrderInserted,
			actionKey(store.Orders, store.Update):             onOrderUpdated,
			actionKey(store.RestaurantRequests, store.Update): onRestaurantReply,
			actionKey(store.DeliveryRequests, store.Update):   onDeliveryReply,
		},
	}
}

func (f *actionFactory) get(ev store.Event) (actionFunc, bool) {
	fn, ok := f.byKind[actionKey(ev.Collection, ev.Kind)]
	return fn, ok
}
