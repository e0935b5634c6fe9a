//go:generate mockgen -source=contracts.go -destination=orders_mocks_test.go -package=orders_test

package orders

import (
	"context"

	"delivery-orchestrator/internal/domain"
)

// OrderDispatcher reacts to new orders and restaurant answers.
type OrderDispatcher interface {
	OnOrderCreated(ctx context.Context, o domain.Order) error
	OnRestaurantReply(ctx context.Context, rr domain.RestaurantRequest) error
}

// ReplyHandler reacts to courier answers.
type ReplyHandler interface {
	OnDeliveryReply(ctx context.Context, dr domain.DeliveryRequest) error
}

// OrderArchiver records orders that reached delivered.
type OrderArchiver interface {
	OnOrderUpdated(ctx context.Context, o domain.Order) error
}
