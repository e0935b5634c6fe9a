//go:generate mockgen -source=contracts.go -destination=reply_mocks_test.go -package=reply_test

package reply

import (
	"context"

	"delivery-orchestrator/internal/domain"
)

// Committer commits an accepted offer.
type Committer interface {
	Commit(ctx context.Context, dr domain.DeliveryRequest) error
}

// Dispatcher starts the next wave or fails the order.
type Dispatcher interface {
	AfterOfferClosed(ctx context.Context, orderNo string) error
}

// CourierReleaser frees a courier whose offer ended.
type CourierReleaser interface {
	ReleaseCourier(ctx context.Context, courierID, orderNo string) (bool, error)
}
