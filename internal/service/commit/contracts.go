//go:generate mockgen -source=contracts.go -destination=commit_mocks_test.go -package=commit_test

package commit

import (
	"context"
	"time"

	"delivery-orchestrator/internal/bus"
	"delivery-orchestrator/internal/domain"
)

// LatencyRecorder persists the Metric of a commit.
type LatencyRecorder interface {
	Record(ctx context.Context, orderNo, courierID string, requestedAt, assignedAt time.Time) (domain.Metric, bool, error)
}

// Publisher sends the courier attribution on the bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg bus.Message) error
}
