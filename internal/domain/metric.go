package domain

import (
	"time"

	"delivery-orchestrator/internal/store"
)

// Metric records the latency of one committed assignment.
type Metric struct {
	OrderNo           string
	CourierID         string
	DeliveryRequestTs time.Time
	AssignedAt        time.Time
	AssignmentDelayMs int64
}

// NewMetric computes the delay between the accepted offer and the commit.
// Both instants are kept at millisecond precision so the stored delay is
// exactly their difference. A clock skew that would make the delay negative
// is clamped by moving assignedAt to the request time.
func NewMetric(orderNo, courierID string, requestedAt, assignedAt time.Time) Metric {
	requestedAt = requestedAt.UTC().Truncate(time.Millisecond)
	assignedAt = assignedAt.UTC().Truncate(time.Millisecond)
	if assignedAt.Before(requestedAt) {
		assignedAt = requestedAt
	}
	return Metric{
		OrderNo:           orderNo,
		CourierID:         courierID,
		DeliveryRequestTs: requestedAt,
		AssignedAt:        assignedAt,
		AssignmentDelayMs: assignedAt.Sub(requestedAt).Milliseconds(),
	}
}

func (m Metric) Doc() store.Doc {
	d := store.Doc{
		"orderNo":           m.OrderNo,
		"deliveryRequestTs": m.DeliveryRequestTs.UTC(),
		"assignedAt":        m.AssignedAt.UTC(),
		"assignmentDelayMs": m.AssignmentDelayMs,
	}
	setIf(d, "courierId", m.CourierID)
	return d
}

func MetricFromDoc(d store.Doc) Metric {
	return Metric{
		OrderNo:           d.String("orderNo"),
		CourierID:         d.String("courierId"),
		DeliveryRequestTs: d.Time("deliveryRequestTs"),
		AssignedAt:        d.Time("assignedAt"),
		AssignmentDelayMs: d.Int("assignmentDelayMs"),
	}
}
