// Package latency writes one Metric document per committed assignment.
package latency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/store"
)

type observer interface {
	Observe(float64)
}

// Recorder is append-only: a Metric is never updated.
type Recorder struct {
	st    store.Store
	delay observer
}

// NewRecorder returns a Recorder. delay may be nil.
func NewRecorder(st store.Store, delay observer) *Recorder {
	return &Recorder{st: st, delay: delay}
}

// Record stores the Metric of orderNo. It reports false when the metric
// already existed, which happens when a commit is resumed.
func (r *Recorder) Record(ctx context.Context, orderNo, courierID string, requestedAt, assignedAt time.Time) (domain.Metric, bool, error) {
	m := domain.NewMetric(orderNo, courierID, requestedAt, assignedAt)
	err := r.st.Insert(ctx, store.Metrics, m.Doc())
	if errors.Is(err, apperr.ErrDuplicate) {
		return m, false, nil
	}
	if err != nil {
		return domain.Metric{}, false, fmt.Errorf("insert metric: %w", err)
	}
	if r.delay != nil {
		r.delay.Observe(float64(m.AssignmentDelayMs) / 1000)
	}
	return m, true, nil
}
