package handlers

import (
	"context"

	"delivery-orchestrator/internal/service/inspect"
)

//go:generate mockgen -source=contracts.go -destination=handlers_mocks_test.go -package=handlers

type orderInspector interface {
	Dump(ctx context.Context, orderNo string) (inspect.Report, error)
	Stats(ctx context.Context, last int) (inspect.Stats, error)
}

// HealthFunc reports a reason the process cannot serve, nil when healthy.
type HealthFunc func(ctx context.Context) error
