// Package archive copies delivered orders, together with their courier,
// notification and metric, into the Archive collection.
package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/domain"
	"delivery-orchestrator/internal/logx"
	"delivery-orchestrator/internal/service/orderstate"
	"delivery-orchestrator/internal/store"
)

// ArchivedBy tags the records written by this process.
const ArchivedBy = "orchestrator"

// Outcome of archiving one order.
type Outcome string

const (
	OutcomeArchived  Outcome = "archived"
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeSkipped means the order is missing or not delivered.
	OutcomeSkipped Outcome = "skipped"
)

// Stats summarises a batch run. Incomplete records are also counted in
// Archived.
type Stats struct {
	Found      int `json:"found"`
	Archived   int `json:"archived"`
	Duplicates int `json:"duplicates"`
	Incomplete int `json:"incomplete"`
	Errors     int `json:"errors"`
}

// BatchOptions restricts a batch run to orders created within [From, To].
// Zero bounds are open.
type BatchOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

type labeledCounter interface {
	WithLabelValues(lvs ...string) prometheus.Counter
}

// Archiver writes one Archive document per delivered order.
type Archiver struct {
	m        *orderstate.Machine
	st       store.Store
	logger   logx.Logger
	outcomes labeledCounter
}

// New returns an Archiver. outcomes may be nil.
func New(m *orderstate.Machine, logger logx.Logger, outcomes labeledCounter) *Archiver {
	return &Archiver{m: m, st: m.Store(), logger: logx.Component(logger, "archiver"), outcomes: outcomes}
}

// OnOrderUpdated archives an order that reached delivered.
func (a *Archiver) OnOrderUpdated(ctx context.Context, o domain.Order) error {
	if o.Status != domain.OrderDelivered {
		return nil
	}
	_, _, err := a.archive(ctx, o.OrderNo)
	return err
}

// Archive writes the record of orderNo. Archiving twice is a duplicate, not
// an error.
func (a *Archiver) Archive(ctx context.Context, orderNo string) (Outcome, error) {
	outcome, _, err := a.archive(ctx, orderNo)
	return outcome, err
}

func (a *Archiver) archive(ctx context.Context, orderNo string) (Outcome, domain.Archive, error) {
	rec, ok, err := a.build(ctx, orderNo)
	if err != nil || !ok {
		return OutcomeSkipped, rec, err
	}

	log := a.logger.With(logx.String("orderNo", orderNo))
	err = a.st.Insert(ctx, store.Archives, rec.Doc())
	if errors.Is(err, apperr.ErrDuplicate) {
		a.count("duplicate")
		log.Debug("order already archived")
		return OutcomeDuplicate, rec, nil
	}
	if err != nil {
		return OutcomeSkipped, rec, fmt.Errorf("insert archive: %w", err)
	}

	a.count("archived")
	if rec.Incomplete() {
		a.count("incomplete")
		log.Warn("order archived incomplete", logx.Any("missing", rec.MissingFields))
		return OutcomeArchived, rec, nil
	}
	log.Info("order archived", logx.String("courierId", rec.CourierID))
	return OutcomeArchived, rec, nil
}

// build assembles the record of a delivered order; ok is false when the
// order is missing or not delivered.
func (a *Archiver) build(ctx context.Context, orderNo string) (domain.Archive, bool, error) {
	o, err := a.m.Order(ctx, orderNo)
	if errors.Is(err, apperr.ErrNotFound) {
		return domain.Archive{}, false, nil
	}
	if err != nil {
		return domain.Archive{}, false, err
	}
	if o.Status != domain.OrderDelivered {
		return domain.Archive{}, false, nil
	}

	rec := domain.Archive{
		OrderNo:      o.OrderNo,
		ClientID:     o.ClientID,
		RestaurantID: o.RestaurantID,
		CourierID:    o.CourierID,
		Items:        o.Items,
		CreatedAt:    o.CreatedAt,
		AssignedAt:   o.AssignedAt,
		DeliveredAt:  o.UpdatedAt,
		ArchivedAt:   a.m.Now(),
		ArchivedBy:   ArchivedBy,
	}
	if rec.RestaurantID == "" {
		rec.MissingFields = append(rec.MissingFields, "restaurantId")
	}

	if o.CourierID == "" {
		rec.MissingFields = append(rec.MissingFields, "courier")
	} else {
		c, err := a.m.Courier(ctx, o.CourierID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			rec.MissingFields = append(rec.MissingFields, "courier")
		case err != nil:
			return rec, false, err
		default:
			rec.CourierName = c.DisplayName()
		}
	}

	byOrder := store.Where(store.Eq("orderNo", orderNo))
	n, err := a.st.FindOne(ctx, store.Notifications, byOrder)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		rec.MissingFields = append(rec.MissingFields, "notification")
	case err != nil:
		return rec, false, err
	default:
		rec.Message = domain.NotificationFromDoc(n).Message
	}

	mt, err := a.st.FindOne(ctx, store.Metrics, byOrder)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		rec.MissingFields = append(rec.MissingFields, "metric")
	case err != nil:
		return rec, false, err
	default:
		rec.AssignmentDelayMs = domain.MetricFromDoc(mt).AssignmentDelayMs
	}
	return rec, true, nil
}

// Batch archives every delivered order within opts, oldest first. An order
// that fails is counted and skipped; an unavailable store or a cancelled
// context stops the run.
func (a *Archiver) Batch(ctx context.Context, opts BatchOptions) (Stats, error) {
	var stats Stats
	docs, err := a.st.FindMany(ctx, store.Orders,
		store.Where(store.Eq("status", domain.OrderDelivered)),
		store.FindOptions{Sort: []store.SortKey{store.Asc("createdAt")}},
	)
	if err != nil {
		return stats, err
	}

	for _, d := range docs {
		o := domain.OrderFromDoc(d)
		if !opts.From.IsZero() && o.CreatedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && o.CreatedAt.After(opts.To) {
			continue
		}
		stats.Found++

		outcome, rec, err := a.visit(ctx, o.OrderNo, opts.DryRun)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, apperr.ErrStoreUnavailable) {
				return stats, err
			}
			stats.Errors++
			a.logger.Error("archive failed", logx.String("orderNo", o.OrderNo), logx.Err(err))
			continue
		}
		switch outcome {
		case OutcomeArchived:
			stats.Archived++
			if rec.Incomplete() {
				stats.Incomplete++
			}
		case OutcomeDuplicate:
			stats.Duplicates++
		}
	}

	a.logger.Info("archive batch done",
		logx.Int("found", stats.Found),
		logx.Int("archived", stats.Archived),
		logx.Int("duplicates", stats.Duplicates),
		logx.Int("incomplete", stats.Incomplete),
		logx.Int("errors", stats.Errors),
		logx.Bool("dryRun", opts.DryRun),
	)
	return stats, nil
}

func (a *Archiver) visit(ctx context.Context, orderNo string, dryRun bool) (Outcome, domain.Archive, error) {
	if !dryRun {
		return a.archive(ctx, orderNo)
	}
	rec, ok, err := a.build(ctx, orderNo)
	if err != nil || !ok {
		return OutcomeSkipped, rec, err
	}
	_, err = a.st.FindOne(ctx, store.Archives, store.Where(store.Eq("orderNo", orderNo)))
	switch {
	case err == nil:
		return OutcomeDuplicate, rec, nil
	case errors.Is(err, apperr.ErrNotFound):
		return OutcomeArchived, rec, nil
	default:
		return OutcomeSkipped, rec, err
	}
}

func (a *Archiver) count(outcome string) {
	if a.outcomes != nil {
		a.outcomes.WithLabelValues(outcome).Inc()
	}
}
