// Package inspect reads the documents of an order and the assignment
// latency distribution for operators.
package inspect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"delivery-orchestrator/internal/apperr"
	"delivery-orchestrator/internal/store"
)

// Report gathers every document related to one order.
type Report struct {
	Order              store.Doc   `json:"order"`
	RestaurantRequests []store.Doc `json:"restaurantRequests"`
	DeliveryRequests   []store.Doc `json:"deliveryRequests"`
	Couriers           []store.Doc `json:"couriers"`
	Notification       store.Doc   `json:"notification,omitempty"`
	Metric             store.Doc   `json:"metric,omitempty"`
}

// Service answers operator queries.
type Service struct {
	st store.Store
}

// New returns a Service on st.
func New(st store.Store) *Service {
	return &Service{st: st}
}

// Dump loads the order and everything attached to it. A missing order is
// apperr.ErrNotFound.
func (s *Service) Dump(ctx context.Context, orderNo string) (Report, error) {
	byOrder := store.Where(store.Eq("orderNo", orderNo))

	order, err := s.st.FindOne(ctx, store.Orders, byOrder)
	if err != nil {
		return Report{}, err
	}
	r := Report{Order: order}

	if r.RestaurantRequests, err = s.st.FindMany(ctx, store.RestaurantRequests, byOrder,
		store.FindOptions{Sort: []store.SortKey{store.Asc("attempt")}}); err != nil {
		return Report{}, fmt.Errorf("restaurant requests: %w", err)
	}
	if r.DeliveryRequests, err = s.st.FindMany(ctx, store.DeliveryRequests, byOrder,
		store.FindOptions{Sort: []store.SortKey{store.Asc("wave"), store.Asc("requestedAt")}}); err != nil {
		return Report{}, fmt.Errorf("delivery requests: %w", err)
	}
	if r.Notification, err = optional(s.st.FindOne(ctx, store.Notifications, byOrder)); err != nil {
		return Report{}, fmt.Errorf("notification: %w", err)
	}
	if r.Metric, err = optional(s.st.FindOne(ctx, store.Metrics, byOrder)); err != nil {
		return Report{}, fmt.Errorf("metric: %w", err)
	}

	ids := courierIDs(order, r.DeliveryRequests)
	if len(ids) > 0 {
		if r.Couriers, err = s.st.FindMany(ctx, store.Couriers, store.Where(store.In("courierId", ids...)), store.FindOptions{}); err != nil {
			return Report{}, fmt.Errorf("couriers: %w", err)
		}
	}
	return r, nil
}

func optional(d store.Doc, err error) (store.Doc, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return d, err
}

func courierIDs(order store.Doc, drs []store.Doc) []string {
	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	add(order.String("courierId"))
	for _, dr := range drs {
		add(dr.String("courierId"))
	}
	return ids
}

// Bucket counts delays in [From, To) milliseconds.
type Bucket struct {
	From  int64 `json:"from"`
	To    int64 `json:"to"`
	Count int   `json:"count"`
}

var bucketEdges = []int64{0, 100, 250, 500, 1000, 2000, 5000, 10000, 20000, 100000}

// Stats summarises assignmentDelayMs in milliseconds.
type Stats struct {
	Count     int      `json:"count"`
	Min       int64    `json:"min"`
	Avg       float64  `json:"avg"`
	P50       float64  `json:"p50"`
	P95       float64  `json:"p95"`
	Max       int64    `json:"max"`
	Histogram []Bucket `json:"histogram"`
}

// Stats computes the delay distribution over the last n metrics (all when
// n <= 0), newest assignments first.
func (s *Service) Stats(ctx context.Context, last int) (Stats, error) {
	docs, err := s.st.FindMany(ctx, store.Metrics, store.Where(), store.FindOptions{
		Sort:  []store.SortKey{store.Desc("assignedAt")},
		Limit: max(last, 0),
	})
	if err != nil {
		return Stats{}, err
	}
	delays := make([]int64, 0, len(docs))
	for _, d := range docs {
		if d.Has("assignmentDelayMs") {
			delays = append(delays, d.Int("assignmentDelayMs"))
		}
	}
	return Summarize(delays), nil
}

// Summarize computes Stats of delays. Percentiles interpolate linearly
// between closest ranks.
func Summarize(delays []int64) Stats {
	st := Stats{Count: len(delays), Histogram: histogram(delays)}
	if len(delays) == 0 {
		return st
	}
	sorted := append([]int64(nil), delays...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum float64
	for _, d := range sorted {
		sum += float64(d)
	}
	st.Min = sorted[0]
	st.Max = sorted[len(sorted)-1]
	st.Avg = sum / float64(len(sorted))
	st.P50 = percentile(sorted, 50)
	st.P95 = percentile(sorted, 95)
	return st
}

func percentile(sorted []int64, p float64) float64 {
	if len(sorted) == 1 {
		return float64(sorted[0])
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
}

func histogram(delays []int64) []Bucket {
	buckets := make([]Bucket, 0, len(bucketEdges)-1)
	for i := 0; i+1 < len(bucketEdges); i++ {
		buckets = append(buckets, Bucket{From: bucketEdges[i], To: bucketEdges[i+1]})
	}
	for _, d := range delays {
		for i := range buckets {
			if d >= buckets[i].From && d < buckets[i].To {
				buckets[i].Count++
				break
			}
		}
	}
	return buckets
}
