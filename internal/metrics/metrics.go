package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewStoreRetriesTotal returns a counter of retried store calls
func NewStoreRetriesTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "store_retries_total",
		Help: "Total number of store calls retried after the store was unavailable",
	})
}

// NewAssignmentsTotal returns a counter of committed courier assignments
func NewAssignmentsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "assignments_total",
		Help: "Total number of committed courier assignments",
	})
}

// NewCommitConflictsTotal returns a counter of compensated commits
func NewCommitConflictsTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "commit_conflicts_total",
		Help: "Total number of commits rolled back because the courier left the offered state",
	})
}

// NewOffersTotal returns a counter of delivery offers by wave
func NewOffersTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_offers_total",
		Help: "Total number of delivery requests issued to couriers",
	}, []string{"wave"})
}

// NewExpiredRequestsTotal returns a counter of requests expired by the sweeper
func NewExpiredRequestsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "expired_requests_total",
		Help: "Total number of requests expired by the TTL sweeper",
	}, []string{"collection"})
}

// NewOrdersFailedTotal returns a counter of failed orders by reason
func NewOrdersFailedTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of orders marked failed",
	}, []string{"reason"})
}

// NewEventsHandledTotal returns a counter of change events by watcher and outcome
func NewEventsHandledTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "change_events_handled_total",
		Help: "Total number of change events handled",
	}, []string{"watcher", "outcome"})
}

// NewAssignmentDelaySeconds returns a histogram of offer-to-commit latency
func NewAssignmentDelaySeconds() prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "assignment_delay_seconds",
		Help:    "Delay between the accepted delivery request and the committed assignment",
		Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 15, 30},
	})
}

// NewArchivedOrdersTotal returns a counter of archive attempts by outcome
func NewArchivedOrdersTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archived_orders_total",
		Help: "Total number of delivered orders handled by the archiver",
	}, []string{"outcome"})
}

// NewHTTPRequestsTotal returns a counter of ops HTTP requests
func NewHTTPRequestsTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
}

// NewHTTPRequestDuration returns a histogram of ops HTTP request durations
func NewHTTPRequestDuration() *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
}

// NewRateLimitedTotal returns a counter of requests refused by the rate limiter
func NewRateLimitedTotal() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Total number of HTTP requests refused with 429",
	})
}

// Set groups every orchestrator collector.
type Set struct {
	StoreRetries    prometheus.Counter
	Assignments     prometheus.Counter
	CommitConflicts prometheus.Counter
	Offers          *prometheus.CounterVec
	Expired         *prometheus.CounterVec
	OrdersFailed    *prometheus.CounterVec
	EventsHandled   *prometheus.CounterVec
	AssignmentDelay prometheus.Histogram
	Archived        *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	RateLimited     prometheus.Counter
}

// NewSet builds the collectors and registers them on reg when it is not nil.
func NewSet(reg prometheus.Registerer) (*Set, error) {
	s := &Set{
		StoreRetries:    NewStoreRetriesTotal(),
		Assignments:     NewAssignmentsTotal(),
		CommitConflicts: NewCommitConflictsTotal(),
		Offers:          NewOffersTotal(),
		Expired:         NewExpiredRequestsTotal(),
		OrdersFailed:    NewOrdersFailedTotal(),
		EventsHandled:   NewEventsHandledTotal(),
		AssignmentDelay: NewAssignmentDelaySeconds(),
		Archived:        NewArchivedOrdersTotal(),
		HTTPRequests:    NewHTTPRequestsTotal(),
		HTTPDuration:    NewHTTPRequestDuration(),
		RateLimited:     NewRateLimitedTotal(),
	}
	if reg == nil {
		return s, nil
	}
	for _, c := range []prometheus.Collector{
		s.StoreRetries, s.Assignments, s.CommitConflicts, s.Offers,
		s.Expired, s.OrdersFailed, s.EventsHandled, s.AssignmentDelay,
		s.Archived, s.HTTPRequests, s.HTTPDuration, s.RateLimited,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewUnregistered returns collectors that are not exported anywhere; handy
// for tests and one-shot commands.
func NewUnregistered() *Set {
	s, _ := NewSet(nil)
	return s
}
