package store

import (
	"context"
	"fmt"
	"strings"

	"delivery-orchestrator/internal/apperr"
)

// Collection names.
const (
	Orders             = "Order"
	Restaurants        = "Restaurant"
	Couriers           = "Courier"
	RestaurantRequests = "RestaurantRequest"
	DeliveryRequests   = "DeliveryRequest"
	Notifications      = "Notification"
	Metrics            = "Metric"
	Archives           = "Archive"
	Cursors            = "Cursors"
)

var naturalKeys = map[string]string{
	Orders:             "orderNo",
	Restaurants:        "restaurantId",
	Couriers:           "courierId",
	RestaurantRequests: "id",
	DeliveryRequests:   "id",
	Notifications:      "orderNo",
	Metrics:            "orderNo",
	Archives:           "orderNo",
	Cursors:            "name",
}

// Collections lists every known collection.
func Collections() []string {
	return []string{Orders, Restaurants, Couriers, RestaurantRequests, DeliveryRequests, Notifications, Metrics, Archives, Cursors}
}

// KeyField returns the natural key field of a collection ("id" when unknown).
func KeyField(collection string) string {
	if k, ok := naturalKeys[collection]; ok {
		return k
	}
	return "id"
}

// Key extracts the natural key of d.
func Key(collection string, d Doc) (string, error) {
	k := strings.TrimSpace(d.String(KeyField(collection)))
	if k == "" {
		return "", fmt.Errorf("%s: missing %s: %w", collection, KeyField(collection), apperr.ErrInvalid)
	}
	return k, nil
}

// EventKind is the kind of a change event.
type EventKind string

const (
	Insert EventKind = "insert"
	Update EventKind = "update"
)

// Event is one change of a watched collection. Doc is the full document
// after the change.
type Event struct {
	Kind       EventKind
	Collection string
	Doc        Doc
	Token      string
}

// TokenOrigin asks Watch for the oldest change the backend retains. Backends
// without a retained history start at the current end instead.
const TokenOrigin = "origin"

// WatchOptions selects a change feed. An empty ResumeAfter starts at the
// current end of the feed.
type WatchOptions struct {
	Collection  string
	Kinds       []EventKind
	ResumeAfter string
}

// Wants reports whether kind is selected; no kinds selects all.
func (o WatchOptions) Wants(kind EventKind) bool {
	if len(o.Kinds) == 0 {
		return true
	}
	for _, k := range o.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ChangeStream is a lazy, resumable sequence of events. Next blocks until an
// event is available or ctx is done.
type ChangeStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Store is the document store facade. Every state transition goes through
// UpdateOneIf with a filter encoding the expected prior state.
type Store interface {
	// Insert fails with apperr.ErrDuplicate when the natural key exists.
	Insert(ctx context.Context, collection string, doc Doc) error
	// FindOne returns apperr.ErrNotFound when nothing matches.
	FindOne(ctx context.Context, collection string, filter Filter) (Doc, error)
	FindMany(ctx context.Context, collection string, filter Filter, opts FindOptions) ([]Doc, error)
	// UpdateOneIf applies m iff exactly one document matches filter and
	// returns that document as it was before. Otherwise apperr.ErrNotMatched.
	UpdateOneIf(ctx context.Context, collection string, filter Filter, m Mutation) (Doc, error)
	Watch(ctx context.Context, opts WatchOptions) (ChangeStream, error)
	Close(ctx context.Context) error
}
