package orders

import "delivery-orchestrator/internal/store"

// Source is one watched change feed.
type Source struct {
	// Name identifies the watcher; it keys the persisted resume token.
	Name  string
	Watch store.WatchOptions
}

// Watcher names.
const (
	OrderWatcher      = "orders"
	RestaurantWatcher = "restaurant-replies"
	ReplyWatcher      = "delivery-replies"
	ArchiveWatcher    = "archive"
)

// Sources lists the feeds the orchestrator consumes.
func Sources() []Source {
	return []Source{
		{Name: OrderWatcher, Watch: store.WatchOptions{Collection: store.Orders, Kinds: []store.EventKind{store.Insert}}},
		{Name: RestaurantWatcher, Watch: store.WatchOptions{Collection: store.RestaurantRequests, Kinds: []store.EventKind{store.Update}}},
		{Name: ReplyWatcher, Watch: store.WatchOptions{Collection: store.DeliveryRequests, Kinds: []store.EventKind{store.Update}}},
		{Name: ArchiveWatcher, Watch: store.WatchOptions{Collection: store.Orders, Kinds: []store.EventKind{store.Update}}},
	}
}

// SourceByName returns the source called name.
func SourceByName(name string) (Source, bool) {
	for _, s := range Sources() {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// PartitionKey returns the key events of one order share, so that a single
// order is never handled concurrently.
func PartitionKey(ev store.Event) string {
	return ev.Doc.String("orderNo")
}
