package domain

import (
	"time"

	"delivery-orchestrator/internal/store"
)

// Archive is the history record of a delivered order, denormalised from the
// order, its courier, notification and metric. One per order.
type Archive struct {
	OrderNo           string
	ClientID          string
	RestaurantID      string
	CourierID         string
	CourierName       string
	Items             []Item
	CreatedAt         time.Time
	AssignedAt        time.Time
	DeliveredAt       time.Time
	AssignmentDelayMs int64
	Message           string
	ArchivedAt        time.Time
	ArchivedBy        string
	// MissingFields names the parts that could not be resolved; the record
	// is archived anyway and flagged incomplete.
	MissingFields []string
}

// Incomplete reports whether some part of the order could not be resolved.
func (a Archive) Incomplete() bool { return len(a.MissingFields) > 0 }

func (a Archive) Doc() store.Doc {
	items := make([]any, 0, len(a.Items))
	for _, it := range a.Items {
		items = append(items, map[string]any{"name": it.Name, "quantity": int64(it.Quantity)})
	}
	d := store.Doc{
		"orderNo":    a.OrderNo,
		"items":      items,
		"createdAt":  a.CreatedAt.UTC(),
		"archivedAt": a.ArchivedAt.UTC(),
		"incomplete": a.Incomplete(),
	}
	setIf(d, "clientId", a.ClientID)
	setIf(d, "restaurantId", a.RestaurantID)
	setIf(d, "courierId", a.CourierID)
	setIf(d, "courierName", a.CourierName)
	setIf(d, "message", a.Message)
	setIf(d, "archivedBy", a.ArchivedBy)
	setTimeIf(d, "assignedAt", a.AssignedAt)
	setTimeIf(d, "deliveredAt", a.DeliveredAt)
	if a.AssignmentDelayMs > 0 {
		d["assignmentDelayMs"] = a.AssignmentDelayMs
	}
	if len(a.MissingFields) > 0 {
		d["missingFields"] = append([]string(nil), a.MissingFields...)
	}
	return d
}

func ArchiveFromDoc(d store.Doc) Archive {
	a := Archive{
		OrderNo:           d.String("orderNo"),
		ClientID:          d.String("clientId"),
		RestaurantID:      d.String("restaurantId"),
		CourierID:         d.String("courierId"),
		CourierName:       d.String("courierName"),
		CreatedAt:         d.Time("createdAt"),
		AssignedAt:        d.Time("assignedAt"),
		DeliveredAt:       d.Time("deliveredAt"),
		AssignmentDelayMs: d.Int("assignmentDelayMs"),
		Message:           d.String("message"),
		ArchivedAt:        d.Time("archivedAt"),
		ArchivedBy:        d.String("archivedBy"),
		MissingFields:     d.Strings("missingFields"),
	}
	for _, it := range d.Docs("items") {
		a.Items = append(a.Items, Item{Name: it.String("name"), Quantity: int(it.Int("quantity"))})
	}
	return a
}
