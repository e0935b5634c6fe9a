package domain

import (
	"time"

	"delivery-orchestrator/internal/store"
)

// Item is one line of an order.
type Item struct {
	Name     string
	Quantity int
}

// Order is a unit of work from client request to delivery.
type Order struct {
	OrderNo       string
	ClientID      string
	RestaurantID  string
	RestaurantIDs []string
	Items         []Item
	CreatedAt     time.Time
	Status        OrderStatus
	CourierID     string
	Reason        string
	Wave          int
	AssignedAt    time.Time
	UpdatedAt     time.Time
}

// Restaurants returns the restaurants to ask, in priority order.
func (o Order) Restaurants() []string {
	if len(o.RestaurantIDs) > 0 {
		return o.RestaurantIDs
	}
	if o.RestaurantID == "" {
		return nil
	}
	return []string{o.RestaurantID}
}

// Doc encodes the order for the store. Optional fields are omitted when empty.
func (o Order) Doc() store.Doc {
	items := make([]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{"name": it.Name, "quantity": int64(it.Quantity)})
	}
	d := store.Doc{
		"orderNo":      o.OrderNo,
		"clientId":     o.ClientID,
		"restaurantId": o.RestaurantID,
		"items":        items,
		"createdAt":    o.CreatedAt.UTC(),
		"status":       string(o.Status),
		"wave":         int64(o.Wave),
	}
	if len(o.RestaurantIDs) > 0 {
		d["restaurantIds"] = append([]string(nil), o.RestaurantIDs...)
	}
	setIf(d, "courierId", o.CourierID)
	setIf(d, "reason", o.Reason)
	setTimeIf(d, "assignedAt", o.AssignedAt)
	setTimeIf(d, "updatedAt", o.UpdatedAt)
	return d
}

// OrderFromDoc decodes an Order.
func OrderFromDoc(d store.Doc) Order {
	o := Order{
		OrderNo:       d.String("orderNo"),
		ClientID:      d.String("clientId"),
		RestaurantID:  d.String("restaurantId"),
		RestaurantIDs: d.Strings("restaurantIds"),
		CreatedAt:     d.Time("createdAt"),
		Status:        OrderStatus(d.String("status")),
		CourierID:     d.String("courierId"),
		Reason:        d.String("reason"),
		Wave:          int(d.Int("wave")),
		AssignedAt:    d.Time("assignedAt"),
		UpdatedAt:     d.Time("updatedAt"),
	}
	for _, it := range d.Docs("items") {
		o.Items = append(o.Items, Item{Name: it.String("name"), Quantity: int(it.Int("quantity"))})
	}
	return o
}

func setIf(d store.Doc, key, v string) {
	if v != "" {
		d[key] = v
	}
}

func setTimeIf(d store.Doc, key string, t time.Time) {
	if !t.IsZero() {
		d[key] = t.UTC()
	}
}
