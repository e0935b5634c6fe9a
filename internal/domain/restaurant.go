package domain

import "delivery-orchestrator/internal/store"

// Restaurant prepares orders.
type Restaurant struct {
	RestaurantID string
	Name         string
	Status       RestaurantStatus
}

// Open reports whether the restaurant takes new orders. A restaurant
// without status is treated as open.
func (r Restaurant) Open() bool {
	return r.Status == "" || r.Status == RestaurantOpen
}

func (r Restaurant) Doc() store.Doc {
	d := store.Doc{"restaurantId": r.RestaurantID, "name": r.Name}
	setIf(d, "status", string(r.Status))
	return d
}

func RestaurantFromDoc(d store.Doc) Restaurant {
	return Restaurant{
		RestaurantID: d.String("restaurantId"),
		Name:         d.String("name"),
		Status:       RestaurantStatus(d.String("status")),
	}
}
