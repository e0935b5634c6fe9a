package domain

import (
	"fmt"
	"time"

	"delivery-orchestrator/internal/store"
)

// RestaurantRequest invites a restaurant to prepare an order.
type RestaurantRequest struct {
	ID           string
	OrderNo      string
	RestaurantID string
	// Attempt is the position of RestaurantID in the order's priority list.
	Attempt     int
	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt time.Time
}

// RestaurantRequestID is deterministic so that a replayed order event
// collides with the request it already created.
func RestaurantRequestID(orderNo, restaurantID string) string {
	return fmt.Sprintf("%s:r:%s", orderNo, restaurantID)
}

func (r RestaurantRequest) Doc() store.Doc {
	d := store.Doc{
		"id":           r.ID,
		"orderNo":      r.OrderNo,
		"restaurantId": r.RestaurantID,
		"attempt":      int64(r.Attempt),
		"status":       string(r.Status),
		"requestedAt":  r.RequestedAt.UTC(),
	}
	setTimeIf(d, "respondedAt", r.RespondedAt)
	return d
}

func RestaurantRequestFromDoc(d store.Doc) RestaurantRequest {
	return RestaurantRequest{
		ID:           d.String("id"),
		OrderNo:      d.String("orderNo"),
		RestaurantID: d.String("restaurantId"),
		Attempt:      int(d.Int("attempt")),
		Status:       RequestStatus(d.String("status")),
		RequestedAt:  d.Time("requestedAt"),
		RespondedAt:  d.Time("respondedAt"),
	}
}

// DeliveryRequest offers an order to one courier.
type DeliveryRequest struct {
	ID          string
	OrderNo     string
	CourierID   string
	Wave        int
	Status      RequestStatus
	RequestedAt time.Time
	RespondedAt time.Time
}

// DeliveryRequestID is deterministic per order, wave and courier.
func DeliveryRequestID(orderNo string, wave int, courierID string) string {
	return fmt.Sprintf("%s:w%d:%s", orderNo, wave, courierID)
}

func (r DeliveryRequest) Doc() store.Doc {
	d := store.Doc{
		"id":          r.ID,
		"orderNo":     r.OrderNo,
		"courierId":   r.CourierID,
		"wave":        int64(r.Wave),
		"status":      string(r.Status),
		"requestedAt": r.RequestedAt.UTC(),
	}
	setTimeIf(d, "respondedAt", r.RespondedAt)
	return d
}

func DeliveryRequestFromDoc(d store.Doc) DeliveryRequest {
	return DeliveryRequest{
		ID:          d.String("id"),
		OrderNo:     d.String("orderNo"),
		CourierID:   d.String("courierId"),
		Wave:        int(d.Int("wave")),
		Status:      RequestStatus(d.String("status")),
		RequestedAt: d.Time("requestedAt"),
		RespondedAt: d.Time("respondedAt"),
	}
}
