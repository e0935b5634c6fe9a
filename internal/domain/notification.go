package domain

import (
	"time"

	"delivery-orchestrator/internal/store"
)

// Notification is the client-facing record of an assignment. One per order.
type Notification struct {
	OrderNo   string
	ClientID  string
	CourierID string
	Message   string
	SentAt    time.Time
}

func (n Notification) Doc() store.Doc {
	d := store.Doc{
		"orderNo": n.OrderNo,
		"message": n.Message,
		"sentAt":  n.SentAt.UTC(),
	}
	setIf(d, "clientId", n.ClientID)
	setIf(d, "courierId", n.CourierID)
	return d
}

func NotificationFromDoc(d store.Doc) Notification {
	return Notification{
		OrderNo:   d.String("orderNo"),
		ClientID:  d.String("clientId"),
		CourierID: d.String("courierId"),
		Message:   d.String("message"),
		SentAt:    d.Time("sentAt"),
	}
}
