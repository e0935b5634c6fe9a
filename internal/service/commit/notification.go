package commit

import (
	"fmt"
	"strings"

	"delivery-orchestrator/internal/apperr"
)

// NotificationInput is what the client message is built from.
type NotificationInput struct {
	OrderNo      string
	CourierName  string
	CourierID    string
	CourierPhone string
}

// NotificationBuilder renders the client message of an assignment.
type NotificationBuilder struct{}

// Build returns
//
//	Your order <orderNo> has been picked up by courier <name> (id: <courierId>)[ - Tel: <phone>]
//
// The courier name falls back to the identifier.
func (NotificationBuilder) Build(in NotificationInput) (string, error) {
	orderNo := strings.TrimSpace(in.OrderNo)
	courierID := strings.TrimSpace(in.CourierID)
	if orderNo == "" || courierID == "" {
		return "", fmt.Errorf("notification needs orderNo and courierId: %w", apperr.ErrInvalid)
	}
	name := strings.TrimSpace(in.CourierName)
	if name == "" {
		name = courierID
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your order %s has been picked up by courier %s (id: %s)", orderNo, name, courierID)
	if phone := strings.TrimSpace(in.CourierPhone); phone != "" {
		fmt.Fprintf(&b, " - Tel: %s", phone)
	}
	return b.String(), nil
}
