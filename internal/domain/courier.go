package domain

import (
	"regexp"
	"strings"
	"time"

	"delivery-orchestrator/internal/store"
)

var phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ]{6,18}$`)

// Courier is a delivery person.
type Courier struct {
	CourierID      string
	Name           string
	FirstName      string
	LastName       string
	Phone          string
	Status         CourierStatus
	CurrentOrderNo string
	LastOfferedAt  time.Time
}

// DisplayName is the name shown to clients: the full name, else first and
// last name, else the identifier.
func (c Courier) DisplayName() string {
	if n := strings.TrimSpace(c.Name); n != "" {
		return n
	}
	if n := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName)); n != "" {
		return n
	}
	return c.CourierID
}

// ValidPhone reports whether the phone looks dialable.
func ValidPhone(phone string) bool {
	return phoneRe.MatchString(strings.TrimSpace(phone))
}

// Doc encodes the courier.
func (c Courier) Doc() store.Doc {
	d := store.Doc{
		"courierId": c.CourierID,
		"status":    string(c.Status),
	}
	setIf(d, "name", c.Name)
	setIf(d, "firstName", c.FirstName)
	setIf(d, "lastName", c.LastName)
	setIf(d, "phone", c.Phone)
	setIf(d, "currentOrderNo", c.CurrentOrderNo)
	setTimeIf(d, "lastOfferedAt", c.LastOfferedAt)
	return d
}

// CourierFromDoc decodes a Courier.
func CourierFromDoc(d store.Doc) Courier {
	return Courier{
		CourierID:      d.String("courierId"),
		Name:           d.String("name"),
		FirstName:      d.String("firstName"),
		LastName:       d.String("lastName"),
		Phone:          d.String("phone"),
		Status:         CourierStatus(d.String("status")),
		CurrentOrderNo: d.String("currentOrderNo"),
		LastOfferedAt:  d.Time("lastOfferedAt"),
	}
}
