// Package bus carries direct courier notifications. Delivery is best effort;
// the Notification document in the store is the authoritative record.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"delivery-orchestrator/internal/apperr"
)

// ChannelPrefix names the private courier channels.
const ChannelPrefix = "notifications-livreur"

// TypeAttribution tags the message sent to a courier on assignment.
const TypeAttribution = "attribution"

// CourierChannel returns the private channel of a courier.
func CourierChannel(courierID string) string {
	return ChannelPrefix + ":" + courierID
}

// CourierFromChannel extracts the courier id of a private channel.
func CourierFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, ChannelPrefix+":")
	return id, ok && id != ""
}

// Message is the compact record published on a channel.
type Message struct {
	Type      string `json:"type"`
	OrderNo   string `json:"orderNo"`
	CourierID string `json:"courierId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Encode renders msg as compact JSON text.
func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" || msg.OrderNo == "" {
		return nil, fmt.Errorf("bus message needs type and orderNo: %w", apperr.ErrInvalid)
	}
	return json.Marshal(msg)
}

// Decode parses a message published by Encode.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode bus message: %w", err)
	}
	if msg.Type == "" || msg.OrderNo == "" {
		return Message{}, fmt.Errorf("bus message without type or orderNo: %w", apperr.ErrInvalid)
	}
	return msg, nil
}

// Publisher publishes on a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Close() error
}

// Handler receives messages of subscribed channels.
type Handler func(ctx context.Context, channel string, msg Message) error

// Subscriber delivers every courier channel message to a handler until ctx
// is done.
type Subscriber interface {
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

// Nop drops every message. It stands in when BUS_URI is unset.
type Nop struct{}

func (Nop) Publish(context.Context, string, Message) error { return nil }

func (Nop) Close() error { return nil }

var _ Publisher = Nop{}

// Deliver decodes payload received on channel and hands it to h. Payloads
// that do not decode never reach h.
func Deliver(ctx context.Context, h Handler, channel string, payload []byte) error {
	msg, err := Decode(payload)
	if err != nil {
		return fmt.Errorf("channel %s: %w", channel, err)
	}
	return h(ctx, channel, msg)
}
