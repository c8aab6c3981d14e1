// Package events carries storefront activity notifications: state changes
// of the session, cart and wishlist stores and orders placed through checkout.
package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionChanged  = "session.changed"
	CartUpdated     = "cart.updated"
	CartReset       = "cart.reset"
	WishlistUpdated = "wishlist.updated"
	WishlistReset   = "wishlist.reset"
	OrderPlaced     = "order.placed"
)

// Event is one activity record.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	Action     string    `json:"action,omitempty"`
	Data       any       `json:"data,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New creates an event with a fresh ID and timestamp.
func New(eventType, userID, action string, data any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserID:     userID,
		Action:     action,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
}

// Key is the partition key: events of one user stay ordered.
func (e Event) Key() string {
	if e.UserID != "" {
		return e.UserID
	}
	return "guest"
}
