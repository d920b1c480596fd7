package types

import "time"

// EventType names an account lifecycle event.
type EventType string

const (
	EventUserRegistered      EventType = "user.registered"
	EventUserPasswordChanged EventType = "user.password_changed"
	EventUserProfileUpdated  EventType = "user.profile_updated"
	EventAddressCreated      EventType = "address.created"
	EventAddressUpdated      EventType = "address.updated"
	EventAddressDeleted      EventType = "address.deleted"
)

// Event is the payload published to the message broker when an account
// or one of its addresses changes.
type Event struct {
	Type       EventType `json:"type"`
	UserID     string    `json:"userId"`
	AddressID  string    `json:"addressId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
