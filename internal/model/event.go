package model

import "time"

// Event types broadcast by the auth service.
const (
	EventUserCreated  = "USER_CREATED"
	EventUserLoggedIn = "USER_LOGGED_IN"
)

// Event is a notification pushed to event stream subscribers.
type Event struct {
	Type       string    `json:"type"`
	Username   string    `json:"username"`
	User       *User     `json:"user,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
