package models

import "time"

type AuthEventType string

const (
	EventLogin    AuthEventType = "login"
	EventLogout   AuthEventType = "logout"
	EventIPChange AuthEventType = "ip_change"
	EventSecurity AuthEventType = "security_logout"
)

// AuthEvent is broadcast to the notification sink. Delivery is best effort.
type AuthEvent struct {
	Type      AuthEventType `json:"type"`
	UserID    string        `json:"user_id"`
	Username  string        `json:"username,omitempty"`
	OldIP     string        `json:"old_ip,omitempty"`
	NewIP     string        `json:"new_ip,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	At        time.Time     `json:"at"`
}
