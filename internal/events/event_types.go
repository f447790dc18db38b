package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTokenIssued  EventType = "token_issued"
	EventTokenReused  EventType = "token_reused"
	EventLoginFailed  EventType = "login_failed"
	EventAccessDenied EventType = "access_denied"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TokenIssuedPayload payload.
type TokenIssuedPayload struct {
	TokenID     string    `json:"token_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Fingerprint string    `json:"fingerprint"`
}

// TokenReusedPayload payload.
type TokenReusedPayload struct {
	ExpiresAt   time.Time `json:"expires_at"`
	Expired     bool      `json:"expired"`
	Fingerprint string    `json:"fingerprint"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	LoginName string `json:"login_name"`
}

// AccessDeniedPayload payload.
type AccessDeniedPayload struct {
	Reason      string `json:"reason"`
	Detail      string `json:"detail,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
}
