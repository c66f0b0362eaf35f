package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionState describes the realtime channel lifecycle. It is owned exclusively
// by the realtime manager; observers only ever read it.
type ConnectionState int

const (
	// Disconnected means no channel is open and none is being established.
	Disconnected ConnectionState = iota
	// Connecting means an endpoint fetch or socket open is in progress.
	Connecting
	// Connected means the channel is open and the keepalive is running.
	Connected
)

// String returns a human-readable name for the state, used in logs.
func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// NotificationTypeMessage is the only inbound frame type republished to subscribers.
// Every other frame type is dropped silently, this is a deliberate allow-list.
const NotificationTypeMessage = "NewMessageNotification"

// Notification is an inbound realtime frame after JSON decoding. Only the outer type
// is inspected for the allow-list; the payload is passed through to subscribers as-is.
type Notification struct {
	Type    string              `json:"type"`
	Payload NotificationPayload `json:"payload"`
}

// NotificationPayload carries the message data of a notification frame.
type NotificationPayload struct {
	ID             uuid.UUID `json:"id"`
	Body           string    `json:"body"`
	Sender         string    `json:"sender"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
	Type           string    `json:"type"`
}
