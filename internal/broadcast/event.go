// Package broadcast fans lifecycle, QR, and message events out to all
// currently attached observers. The hub has no knowledge of sessions beyond
// the event payload; there is no buffering or replay for late subscribers.
package broadcast

import (
	"encoding/json"
	"time"
)

// EventType tags the kind of event pushed to observers.
type EventType string

const (
	EventStatusUpdate EventType = "status_update"
	EventQRCode       EventType = "qr_code"
	EventNewMessage   EventType = "new_message"
)

// Message is the payload of a new_message event.
type Message struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

// Event is the wire shape pushed to observers (dashboard WebSocket clients,
// the Kafka event pipeline, OTel logs). Exactly one of Status, QRCodeURL,
// and Message is set, depending on Type.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	TenantID  string    `json:"tenantId,omitempty"`
	Status    string    `json:"status,omitempty"`
	QRCodeURL string    `json:"qrCodeUrl,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Marshal returns the serialized form delivered to observers.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
