// Package waclient defines the boundary to the external WhatsApp connection
// client: the operations the orchestration layer invokes on a connection and
// the asynchronous events a connection delivers back. The orchestration
// layer never sees protocol details, only this surface.
package waclient

import "context"

// EventKind tags an asynchronous event raised by a connection client.
type EventKind string

const (
	// EventQR carries a pairing payload to be rendered and shown to the
	// operator. May fire repeatedly while pairing is pending.
	EventQR EventKind = "qr"
	// EventAuthenticated fires once the connection has a linked account.
	EventAuthenticated EventKind = "authenticated"
	// EventReady fires when the connection is usable for sending.
	EventReady EventKind = "ready"
	// EventAuthFailure fires when authentication is rejected; the
	// connection will not recover without operator intervention.
	EventAuthFailure EventKind = "auth_failure"
	// EventDisconnected fires when the connection drops. Reason decides
	// whether a reconnect is attempted.
	EventDisconnected EventKind = "disconnected"
	// EventMessage carries an inbound chat message.
	EventMessage EventKind = "message"
)

// Event is one asynchronous notification from a connection client.
// QR is set for EventQR; Reason for EventAuthFailure and EventDisconnected;
// From/To/Body for EventMessage.
type Event struct {
	Kind   EventKind
	QR     string
	Reason string
	From   string
	To     string
	Body   string
}

// Client is one persistent messaging connection. The orchestration layer
// holds only this reference; the client owns its internal resources.
type Client interface {
	// Initialize starts the connection. It may block while the transport
	// comes up and returns an error if startup fails; events (including
	// pairing QR codes) are delivered asynchronously once it returns.
	Initialize(ctx context.Context) error
	// Destroy tears the connection down and releases its resources.
	// Safe to call after a failed Initialize.
	Destroy(ctx context.Context) error
	// SendMessage delivers text to the given number. Requires Ready.
	SendMessage(ctx context.Context, number, text string) error
	// Ready reports whether the connection is authenticated, has a
	// populated identity, and can send messages.
	Ready() bool
}

// Factory creates connection clients. dataDir is a tenant-scoped durable
// path handed to the client for its own session storage (opaque to the
// caller); deliver receives the client's event stream and must not be
// called after Destroy returns.
type Factory interface {
	New(sessionID, dataDir string, deliver func(Event)) (Client, error)
}
