// Package domain holds the session entity and its lifecycle states.
package domain

import "time"

// Status is the lifecycle state of a bot session.
type Status string

const (
	// StatusInitializing is the state from creation until the first event
	// from the connection client.
	StatusInitializing Status = "INITIALIZING"
	// StatusQRPending means a pairing QR code is waiting to be scanned.
	StatusQRPending Status = "QR_PENDING"
	// StatusAuthenticated means the account is linked but not yet usable.
	StatusAuthenticated Status = "AUTHENTICATED"
	// StatusReady means the session can send and receive messages.
	StatusReady Status = "READY"
	// StatusDisconnected means the connection dropped; the session leaves
	// the registry and may be recreated by the reconnect policy.
	StatusDisconnected Status = "DISCONNECTED"
	// StatusError is terminal: initialization or authentication failed and
	// operator intervention is required.
	StatusError Status = "ERROR"
	// StatusDestroyed is terminal: the session was explicitly torn down.
	StatusDestroyed Status = "DESTROYED"
)

// Session is one managed instance of an external messaging connection.
type Session struct {
	ID        string
	TenantID  string
	Status    Status
	LastQR    string // last rendered QR data URL; transient
	CreatedAt time.Time
}

// Snapshot is the read-only view returned by registry lookups.
type Snapshot struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Status    Status    `json:"status"`
	Ready     bool      `json:"ready"`
	QRCodeURL string    `json:"qrCodeUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
