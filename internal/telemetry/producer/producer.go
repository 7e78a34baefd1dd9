// Package producer defines the interface for publishing serialized session
// events (e.g. to Kafka).
package producer

import "context"

// Producer publishes serialized events. Callers use it best-effort: log and
// ignore errors.
type Producer interface {
	// Emit publishes one serialized event. key groups events that must
	// stay ordered relative to each other (the session identifier).
	// Implementations may block briefly; call from a goroutine if needed.
	Emit(ctx context.Context, key string, payload []byte) error
	// Close releases resources (e.g. the Kafka writer). Safe to call if
	// already closed.
	Close() error
}
