// Package telemetry exports broadcast events to external sinks: a Kafka
// topic for the event worker and OTel log records and metrics for a
// collector. Everything here is best-effort; callers log and ignore errors.
package telemetry

import (
	"context"

	"botfleet/backend/internal/broadcast"
)

// EventEmitter emits session events (e.g. to OTel Logs). Best-effort;
// callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, ev broadcast.Event) error
}
