package telemetry

import (
	"context"
	"log"
	"time"

	"botfleet/backend/internal/broadcast"
)

// emitTimeout is the max time allowed for a single async emit. Used by
// EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the HTTP server stops
// before shutting down OTel providers, so in-flight async emits have time to
// complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the caller is
// not blocked. Errors are logged.
//
// The goroutine uses context.Background() with emitTimeout so the caller's
// cancellation does not abort an in-flight emit.
func EmitAsync(emitter EventEmitter, ev broadcast.Event) {
	if emitter == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, ev); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
