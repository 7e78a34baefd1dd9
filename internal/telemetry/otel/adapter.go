package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"botfleet/backend/internal/broadcast"
	"botfleet/backend/internal/telemetry"
)

// NewEventEmitter returns an EventEmitter that sends session events as OTel
// log records via the given LoggerProvider. If provider is nil, returns a
// no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("botfleet.events")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, broadcast.Event) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the event to an OTel log record and emits it. Best-effort.
func (e *otelEmitter) Emit(ctx context.Context, ev broadcast.Event) error {
	rec := otellog.Record{}
	if !ev.Timestamp.IsZero() {
		rec.SetTimestamp(ev.Timestamp)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	if payload, err := ev.Marshal(); err == nil {
		rec.SetBody(otellog.BytesValue(payload))
	}
	rec.AddAttributes(otellog.String("event_type", string(ev.Type)))
	if ev.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", ev.SessionID))
	}
	if ev.TenantID != "" {
		rec.AddAttributes(otellog.String("tenant_id", ev.TenantID))
	}
	if ev.Status != "" {
		rec.AddAttributes(otellog.String("status", ev.Status))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
