package session

import (
	"context"
	"testing"

	"botfleet/backend/internal/session/domain"
)

func TestBootstrapRestoresRecordedSessions(t *testing.T) {
	factory := &fakeFactory{}
	devices := newMemDevices()
	m := newTestManager(t, factory, devices, &recorderHub{}, nil)

	for _, id := range []string{"sales", "support"} {
		if err := devices.Add(context.Background(), "acme", id); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := devices.Add(context.Background(), "globex", "intake"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	if factory.count() != 3 {
		t.Fatalf("expected 3 clients, got %d", factory.count())
	}
	for _, id := range []string{"sales", "support", "intake"} {
		snap, ok := m.Get(id)
		if !ok {
			t.Errorf("expected %s restored", id)
			continue
		}
		if snap.Status != domain.StatusInitializing {
			t.Errorf("expected %s INITIALIZING, got %s", id, snap.Status)
		}
	}
	if got := m.List("acme"); len(got) != 2 {
		t.Errorf("expected 2 acme sessions, got %d", len(got))
	}
}

func TestBootstrapWithNoRecordsIsNoOp(t *testing.T) {
	factory := &fakeFactory{}
	m := newTestManager(t, factory, newMemDevices(), &recorderHub{}, nil)

	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if factory.count() != 0 {
		t.Errorf("expected no clients, got %d", factory.count())
	}
	if got := m.List(""); len(got) != 0 {
		t.Errorf("expected empty registry, got %v", got)
	}
}
