package broadcast

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type collectObserver struct {
	mu     sync.Mutex
	events []Event
	fail   bool
	block  chan struct{}
}

func (o *collectObserver) Send(ev Event, payload []byte) error {
	if o.block != nil {
		<-o.block
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return errors.New("closed")
	}
	if len(payload) == 0 {
		return errors.New("empty payload")
	}
	o.events = append(o.events, ev)
	return nil
}

func (o *collectObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

func waitCount(t *testing.T, o *collectObserver, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if o.count() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", want, o.count())
}

func statusEvent(sessionID, status string) Event {
	return Event{
		ID:        sessionID + "-" + status,
		Type:      EventStatusUpdate,
		SessionID: sessionID,
		TenantID:  "acme",
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

func TestPublishReachesAllObservers(t *testing.T) {
	hub := NewHub(0)
	defer hub.Close()
	a := &collectObserver{}
	b := &collectObserver{}
	hub.Subscribe(a)
	hub.Subscribe(b)

	hub.Publish(statusEvent("sales", "READY"))

	waitCount(t, a, 1)
	waitCount(t, b, 1)
	if a.events[0].SessionID != "sales" || a.events[0].Status != "READY" {
		t.Errorf("unexpected event %+v", a.events[0])
	}
}

func TestLateObserverGetsNoReplay(t *testing.T) {
	hub := NewHub(0)
	defer hub.Close()
	early := &collectObserver{}
	hub.Subscribe(early)
	hub.Publish(statusEvent("sales", "INITIALIZING"))
	waitCount(t, early, 1)

	late := &collectObserver{}
	hub.Subscribe(late)
	hub.Publish(statusEvent("sales", "READY"))

	waitCount(t, early, 2)
	waitCount(t, late, 1)
	if late.events[0].Status != "READY" {
		t.Errorf("late observer should only see the second event, got %+v", late.events)
	}
}

func TestFailingObserverIsPruned(t *testing.T) {
	hub := NewHub(0)
	defer hub.Close()
	good := &collectObserver{}
	bad := &collectObserver{fail: true}
	hub.Subscribe(good)
	hub.Subscribe(bad)

	hub.Publish(statusEvent("sales", "READY"))
	waitCount(t, good, 1)

	// The failed observer is gone; only the healthy one keeps receiving.
	hub.Publish(statusEvent("sales", "DISCONNECTED"))
	waitCount(t, good, 2)
	if bad.count() != 0 {
		t.Errorf("failing observer recorded %d events", bad.count())
	}
}

func TestStalledObserverDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()
	stalled := &collectObserver{block: make(chan struct{})}
	healthy := &collectObserver{}
	hub.Subscribe(stalled)
	hub.Subscribe(healthy)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Enough to overflow the stalled observer's queue.
		for i := 0; i < 10; i++ {
			hub.Publish(statusEvent("sales", "QR_PENDING"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled observer")
	}
	waitCount(t, healthy, 10)
	close(stalled.block)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(0)
	defer hub.Close()
	obs := &collectObserver{}
	hub.Subscribe(obs)
	hub.Publish(statusEvent("sales", "READY"))
	waitCount(t, obs, 1)

	hub.Unsubscribe(obs)
	hub.Publish(statusEvent("sales", "DISCONNECTED"))
	time.Sleep(50 * time.Millisecond)
	if obs.count() != 1 {
		t.Errorf("expected no delivery after unsubscribe, got %d", obs.count())
	}
}

func TestSubscribeAfterCloseIsRejected(t *testing.T) {
	hub := NewHub(0)
	hub.Close()
	obs := &collectObserver{}
	hub.Subscribe(obs)
	hub.Publish(statusEvent("sales", "READY"))
	time.Sleep(50 * time.Millisecond)
	if obs.count() != 0 {
		t.Errorf("expected no delivery after close, got %d", obs.count())
	}
}

func TestEventMarshalShape(t *testing.T) {
	ev := Event{
		ID:        "evt-1",
		Type:      EventNewMessage,
		SessionID: "sales",
		TenantID:  "acme",
		Message:   &Message{From: "a", To: "b", Body: "hi"},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	payload, err := ev.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(payload)
	for _, want := range []string{`"type":"new_message"`, `"sessionId":"sales"`, `"tenantId":"acme"`, `"body":"hi"`} {
		if !strings.Contains(got, want) {
			t.Errorf("payload missing %s: %s", want, got)
		}
	}
	if strings.Contains(got, `"status"`) || strings.Contains(got, `"qrCodeUrl"`) {
		t.Errorf("payload carries empty optional fields: %s", got)
	}
}
