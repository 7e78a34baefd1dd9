package broadcast

import (
	"log"
	"sync"
)

// Observer is a transiently-connected consumer of broadcast events. Send
// receives the event and its serialized payload; returning an error signals
// the observer is closed or unusable and it will be pruned from the hub.
type Observer interface {
	Send(ev Event, payload []byte) error
}

// DefaultQueueSize is the per-observer queue depth used when NewHub is
// given a non-positive size.
const DefaultQueueSize = 32

type delivery struct {
	ev      Event
	payload []byte
}

type subscriber struct {
	obs  Observer
	ch   chan delivery
	stop chan struct{}
}

// Hub delivers published events to every attached observer, best-effort and
// at-most-once per observer. Each observer gets its own queue and writer
// goroutine so a slow or stalled observer never blocks Publish or delivery
// to other observers; an observer whose queue overflows or whose Send fails
// is dropped. Publishes for a given session arrive at each surviving
// observer in publish order.
type Hub struct {
	mu        sync.Mutex
	subs      map[Observer]*subscriber
	queueSize int
	closed    bool
}

// NewHub returns an empty hub with the given per-observer queue size.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[Observer]*subscriber),
		queueSize: queueSize,
	}
}

// Subscribe attaches the observer. Events published before the call are
// never delivered to it. Subscribing an already-attached observer is a no-op.
func (h *Hub) Subscribe(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if _, ok := h.subs[obs]; ok {
		return
	}
	sub := &subscriber{
		obs:  obs,
		ch:   make(chan delivery, h.queueSize),
		stop: make(chan struct{}),
	}
	h.subs[obs] = sub
	go h.write(sub)
}

// Unsubscribe detaches the observer and stops its writer. No-op if the
// observer is not attached.
func (h *Hub) Unsubscribe(obs Observer) {
	h.mu.Lock()
	sub, ok := h.subs[obs]
	if ok {
		delete(h.subs, obs)
	}
	h.mu.Unlock()
	if ok {
		close(sub.stop)
	}
}

// Publish delivers the event to every currently attached observer. It never
// blocks on observer I/O: the payload is queued per observer, and an
// observer with a full queue is dropped rather than delaying the caller.
func (h *Hub) Publish(ev Event) {
	payload, err := ev.Marshal()
	if err != nil {
		log.Printf("broadcast: marshal %s event for session %s: %v", ev.Type, ev.SessionID, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for obs, sub := range h.subs {
		select {
		case sub.ch <- delivery{ev: ev, payload: payload}:
		default:
			// Queue full: the observer is not keeping up. Drop it.
			delete(h.subs, obs)
			close(sub.stop)
			log.Printf("broadcast: dropping unresponsive observer (queue full)")
		}
	}
}

// Close detaches all observers and stops their writers. The hub accepts no
// new subscriptions afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for obs, sub := range h.subs {
		delete(h.subs, obs)
		close(sub.stop)
	}
}

func (h *Hub) write(sub *subscriber) {
	for {
		select {
		case <-sub.stop:
			return
		case d := <-sub.ch:
			if err := sub.obs.Send(d.ev, d.payload); err != nil {
				h.Unsubscribe(sub.obs)
				return
			}
		}
	}
}
