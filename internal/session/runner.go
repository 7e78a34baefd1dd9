package session

import (
	"log"
	"time"

	"github.com/google/uuid"

	"botfleet/backend/internal/broadcast"
	"botfleet/backend/internal/session/domain"
	"botfleet/backend/internal/waclient"
)

// run is the session's state machine: it initializes the client, then
// consumes the bounded event queue until the session is torn down or reaches
// a state with no further events to process. Exactly one runner exists per
// live session, so events for one session are never handled concurrently.
func (m *Manager) run(ls *liveSession) {
	defer m.wg.Done()
	defer close(ls.runnerDone)
	// Once the runner stops consuming, pending deliveries must never block
	// the client's dispatch goroutine.
	defer ls.cancel()

	if err := ls.client.Initialize(ls.ctx); err != nil {
		if ls.ctx.Err() != nil {
			// Destroyed while starting up; teardown owns cleanup.
			return
		}
		log.Printf("session: %s initialize failed: %v", ls.sess.ID, err)
		ls.setStatus(domain.StatusError)
		m.publishStatus(ls, domain.StatusError)
		m.detach(ls, false)
		m.releaseClient(ls)
		return
	}

	for {
		select {
		case <-ls.ctx.Done():
			return
		case ev := <-ls.events:
			if m.handle(ls, ev) {
				return
			}
		}
	}
}

// handle applies one client event to the session. Returns true when the
// runner should stop consuming events.
func (m *Manager) handle(ls *liveSession, ev waclient.Event) bool {
	switch ev.Kind {
	case waclient.EventQR:
		ls.setStatus(domain.StatusQRPending)
		url, err := m.renderQR(ev.QR)
		if err != nil {
			log.Printf("session: %s render qr: %v", ls.sess.ID, err)
		} else {
			ls.setQR(url)
			m.hub.Publish(broadcast.Event{
				ID:        uuid.New().String(),
				Type:      broadcast.EventQRCode,
				SessionID: ls.sess.ID,
				TenantID:  ls.sess.TenantID,
				QRCodeURL: url,
				Timestamp: time.Now().UTC(),
			})
		}
		m.publishStatus(ls, domain.StatusQRPending)
		return false

	case waclient.EventAuthenticated:
		log.Printf("session: %s authenticated", ls.sess.ID)
		ls.setStatus(domain.StatusAuthenticated)
		m.publishStatus(ls, domain.StatusAuthenticated)
		return false

	case waclient.EventReady:
		log.Printf("session: %s ready", ls.sess.ID)
		ls.setStatus(domain.StatusReady)
		m.publishStatus(ls, domain.StatusReady)
		// Idempotent: a repeated ready event records the id once. A
		// persistence failure is logged; the in-memory registry stays
		// authoritative for this process lifetime.
		if err := m.devices.Add(ls.ctx, ls.sess.TenantID, ls.sess.ID); err != nil {
			log.Printf("session: record device %s/%s: %v", ls.sess.TenantID, ls.sess.ID, err)
		}
		return false

	case waclient.EventAuthFailure:
		// Terminal without auto-retry; the operator must re-pair. The
		// registry entry stays so the failure is visible to Get/List
		// until an explicit Destroy or Restart.
		log.Printf("session: %s authentication failed: %s", ls.sess.ID, ev.Reason)
		ls.setStatus(domain.StatusError)
		m.publishStatus(ls, domain.StatusError)
		return true

	case waclient.EventDisconnected:
		log.Printf("session: %s disconnected: %s", ls.sess.ID, ev.Reason)
		ls.setStatus(domain.StatusDisconnected)
		m.publishStatus(ls, domain.StatusDisconnected)
		// Release the old client first, then swap the registry entry for
		// the pending timer in one step. The device record stays so the
		// session is recreated at next bootstrap.
		m.releaseClient(ls)
		m.detach(ls, m.policy.ShouldReconnect(ev.Reason))
		return true

	case waclient.EventMessage:
		m.hub.Publish(broadcast.Event{
			ID:        uuid.New().String(),
			Type:      broadcast.EventNewMessage,
			SessionID: ls.sess.ID,
			TenantID:  ls.sess.TenantID,
			Message: &broadcast.Message{
				From: ev.From,
				To:   ev.To,
				Body: ev.Body,
			},
			Timestamp: time.Now().UTC(),
		})
		return false
	}
	log.Printf("session: %s ignoring unknown event kind %q", ls.sess.ID, ev.Kind)
	return false
}
