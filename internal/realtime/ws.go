// Package realtime bridges the event broadcaster to dashboard WebSocket
// clients: each connection becomes an observer on the hub and receives the
// serialized events published while it is attached.
package realtime

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"botfleet/backend/internal/broadcast"
)

// writeTimeout bounds a single frame write so one dead connection cannot
// hold its writer goroutine forever.
const writeTimeout = 10 * time.Second

var errObserverClosed = errors.New("realtime: observer closed")

type wsObserver struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// Send implements broadcast.Observer. A write failure marks the observer
// closed so the hub prunes it.
func (o *wsObserver) Send(_ broadcast.Event, payload []byte) error {
	if o.closed.Load() {
		return errObserverClosed
	}
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	_ = o.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := o.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		o.closed.Store(true)
		return err
	}
	return nil
}

// Handler upgrades requests to WebSocket connections and attaches them to
// the hub. The connection is detached and closed when the peer goes away.
func Handler(hub *broadcast.Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The dashboard is served from arbitrary hosts in deployments;
		// authentication happens at the routing layer.
		CheckOrigin: func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("realtime: upgrade: %v", err)
			return
		}
		obs := &wsObserver{conn: conn}
		hub.Subscribe(obs)
		log.Printf("realtime: observer connected from %s", r.RemoteAddr)

		// Observers only listen; the read loop exists to detect the
		// peer closing the connection.
		go func() {
			defer func() {
				hub.Unsubscribe(obs)
				obs.closed.Store(true)
				_ = conn.Close()
				log.Printf("realtime: observer from %s disconnected", r.RemoteAddr)
			}()
			conn.SetReadLimit(512)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
