// Package session implements the orchestration layer for bot sessions: a
// concurrency-safe registry of live connection clients, a per-session
// lifecycle state machine driven by the client's event stream, a reconnect
// policy for recoverable disconnects, and bootstrap from persisted device
// records.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"botfleet/backend/internal/broadcast"
	"botfleet/backend/internal/session/domain"
	"botfleet/backend/internal/waclient"
)

// Sentinel errors; the HTTP layer maps them to status codes.
var (
	ErrNotFound     = errors.New("session not found")
	ErrNotReady     = errors.New("session is not ready")
	ErrShuttingDown = errors.New("session manager is shutting down")
)

// DeviceRepo is the device-record persistence needed by the manager.
type DeviceRepo interface {
	List(ctx context.Context, tenantID string) ([]string, error)
	Add(ctx context.Context, tenantID, sessionID string) error
	Remove(ctx context.Context, tenantID, sessionID string) error
	Tenants(ctx context.Context) ([]string, error)
}

// Broadcaster fans events out to attached observers.
type Broadcaster interface {
	Publish(ev broadcast.Event)
}

// Metrics receives registry size changes. Optional.
type Metrics interface {
	SessionAdded(ctx context.Context)
	SessionRemoved(ctx context.Context)
}

// DefaultQueueSize is the per-session inbound event queue depth.
const DefaultQueueSize = 64

// releaseTimeout bounds client teardown on paths without a caller context
// (disconnects, initialization failures).
const releaseTimeout = 10 * time.Second

// Options configures a Manager.
type Options struct {
	// DataDir is the base directory for tenant-scoped client storage.
	DataDir string
	// QueueSize is the per-session event queue depth; DefaultQueueSize if
	// non-positive.
	QueueSize int
	// Policy decides recreation after disconnects; a default policy is
	// used when nil.
	Policy *ReconnectPolicy
	// RenderQR turns a pairing payload into a displayable URL. Required.
	RenderQR func(payload string) (string, error)
	// Metrics may be nil.
	Metrics Metrics
}

// Manager owns all live sessions. It guarantees at most one live client per
// session identifier, processes each session's events in arrival order on a
// single goroutine, and serializes registry mutations per identifier.
type Manager struct {
	clients  waclient.Factory
	devices  DeviceRepo
	hub      Broadcaster
	policy   *ReconnectPolicy
	dataDir  string
	qsize    int
	renderQR func(string) (string, error)
	metrics  Metrics

	mu       sync.Mutex
	sessions map[string]*liveSession
	pending  map[string]*time.Timer
	closed   bool
	wg       sync.WaitGroup
}

// NewManager returns a manager wiring the client factory, device record
// repository, and event broadcaster together.
func NewManager(clients waclient.Factory, devices DeviceRepo, hub Broadcaster, opts Options) *Manager {
	policy := opts.Policy
	if policy == nil {
		policy = NewReconnectPolicy(0, nil)
	}
	qsize := opts.QueueSize
	if qsize <= 0 {
		qsize = DefaultQueueSize
	}
	return &Manager{
		clients:  clients,
		devices:  devices,
		hub:      hub,
		policy:   policy,
		dataDir:  opts.DataDir,
		qsize:    qsize,
		renderQR: opts.RenderQR,
		metrics:  opts.Metrics,
		sessions: make(map[string]*liveSession),
		pending:  make(map[string]*time.Timer),
	}
}

type liveSession struct {
	lmu  sync.Mutex
	sess domain.Session

	client     waclient.Client
	events     chan waclient.Event
	ctx        context.Context
	cancel     context.CancelFunc
	runnerDone chan struct{}

	destroyOnce sync.Once
	gone        chan struct{}
}

// enqueue feeds a client event into the session's bounded queue. It blocks
// when the queue is full (backpressure on the client) and gives up once the
// session is torn down.
func (ls *liveSession) enqueue(ev waclient.Event) {
	select {
	case ls.events <- ev:
	case <-ls.ctx.Done():
	}
}

func (ls *liveSession) setStatus(st domain.Status) {
	ls.lmu.Lock()
	ls.sess.Status = st
	ls.lmu.Unlock()
}

func (ls *liveSession) setQR(url string) {
	ls.lmu.Lock()
	ls.sess.LastQR = url
	ls.lmu.Unlock()
}

func (ls *liveSession) snapshot() domain.Snapshot {
	ls.lmu.Lock()
	defer ls.lmu.Unlock()
	return domain.Snapshot{
		ID:        ls.sess.ID,
		TenantID:  ls.sess.TenantID,
		Status:    ls.sess.Status,
		Ready:     ls.sess.Status == domain.StatusReady && ls.client.Ready(),
		QRCodeURL: ls.sess.LastQR,
		CreatedAt: ls.sess.CreatedAt,
	}
}

// Create registers a new session and starts its connection client
// asynchronously. Creating an identifier that is already live is a no-op.
func (m *Manager) Create(ctx context.Context, sessionID, tenantID string) error {
	if sessionID == "" || tenantID == "" {
		return fmt.Errorf("session: session id and tenant id are required")
	}
	m.mu.Lock()
	ls, err := m.createLocked(sessionID, tenantID)
	m.mu.Unlock()
	if err != nil || ls == nil {
		return err
	}
	m.start(ls)
	return nil
}

// createLocked allocates and registers the session. Caller holds m.mu.
// Returns (nil, nil) when the identifier is already live.
func (m *Manager) createLocked(sessionID, tenantID string) (*liveSession, error) {
	if m.closed {
		return nil, ErrShuttingDown
	}
	if _, ok := m.sessions[sessionID]; ok {
		log.Printf("session: %s is already live, create ignored", sessionID)
		return nil, nil
	}
	// An explicit create supersedes any pending recreation.
	if t, ok := m.pending[sessionID]; ok {
		t.Stop()
		delete(m.pending, sessionID)
	}

	sctx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		sess: domain.Session{
			ID:        sessionID,
			TenantID:  tenantID,
			Status:    domain.StatusInitializing,
			CreatedAt: time.Now().UTC(),
		},
		events:     make(chan waclient.Event, m.qsize),
		ctx:        sctx,
		cancel:     cancel,
		runnerDone: make(chan struct{}),
		gone:       make(chan struct{}),
	}
	client, err := m.clients.New(sessionID, filepath.Join(m.dataDir, tenantID), ls.enqueue)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("session: create client for %s: %w", sessionID, err)
	}
	ls.client = client
	m.sessions[sessionID] = ls
	m.wg.Add(1)
	return ls, nil
}

// start broadcasts the initial state and hands the session to its runner.
func (m *Manager) start(ls *liveSession) {
	if m.metrics != nil {
		m.metrics.SessionAdded(context.Background())
	}
	log.Printf("session: starting %s for tenant %s", ls.sess.ID, ls.sess.TenantID)
	m.publishStatus(ls, domain.StatusInitializing)
	go m.run(ls)
}

// Get returns the current snapshot for the identifier.
func (m *Manager) Get(sessionID string) (domain.Snapshot, bool) {
	m.mu.Lock()
	ls, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return domain.Snapshot{}, false
	}
	return ls.snapshot(), true
}

// List enumerates sessions for the tenant, or all sessions when tenantID is
// empty. Session identifiers are a single global namespace; tenant scoping
// here is a filter, not an isolation boundary.
func (m *Manager) List(tenantID string) []domain.Snapshot {
	m.mu.Lock()
	live := make([]*liveSession, 0, len(m.sessions))
	for _, ls := range m.sessions {
		live = append(live, ls)
	}
	m.mu.Unlock()

	out := make([]domain.Snapshot, 0, len(live))
	for _, ls := range live {
		snap := ls.snapshot()
		if tenantID == "" || snap.TenantID == tenantID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Destroy tears the session down: cancels any pending recreation, awaits the
// client's teardown, removes the registry entry and the device record, and
// broadcasts the terminal status. Destroying an absent identifier only
// cancels a pending recreation; no event is emitted. Idempotent.
func (m *Manager) Destroy(ctx context.Context, sessionID, tenantID string) error {
	m.mu.Lock()
	if t, ok := m.pending[sessionID]; ok {
		t.Stop()
		delete(m.pending, sessionID)
	}
	ls, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	ls.destroyOnce.Do(func() {
		m.teardown(ctx, ls, true)
	})
	<-ls.gone
	return nil
}

// teardown stops the runner, releases the client, and removes the session.
// The client is released on every exit path; a teardown failure is logged
// and does not keep the registry entry or the device record alive.
func (m *Manager) teardown(ctx context.Context, ls *liveSession, removeRecord bool) {
	defer close(ls.gone)

	ls.cancel()
	<-ls.runnerDone
	if err := ls.client.Destroy(ctx); err != nil {
		log.Printf("session: %s client teardown: %v", ls.sess.ID, err)
	}

	m.mu.Lock()
	// The runner may have scheduled a recreation between the caller's
	// cancellation and its own exit; cancel again now that it is gone.
	if t, ok := m.pending[ls.sess.ID]; ok {
		t.Stop()
		delete(m.pending, ls.sess.ID)
	}
	delete(m.sessions, ls.sess.ID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionRemoved(context.Background())
	}

	if !removeRecord {
		return
	}
	if err := m.devices.Remove(ctx, ls.sess.TenantID, ls.sess.ID); err != nil {
		log.Printf("session: remove device record %s/%s: %v", ls.sess.TenantID, ls.sess.ID, err)
	}
	ls.setStatus(domain.StatusDestroyed)
	log.Printf("session: %s destroyed", ls.sess.ID)
	m.publishStatus(ls, domain.StatusDestroyed)
}

// Restart fully awaits Destroy before creating the session again, so two
// live clients never exist for the same identifier.
func (m *Manager) Restart(ctx context.Context, sessionID, tenantID string) error {
	if err := m.Destroy(ctx, sessionID, tenantID); err != nil {
		return err
	}
	return m.Create(ctx, sessionID, tenantID)
}

// SendMessage delegates text delivery to the session's client. Fails with
// ErrNotFound for an absent identifier and ErrNotReady unless the session is
// READY with a populated identity.
func (m *Manager) SendMessage(ctx context.Context, sessionID, number, text string) error {
	m.mu.Lock()
	ls, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	snap := ls.snapshot()
	if !snap.Ready {
		return ErrNotReady
	}
	if err := ls.client.SendMessage(ctx, number, text); err != nil {
		return err
	}
	log.Printf("session: %s sent message to %s", sessionID, number)
	return nil
}

// detach removes the registry entry and, when recreate is set, arms the
// recreation timer inside the same critical section. A concurrent Destroy
// therefore always observes either the live entry or the pending timer;
// there is no instant where the session is invisible yet still coming back.
func (m *Manager) detach(ls *liveSession, recreate bool) {
	m.mu.Lock()
	delete(m.sessions, ls.sess.ID)
	if recreate {
		m.armRecreateLocked(ls.sess.ID, ls.sess.TenantID)
	}
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SessionRemoved(context.Background())
	}
}

// armRecreateLocked arms a one-shot recreation for the identifier. Caller
// holds m.mu. At most one pending recreation exists per identifier; a
// Destroy racing the firing timer wins because both the cancellation and
// the pending check run under the registry lock.
func (m *Manager) armRecreateLocked(sessionID, tenantID string) {
	if m.closed {
		return
	}
	if _, ok := m.pending[sessionID]; ok {
		return
	}
	log.Printf("session: %s recreation scheduled in %s", sessionID, m.policy.Delay())
	m.pending[sessionID] = time.AfterFunc(m.policy.Delay(), func() {
		m.mu.Lock()
		if _, ok := m.pending[sessionID]; !ok {
			// Cancelled by Destroy or superseded by an explicit create.
			m.mu.Unlock()
			return
		}
		delete(m.pending, sessionID)
		ls, err := m.createLocked(sessionID, tenantID)
		m.mu.Unlock()
		if err != nil {
			log.Printf("session: scheduled recreation of %s: %v", sessionID, err)
			return
		}
		if ls != nil {
			m.start(ls)
		}
	})
}

// releaseClient destroys the client with a bounded background context. Used
// on paths where no caller is waiting (disconnects, init failures).
func (m *Manager) releaseClient(ls *liveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := ls.client.Destroy(ctx); err != nil {
		log.Printf("session: %s client release: %v", ls.sess.ID, err)
	}
}

// Shutdown drains the registry: cancels pending recreations and destroys
// every live client. Device records are kept so bootstrap recreates the
// sessions on next start.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for id, t := range m.pending {
		t.Stop()
		delete(m.pending, id)
	}
	live := make([]*liveSession, 0, len(m.sessions))
	for _, ls := range m.sessions {
		live = append(live, ls)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, ls := range live {
		wg.Add(1)
		go func(ls *liveSession) {
			defer wg.Done()
			ls.destroyOnce.Do(func() {
				m.teardown(ctx, ls, false)
			})
			<-ls.gone
		}(ls)
	}
	wg.Wait()
	m.wg.Wait()
}

func (m *Manager) publishStatus(ls *liveSession, st domain.Status) {
	m.hub.Publish(broadcast.Event{
		ID:        uuid.New().String(),
		Type:      broadcast.EventStatusUpdate,
		SessionID: ls.sess.ID,
		TenantID:  ls.sess.TenantID,
		Status:    string(st),
		Timestamp: time.Now().UTC(),
	})
}
