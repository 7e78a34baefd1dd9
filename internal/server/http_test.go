package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"botfleet/backend/internal/session"
	"botfleet/backend/internal/session/domain"
)

type fakeSessions struct {
	mu        sync.Mutex
	snapshots map[string]domain.Snapshot

	created   []string
	destroyed []string
	restarted []string
	messages  []string

	createErr  error
	sendErr    error
	restartErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{snapshots: make(map[string]domain.Snapshot)}
}

func (f *fakeSessions) Create(_ context.Context, sessionID, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, sessionID+"/"+tenantID)
	return nil
}

func (f *fakeSessions) Destroy(_ context.Context, sessionID, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed = append(f.destroyed, sessionID+"/"+tenantID)
	return nil
}

func (f *fakeSessions) Restart(_ context.Context, sessionID, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restartErr != nil {
		return f.restartErr
	}
	f.restarted = append(f.restarted, sessionID+"/"+tenantID)
	return nil
}

func (f *fakeSessions) SendMessage(_ context.Context, sessionID, number, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, sessionID+":"+number+":"+text)
	return nil
}

func (f *fakeSessions) Get(sessionID string) (domain.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snapshots[sessionID]
	return snap, ok
}

func (f *fakeSessions) List(tenantID string) []domain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Snapshot{}
	for _, snap := range f.snapshots {
		if tenantID == "" || snap.TenantID == tenantID {
			out = append(out, snap)
		}
	}
	return out
}

func doRequest(t *testing.T, svc SessionService, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	New(svc, nil).Router(nil).ServeHTTP(rec, req)
	return rec
}

func TestCreateSession(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions",
		createSessionRequest{SessionID: "sales", TenantID: "acme"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.created) != 1 || svc.created[0] != "sales/acme" {
		t.Errorf("expected create of sales/acme, got %v", svc.created)
	}
}

func TestCreateSessionDefaultsTenant(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions",
		createSessionRequest{SessionID: "sales"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if len(svc.created) != 1 || svc.created[0] != "sales/admin" {
		t.Errorf("expected create of sales/admin, got %v", svc.created)
	}
}

func TestCreateSessionMissingID(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions",
		createSessionRequest{TenantID: "acme"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.created) != 0 {
		t.Errorf("expected no create, got %v", svc.created)
	}
}

func TestCreateSessionWhileShuttingDown(t *testing.T) {
	svc := newFakeSessions()
	svc.createErr = session.ErrShuttingDown
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions",
		createSessionRequest{SessionID: "sales", TenantID: "acme"})

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListSessionsFiltersByTenant(t *testing.T) {
	svc := newFakeSessions()
	svc.snapshots["sales"] = domain.Snapshot{ID: "sales", TenantID: "acme", Status: domain.StatusReady}
	svc.snapshots["intake"] = domain.Snapshot{ID: "intake", TenantID: "globex", Status: domain.StatusQRPending}

	rec := doRequest(t, svc, http.MethodGet, "/api/sessions?tenantId=acme", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "sales" {
		t.Errorf("expected only acme sessions, got %v", got)
	}
}

func TestGetSession(t *testing.T) {
	svc := newFakeSessions()
	svc.snapshots["sales"] = domain.Snapshot{
		ID:        "sales",
		TenantID:  "acme",
		Status:    domain.StatusReady,
		Ready:     true,
		CreatedAt: time.Now().UTC(),
	}

	rec := doRequest(t, svc, http.MethodGet, "/api/sessions/sales", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got domain.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != "sales" || !got.Ready {
		t.Errorf("unexpected snapshot: %+v", got)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	rec := doRequest(t, newFakeSessions(), http.MethodGet, "/api/sessions/ghost", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDestroySession(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodDelete, "/api/sessions/sales?tenantId=acme", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.destroyed) != 1 || svc.destroyed[0] != "sales/acme" {
		t.Errorf("expected destroy of sales/acme, got %v", svc.destroyed)
	}
}

func TestDestroyAbsentSessionSucceeds(t *testing.T) {
	// Destroy is idempotent in the manager, so the HTTP layer reports
	// success for unknown identifiers too.
	rec := doRequest(t, newFakeSessions(), http.MethodDelete, "/api/sessions/ghost", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRestartSession(t *testing.T) {
	svc := newFakeSessions()
	svc.snapshots["sales"] = domain.Snapshot{ID: "sales", TenantID: "acme"}

	rec := doRequest(t, svc, http.MethodPost, "/api/sessions/sales/restart", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.restarted) != 1 || svc.restarted[0] != "sales/acme" {
		t.Errorf("expected restart of sales/acme, got %v", svc.restarted)
	}
}

func TestRestartUnknownSession(t *testing.T) {
	rec := doRequest(t, newFakeSessions(), http.MethodPost, "/api/sessions/ghost/restart", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions/sales/messages",
		sendMessageRequest{Number: "15551230001", Text: "hello"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.messages) != 1 || svc.messages[0] != "sales:15551230001:hello" {
		t.Errorf("unexpected messages: %v", svc.messages)
	}
}

func TestSendMessageNotReady(t *testing.T) {
	svc := newFakeSessions()
	svc.sendErr = session.ErrNotReady
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions/sales/messages",
		sendMessageRequest{Number: "15551230001", Text: "hello"})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	svc := newFakeSessions()
	svc.sendErr = session.ErrNotFound
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions/ghost/messages",
		sendMessageRequest{Number: "15551230001", Text: "hello"})

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc := newFakeSessions()
	rec := doRequest(t, svc, http.MethodPost, "/api/sessions/sales/messages",
		sendMessageRequest{Number: "15551230001"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.messages) != 0 {
		t.Errorf("expected no send, got %v", svc.messages)
	}
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, newFakeSessions(), http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
