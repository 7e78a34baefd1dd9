// Package server exposes the session orchestration API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"botfleet/backend/internal/session"
	"botfleet/backend/internal/session/domain"
)

// defaultTenantID is assumed when a request carries no tenant.
const defaultTenantID = "admin"

// SessionService is the slice of the session manager the HTTP layer needs.
type SessionService interface {
	Create(ctx context.Context, sessionID, tenantID string) error
	Destroy(ctx context.Context, sessionID, tenantID string) error
	Restart(ctx context.Context, sessionID, tenantID string) error
	SendMessage(ctx context.Context, sessionID, number, text string) error
	Get(sessionID string) (domain.Snapshot, bool)
	List(tenantID string) []domain.Snapshot
}

// Pinger reports backing-store health. Optional.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server routes HTTP requests to the session service.
type Server struct {
	sessions SessionService
	db       Pinger
}

// New returns a server over the session service. db may be nil when no
// database is configured.
func New(sessions SessionService, db Pinger) *Server {
	return &Server{sessions: sessions, db: db}
}

// Router builds the HTTP route table. ws, when non-nil, is mounted at /ws.
func (s *Server) Router(ws http.HandlerFunc) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if ws != nil {
		r.HandleFunc("/ws", ws)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDestroy).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/restart", s.handleRestart).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages", s.handleSendMessage).Methods(http.MethodPost)
	return r
}

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
	TenantID  string `json:"tenantId"`
}

type sendMessageRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}
	if req.TenantID == "" {
		req.TenantID = defaultTenantID
	}
	if err := s.sessions.Create(r.Context(), req.SessionID, req.TenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenantId")
	writeJSON(w, http.StatusOK, s.sessions.List(tenantID))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tenantID := r.URL.Query().Get("tenantId")
	if tenantID == "" {
		tenantID = defaultTenantID
	}
	if err := s.sessions.Destroy(r.Context(), id, tenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := s.sessions.Restart(r.Context(), id, snap.TenantID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Number == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "number and text are required")
		return
	}
	if err := s.sessions.SendMessage(r.Context(), id, req.Number, req.Text); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps session sentinel errors to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("server: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("server: write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
