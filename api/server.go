// Package api exposes the game service over REST and hands sockets to the
// websocket hub. The transport trusts the X-User-ID header as the verified
// actor identity; swapping in a real authenticator means replacing userID()
// only.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tablezoo/tablezoo/game/service"
	"github.com/tablezoo/tablezoo/game/session"
	"github.com/tablezoo/tablezoo/transport/websocket"
)

// Server is the REST API server.
type Server struct {
	service service.GameService
	hub     *websocket.Hub
	router  *mux.Router
	logger  *zap.Logger
}

// NewServer creates a new API server.
func NewServer(gameService service.GameService, hub *websocket.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: gameService,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Session lifecycle
	api.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/join", s.handleJoin).Methods("POST")
	api.HandleFunc("/sessions/{id}/open", s.handleOpen).Methods("POST")
	api.HandleFunc("/sessions/{id}/watch", s.handleWatch).Methods("POST")
	api.HandleFunc("/sessions/{id}/leave", s.handleLeave).Methods("POST")
	api.HandleFunc("/sessions/{id}/close", s.handleClose).Methods("POST")
	api.HandleFunc("/sessions/{id}/ready", s.handleToggleReady).Methods("POST")
	api.HandleFunc("/sessions/{id}/start", s.handleStart).Methods("POST")
	api.HandleFunc("/sessions/{id}/move", s.handleMove).Methods("POST")

	// Game types and user standings
	api.HandleFunc("/game-types", s.handleGameTypes).Methods("GET")
	api.HandleFunc("/users/{id}/stats", s.handleUserStats).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	var se *session.Error
	if !errors.As(err, &se) {
		s.logger.Error("internal error", zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	status := http.StatusConflict
	switch se.Kind {
	case session.KindNotFound:
		status = http.StatusNotFound
	case session.KindUnknownGameType:
		status = http.StatusBadRequest
	case session.KindEngine:
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, map[string]string{
		"error": se.Error(),
		"kind":  string(se.Kind),
	})
}

// userID returns the verified actor for a request. Authentication proper is
// a collaborator outside this server; here the header stands in for it.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

func sessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// Session handlers

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GameType   string             `json:"game_type"`
		Visibility session.Visibility `json:"visibility,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	view, err := s.service.CreateSession(r.Context(), req.GameType, req.Visibility)
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, view)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.service.ListSessions(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"sessions": summaries,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
		return
	}
	view, err := s.service.GetSession(r.Context(), id, userID(r))
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// action wraps the handlers that take only a session id and the acting user.
func (s *Server) action(do func(r *http.Request, id int64, user string) (*service.SessionView, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := sessionID(r)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session id"})
			return
		}
		view, err := do(r, id, userID(r))
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.hub.SessionUpdated(id)
		respondJSON(w, http.StatusOK, view)
	}
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.Join(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.Open(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.Watch(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.Leave(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.Close(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleToggleReady(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.ToggleReady(r.Context(), id, user)
	})(w, r)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.action(func(r *http.Request, id int64, _ string) (*service.SessionView, error) {
		return s.service.Start(r.Context(), id)
	})(w, r)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Move json.RawMessage `json:"move"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	s.action(func(r *http.Request, id int64, user string) (*service.SessionView, error) {
		return s.service.MakeMove(r.Context(), id, user, req.Move)
	})(w, r)
}

func (s *Server) handleGameTypes(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_types": s.service.GameTypes(),
	})
}

func (s *Server) handleUserStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.UserStats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleWebSocket attaches a client socket to a session. The viewer
// identity comes from the header or the user query parameter; an empty one
// attaches an anonymous spectator socket.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("session"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid session parameter", http.StatusBadRequest)
		return
	}
	user := userID(r)
	if user == "" {
		user = r.URL.Query().Get("user")
	}
	s.hub.ServeWS(w, r, id, user)
}
