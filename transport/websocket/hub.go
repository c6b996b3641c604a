package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tablezoo/tablezoo/game/service"
	"github.com/tablezoo/tablezoo/game/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Configure this for production
		return true
	},
}

// Message is the frame pushed to clients on every session update.
type Message struct {
	Type      string               `json:"type"`
	SessionID int64                `json:"session_id"`
	Session   *service.SessionView `json:"session,omitempty"`
}

// Client is one attached socket: a session to follow and the user it views
// the session as (empty for anonymous spectating of the public state).
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID int64
	userID    string
}

// Hub maintains the set of attached clients and fans session updates out to
// them, one redacted projection per viewer.
type Hub struct {
	svc    service.GameService
	logger *zap.Logger

	// Attached clients by session id.
	sessions map[int64]map[*Client]bool

	notify     chan int64
	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub over the game service.
func NewHub(svc service.GameService, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		svc:        svc,
		logger:     logger,
		sessions:   make(map[int64]map[*Client]bool),
		notify:     make(chan int64, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case sessionID := <-h.notify:
			h.broadcastSession(sessionID)
		}
	}
}

// SessionUpdated schedules a push of the session's latest state to every
// attached client. Non-blocking; a full queue drops the oldest signal's
// urgency, not its data, since every push reloads the snapshot.
func (h *Hub) SessionUpdated(sessionID int64) {
	select {
	case h.notify <- sessionID:
	default:
		h.logger.Warn("hub notify queue full", zap.Int64("session_id", sessionID))
	}
}

// ServeWS upgrades an HTTP request into an attached client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID int64, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		id:        uuid.NewString(),
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, 8),
		sessionID: sessionID,
		userID:    userID,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (h *Hub) registerClient(client *Client) {
	clients := h.sessions[client.sessionID]
	if clients == nil {
		clients = make(map[*Client]bool)
		h.sessions[client.sessionID] = clients
	}
	clients[client] = true

	// A player's socket is their presence: attaching re-opens them.
	if client.userID != "" {
		if _, err := h.svc.Open(context.Background(), client.sessionID, client.userID); err != nil {
			h.logger.Debug("open on attach skipped",
				zap.Int64("session_id", client.sessionID),
				zap.String("user_id", client.userID),
				zap.Error(err))
		}
	}
	h.sendSnapshot(client)
}

func (h *Hub) unregisterClient(client *Client) {
	clients := h.sessions[client.sessionID]
	if clients == nil || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.sessions, client.sessionID)
	}

	if client.userID != "" {
		if _, err := h.svc.Close(context.Background(), client.sessionID, client.userID); err != nil {
			h.logger.Debug("close on detach skipped",
				zap.Int64("session_id", client.sessionID),
				zap.String("user_id", client.userID),
				zap.Error(err))
		}
	}
}

func (h *Hub) broadcastSession(sessionID int64) {
	for client := range h.sessions[sessionID] {
		h.sendSnapshot(client)
	}
}

// sendSnapshot projects the session for the client's viewer and queues the
// frame. Slow consumers are detached rather than allowed to stall the hub.
func (h *Hub) sendSnapshot(client *Client) {
	view, err := h.svc.GetSession(context.Background(), client.sessionID, client.userID)
	if err != nil {
		if session.IsKind(err, session.KindNotFound) {
			return
		}
		h.logger.Warn("project session for push failed",
			zap.Int64("session_id", client.sessionID),
			zap.Error(err))
		return
	}
	frame, err := json.Marshal(Message{
		Type:      "session_update",
		SessionID: client.sessionID,
		Session:   view,
	})
	if err != nil {
		h.logger.Warn("encode push frame failed", zap.Error(err))
		return
	}
	select {
	case client.send <- frame:
	default:
		h.unregisterClient(client)
	}
}
