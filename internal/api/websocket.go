package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cardlab/emv-emulator/internal/cards"
	"github.com/cardlab/emv-emulator/internal/emv"
	"github.com/cardlab/emv-emulator/internal/engine"
	"github.com/cardlab/emv-emulator/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Terminals connect from anywhere on the lab network
	},
}

// InboundMessage is one frame from a device.
type InboundMessage struct {
	Type       string          `json:"type"`
	Command    string          `json:"command,omitempty"`
	CardData   *CardData       `json:"card_data,omitempty"`
	CardID     int64           `json:"card_id,omitempty"`
	DeviceInfo json.RawMessage `json:"device_info,omitempty"`
}

// CardData is the optional per-command card profile a device supplies.
type CardData struct {
	PAN        string `json:"pan"`
	Expiry     string `json:"expiry"` // calendar date, YYYY-MM-DD
	HolderName string `json:"holder_name"`
}

// OutboundMessage is one frame to a device.
type OutboundMessage struct {
	Type            string    `json:"type"`
	Response        string    `json:"response,omitempty"`
	OriginalCommand string    `json:"original_command,omitempty"`
	Message         string    `json:"message,omitempty"`
	DeviceID        string    `json:"device_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Session is one connected device. Inbound frames are processed
// strictly in arrival order by the session's read pump; session state
// is only ever touched under its own mutex.
type Session struct {
	ID     string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	closed       bool
	connectedAt  time.Time
	lastActivity time.Time
	commandCount uint64
}

// SessionInfo is a read-only snapshot of session state.
type SessionInfo struct {
	DeviceID     string    `json:"device_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	CommandCount uint64    `json:"command_count"`
}

// closeSend cancels the session context and closes the send channel
// exactly once. Serialized against reply via s.mu.
func (s *Session) closeSend() {
	s.cancel()
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
	s.mu.Unlock()
}

func (s *Session) touch(countCommand bool) {
	s.mu.Lock()
	s.lastActivity = time.Now()
	if countCommand {
		s.commandCount++
	}
	s.mu.Unlock()
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		DeviceID:     s.ID,
		ConnectedAt:  s.connectedAt,
		LastActivity: s.lastActivity,
		CommandCount: s.commandCount,
	}
}

// Hub owns the set of live device sessions. Registry mutations flow
// through the Run loop's channels; reads take the mutex.
type Hub struct {
	engine    *engine.Engine
	cardStore *cards.Store

	sessions   map[string]*Session
	register   chan *Session
	unregister chan *Session
	broadcast  chan []byte
	mu         sync.RWMutex
}

// NewHub creates a session hub. cardStore may be nil; devices then
// cannot reference stored cards by id.
func NewHub(eng *engine.Engine, cardStore *cards.Store) *Hub {
	return &Hub{
		engine:     eng,
		cardStore:  cardStore,
		sessions:   make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		broadcast:  make(chan []byte),
	}
}

// Run drives the hub's registry loop. Call once in its own goroutine.
func (h *Hub) Run() {
	// Re-panic after logging since a dead hub is fatal
	defer logging.RecoverAndLog("session hub", true)

	for {
		select {
		case session := <-h.register:
			h.mu.Lock()
			h.sessions[session.ID] = session
			h.mu.Unlock()
		case session := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[session.ID]; ok {
				delete(h.sessions, session.ID)
				session.closeSend()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for id, session := range h.sessions {
				if !session.enqueue(message) {
					// One stalled device must not hold up the rest.
					delete(h.sessions, id)
					session.closeSend()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Handler returns the WebSocket endpoint that accepts device
// connections.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error(logging.CatWebSocket, "WebSocket upgrade failed", map[string]any{
				"error":      err.Error(),
				"remoteAddr": r.RemoteAddr,
			})
			return
		}

		now := time.Now()
		ctx, cancel := context.WithCancel(context.Background())
		session := &Session{
			ID:           uuid.NewString(),
			conn:         conn,
			send:         make(chan []byte, 256),
			hub:          h,
			ctx:          ctx,
			cancel:       cancel,
			connectedAt:  now,
			lastActivity: now,
		}

		logging.Info(logging.CatWebSocket, "Device connected", map[string]any{
			"device":     session.ID,
			"remoteAddr": r.RemoteAddr,
		})

		h.register <- session

		go session.writePump()
		go session.readPump()
	}
}

// Send delivers a message to one device. Sending to an unknown id is
// a no-op; a full send buffer drops the device.
func (h *Hub) Send(deviceID string, msg OutboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	session, ok := h.sessions[deviceID]
	if !ok {
		return
	}
	if !session.enqueue(payload) {
		delete(h.sessions, deviceID)
		session.closeSend()
	}
}

// Broadcast delivers a message to every connected device. Delivery
// failures are isolated per device.
func (h *Hub) Broadcast(msg OutboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast <- payload
}

// Disconnect removes a device from the registry. The read pump notices
// the closed connection and finishes on its own.
func (h *Hub) Disconnect(deviceID string) {
	h.mu.Lock()
	session, ok := h.sessions[deviceID]
	if ok {
		delete(h.sessions, deviceID)
		session.closeSend()
	}
	h.mu.Unlock()

	if ok {
		session.conn.Close()
	}
}

// ListActive returns the ids of all connected devices.
func (h *Hub) ListActive() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Sessions returns a snapshot of every live session's state.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(h.sessions))
	for _, session := range h.sessions {
		infos = append(infos, session.info())
	}
	return infos
}

func (s *Session) readPump() {
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("session readPump", false)
	// Cleanup (runs first)
	defer func() {
		s.cancel()
		s.hub.unregister <- s
		s.conn.Close()
		logging.Info(logging.CatWebSocket, "Device disconnected", map[string]any{
			"device": s.ID,
		})
	}()

	s.conn.SetReadLimit(64 * 1024)
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn(logging.CatWebSocket, "WebSocket unexpected close", map[string]any{
					"device": s.ID,
					"error":  err.Error(),
				})
			}
			break
		}

		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.sendError("invalid message format")
			continue
		}

		s.handleMessage(msg)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	// Recover from panics (runs last due to LIFO)
	defer logging.RecoverAndLog("session writePump", false)
	// Cleanup (runs first)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) handleMessage(msg InboundMessage) {
	switch msg.Type {
	case "apdu_command":
		s.handleAPDUCommand(msg)
	case "heartbeat":
		s.touch(false)
		s.reply(OutboundMessage{Type: "heartbeat_response", Timestamp: time.Now()})
	case "init":
		s.touch(false)
		logging.Info(logging.CatWebSocket, "Device initialized", map[string]any{
			"device": s.ID,
			"info":   string(msg.DeviceInfo),
		})
		s.reply(OutboundMessage{
			Type:      "status",
			Message:   "ready",
			DeviceID:  s.ID,
			Timestamp: time.Now(),
		})
	default:
		logging.Warn(logging.CatWebSocket, "Unknown message type", map[string]any{
			"device": s.ID,
			"type":   msg.Type,
		})
		s.sendError("unknown message type: " + msg.Type)
	}
}

func (s *Session) handleAPDUCommand(msg InboundMessage) {
	s.touch(true)

	profile := s.resolveProfile(msg)
	resp := s.hub.engine.Handle(s.ctx, s.ID, msg.Command, profile)

	s.reply(OutboundMessage{
		Type:            "apdu_response",
		Response:        resp.Response,
		OriginalCommand: resp.Command,
		Timestamp:       time.Now(),
	})
}

// resolveProfile picks the card data for one command: inline card_data
// wins, then a stored card referenced by card_id, then nil (handler
// defaults apply).
func (s *Session) resolveProfile(msg InboundMessage) *emv.CardProfile {
	if msg.CardData != nil {
		profile := &emv.CardProfile{
			PAN:        msg.CardData.PAN,
			HolderName: msg.CardData.HolderName,
		}
		// A malformed date leaves the zero time; the record builders
		// substitute the default expiry.
		if parsed, err := time.Parse("2006-01-02", msg.CardData.Expiry); err == nil {
			profile.Expiry = parsed
		}
		return profile
	}

	if msg.CardID != 0 && s.hub.cardStore != nil {
		card, err := s.hub.cardStore.Get(msg.CardID)
		if err != nil {
			logging.Warn(logging.CatWebSocket, "Referenced card not found", map[string]any{
				"device": s.ID,
				"cardId": msg.CardID,
			})
			return nil
		}
		return card.Profile()
	}

	return nil
}

// enqueue buffers one payload for the write pump. False means the
// session is closed or its buffer is full.
func (s *Session) enqueue(payload []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

func (s *Session) reply(msg OutboundMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if !s.enqueue(payload) {
		// Send buffer full or session gone: drop the device.
		s.hub.unregister <- s
	}
}

func (s *Session) sendError(errMsg string) {
	s.reply(OutboundMessage{
		Type:      "error",
		Message:   errMsg,
		Timestamp: time.Now(),
	})
}
