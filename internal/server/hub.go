package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/grimoire-games/clocktower-server/internal/game"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// event is the message pushed to watch-stream clients whenever the engine
// appends an action record.
type event struct {
	Type      game.ActionType `json:"type"`
	GameID    string          `json:"game_id"`
	Payload   map[string]any  `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	gameID string
}

// Hub fans engine action records out to websocket clients watching a game.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*client]bool),
	}
}

// Notify implements the engine's notification hook. It serializes the
// record once and pushes it to every client watching the game. Slow
// clients are dropped rather than blocking the broadcast.
func (h *Hub) Notify(rec game.ActionRecord) {
	msg, err := json.Marshal(event{
		Type:      rec.Type,
		GameID:    rec.GameID,
		Payload:   rec.Payload,
		Timestamp: rec.Timestamp,
	})
	if err != nil {
		h.logger.Error("encode watch event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.gameID != rec.GameID {
			continue
		}
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			h.logger.Warn("dropped slow watch client",
				zap.String("game_id", c.gameID))
		}
	}
}

// ServeWatch upgrades the request to a websocket and streams the game's
// action records until the client disconnects.
func (h *Hub) ServeWatch(w http.ResponseWriter, r *http.Request, gameID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, 256),
		gameID: gameID,
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.logger.Info("watch client connected", zap.String("game_id", gameID))

	go c.writePump()
	c.readPump(h)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards inbound frames; the watch stream is one-way. Reading
// is still required to process control frames and detect disconnects.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
