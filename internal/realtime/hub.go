package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a session room. Starts Redis subscription for this session if first client.
func (h *Hub) Register(sessionID uuid.UUID, c *Client) {
	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(sessionID, func(event string, payload []byte) {
				h.BroadcastToSession(sessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[sessionID] = cancel
			}
		}
	}
	h.sessions[sessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("session_id", sessionID.String()))
}

// Unregister removes a client from a session room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(sessionID uuid.UUID, c *Client) {
	h.mu.Lock()
	if m, ok := h.sessions[sessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.sessions, sessionID)
			if cancel, ok := h.subs[sessionID]; ok {
				cancel()
				delete(h.subs, sessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("session_id", sessionID.String()))
}

// BroadcastToSession sends a message to all clients in a session room (local only).
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToSessionAndPublish sends to local clients and publishes to Redis for other instances.
func (h *Hub) BroadcastToSessionAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToSession(sessionID, event, payload)
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// PublishToSessionOnly publishes to Redis only (no local broadcast). Used for one-shot
// events like analysis_ready so that the Redis subscriber callback performs the broadcast
// once for all instances (including this one), avoiding duplicate delivery to local clients.
func (h *Hub) PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
		return
	}
	h.BroadcastToSession(sessionID, event, payload)
}

// ViewerCount returns the number of connected clients watching a session.
func (h *Hub) ViewerCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
