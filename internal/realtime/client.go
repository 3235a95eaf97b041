package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/coachlens/backend/internal/models"
	"github.com/coachlens/backend/internal/playback"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SessionLoader fetches a session with its tips for playback binding.
type SessionLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// Client represents a single WebSocket connection of one viewer.
// A client watches at most one session at a time; switching sessions fully
// detaches the previous playback binding before the new one starts.
type Client struct {
	ID       string
	UserID   uuid.UUID
	Role     string
	hub      *Hub
	engines  *playback.Registry
	sessions SessionLoader
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger

	mu       sync.Mutex
	watching uuid.UUID // uuid.Nil when not bound to a session
	pos      float64   // last reported playhead position, seconds
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, engines *playback.Registry, sessions SessionLoader, logger *zap.Logger, jwtValidate func(token string) (userID, role string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token required"})
			return
		}
		userIDStr, role, err := jwtValidate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		userID, _ := uuid.Parse(userIDStr)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			UserID:   userID,
			Role:     role,
			hub:      hub,
			engines:  engines,
			sessions: sessions,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		go client.writePump()
		client.readPump()
	}
}

// NotifyTip pushes a fired tip to this viewer. Implements playback.Notifier.
func (c *Client) NotifyTip(session *models.Session, tip models.Tip) error {
	payload, err := json.Marshal(gin.H{
		"session_id":     session.ID.String(),
		"tip_id":         tip.ID.String(),
		"offset_seconds": tip.OffsetSeconds,
		"text":           tip.Text,
		"voice_url":      tip.VoiceURL,
	})
	if err != nil {
		return err
	}
	select {
	case c.send <- WSMessage{Event: "tip", Data: payload}:
	default:
		// buffer full, skip
	}
	return nil
}

// position returns the last reported playhead position. Used as the engine's
// poll source.
func (c *Client) position() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, nil
}

func (c *Client) readPump() {
	defer func() {
		c.detach()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "watch":
			var payload struct {
				SessionID string `json:"session_id"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				continue
			}
			sessionID, err := uuid.Parse(payload.SessionID)
			if err != nil {
				c.sendError("invalid session_id")
				continue
			}
			c.watch(sessionID)
		case "position_update", "seek":
			var payload struct {
				Position float64 `json:"position"`
			}
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				continue
			}
			c.mu.Lock()
			c.pos = payload.Position
			c.mu.Unlock()
			// Immediate pass so tips land without waiting for the next poll tick.
			if eng := c.engines.Get(c.ID); eng != nil {
				eng.Sample(context.Background(), payload.Position)
			}
		case "leave":
			c.detach()
		default:
			// ignore
		}
	}
}

// watch binds this connection to a session: room membership plus a fresh
// playback binding. Any previous binding is fully stopped first so a stale
// position sample can never fire into the new session.
func (c *Client) watch(sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	session, err := c.sessions.GetByID(ctx, sessionID)
	cancel()
	if err != nil || session == nil {
		c.sendError("session not found")
		return
	}

	c.detach()

	c.mu.Lock()
	c.watching = sessionID
	c.pos = 0
	c.mu.Unlock()

	c.hub.Register(sessionID, c)
	c.engines.Attach(c.ID, c, session, playback.PositionFunc(c.position))

	// Viewer count events are state, not notifications; duplicate local
	// delivery from the self-subscribed instance is harmless.
	c.hub.BroadcastToSessionAndPublish(sessionID, "viewer_joined", gin.H{
		"session_id":   sessionID.String(),
		"viewer_count": c.hub.ViewerCount(sessionID),
	})

	payload, _ := json.Marshal(gin.H{
		"session_id": sessionID.String(),
		"tip_count":  len(session.Tips),
	})
	select {
	case c.send <- WSMessage{Event: "watching", Data: payload}:
	default:
	}
	c.logger.Debug("viewer watching session",
		zap.String("client_id", c.ID),
		zap.String("session_id", sessionID.String()))
}

// detach removes the current playback binding and room membership, if any.
// Safe to call repeatedly.
func (c *Client) detach() {
	c.mu.Lock()
	watching := c.watching
	c.watching = uuid.Nil
	c.mu.Unlock()

	c.engines.Detach(c.ID)
	if watching != uuid.Nil {
		c.hub.Unregister(watching, c)
		c.hub.BroadcastToSessionAndPublish(watching, "viewer_left", gin.H{
			"session_id":   watching.String(),
			"viewer_count": c.hub.ViewerCount(watching),
		})
	}
}

func (c *Client) sendError(message string) {
	payload, _ := json.Marshal(gin.H{"message": message})
	select {
	case c.send <- WSMessage{Event: "error", Data: payload}:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
