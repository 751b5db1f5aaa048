package realtime

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-events/ticketsync/internal/auth"
)

// Client is one dashboard connection. A zero OrganizerID receives every organizer.
type Client struct {
	ID          string
	Subject     string
	OrganizerID uuid.UUID
	hub         *Hub
	conn        *websocket.Conn
	send        chan WSMessage
}

// ServeWs upgrades GET /ws?token=...&organizer_id=... and streams sync events until the
// client disconnects. Only admin and operator tokens are accepted.
func ServeWs(hub *Hub, jwtService *auth.JWTService, allowedOrigins []string, logger *zap.Logger) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return func(c *gin.Context) {
		claims, err := jwtService.Validate(c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if claims.Role != auth.RoleAdmin && claims.Role != auth.RoleOperator {
			c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		var organizerID uuid.UUID
		if s := c.Query("organizer_id"); s != "" {
			if organizerID, err = uuid.Parse(s); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organizer_id"})
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &Client{
			ID:          uuid.NewString(),
			Subject:     claims.Subject,
			OrganizerID: organizerID,
			hub:         hub,
			conn:        conn,
			send:        make(chan WSMessage, 64),
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
	}
}

// readPump discards client messages; it only keeps the read deadline alive and notices disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
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
