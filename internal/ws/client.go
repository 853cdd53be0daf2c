package ws

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/kiwari-pos/tableservice/internal/enum"
	"github.com/kiwari-pos/tableservice/internal/middleware"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10 // must stay below pongWait
	maxMessageSize = 512
	sendBuffer     = 256
)

// Client is one tablet subscribed to a room. Tablets only listen; anything
// they send is discarded.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	room string
	send chan []byte
}

// readPump keeps the read deadline fresh and unregisters on disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ERROR: websocket %s: %v", c.room, err)
			}
			return
		}
	}
}

// writePump sends every event as its own text frame so clients can decode
// each frame as one JSON object.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// canJoin reports whether a role may subscribe to room. Waiters follow
// tables and orders only.
func canJoin(role, room string) bool {
	if room == enum.RoomPrintQueue {
		return role != enum.UserRoleWaiter
	}
	return true
}

// Handler upgrades GET /ws/{room} requests. It expects the caller's claims
// in the request context (middleware.AuthenticateQuery).
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts upgrades from the given origins; "*" allows any.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
	}
}

func originAllowed(allowed map[string]bool, origin string) bool {
	if origin == "" || allowed["*"] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}

	room := chi.URLParam(r, "room")
	if !enum.IsRoom(room) {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	if !canJoin(claims.Role, room) {
		http.Error(w, "room access denied", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("ERROR: websocket upgrade: %v", err)
		return
	}

	client := &Client{hub: h.hub, conn: conn, room: room, send: make(chan []byte, sendBuffer)}
	if !h.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
