package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/view"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Frames buffered per client before it is considered stuck
	sendBuffer = 256
)

// Client is one WebSocket connection and the view it drives
type Client struct {
	ID   string
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub

	view *view.View
	log  *logger.Logger

	mu     sync.Mutex
	closed bool
}

// Handler upgrades connections and attaches a view to each
type Handler struct {
	hub       *Hub
	connector *backend.Connector
	cfg       *config.Config
	metrics   observability.Recorder
	log       *logger.Logger
	upgrader  websocket.Upgrader
}

// NewHandler creates the /ws handler
func NewHandler(hub *Hub, connector *backend.Connector, cfg *config.Config, metrics observability.Recorder, log *logger.Logger) *Handler {
	h := &Handler{
		hub:       hub,
		connector: connector,
		cfg:       cfg,
		metrics:   metrics,
		log:       log.WithComponent("ws"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeWs handles GET /ws. A token query parameter restores a previous sign-in.
func (h *Handler) ServeWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.LogError(err, "Failed to upgrade connection")
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Hub:  h.hub,
	}
	client.log = h.log.WithFields("client_id", client.ID)

	if !h.hub.add(client) {
		_ = conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client.view = view.New(view.Options{
		ID:            client.ID,
		Backend:       h.connector.Connect(context.Background()),
		Token:         c.Query("token"),
		MessageWindow: h.cfg.Features.MessageWindow,
		AuthTimeout:   h.cfg.Features.AuthTimeout,
		SendTimeout:   h.cfg.Features.SendTimeout,
		Publish:       client.publish,
		Metrics:       h.metrics,
		Log:           h.log,
	})

	go client.WritePump()
	go client.view.Run(ctx)
	go client.ReadPump(cancel)
}

// publish encodes a frame for the write pump. A client that cannot keep up is dropped.
func (c *Client) publish(f view.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.log.LogError(err, "Failed to encode frame", "type", f.Type)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		c.log.Warn("Client send buffer full, closing connection")
		c.closed = true
		close(c.Send)
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump decodes client actions into the view until the connection closes
func (c *Client) ReadPump(cancel context.CancelFunc) {
	defer func() {
		cancel()
		c.Hub.remove(c)
		_ = c.Conn.Close()
		c.log.Debug("ReadPump ended")
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected close", "error", err.Error())
			}
			return
		}

		var action view.Action
		if err := json.Unmarshal(data, &action); err != nil {
			c.log.Warn("Error unmarshaling action", "error", err.Error())
			continue
		}
		if action.Type == "ping" {
			c.publish(view.Frame{Type: "pong"})
			continue
		}

		c.view.Dispatch(action)
	}
}

// WritePump sends frames and keepalive pings until the send channel closes
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
