package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/secrets"
	"cio-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

type screen struct {
	Screen   string `json:"screen"`
	Mode     string `json:"mode"`
	Messages []struct {
		Label string `json:"label"`
		Text  string `json:"text"`
		IsMe  bool   `json:"isMe"`
	} `json:"messages"`
	Backend *struct {
		MissingKeys []string `json:"missingKeys"`
	} `json:"backend"`
}

func newServer(t *testing.T, vars map[string]string) (*httptest.Server, *Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Backend.Driver = backend.DriverMemory
	cfg.Security.AllowedOrigins = []string{"*"}

	dialer, err := backend.NewDialer(cfg, logger.Nop())
	require.NoError(t, err)
	connector := backend.NewConnector(secrets.NewMapManager("CHAT_", vars), dialer, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger.Nop())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", NewHandler(hub, connector, cfg, observability.Nop{}, logger.Nop()).ServeWs)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, content any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "content": content}))
}

func awaitScreen(t *testing.T, conn *websocket.Conn, name string, match func(screen) bool) screen {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type != "screen" {
			continue
		}
		var s screen
		require.NoError(t, json.Unmarshal(f.Content, &s))
		if s.Screen == name && (match == nil || match(s)) {
			return s
		}
	}
}

func TestChatOverWebSocket(t *testing.T) {
	srv, hub := newServer(t, map[string]string{
		"CHAT_API_KEY":    "ws-test-api-key-0123456789",
		"CHAT_PROJECT_ID": "cio-chat-test",
	})

	ada := dial(t, srv, "")
	awaitScreen(t, ada, "login", nil)
	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	send(t, ada, "register", map[string]string{"email": "ada@example.com", "password": "secret1", "displayName": "Ada"})
	awaitScreen(t, ada, "room", nil)

	bob := dial(t, srv, "")
	awaitScreen(t, bob, "login", nil)
	send(t, bob, "register", map[string]string{"email": "bob@example.com", "password": "secret1", "displayName": "Bob"})
	awaitScreen(t, bob, "room", nil)

	send(t, ada, "send", map[string]string{"text": "hello bob"})

	s := awaitScreen(t, bob, "room", func(s screen) bool { return len(s.Messages) == 1 })
	assert.Equal(t, "ADA", s.Messages[0].Label)
	assert.False(t, s.Messages[0].IsMe)

	s = awaitScreen(t, ada, "room", func(s screen) bool { return len(s.Messages) == 1 })
	assert.Equal(t, "YOU", s.Messages[0].Label)
	assert.True(t, s.Messages[0].IsMe)
}

func TestDisconnectedBackendOverWebSocket(t *testing.T) {
	srv, _ := newServer(t, map[string]string{"CHAT_API_KEY": "ws-test-api-key-0123456789"})

	conn := dial(t, srv, "")
	s := awaitScreen(t, conn, "login", nil)
	require.NotNil(t, s.Backend)
	assert.Equal(t, []string{"PROJECT_ID"}, s.Backend.MissingKeys)
}

func TestClosingSocketUnregisters(t *testing.T) {
	srv, hub := newServer(t, map[string]string{
		"CHAT_API_KEY":    "ws-test-api-key-0123456789",
		"CHAT_PROJECT_ID": "cio-chat-test",
	})

	conn := dial(t, srv, "")
	awaitScreen(t, conn, "login", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
