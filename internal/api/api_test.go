package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/pkg/config"
	apperrors "cio-chat/backend/pkg/errors"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/secrets"
	"cio-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var connectedVars = map[string]string{
	"CHAT_API_KEY":    "api-test-api-key-0123456789",
	"CHAT_PROJECT_ID": "cio-chat-test",
}

func newRouter(t *testing.T, vars map[string]string) *gin.Engine {
	t.Helper()
	return newRouterWith(t, vars, nil)
}

func newRouterWith(t *testing.T, vars map[string]string, tune func(*config.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.Backend.Driver = backend.DriverMemory
	cfg.Features.MessageWindow = 50
	cfg.Features.AuthTimeout = 2 * time.Second
	cfg.Features.SendTimeout = 2 * time.Second
	cfg.Features.ReadTimeout = 2 * time.Second
	if tune != nil {
		tune(cfg)
	}

	dialer, err := backend.NewDialer(cfg, logger.Nop())
	require.NoError(t, err)
	connector := backend.NewConnector(secrets.NewMapManager("CHAT_", vars), dialer, logger.Nop())

	auth := NewAuthHandler(connector, cfg, observability.Nop{}, logger.Nop())
	messages := NewMessageHandler(connector, cfg, nil, logger.Nop())

	r := gin.New()
	r.Use(logger.Middleware(logger.Nop()), apperrors.ErrorHandler())
	r.GET("/status", NewStatusHandler(connector).Status)
	r.POST("/auth/login", auth.Login)
	r.POST("/auth/register", auth.Register)

	protected := r.Group("/", RequireSession(connector))
	protected.GET("/auth/me", auth.Me)
	protected.GET("/messages", messages.List)
	protected.POST("/messages", messages.Create)
	return r
}

func do(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func register(t *testing.T, r http.Handler, email, displayName string) AuthResponse {
	t.Helper()
	w := do(r, http.MethodPost, "/auth/register", "", RegisterRequest{Email: email, Password: "secret1", DisplayName: displayName})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestRegisterLoginAndMe(t *testing.T) {
	r := newRouter(t, connectedVars)

	reg := register(t, r, "ada@example.com", "")
	require.NotNil(t, reg.User)
	assert.Equal(t, "ada", reg.User.DisplayName)
	assert.NotEmpty(t, reg.Token)

	w := do(r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "ada@example.com", Password: "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var login AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, reg.User.UID, login.User.UID)

	w = do(r, http.MethodGet, "/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ada@example.com")
}

func TestAuthErrorMapping(t *testing.T) {
	r := newRouter(t, connectedVars)
	register(t, r, "ada@example.com", "Ada")

	tests := []struct {
		name    string
		path    string
		body    any
		status  int
		message string
	}{
		{"unknown account", "/auth/login", LoginRequest{Email: "nobody@example.com", Password: "secret1"}, http.StatusUnauthorized, "Account not found."},
		{"wrong password", "/auth/login", LoginRequest{Email: "ada@example.com", Password: "wrong-pw"}, http.StatusUnauthorized, "Incorrect password."},
		{"taken email", "/auth/register", RegisterRequest{Email: "ada@example.com", Password: "secret1"}, http.StatusConflict, "Email already registered."},
		{"bad email", "/auth/register", RegisterRequest{Email: "not-an-email", Password: "secret1"}, http.StatusBadRequest, "Invalid email format."},
		{"weak password", "/auth/register", RegisterRequest{Email: "bob@example.com", Password: "123"}, http.StatusBadRequest, "Password is too weak."},
		{"missing fields", "/auth/login", map[string]string{"email": "ada@example.com"}, http.StatusBadRequest, "Invalid request format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, decodeError(t, w).Error.Message)
		})
	}
}

func TestPostAndListMessages(t *testing.T) {
	r := newRouter(t, connectedVars)
	ada := register(t, r, "ada@example.com", "Ada")

	w := do(r, http.MethodPost, "/messages", ada.Token, SendMessageRequest{Text: "  hello room  "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/messages", ada.Token, SendMessageRequest{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_MESSAGE", decodeError(t, w).Error.Code)

	w = do(r, http.MethodGet, "/messages", ada.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "  hello room  ", list.Messages[0].Text)
	assert.Equal(t, "Ada", list.Messages[0].Username)
	assert.Equal(t, ada.User.UID, list.Messages[0].UID)
	assert.NotNil(t, list.Messages[0].Timestamp)

	w = do(r, http.MethodGet, "/messages?limit=0", ada.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReturnsMostRecentWindow(t *testing.T) {
	r := newRouter(t, connectedVars)
	ada := register(t, r, "ada@example.com", "Ada")

	for _, text := range []string{"one", "two", "three"} {
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/messages", ada.Token, SendMessageRequest{Text: text}).Code)
	}

	w := do(r, http.MethodGet, "/messages?limit=2", ada.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	texts := make([]string, 0, len(list.Messages))
	for _, m := range list.Messages {
		texts = append(texts, m.Text)
	}
	assert.Equal(t, []string{"two", "three"}, texts)
}

func TestListUsesReadTimeout(t *testing.T) {
	r := newRouterWith(t, connectedVars, func(cfg *config.Config) {
		cfg.Features.SendTimeout = time.Nanosecond
	})
	token := register(t, r, "ada@example.com", "Ada").Token

	for i := 0; i < 20; i++ {
		w := do(r, http.MethodGet, "/messages", token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
}

func TestRequireSession(t *testing.T) {
	r := newRouter(t, connectedVars)

	w := do(r, http.MethodGet, "/messages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "MISSING_TOKEN", decodeError(t, w).Error.Code)

	w = do(r, http.MethodGet, "/messages", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", decodeError(t, w).Error.Code)
}

func TestDisconnectedBackend(t *testing.T) {
	r := newRouter(t, map[string]string{"CHAT_API_KEY": "api-test-api-key-0123456789"})

	w := do(r, http.MethodPost, "/auth/login", "", LoginRequest{Email: "ada@example.com", Password: "secret1"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Authentication service is unavailable.", decodeError(t, w).Error.Message)

	w = do(r, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Connected)
	assert.Equal(t, []string{"PROJECT_ID"}, status.MissingKeys)
}

func TestStatusConnected(t *testing.T) {
	r := newRouter(t, connectedVars)

	w := do(r, http.MethodGet, "/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Connected)
	assert.Equal(t, "cio-chat-test", status.ProjectID)
}

func TestFirstSnapshotSurfacesReadErrors(t *testing.T) {
	store := docstore.NewMemoryStore()
	store.FailReads(assert.AnError)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := firstSnapshot(ctx, store, docstore.RecentMessages(10))
	assert.ErrorIs(t, err, assert.AnError)
}
