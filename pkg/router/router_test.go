package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/di"
	"cio-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("CHAT_API_KEY", "router-test-api-key-0123456789")
	t.Setenv("CHAT_PROJECT_ID", "cio-chat-test")

	cfg := config.Load()
	cfg.Backend.Driver = backend.DriverMemory
	cfg.Features.OpenAPISchema = "../../api/openapi.yaml"

	container, err := di.New(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	r := New(container)
	r.SetupRoutes()
	return r
}

func request(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthReflectsBackend(t *testing.T) {
	r := newTestRouter(t)
	r.Container.Health.RunChecks(context.Background())

	w := request(r.Engine, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Connected to cio-chat-test")

	w = request(r.Engine, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected":true`)
}

func TestRESTFlowThroughRouter(t *testing.T) {
	r := newTestRouter(t)

	w := request(r.Engine, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "secret1", "displayName": "Ada",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.Token)

	w = request(r.Engine, http.MethodPost, "/api/v1/messages", auth.Token, map[string]string{"text": "hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = request(r.Engine, http.MethodGet, "/api/v1/messages", auth.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"username":"Ada"`)

	w = request(r.Engine, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "chat_auth_submissions")
	assert.Contains(t, w.Body.String(), "chat_messages_sent")
}

func TestSchemaValidationRejectsMalformedBody(t *testing.T) {
	r := newTestRouter(t)

	w := request(r.Engine, http.MethodPost, "/api/v1/auth/login", "", map[string]int{"email": 42})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}
