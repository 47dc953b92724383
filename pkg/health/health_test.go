package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cio-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCriticalComponentDownMakesSystemUnhealthy(t *testing.T) {
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return errors.New("connection refused") })
	c.RegisterCheck("cache", func(context.Context) (Status, string, error) {
		return StatusDown, "not critical", nil
	})

	c.RunChecks(context.Background())
	assert.True(t, c.IsSystemHealthy())

	c.MarkCritical("database")
	assert.False(t, c.IsSystemHealthy())

	status := c.GetStatus()
	assert.Equal(t, StatusDown, status["database"].Status)
	assert.Equal(t, "connection refused", status["database"].Error)
	assert.Equal(t, StatusUp, status["self"].Status)
}

func TestHTTPHandler(t *testing.T) {
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterCheck("backend", func(context.Context) (Status, string, error) {
		return StatusDegraded, "missing keys", nil
	})
	c.MarkCritical("backend")
	c.RunChecks(context.Background())

	w := httptest.NewRecorder()
	c.HTTPHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status     Status                `json:"status"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusDegraded, body.Status)
	assert.Equal(t, "missing keys", body.Components["backend"].Description)
}

func TestGRPCServerFollowsChecker(t *testing.T) {
	healthy := true
	c := NewChecker(logger.Nop(), time.Minute)
	c.RegisterCheck("backend", func(context.Context) (Status, string, error) {
		if healthy {
			return StatusUp, "connected", nil
		}
		return StatusDown, "disconnected", nil
	})
	c.MarkCritical("backend")

	srv := NewGRPCServer(c, "cio-chat")
	ctx := context.Background()

	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{Service: "cio-chat"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	c.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{Service: "cio-chat"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	healthy = false
	c.RunChecks(ctx)
	resp, err = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
