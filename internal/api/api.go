// Package api exposes the chat room over plain HTTP for clients that do not hold a
// WebSocket open.
package api

import (
	"context"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/credential"
	"cio-chat/backend/internal/identity"
	apperrors "cio-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	sessionKey = "session"
	userIDKey  = "userId"
)

// connected resolves the backend, recording a 503 on c when it is disconnected
func connected(c *gin.Context, connector *backend.Connector) (*backend.Connected, bool) {
	conn, ok := connector.Connect(context.Background()).(*backend.Connected)
	if !ok {
		_ = c.Error(apperrors.NewServiceUnavailableError("BACKEND_UNAVAILABLE", credential.UnavailableMessage))
		return nil, false
	}
	return conn, true
}

// SessionFrom returns the principal stored by RequireSession
func SessionFrom(c *gin.Context) *identity.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*identity.Session); ok {
			return s
		}
	}
	return nil
}
