package api

import (
	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/credential"
	"cio-chat/backend/internal/identity"
	apperrors "cio-chat/backend/pkg/errors"
	"cio-chat/backend/pkg/jwt"
	"cio-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireSession verifies the bearer token against the identity service
func RequireSession(connector *backend.Connector) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, ok := connected(c, connector)
		if !ok {
			c.Abort()
			return
		}

		token := jwt.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			_ = c.Error(apperrors.NewUnauthorizedError("MISSING_TOKEN", "Authentication required"))
			c.Abort()
			return
		}

		session, err := conn.Identity.VerifyToken(c.Request.Context(), token)
		if err != nil {
			if code := identity.CodeOf(err); code != identity.CodeInvalidToken && code != identity.CodeUserNotFound {
				logger.FromContext(c).LogError(err, "Token verification failed")
				_ = c.Error(apperrors.NewInternalServerError("AUTH_FAILED", credential.GenericMessage))
			} else {
				_ = c.Error(apperrors.NewUnauthorizedError("INVALID_TOKEN", "Session expired. Please sign in again."))
			}
			c.Abort()
			return
		}

		c.Set(sessionKey, session)
		c.Set(userIDKey, session.UID)
		c.Next()
	}
}
