package api

import (
	"context"
	"errors"
	"net/http"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/credential"
	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/config"
	apperrors "cio-chat/backend/pkg/errors"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// LoginRequest is the sign-in body
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterRequest is the registration body. DisplayName is optional.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"displayName"`
}

// AuthResponse carries the signed-in principal and its ID token
type AuthResponse struct {
	User  *identity.Session `json:"user"`
	Token string            `json:"token"`
}

// AuthHandler handles sign-in and registration
type AuthHandler struct {
	connector *backend.Connector
	cfg       *config.Config
	metrics   observability.Recorder
	logger    *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(connector *backend.Connector, cfg *config.Config, metrics observability.Recorder, log *logger.Logger) *AuthHandler {
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &AuthHandler{
		connector: connector,
		cfg:       cfg,
		metrics:   metrics,
		logger:    log.WithComponent("api.auth"),
	}
}

// Login handles email and password sign-in
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for login", "error", err.Error())
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request format"))
		return
	}

	h.submit(c, credential.SignIn, req.Email, req.Password, "", http.StatusOK)
}

// Register handles account creation
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for register", "error", err.Error())
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request format"))
		return
	}

	h.submit(c, credential.Register, req.Email, req.Password, req.DisplayName, http.StatusCreated)
}

// submit runs the credential form against a request-scoped identity handle
func (h *AuthHandler) submit(c *gin.Context, mode credential.Mode, email, password, displayName string, status int) {
	conn, ok := connected(c, h.connector)
	if !ok {
		h.metrics.AuthSubmitted(string(mode), credential.ErrUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Features.AuthTimeout)
	defer cancel()

	auth := identity.NewAuth(conn.Identity, logger.FromContext(c))
	form := credential.NewForm(auth, logger.FromContext(c))

	err := form.Submit(ctx, mode, email, password, displayName)
	h.metrics.AuthSubmitted(string(mode), err)
	if err != nil {
		_ = c.Error(authError(err))
		return
	}

	user := auth.CurrentUser()
	h.logger.Info("User authenticated", "mode", string(mode), "uid", user.UID)
	c.Set(userIDKey, user.UID)

	c.JSON(status, AuthResponse{User: user, Token: auth.Token()})
}

// Me returns the principal behind the bearer token
func (h *AuthHandler) Me(c *gin.Context) {
	session := SessionFrom(c)
	if session == nil {
		_ = c.Error(apperrors.NewUnauthorizedError("MISSING_TOKEN", "Authentication required"))
		return
	}
	c.JSON(http.StatusOK, session)
}

func authError(err error) *apperrors.AppError {
	var credErr *credential.Error
	if !errors.As(err, &credErr) {
		return apperrors.NewInternalServerError("AUTH_FAILED", credential.GenericMessage)
	}

	switch credErr.Code {
	case identity.CodeUserNotFound, identity.CodeWrongPassword:
		return apperrors.NewUnauthorizedError("INVALID_CREDENTIALS", credErr.Message)
	case identity.CodeEmailAlreadyInUse:
		return apperrors.NewConflictError("EMAIL_TAKEN", credErr.Message)
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		return apperrors.NewBadRequestError("INVALID_CREDENTIALS", credErr.Message)
	case credential.CodeUnavailable:
		return apperrors.NewServiceUnavailableError("BACKEND_UNAVAILABLE", credErr.Message)
	default:
		return apperrors.NewInternalServerError("AUTH_FAILED", credErr.Message)
	}
}
