package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/composer"
	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/pkg/config"
	apperrors "cio-chat/backend/pkg/errors"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/shared/observability"

	"github.com/gin-gonic/gin"
)

// maxListLimit bounds ?limit on the message list
const maxListLimit = 500

// SendMessageRequest is the body of a new message
type SendMessageRequest struct {
	Text string `json:"text"`
}

// MessageListResponse is one snapshot of the room, oldest first
type MessageListResponse struct {
	Messages []docstore.Message `json:"messages"`
}

// MessageHandler reads and posts to the shared room
type MessageHandler struct {
	connector *backend.Connector
	cfg       *config.Config
	metrics   observability.Recorder
	logger    *logger.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(connector *backend.Connector, cfg *config.Config, metrics observability.Recorder, log *logger.Logger) *MessageHandler {
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &MessageHandler{
		connector: connector,
		cfg:       cfg,
		metrics:   metrics,
		logger:    log.WithComponent("api.messages"),
	}
}

// List returns the most recent messages
func (h *MessageHandler) List(c *gin.Context) {
	conn, ok := connected(c, h.connector)
	if !ok {
		return
	}

	limit := h.cfg.Features.MessageWindow
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			_ = c.Error(apperrors.NewBadRequestError("INVALID_LIMIT", "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Features.ReadTimeout)
	defer cancel()

	snap, err := firstSnapshot(ctx, conn.Store, docstore.RecentMessages(limit))
	if err != nil {
		h.logger.LogError(err, "Failed to read messages", "limit", limit)
		_ = c.Error(apperrors.NewServiceUnavailableError("READ_FAILED", "Messages could not be loaded."))
		return
	}

	messages := snap.Messages
	if messages == nil {
		messages = []docstore.Message{}
	}
	c.JSON(http.StatusOK, MessageListResponse{Messages: messages})
}

// Create posts a message as the authenticated principal
func (h *MessageHandler) Create(c *gin.Context) {
	conn, ok := connected(c, h.connector)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request format"))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		_ = c.Error(apperrors.NewBadRequestError("EMPTY_MESSAGE", "Message text is required"))
		return
	}

	session := SessionFrom(c)
	if session == nil {
		_ = c.Error(apperrors.NewUnauthorizedError("MISSING_TOKEN", "Authentication required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.Features.SendTimeout)
	defer cancel()

	err := composer.New(logger.FromContext(c)).Send(ctx, conn.Store, session, req.Text)
	h.metrics.MessageSent(err)
	if err != nil {
		var sendErr *composer.SendError
		if errors.As(err, &sendErr) {
			_ = c.Error(apperrors.NewInternalServerError("SEND_FAILED", sendErr.Alert()))
			return
		}
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"text":     req.Text,
		"username": composer.Username(session),
		"uid":      session.UID,
	})
}

// firstSnapshot subscribes to q and returns its first result
func firstSnapshot(ctx context.Context, store docstore.Store, q docstore.Query) (docstore.Snapshot, error) {
	type result struct {
		snap docstore.Snapshot
		err  error
	}
	done := make(chan result, 1)

	stop := store.Subscribe(q,
		func(snap docstore.Snapshot) {
			select {
			case done <- result{snap: snap}:
			default:
			}
		},
		func(err error) {
			select {
			case done <- result{err: err}:
			default:
			}
		},
	)
	defer stop()

	select {
	case r := <-done:
		return r.snap, r.err
	case <-ctx.Done():
		return docstore.Snapshot{}, ctx.Err()
	}
}

// StatusResponse describes the backend connection
type StatusResponse struct {
	Connected   bool      `json:"connected"`
	MissingKeys []string  `json:"missingKeys,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	ProjectID   string    `json:"projectId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// StatusHandler reports whether the backend is connected
type StatusHandler struct {
	connector *backend.Connector
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(connector *backend.Connector) *StatusHandler {
	return &StatusHandler{connector: connector}
}

// Status always answers 200; a disconnected backend is a degraded mode, not a failure
func (h *StatusHandler) Status(c *gin.Context) {
	resp := StatusResponse{Timestamp: time.Now()}

	switch b := h.connector.Connect(context.Background()).(type) {
	case *backend.Connected:
		resp.Connected = true
		resp.ProjectID = b.Config.ProjectID
	case backend.Disconnected:
		resp.MissingKeys = b.MissingKeys()
		resp.Reason = b.Reason()
	}

	c.JSON(http.StatusOK, resp)
}
