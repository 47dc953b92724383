// Package composer writes new chat messages on behalf of the signed-in principal
package composer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/logger"
)

// AlertMessage is shown when a message could not be sent
const AlertMessage = "Failed to send message. Please try again."

// SendError wraps a failed create
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Alert is the user-visible text for the failure
func (e *SendError) Alert() string {
	return AlertMessage
}

// Username picks the author label stored with a message
func Username(s *identity.Session) string {
	if s == nil {
		return "Anonymous"
	}
	if s.DisplayName != "" {
		return s.DisplayName
	}
	if local := identity.LocalPart(s.Email); local != "" {
		return local
	}
	return "Anonymous"
}

// Composer holds the draft and sends it, one message at a time
type Composer struct {
	log     *logger.Logger
	sending atomic.Bool

	mu    sync.Mutex
	draft string
}

// New creates an empty composer
func New(log *logger.Logger) *Composer {
	return &Composer{log: log.WithComponent("composer")}
}

// SetDraft replaces the input text
func (c *Composer) SetDraft(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.draft = text
}

// Draft returns the input text
func (c *Composer) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Sending reports whether a create is in flight
func (c *Composer) Sending() bool {
	return c.sending.Load()
}

// Send creates a message from text. It does nothing when text is blank, there is no
// session or store, or another send is in flight. The text is stored as typed; only the
// emptiness check trims it. On success the draft is cleared.
func (c *Composer) Send(ctx context.Context, store docstore.Store, session *identity.Session, text string) error {
	if strings.TrimSpace(text) == "" || session == nil || store == nil {
		return nil
	}
	if !c.sending.CompareAndSwap(false, true) {
		return nil
	}
	defer c.sending.Store(false)

	_, err := store.Create(ctx, docstore.CollectionMessages, docstore.MessageFields{
		Text:      text,
		Username:  Username(session),
		UID:       session.UID,
		Timestamp: docstore.ServerTimestamp,
	})
	if err != nil {
		c.log.LogError(err, "Failed to send message", "uid", session.UID)
		return &SendError{Err: err}
	}

	c.SetDraft("")
	return nil
}
