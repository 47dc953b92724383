// Package credential drives the sign-in and registration form
package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/logger"
)

// Mode selects which submission the form performs
type Mode string

const (
	SignIn   Mode = "login"
	Register Mode = "register"
)

// ParseMode accepts "login" or "register"
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case SignIn, Register:
		return Mode(s), true
	}
	return "", false
}

const (
	// UnavailableMessage is shown when there is no identity backend
	UnavailableMessage = "Authentication service is unavailable."
	// GenericMessage is shown for backend errors without a specific message
	GenericMessage = "An error occurred during authentication."
	// CodeUnavailable tags ErrUnavailable
	CodeUnavailable = "auth/unavailable"
)

var messages = map[string]string{
	identity.CodeUserNotFound:      "Account not found.",
	identity.CodeWrongPassword:     "Incorrect password.",
	identity.CodeEmailAlreadyInUse: "Email already registered.",
	identity.CodeInvalidEmail:      "Invalid email format.",
	identity.CodeWeakPassword:      "Password is too weak.",
}

// MessageFor maps a backend error code to the message shown to the user
func MessageFor(code string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return GenericMessage
}

// Error is a submission failure with its user-facing message
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

var (
	// ErrUnavailable is returned when the form has no identity handle
	ErrUnavailable = &Error{Code: CodeUnavailable, Message: UnavailableMessage}
	// ErrInFlight is returned when a submission is already running
	ErrInFlight = errors.New("a submission is already in progress")
)

// Form holds the credential form state for one view
type Form struct {
	auth *identity.Auth
	log  *logger.Logger

	loading atomic.Bool

	mu   sync.Mutex
	mode Mode
	err  string
}

// NewForm creates a form in sign-in mode. auth is nil when the backend is disconnected.
func NewForm(auth *identity.Auth, log *logger.Logger) *Form {
	return &Form{
		auth: auth,
		log:  log.WithComponent("credential"),
		mode: SignIn,
	}
}

// Mode returns the selected tab
func (f *Form) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode
}

// SetMode switches tabs and clears any shown error
func (f *Form) SetMode(mode Mode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mode = mode
	f.err = ""
}

// Error returns the message currently shown, or ""
func (f *Form) Error() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Loading reports whether a submission is in flight
func (f *Form) Loading() bool {
	return f.loading.Load()
}

// Submit signs in or registers. On registration the display name falls back to the local
// part of the email address. A session change is observed through the Auth stream, not
// through the return value.
func (f *Form) Submit(ctx context.Context, mode Mode, email, password, displayName string) error {
	if f.auth == nil {
		f.setError(ErrUnavailable.Message)
		return ErrUnavailable
	}

	if !f.loading.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer f.loading.Store(false)

	f.setError("")

	var err error
	switch mode {
	case Register:
		err = f.register(ctx, email, password, displayName)
	default:
		_, err = f.auth.SignIn(ctx, email, password)
	}

	if err != nil {
		code := identity.CodeOf(err)
		f.log.Warn("Credential submission failed", "mode", string(mode), "code", code, "error", err.Error())
		credErr := &Error{Code: code, Message: MessageFor(code), Err: err}
		f.setError(credErr.Message)
		return credErr
	}
	return nil
}

func (f *Form) register(ctx context.Context, email, password, displayName string) error {
	if _, err := f.auth.Register(ctx, email, password); err != nil {
		return err
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = identity.LocalPart(email)
	}
	return f.auth.UpdateProfile(ctx, name)
}

func (f *Form) setError(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = msg
}
