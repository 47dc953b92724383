// Package identity is the contract with the hosted identity service: password sign-in,
// registration, profile updates and ID token verification, plus the client-side Auth handle
// whose state stream the rest of the application observes.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error codes returned by identity providers
const (
	CodeUserNotFound       = "auth/user-not-found"
	CodeWrongPassword      = "auth/wrong-password"
	CodeEmailAlreadyInUse  = "auth/email-already-in-use"
	CodeInvalidEmail       = "auth/invalid-email"
	CodeWeakPassword       = "auth/weak-password"
	CodeInvalidToken       = "auth/invalid-id-token"
	CodeNoCurrentUser      = "auth/no-current-user"
	CodeInternalError      = "auth/internal-error"
	CodeNetworkRequestFail = "auth/network-request-failed"
)

// MinPasswordLength is the shortest password providers accept
const MinPasswordLength = 6

// Session is the minimal identity of an authenticated principal
type Session struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Credential is returned by providers after a successful sign-in or registration
type Credential struct {
	Session Session
	Token   string
}

// Provider is the hosted identity service
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	CreateUserWithPassword(ctx context.Context, email, password string) (*Credential, error)
	UpdateProfile(ctx context.Context, uid, displayName string) (*Credential, error)
	VerifyToken(ctx context.Context, token string) (*Session, error)
}

// Error carries a provider error code
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded provider error
func NewError(code string, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the provider error code, or "" when err is not an identity error
func CodeOf(err error) string {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

// LocalPart returns the part of an email address before '@'
func LocalPart(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}

var validate = validator.New()

// validateCredentials applies the provider-side rules shared by every adapter
func validateCredentials(email, password string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return NewError(CodeInvalidEmail, err)
	}
	if len(password) < MinPasswordLength {
		return NewError(CodeWeakPassword, fmt.Errorf("password must be at least %d characters", MinPasswordLength))
	}
	return nil
}

// normalizeEmail lower-cases and trims an address before lookup
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
