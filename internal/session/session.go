// Package session tracks whether a signed-in principal exists for one view
package session

import (
	"sync"

	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/logger"
)

// State is what the view renders from: nil Session means signed out
type State struct {
	Session *identity.Session
	Loading bool
}

// Initial is the state before the auth stream has reported
var Initial = State{Loading: true}

// Manager observes an Auth handle on behalf of one view
type Manager struct {
	log *logger.Logger
}

// NewManager creates a session manager
func NewManager(log *logger.Logger) *Manager {
	return &Manager{log: log.WithComponent("session")}
}

// Observe reports every session change to onChange. With a nil handle it reports a
// resolved, signed-out state straight away and subscribes to nothing. The returned stop
// function is idempotent; once it returns, onChange is not called again.
func (m *Manager) Observe(auth *identity.Auth, onChange func(State)) func() {
	if auth == nil {
		onChange(State{})
		return func() {}
	}

	var (
		mu      sync.Mutex
		stopped bool
	)
	emit := func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			onChange(s)
		}
	}

	unsubscribe := auth.OnAuthStateChanged(
		func(s *identity.Session) {
			emit(State{Session: s})
		},
		func(err error) {
			m.log.LogError(err, "Auth state subscription failed")
			emit(State{})
		},
	)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			stopped = true
			mu.Unlock()
		})
	}
}
