package identity

import (
	"context"
	"sync"
	"sync/atomic"

	"cio-chat/backend/pkg/logger"
)

type listener struct {
	onNext    func(*Session)
	onError   func(error)
	cancelled atomic.Bool
	// delivered is set once any state or error has reached the listener
	delivered atomic.Bool
}

// Auth is one client's handle on the identity service. It holds the signed-in principal
// and notifies subscribers whenever that principal changes.
type Auth struct {
	provider Provider
	log      *logger.Logger

	mu        sync.Mutex
	current   *Session
	token     string
	resolved  bool
	listeners map[int]*listener
	nextID    int

	// deliverMu keeps notifications in the order state changed
	deliverMu sync.Mutex
}

// NewAuth creates a handle whose initial state is unresolved until Restore is called
func NewAuth(provider Provider, log *logger.Logger) *Auth {
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Auth{
		provider:  provider,
		log:       log.WithComponent("identity.auth"),
		listeners: make(map[int]*listener),
	}
}

// Restore resolves the initial state from a previously issued token. An empty token
// resolves to signed out. An invalid or expired token also resolves to signed out; any
// other provider failure is delivered to subscribers' error callbacks.
func (a *Auth) Restore(ctx context.Context, token string) {
	var session *Session
	var restoreErr error

	if token != "" {
		s, err := a.provider.VerifyToken(ctx, token)
		switch {
		case err == nil:
			session = s
		case CodeOf(err) == CodeInvalidToken || CodeOf(err) == CodeUserNotFound:
			a.log.Debug("Discarding stale token", "error", err.Error())
			token = ""
		default:
			restoreErr = err
			token = ""
		}
	}

	a.mu.Lock()
	if a.resolved {
		a.mu.Unlock()
		return
	}
	a.resolved = true
	a.current = session
	a.token = token
	a.mu.Unlock()

	if restoreErr != nil {
		a.log.LogError(restoreErr, "Failed to restore session")
		a.notifyError(restoreErr)
		return
	}
	a.notify()
}

// OnAuthStateChanged registers callbacks for principal changes. Once the initial state has
// resolved, onNext receives the current principal (nil when signed out) and again after
// every change. The returned function unsubscribes and is safe to call more than once.
func (a *Auth) OnAuthStateChanged(onNext func(*Session), onError func(error)) func() {
	l := &listener{onNext: onNext, onError: onError}

	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	resolved := a.resolved
	a.mu.Unlock()

	if resolved {
		go func() {
			a.deliverMu.Lock()
			defer a.deliverMu.Unlock()
			// A change notified in the meantime already carried a newer state
			if l.cancelled.Load() || l.delivered.Load() {
				return
			}
			l.delivered.Store(true)
			if l.onNext != nil {
				l.onNext(a.CurrentUser())
			}
		}()
	}

	return func() {
		l.cancelled.Store(true)
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

// SignIn authenticates with email and password
func (a *Auth) SignIn(ctx context.Context, email, password string) (*Session, error) {
	cred, err := a.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.setCredential(cred)
	return cred.Session.clone(), nil
}

// Register creates an account and signs it in
func (a *Auth) Register(ctx context.Context, email, password string) (*Session, error) {
	cred, err := a.provider.CreateUserWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.setCredential(cred)
	return cred.Session.clone(), nil
}

// UpdateProfile sets the display name of the signed-in principal
func (a *Auth) UpdateProfile(ctx context.Context, displayName string) error {
	current := a.CurrentUser()
	if current == nil {
		return NewError(CodeNoCurrentUser, nil)
	}

	cred, err := a.provider.UpdateProfile(ctx, current.UID, displayName)
	if err != nil {
		return err
	}
	a.setCredential(cred)
	return nil
}

// SignOut clears the signed-in principal
func (a *Auth) SignOut() {
	a.mu.Lock()
	wasSignedIn := a.current != nil
	a.current = nil
	a.token = ""
	a.resolved = true
	a.mu.Unlock()

	if wasSignedIn {
		a.notify()
	}
}

// CurrentUser returns a copy of the signed-in principal, or nil
func (a *Auth) CurrentUser() *Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current.clone()
}

// Token returns the ID token of the signed-in principal
func (a *Auth) Token() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *Auth) setCredential(cred *Credential) {
	a.mu.Lock()
	s := cred.Session
	a.current = &s
	a.token = cred.Token
	a.resolved = true
	a.mu.Unlock()

	a.notify()
}

func (a *Auth) snapshot() (*Session, []*listener) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ls := make([]*listener, 0, len(a.listeners))
	for _, l := range a.listeners {
		ls = append(ls, l)
	}
	return a.current.clone(), ls
}

func (a *Auth) notify() {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	current, ls := a.snapshot()
	for _, l := range ls {
		if l.cancelled.Load() {
			continue
		}
		l.delivered.Store(true)
		if l.onNext != nil {
			l.onNext(current.clone())
		}
	}
}

func (a *Auth) notifyError(err error) {
	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()

	_, ls := a.snapshot()
	for _, l := range ls {
		if l.cancelled.Load() {
			continue
		}
		l.delivered.Store(true)
		if l.onError != nil {
			l.onError(err)
		} else if l.onNext != nil {
			l.onNext(nil)
		}
	}
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
