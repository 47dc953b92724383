package identity

import (
	"context"
	"sync"

	"cio-chat/backend/pkg/jwt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type memoryUser struct {
	uid         string
	email       string
	hash        []byte
	displayName string
}

// MemoryProvider keeps accounts in process. It serves BACKEND_DRIVER=memory and tests.
type MemoryProvider struct {
	tokens *jwt.Service

	mu      sync.RWMutex
	byEmail map[string]*memoryUser
	byUID   map[string]*memoryUser
}

// NewMemoryProvider creates an empty in-process identity provider
func NewMemoryProvider(tokens *jwt.Service) *MemoryProvider {
	return &MemoryProvider{
		tokens:  tokens,
		byEmail: make(map[string]*memoryUser),
		byUID:   make(map[string]*memoryUser),
	}
}

func (p *MemoryProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, NewError(CodeInvalidEmail, err)
	}

	p.mu.RLock()
	u, ok := p.byEmail[normalizeEmail(email)]
	p.mu.RUnlock()
	if !ok {
		return nil, NewError(CodeUserNotFound, nil)
	}

	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, NewError(CodeWrongPassword, nil)
	}

	return p.credential(u)
}

func (p *MemoryProvider) CreateUserWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return nil, NewError(CodeInternalError, err)
	}

	key := normalizeEmail(email)
	u := &memoryUser{uid: uuid.NewString(), email: key, hash: hash}

	p.mu.Lock()
	if _, exists := p.byEmail[key]; exists {
		p.mu.Unlock()
		return nil, NewError(CodeEmailAlreadyInUse, nil)
	}
	p.byEmail[key] = u
	p.byUID[u.uid] = u
	p.mu.Unlock()

	return p.credential(u)
}

func (p *MemoryProvider) UpdateProfile(ctx context.Context, uid, displayName string) (*Credential, error) {
	p.mu.Lock()
	u, ok := p.byUID[uid]
	if ok {
		u.displayName = displayName
	}
	p.mu.Unlock()

	if !ok {
		return nil, NewError(CodeUserNotFound, nil)
	}
	return p.credential(u)
}

func (p *MemoryProvider) VerifyToken(ctx context.Context, token string) (*Session, error) {
	claims, err := p.tokens.ValidateToken(token)
	if err != nil {
		return nil, NewError(CodeInvalidToken, err)
	}

	p.mu.RLock()
	u, ok := p.byUID[claims.UID]
	p.mu.RUnlock()
	if !ok {
		return nil, NewError(CodeUserNotFound, nil)
	}

	return &Session{UID: u.uid, Email: u.email, DisplayName: u.displayName}, nil
}

func (p *MemoryProvider) credential(u *memoryUser) (*Credential, error) {
	p.mu.RLock()
	session := Session{UID: u.uid, Email: u.email, DisplayName: u.displayName}
	p.mu.RUnlock()

	token, err := p.tokens.GenerateToken(session.UID, session.Email, session.DisplayName)
	if err != nil {
		return nil, NewError(CodeInternalError, err)
	}
	return &Credential{Session: session, Token: token}, nil
}
