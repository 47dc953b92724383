package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cio-chat/backend/pkg/jwt"
	"cio-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *MemoryProvider {
	t.Helper()
	tokens, err := jwt.NewService("test-api-key-0123456789", "cio-chat.test", time.Hour)
	require.NoError(t, err)
	return NewMemoryProvider(tokens)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*Credential)
	return cred, args.Error(1)
}

func (m *mockProvider) CreateUserWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	args := m.Called(ctx, email, password)
	cred, _ := args.Get(0).(*Credential)
	return cred, args.Error(1)
}

func (m *mockProvider) UpdateProfile(ctx context.Context, uid, displayName string) (*Credential, error) {
	args := m.Called(ctx, uid, displayName)
	cred, _ := args.Get(0).(*Credential)
	return cred, args.Error(1)
}

func (m *mockProvider) VerifyToken(ctx context.Context, token string) (*Session, error) {
	args := m.Called(ctx, token)
	s, _ := args.Get(0).(*Session)
	return s, args.Error(1)
}

func receive(t *testing.T, ch <-chan *Session) *Session {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for auth state")
		return nil
	}
}

func TestMemoryProviderErrorCodes(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	_, err := p.CreateUserWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		call     func() error
		wantCode string
	}{
		{
			name: "unknown account",
			call: func() error {
				_, err := p.SignInWithPassword(ctx, "nobody@example.com", "secret1")
				return err
			},
			wantCode: CodeUserNotFound,
		},
		{
			name: "wrong password",
			call: func() error {
				_, err := p.SignInWithPassword(ctx, "ada@example.com", "nope-nope")
				return err
			},
			wantCode: CodeWrongPassword,
		},
		{
			name: "duplicate email",
			call: func() error {
				_, err := p.CreateUserWithPassword(ctx, "ADA@example.com", "secret1")
				return err
			},
			wantCode: CodeEmailAlreadyInUse,
		},
		{
			name: "malformed email",
			call: func() error {
				_, err := p.CreateUserWithPassword(ctx, "not-an-email", "secret1")
				return err
			},
			wantCode: CodeInvalidEmail,
		},
		{
			name: "short password",
			call: func() error {
				_, err := p.CreateUserWithPassword(ctx, "bob@example.com", "123")
				return err
			},
			wantCode: CodeWeakPassword,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, CodeOf(tt.call()))
		})
	}
}

func TestMemoryProviderTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	cred, err := p.CreateUserWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	cred, err = p.UpdateProfile(ctx, cred.Session.UID, "Ada")
	require.NoError(t, err)

	s, err := p.VerifyToken(ctx, cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ada", s.DisplayName)
	assert.Equal(t, "ada@example.com", s.Email)

	_, err = p.VerifyToken(ctx, "garbage")
	assert.Equal(t, CodeInvalidToken, CodeOf(err))
}

func TestAuthStateStream(t *testing.T) {
	ctx := context.Background()
	auth := NewAuth(newTestProvider(t), logger.Nop())

	states := make(chan *Session, 10)
	unsubscribe := auth.OnAuthStateChanged(func(s *Session) { states <- s }, nil)
	defer unsubscribe()

	auth.Restore(ctx, "")
	assert.Nil(t, receive(t, states))

	_, err := auth.Register(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	s := receive(t, states)
	require.NotNil(t, s)
	assert.Empty(t, s.DisplayName)

	require.NoError(t, auth.UpdateProfile(ctx, "Ada"))
	s = receive(t, states)
	require.NotNil(t, s)
	assert.Equal(t, "Ada", s.DisplayName)
	assert.NotEmpty(t, auth.Token())

	auth.SignOut()
	assert.Nil(t, receive(t, states))
	assert.Nil(t, auth.CurrentUser())
	assert.Empty(t, auth.Token())
}

func TestAuthLateSubscriberReceivesCurrentState(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	cred, err := p.CreateUserWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	auth := NewAuth(p, logger.Nop())
	auth.Restore(ctx, cred.Token)

	states := make(chan *Session, 1)
	unsubscribe := auth.OnAuthStateChanged(func(s *Session) { states <- s }, nil)
	defer unsubscribe()

	s := receive(t, states)
	require.NotNil(t, s)
	assert.Equal(t, cred.Session.UID, s.UID)
}

func TestAuthLateSubscriberKeepsNewestState(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	cred, err := p.CreateUserWithPassword(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		auth := NewAuth(p, logger.Nop())
		auth.Restore(ctx, "")

		var mu sync.Mutex
		var last *Session
		calls := 0
		unsubscribe := auth.OnAuthStateChanged(func(s *Session) {
			mu.Lock()
			defer mu.Unlock()
			last = s
			calls++
		}, nil)

		_, err := auth.SignIn(ctx, "ada@example.com", "secret1")
		require.NoError(t, err)

		signedIn := func() bool {
			mu.Lock()
			defer mu.Unlock()
			return calls > 0 && last != nil && last.UID == cred.Session.UID
		}
		require.True(t, signedIn())
		require.Never(t, func() bool { return !signedIn() }, 20*time.Millisecond, 2*time.Millisecond)
		unsubscribe()
	}
}

func TestAuthRestoreWithStaleTokenSignsOut(t *testing.T) {
	auth := NewAuth(newTestProvider(t), logger.Nop())

	states := make(chan *Session, 1)
	unsubscribe := auth.OnAuthStateChanged(func(s *Session) { states <- s }, nil)
	defer unsubscribe()

	auth.Restore(context.Background(), "stale-token")
	assert.Nil(t, receive(t, states))
}

func TestAuthRestoreProviderFailureReachesErrorCallback(t *testing.T) {
	p := new(mockProvider)
	p.On("VerifyToken", mock.Anything, "tok").Return(nil, NewError(CodeNetworkRequestFail, errors.New("unreachable")))

	auth := NewAuth(p, logger.Nop())

	errs := make(chan error, 1)
	unsubscribe := auth.OnAuthStateChanged(func(*Session) { t.Error("unexpected state") }, func(err error) { errs <- err })
	defer unsubscribe()

	auth.Restore(context.Background(), "tok")

	select {
	case err := <-errs:
		assert.Equal(t, CodeNetworkRequestFail, CodeOf(err))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error")
	}
	p.AssertExpectations(t)
}

func TestAuthUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	auth := NewAuth(newTestProvider(t), logger.Nop())

	states := make(chan *Session, 10)
	unsubscribe := auth.OnAuthStateChanged(func(s *Session) { states <- s }, nil)
	unsubscribe()
	unsubscribe()

	auth.Restore(ctx, "")
	_, err := auth.Register(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	assert.Never(t, func() bool { return len(states) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestUpdateProfileRequiresSignedInUser(t *testing.T) {
	auth := NewAuth(newTestProvider(t), logger.Nop())
	err := auth.UpdateProfile(context.Background(), "Ada")
	assert.Equal(t, CodeNoCurrentUser, CodeOf(err))
}

func TestLocalPart(t *testing.T) {
	assert.Equal(t, "ada", LocalPart("ada@example.com"))
	assert.Equal(t, "plain", LocalPart("plain"))
	assert.Equal(t, "", LocalPart(""))
}
