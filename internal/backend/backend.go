package backend

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/secrets"
)

// Backend is either Disconnected or *Connected
type Backend interface {
	backend()
}

// Disconnected is the degraded state: the chat room renders but cannot reach the backend
type Disconnected struct {
	missing []string
	reason  string
}

func (Disconnected) backend() {}

// MissingKeys lists the required configuration keys that were absent
func (d Disconnected) MissingKeys() []string {
	out := make([]string, len(d.missing))
	copy(out, d.missing)
	return out
}

// Reason describes an initialization fault, empty when keys were simply missing
func (d Disconnected) Reason() string {
	return d.reason
}

// Connected carries live handles to both backend services
type Connected struct {
	Identity identity.Provider
	Store    docstore.Store
	Config   Config

	close func() error
	ping  func(ctx context.Context) error
}

func (*Connected) backend() {}

// Ping checks the adapters' connections are still usable
func (c *Connected) Ping(ctx context.Context) error {
	if c.ping == nil {
		return nil
	}
	return c.ping(ctx)
}

// Close releases the adapters' connections
func (c *Connected) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// Dialer builds the adapters for a complete configuration
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (*Connected, error)
}

// Connector connects to the backend at most once
type Connector struct {
	secrets secrets.Manager
	dialer  Dialer
	log     *logger.Logger

	once    sync.Once
	backend Backend
	dialed  atomic.Bool
}

// NewConnector creates a Connector reading its configuration through m
func NewConnector(m secrets.Manager, dialer Dialer, log *logger.Logger) *Connector {
	return &Connector{
		secrets: m,
		dialer:  dialer,
		log:     log.WithComponent("backend"),
	}
}

// Connect reads the configuration and dials the backend on first call. Every call
// returns the same result.
func (c *Connector) Connect(ctx context.Context) Backend {
	c.once.Do(func() {
		c.backend = c.connect(ctx)
		c.dialed.Store(true)
	})
	return c.backend
}

// Close releases the backend connections if Connect succeeded. It never dials.
func (c *Connector) Close() error {
	if !c.dialed.Load() {
		return nil
	}
	if conn, ok := c.backend.(*Connected); ok {
		return conn.Close()
	}
	return nil
}

func (c *Connector) connect(ctx context.Context) (b Backend) {
	cfg := LoadConfig(ctx, c.secrets)

	if missing := cfg.MissingKeys(); len(missing) > 0 {
		c.log.Error("Backend configuration incomplete, running disconnected", "missing_keys", missing)
		return Disconnected{missing: missing}
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Backend initialization panicked",
				"error", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			b = Disconnected{reason: fmt.Sprintf("%v", r)}
		}
	}()

	conn, err := c.dialer.Dial(ctx, cfg)
	if err != nil {
		c.log.LogError(err, "Backend initialization failed, running disconnected", "project_id", cfg.ProjectID)
		return Disconnected{reason: err.Error()}
	}

	c.log.Info("Backend connected",
		"project_id", cfg.ProjectID,
		"auth_domain", cfg.AuthDomain,
		"app_id", cfg.AppID,
	)
	return conn
}
