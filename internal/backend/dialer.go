package backend

import (
	"context"
	"errors"
	"fmt"

	"cio-chat/backend/internal/docstore"
	"cio-chat/backend/internal/identity"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/jwt"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/shared/redis"
)

// Backend drivers
const (
	DriverHosted = "hosted"
	DriverMemory = "memory"
)

// NewDialer picks the dialer for the configured driver
func NewDialer(cfg *config.Config, log *logger.Logger) (Dialer, error) {
	switch cfg.Backend.Driver {
	case DriverHosted, "":
		return &HostedDialer{cfg: cfg, log: log}, nil
	case DriverMemory:
		return &MemoryDialer{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("unknown backend driver %q", cfg.Backend.Driver)
	}
}

func tokenService(app *config.Config, cfg Config) (*jwt.Service, error) {
	if err := ValidateAPIKey(cfg.APIKey); err != nil {
		return nil, err
	}
	return jwt.NewService(cfg.APIKey, cfg.AuthDomain, app.JWT.Expiry)
}

// HostedDialer connects the PostgreSQL-backed adapters, with change signals over Redis
// when REDIS_URL is set
type HostedDialer struct {
	cfg *config.Config
	log *logger.Logger
}

func (d *HostedDialer) Dial(ctx context.Context, cfg Config) (*Connected, error) {
	tokens, err := tokenService(d.cfg, cfg)
	if err != nil {
		return nil, err
	}

	db, err := config.NewDB(d.cfg, d.cfg.Database.Name)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, d.cfg.Database.Timeout)
	defer cancel()
	if err := config.TestConnection(pingCtx, db); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	var notifier docstore.Notifier = docstore.NewLocalNotifier()
	var rdb *redis.RedisClient
	if d.cfg.Redis.Addr != "" {
		rdb = redis.NewRedisClient(d.cfg.Redis.Addr, d.cfg.Redis.Password, d.cfg.Redis.DB)
		if err := rdb.Ping(pingCtx); err != nil {
			_ = rdb.Close()
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		notifier = rdb
	}

	provider := identity.NewGormProvider(db, tokens, d.log)
	store := docstore.NewGormStore(db, notifier, cfg.ProjectID, d.log)

	closeAll := func() error {
		provider.Close()
		var errs []error
		if rdb != nil {
			errs = append(errs, rdb.Close())
		}
		errs = append(errs, sqlDB.Close())
		return errors.Join(errs...)
	}

	if err := provider.Migrate(); err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("failed to migrate users: %w", err)
	}
	if err := store.Migrate(); err != nil {
		_ = closeAll()
		return nil, fmt.Errorf("failed to migrate messages: %w", err)
	}

	return &Connected{
		Identity: provider,
		Store:    store,
		Config:   cfg,
		close:    closeAll,
		ping: func(ctx context.Context) error {
			if err := config.TestConnection(ctx, db); err != nil {
				return err
			}
			if rdb != nil {
				return rdb.Ping(ctx)
			}
			return nil
		},
	}, nil
}

// MemoryDialer connects the in-process adapters
type MemoryDialer struct {
	cfg *config.Config
}

func (d *MemoryDialer) Dial(ctx context.Context, cfg Config) (*Connected, error) {
	tokens, err := tokenService(d.cfg, cfg)
	if err != nil {
		return nil, err
	}
	return &Connected{
		Identity: identity.NewMemoryProvider(tokens),
		Store:    docstore.NewMemoryStore(),
		Config:   cfg,
	}, nil
}
