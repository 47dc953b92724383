package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/internal/ws"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/health"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/secrets"
	"cio-chat/backend/shared/observability"

	"go.opentelemetry.io/otel/sdk/metric"
)

// DefaultEnvPrefix namespaces the backend keys in the environment
const DefaultEnvPrefix = "CHAT_"

// Container holds all the dependencies for the application
type Container struct {
	Config         *config.Config
	Logger         *logger.Logger
	Secrets        secrets.Manager
	Connector      *backend.Connector
	Hub            *ws.Hub
	Health         *health.Checker
	Metrics        observability.Recorder
	MetricsHandler http.Handler

	meterProvider *metric.MeterProvider
	vault         *secrets.VaultManager
}

// NewLogger builds the application logger from configuration
func NewLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		JSON:       cfg.Logging.Format == "json",
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// New creates a new dependency injection container. The backend is not dialed until
// Connector.Connect is first called.
func New(cfg *config.Config, log *logger.Logger) (*Container, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	c := &Container{
		Config: cfg,
		Logger: log,
	}

	prefix := cfg.Backend.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	var manager secrets.Manager = secrets.NewEnvManager(prefix)
	if cfg.Vault.Enabled {
		vm, err := secrets.NewVaultManager(secrets.VaultConfig{
			Address:     cfg.Vault.Address,
			Token:       cfg.Vault.Token,
			Namespace:   cfg.Vault.Namespace,
			SecretsPath: cfg.Vault.SecretsPath,
		}, manager, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create vault manager: %w", err)
		}
		c.vault = vm
		manager = vm
	}
	c.Secrets = manager

	dialer, err := backend.NewDialer(cfg, log)
	if err != nil {
		return nil, err
	}
	c.Connector = backend.NewConnector(manager, dialer, log)

	mp, handler, err := observability.SetupPrometheusMetrics(cfg.Observability.ServiceName)
	if err != nil {
		return nil, err
	}
	metrics, err := observability.NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	c.meterProvider = mp
	c.Metrics = metrics
	c.MetricsHandler = handler

	c.Hub = ws.NewHub(log)
	c.Health = health.NewChecker(log, 30*time.Second)
	c.registerChecks()

	return c, nil
}

func (c *Container) registerChecks() {
	c.Health.RegisterCheck("backend", func(ctx context.Context) (health.Status, string, error) {
		switch b := c.Connector.Connect(ctx).(type) {
		case *backend.Connected:
			if err := b.Ping(ctx); err != nil {
				return health.StatusDown, "Backend connection lost", err
			}
			return health.StatusUp, "Connected to " + b.Config.ProjectID, nil
		case backend.Disconnected:
			if keys := b.MissingKeys(); len(keys) > 0 {
				return health.StatusDegraded, fmt.Sprintf("Running disconnected, missing %v", keys), nil
			}
			return health.StatusDegraded, "Running disconnected: " + b.Reason(), nil
		default:
			return health.StatusDown, "Backend state unknown", nil
		}
	})
	c.Health.MarkCritical("backend")

	c.Health.RegisterCheck("websocket", func(context.Context) (health.Status, string, error) {
		return health.StatusUp, fmt.Sprintf("%d active connections", c.Hub.ClientCount()), nil
	})
}

// Start runs the background workers until ctx ends
func (c *Container) Start(ctx context.Context) {
	go c.Hub.Run(ctx)
	c.Health.Start(ctx)
}

// Close releases the backend connections and flushes metrics
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	errs = append(errs, c.Connector.Close())
	if c.meterProvider != nil {
		errs = append(errs, c.meterProvider.Shutdown(ctx))
	}
	if c.vault != nil {
		c.vault.Close()
	}
	return errors.Join(errs...)
}
