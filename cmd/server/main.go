package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cio-chat/backend/internal/backend"
	"cio-chat/backend/pkg/config"
	"cio-chat/backend/pkg/di"
	"cio-chat/backend/pkg/health"
	"cio-chat/backend/pkg/logger"
	"cio-chat/backend/pkg/router"
	"cio-chat/backend/shared/observability"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfg := config.Load()

	log := di.NewLogger(cfg)
	logger.SetGlobal(log)

	log.Info("Starting application",
		"version", os.Getenv("APP_VERSION"),
		"env", cfg.Server.Env,
		"driver", cfg.Backend.Driver,
	)

	if cfg.Observability.EnableTracing {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName)
		if err != nil {
			log.LogError(err, "Failed to initialize tracing")
			os.Exit(1)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}()
	}

	container, err := di.New(cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect once up front; a failure leaves the service running disconnected
	if d, ok := container.Connector.Connect(ctx).(backend.Disconnected); ok {
		log.Warn("Serving in disconnected mode", "missing_keys", d.MissingKeys(), "reason", d.Reason())
	}

	// Registered before the checker starts so the first result is reported
	grpcHealth := health.NewGRPCServer(container.Health, cfg.Observability.ServiceName)
	container.Start(ctx)

	r := router.New(container)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			stop()
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != "" {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, grpcHealth)

		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			log.LogError(err, "Failed to listen for gRPC", "port", cfg.Server.GRPCPort)
			os.Exit(1)
		}
		go func() {
			log.Info("gRPC health server starting", "port", cfg.Server.GRPCPort)
			if err := grpcServer.Serve(lis); err != nil {
				log.LogError(err, "gRPC server stopped")
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release backend connections")
	}

	log.Info("Server exited gracefully")
}
