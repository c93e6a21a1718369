package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	credentialhandler "legitify/internal/credential/handler"
	credentialmetrics "legitify/internal/credential/metrics"
	credentialservice "legitify/internal/credential/service"
	"legitify/internal/documents"
	jwttoken "legitify/internal/jwt_token"
	"legitify/internal/platform/config"
	"legitify/internal/platform/logger"
	"legitify/internal/ratelimit"
	httptransport "legitify/internal/transport/http"
	"legitify/internal/verification"
	verificationhandler "legitify/internal/verification/handler"
	verificationmetrics "legitify/internal/verification/metrics"
	"legitify/pkg/platform/middleware/request"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	log.Info("initializing legitify",
		"addr", cfg.Server.Addr,
		"environment", cfg.Environment,
		"ledger_connector", cfg.Ledger.Connector,
		"verification_strategy", cfg.Verification.Strategy,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	infra, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.Close()

	manager, err := buildLedger(ctx, cfg, infra, log)
	if err != nil {
		return err
	}
	infra.Health.RegisterAdvisory("ledger", manager.CheckGateways)

	credentials := credentialservice.New(infra.Documents, manager, infra.Publisher,
		cfg.Ledger.Channel, cfg.Ledger.Contract,
		credentialservice.WithMetrics(credentialmetrics.New(infra.Registry)),
		credentialservice.WithLogger(log),
	)
	coordinator := verification.New(infra.Documents, manager, infra.Publisher,
		cfg.Ledger.Channel, cfg.Ledger.Contract,
		verification.WithStrategy(verification.Strategy(cfg.Verification.Strategy)),
		verification.WithParallelism(cfg.Verification.Parallelism),
		verification.WithTimeout(cfg.Verification.Timeout),
		verification.WithMetrics(verificationmetrics.New(infra.Registry)),
		verification.WithLogger(log),
	)

	limiter := ratelimit.New(infra.RateLimitStore, cfg.RateLimit)
	jwtService := jwttoken.NewJWTService(
		cfg.Auth.JWTSigningKey,
		cfg.Auth.JWTIssuer,
		cfg.Auth.JWTAudience,
		cfg.Auth.TokenTTL,
	)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		Syncer:         documents.NewSyncer(infra.Documents),
		Health:         infra.Health,
		Metrics:        infra.Registry.Handler(),
		RequestMetrics: request.NewMetrics(infra.Registry),
		Credentials:    credentialhandler.New(credentials, log),
		Verification:   verificationhandler.New(coordinator, log),
		VerifyLimit:    ratelimit.Middleware(limiter, ratelimit.NewMetrics(infra.Registry), log),
		Timeout:        cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		TrustedProxies: cfg.Server.TrustedProxies,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting http server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server gracefully", "open_sessions", manager.OpenSessions())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
