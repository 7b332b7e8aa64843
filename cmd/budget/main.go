package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"budget/internal/amqp"
	"budget/internal/cache"
	"budget/internal/cli"
	"budget/internal/config"
	"budget/internal/expenses"
	apphttp "budget/internal/http"
	"budget/internal/identity"
	applog "budget/internal/log"
	"budget/internal/recordstore"

	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := cli.SetupLogger(cfg.LogLevel)
	cfg = cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	records, err := cli.OpenRecordStore(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := records.Cleanup(); err != nil {
			logger.Error("Failed to close record store", applog.FieldError, err)
		}
	}()

	repoOpts := []expenses.Option{expenses.WithLogger(logger.Slog())}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.Slog())
		if err != nil {
			// Mirroring is best effort; the API runs without it.
			logger.Warn("AMQP unavailable, expense events will not be published",
				applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeNetwork)
		} else {
			defer publisher.Close()
			repoOpts = append(repoOpts, expenses.WithNotifier(publisher))
			logger.Info("Publishing expense events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	repo, err := expenses.New(ctx, records.Store, repoOpts...)
	if err != nil {
		return err
	}
	defer repo.Close()

	registry, err := identity.NewRegistry(ctx, records.Store, identity.WithRegistryLogger(logger.Slog()))
	if err != nil {
		return err
	}
	if cfg.BootstrapAdminEmail != "" {
		created, err := registry.EnsureAdmin(ctx, cfg.BootstrapAdminName, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
		if err != nil {
			return err
		}
		if created {
			logger.Info("Bootstrap administrator created", applog.FieldUserEmail, cfg.BootstrapAdminEmail)
		}
	}

	sessions := identity.NewSessions([]byte(cfg.JWTSecret), cfg.SessionTTL)

	srv := apphttp.NewServer(net.JoinHostPort("", cfg.Port), apphttp.Deps{
		Expenses: repo,
		Users:    registry,
		Sessions: sessions,
		Ready: func(ctx context.Context) error {
			_, err := records.Store.Get(ctx, recordstore.KeyExpenses)
			if err != nil && !errors.Is(err, recordstore.ErrNotFound) {
				return err
			}
			return nil
		},
	}, apphttp.Options{
		Logger:             logger.WithComponent(applog.ComponentHTTP),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	})

	caches := cache.NewManager(logger.WithComponent(applog.ComponentCache).Slog())
	caches.Register(sessions.Revocations())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting budget server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", applog.FieldOperation, applog.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return caches.Run(gctx, cleanupInterval) })
	g.Go(func() error { return srv.RateLimiter().Run(gctx, cleanupInterval) })

	return g.Wait()
}
