package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/italolelis/musicarr/internal/config"
	"github.com/italolelis/musicarr/internal/downloader"
	"github.com/italolelis/musicarr/internal/http/rest"
	"github.com/italolelis/musicarr/internal/logctx"
	"github.com/italolelis/musicarr/internal/notifier"
	"github.com/italolelis/musicarr/internal/session"
	"github.com/italolelis/musicarr/internal/telemetry"
	slogmulti "github.com/samber/slog-multi"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("musicarr starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	if h := tel.LogHandler(); h != nil {
		logger = slog.New(slogmulti.Fanout(logger.Handler(), h))
		slog.SetDefault(logger)
		ctx = logctx.WithLogger(ctx, logger)
	}

	// =========================================================================
	// Start Downloader
	dl := downloader.New(
		cfg.Qobuz.Enabled(),
		downloader.NewQobuzFactory(cfg.Qobuz, tel),
		downloaderOptions(cfg, tel)...,
	)

	// =========================================================================
	// Start Session
	sess := session.New(cfg, dl)
	if err := sess.Initialize(ctx); err != nil {
		if cfg.RequireCredentials && errors.Is(err, session.ErrNoDownloadSource) {
			return err
		}

		logger.Warn("serving without a working download source, health reports unhealthy", "err", err)
	}

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, dl, sess, tel, cfg)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

func downloaderOptions(cfg *config.Config, tel *telemetry.Telemetry) []downloader.Option {
	opts := []downloader.Option{downloader.WithTelemetry(tel)}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, downloader.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	return opts
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	dl *downloader.Downloader,
	sess *session.Session,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	qHandler := rest.NewQobuzHandler(dl, sess)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Handle("/metrics", tel.Handler())
	r.Mount("/", qHandler.Routes())

	// Downloads outlive a shutdown signal until ShutdownTimeout, so requests
	// get a context that keeps the logger but is not canceled with ctx.
	baseCtx := context.WithoutCancel(ctx)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
}
