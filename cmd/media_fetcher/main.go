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
	"github.com/italolelis/media_fetcher/internal/config"
	"github.com/italolelis/media_fetcher/internal/extractor"
	"github.com/italolelis/media_fetcher/internal/extractor/youtube"
	"github.com/italolelis/media_fetcher/internal/extractor/ytdlp"
	"github.com/italolelis/media_fetcher/internal/http/rest"
	"github.com/italolelis/media_fetcher/internal/logctx"
	"github.com/italolelis/media_fetcher/internal/media"
	"github.com/italolelis/media_fetcher/internal/notifier"
	"github.com/italolelis/media_fetcher/internal/telemetry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const dirPerm = 0o755

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("media fetcher starting...", "log_level", cfg.LogLevel, "version", version)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
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
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := tel.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Prepare Download Directory
	if err := os.MkdirAll(cfg.DownloadDir, dirPerm); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	// =========================================================================
	// Start Extraction Client
	client, err := buildExtractor(cfg)
	if err != nil {
		return fmt.Errorf("failed to build extraction client: %w", err)
	}

	client = extractor.NewInstrumentedClient(client, tel, cfg.Extractor)

	// =========================================================================
	// Start Media Services
	lister := media.NewLister(client)
	orchestrator := media.NewOrchestrator(client, cfg.DownloadDir, cfg.PublicBaseURL, tel)
	library := media.NewLibrary(cfg.DownloadDir)

	// =========================================================================
	// Start Notification
	setupNotificationForOrchestrator(ctx, orchestrator, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, rest.NewMediaHandler(lister, orchestrator, library, cfg.Web.AllowedOrigins, tel), tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support",
			"host", cfg.Web.BindAddress,
			"extractor", cfg.Extractor,
			"download_dir", cfg.DownloadDir,
			"public_base_url", cfg.PublicBaseURL,
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	err = g.Wait()

	orchestrator.Close()

	return err
}

func setupNotificationForOrchestrator(ctx context.Context, orchestrator *media.Orchestrator, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{
			WebhookURL: cfg.DiscordWebhookURL,
			Client:     &http.Client{Timeout: 10 * time.Second},
		}
	}

	go func() {
		for event := range orchestrator.Events() {
			if notif == nil {
				continue
			}

			content := "✅ Download finished: " + event.Filename
			if event.Err != nil {
				content = "❌ Download failed for " + event.URL + ": " + event.Err.Error()
			}

			if notifyErr := notif.Notify(context.WithoutCancel(ctx), content); notifyErr != nil {
				logger.Error("failed to send notification", "url", event.URL, "err", notifyErr)
			}
		}
	}()
}

// This is an abstract factory for the extraction client.
func buildExtractor(cfg *config.Config) (extractor.Client, error) {
	switch cfg.Extractor {
	case ytdlp.Name:
		return ytdlp.NewClient(cfg.YtdlpBinaryPath, cfg.YtdlpExtraArgs), nil
	case youtube.Name:
		return youtube.NewClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}), nil
	}

	return nil, fmt.Errorf("invalid extractor: %s", cfg.Extractor)
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, h *rest.MediaHandler, tel *telemetry.Telemetry, cfg *config.Config) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	if tel.Enabled() {
		r.Handle("/metrics", tel.Handler())
	}

	r.Mount("/", h.Routes())

	// Requests outlive the shutdown signal until the server drains them.
	baseCtx := context.WithoutCancel(ctx)

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "media_fetcher", otelhttp.WithTracerProvider(tel.TracerProvider())),
		BaseContext: func(net.Listener) context.Context {
			return baseCtx
		},
	}
}
