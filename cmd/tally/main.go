package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/activity"
	"tally/internal/api"
	"tally/internal/cache"
	"tally/internal/config"
	apphttp "tally/internal/http"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/session"
)

// sessionCleanupInterval is how often expired sessions are dropped.
const sessionCleanupInterval = 5 * time.Minute

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := newLogger(cfg)
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	client, err := api.NewHTTPClient(api.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
	if err != nil {
		logger.Error("Failed to initialize API client", log.FieldError, err, "base_url", cfg.APIBaseURL)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinkConfig, err := activity.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid activity configuration", log.FieldError, err)
		os.Exit(1)
	}
	sinks, err := activity.NewFactory(logger).Create(ctx, sinkConfig)
	if err != nil {
		logger.Error("Failed to initialize activity backend", log.FieldError, err,
			"activity_backend", cfg.ActivityBackend)
		os.Exit(1)
	}
	defer func() {
		if err := sinks.Cleanup(); err != nil {
			logger.Warn("Activity backend cleanup failed", log.FieldError, err)
		}
	}()

	sessions := session.NewStore(cfg.SessionMaxEntries, cfg.SessionTTL)
	caches := cache.NewManager()
	caches.Register("sessions", sessions.Cleaner())
	caches.StartCleanup(sessionCleanupInterval)
	defer caches.Stop()

	metrics := apphttp.NewMetrics()
	ledger := services.NewLedgerService(client, services.LedgerConfig{
		NotificationDuration: cfg.NotificationDuration,
		Sink:                 services.MultiSink{metrics, sinks.Sink},
		Logger:               logger,
	})

	opts := apphttp.Options{
		Addr:                 ":" + cfg.Port,
		Ledger:               ledger,
		Sessions:             sessions,
		Backend:              client,
		Metrics:              metrics,
		Logger:               logger,
		CookieName:           cfg.SessionCookieName,
		CookieSecure:         cfg.SessionCookieSecure,
		RateLimitPerMinute:   cfg.RateLimitPerMinute,
		NotificationDuration: cfg.NotificationDuration,
		TrustedProxies:       cfg.TrustedProxies,
	}
	// Absent dependencies must stay untyped nil interfaces.
	if sinks.Journal != nil {
		opts.Journal = sinks.Journal
	}
	if sinks.Publisher != nil {
		opts.Publisher = sinks.Publisher
	}
	srv := apphttp.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting tally server",
			"port", cfg.Port,
			"api_base_url", client.BaseURL(),
			"activity_backend", cfg.ActivityBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func newLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Format = cfg.LogFormat
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	return log.New(lc)
}
