package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/storage"
	"tally/internal/worker"
)

// summaryInterval is how often the worker logs journal totals.
const summaryInterval = 15 * time.Minute

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	lc := log.DefaultConfig()
	lc.Component = log.ComponentWorker
	lc.Format = cfg.LogFormat
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	logger := log.New(lc)
	log.SetDefault(logger)

	logger.Info("Starting tally-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	journal, err := storage.NewActivityJournal(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize activity journal", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer journal.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	amqpClient, err := amqp.ConnectWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	activityWorker := worker.NewActivityWorker(journal)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming activity messages", "queue", cfg.AMQPQueue)
		return amqpClient.ConsumeActivity(gctx, activityWorker.HandleActivityMessage)
	})
	g.Go(func() error {
		ticker := time.NewTicker(summaryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := activityWorker.LogSummary(gctx); err != nil {
					logger.Warn("Activity summary failed", log.FieldError, err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	stats := activityWorker.Stats()
	logger.Info("Worker stopped gracefully",
		"recorded", stats.Recorded,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed)
}
