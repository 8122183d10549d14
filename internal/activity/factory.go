// Package activity builds the sink that receives ledger action outcomes.
package activity

import (
	"context"
	"errors"
	"fmt"

	"tally/internal/amqp"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/storage"
)

// CleanupFunc releases resources held by a sink.
type CleanupFunc func() error

// Result is a ready sink plus the journal the activity panel reads, if any.
type Result struct {
	Sink services.ActivitySink
	// Journal is nil when no journal is readable.
	Journal *storage.ActivityJournal
	// Publisher is set for the amqp backend.
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates sinks based on configuration
type Factory struct {
	logger *log.Logger
}

// NewFactory creates a new sink factory
func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentActivity)}
}

// Create builds the sink for config.
func (f *Factory) Create(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoneBackend:
		f.logger.Info("Activity journal disabled")
		return &Result{Sink: services.NopSink{}, Cleanup: func() error { return nil }}, nil
	case SQLiteBackend:
		return f.createSQLite(config)
	case AMQPBackend:
		return f.createAMQP(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported activity backend: %s", config.Type)
	}
}

func (f *Factory) createSQLite(config Config) (*Result, error) {
	journal, err := storage.NewActivityJournal(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize activity journal: %w", err)
	}

	f.logger.Info("Initialized SQLite activity journal", "db_path", config.SQLiteDBPath)
	return &Result{Sink: journal, Journal: journal, Cleanup: journal.Close}, nil
}

// createAMQP publishes outcomes for the worker to record. The journal is
// opened read side for the activity panel; without it the panel is disabled.
func (f *Factory) createAMQP(ctx context.Context, config Config) (*Result, error) {
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
	}
	f.logger.InfoContext(ctx, "Initialized AMQP activity publisher",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res := &Result{Sink: client, Publisher: client, Cleanup: client.Close}

	journal, err := storage.NewActivityJournal(config.SQLiteDBPath)
	if err != nil {
		f.logger.WarnContext(ctx, "Activity journal not readable, panel disabled",
			log.FieldError, err,
			"db_path", config.SQLiteDBPath)
		return res, nil
	}
	res.Journal = journal
	res.Cleanup = func() error {
		return errors.Join(client.Close(), journal.Close())
	}
	return res, nil
}
