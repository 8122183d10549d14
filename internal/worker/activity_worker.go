package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/storage"
)

// Journal is where consumed activity ends up.
type Journal interface {
	RecordMessage(ctx context.Context, messageID string, a core.Activity) (bool, error)
	OutcomeCounts(ctx context.Context) ([]storage.OutcomeCount, error)
}

// Stats counts what the worker did since start.
type Stats struct {
	Recorded   int64
	Duplicates int64
	Failed     int64
}

// ActivityWorker records activity messages from AMQP into the journal.
type ActivityWorker struct {
	journal Journal

	recorded   atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
}

func NewActivityWorker(journal Journal) *ActivityWorker {
	return &ActivityWorker{journal: journal}
}

// HandleActivityMessage processes a single activity message from AMQP.
// Redelivered messages already in the journal are acknowledged without a
// second row.
func (w *ActivityWorker) HandleActivityMessage(ctx context.Context, msg *amqp.ActivityMessage) error {
	if !core.Outcome(msg.Outcome).Valid() {
		slog.WarnContext(ctx, "Recording activity with unknown outcome",
			"message_id", msg.MessageID,
			"outcome", msg.Outcome)
	}

	inserted, err := w.journal.RecordMessage(ctx, msg.MessageID, msg.Activity())
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("record activity %s: %w", msg.MessageID, err)
	}
	if !inserted {
		w.duplicates.Add(1)
		slog.DebugContext(ctx, "Skipping duplicate activity message", "message_id", msg.MessageID)
		return nil
	}

	w.recorded.Add(1)
	slog.DebugContext(ctx, "Activity recorded",
		"message_id", msg.MessageID,
		"action", msg.Action,
		"outcome", msg.Outcome)
	return nil
}

// Stats returns the counters.
func (w *ActivityWorker) Stats() Stats {
	return Stats{
		Recorded:   w.recorded.Load(),
		Duplicates: w.duplicates.Load(),
		Failed:     w.failed.Load(),
	}
}

// LogSummary logs the journal totals by action and outcome.
func (w *ActivityWorker) LogSummary(ctx context.Context) error {
	counts, err := w.journal.OutcomeCounts(ctx)
	if err != nil {
		return fmt.Errorf("load outcome counts: %w", err)
	}

	stats := w.Stats()
	args := []any{
		"recorded", stats.Recorded,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed,
	}
	for _, c := range counts {
		args = append(args, string(c.Action)+"_"+string(c.Outcome), c.Total)
	}
	slog.InfoContext(ctx, "Activity journal summary", args...)
	return nil
}
