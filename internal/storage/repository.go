package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tally/internal/core"

	_ "modernc.org/sqlite"
)

// timeLayout keeps lexical and chronological order equal in the TEXT column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ActivityJournal persists activity records in SQLite.
type ActivityJournal struct {
	db      *sql.DB
	queries *Queries
}

// OutcomeCount is the number of activities with a given action and outcome.
type OutcomeCount struct {
	Action  core.Action
	Outcome core.Outcome
	Total   int64
}

func NewActivityJournal(dbPath string) (*ActivityJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; the server and the worker may share the file.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &ActivityJournal{
		db:      db,
		queries: New(db),
	}, nil
}

func (j *ActivityJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (j *ActivityJournal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Record stores an activity.
func (j *ActivityJournal) Record(ctx context.Context, a core.Activity) error {
	_, err := j.insert(ctx, "", a)
	return err
}

// RecordMessage stores an activity delivered with a message id. A message
// already recorded is skipped and reported as not inserted.
func (j *ActivityJournal) RecordMessage(ctx context.Context, messageID string, a core.Activity) (bool, error) {
	return j.insert(ctx, messageID, a)
}

func (j *ActivityJournal) insert(ctx context.Context, messageID string, a core.Activity) (bool, error) {
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	n, err := j.queries.InsertActivity(ctx, InsertActivityParams{
		MessageID:     sql.NullString{String: messageID, Valid: messageID != ""},
		Action:        string(a.Action),
		Outcome:       string(a.Outcome),
		TransactionID: a.TransactionID.String(),
		Session:       a.Session,
		StatusCode:    int64(a.StatusCode),
		OccurredAt:    at.UTC().Format(timeLayout),
	})
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	return n > 0, nil
}

// ListRecent returns up to limit activities, newest first.
func (j *ActivityJournal) ListRecent(ctx context.Context, limit int) ([]core.Activity, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := j.queries.ListRecentActivity(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent activity: %w", err)
	}

	out := make([]core.Activity, 0, len(rows))
	for _, row := range rows {
		at, err := time.Parse(timeLayout, row.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("parse activity %d time %q: %w", row.ID, row.OccurredAt, err)
		}
		out = append(out, core.Activity{
			Action:        core.Action(row.Action),
			Outcome:       core.Outcome(row.Outcome),
			TransactionID: core.TransactionID(row.TransactionID),
			Session:       row.Session,
			StatusCode:    int(row.StatusCode),
			At:            at,
		})
	}
	return out, nil
}

// OutcomeCounts totals the journal by action and outcome.
func (j *ActivityJournal) OutcomeCounts(ctx context.Context) ([]OutcomeCount, error) {
	rows, err := j.queries.CountOutcomes(ctx)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	out := make([]OutcomeCount, 0, len(rows))
	for _, row := range rows {
		out = append(out, OutcomeCount{
			Action:  core.Action(row.Action),
			Outcome: core.Outcome(row.Outcome),
			Total:   row.Total,
		})
	}
	return out, nil
}

func dsn(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
