package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// ActivityRow is one row of the activity table.
type ActivityRow struct {
	ID            int64
	MessageID     sql.NullString
	Action        string
	Outcome       string
	TransactionID string
	Session       string
	StatusCode    int64
	OccurredAt    string
}

type InsertActivityParams struct {
	MessageID     sql.NullString
	Action        string
	Outcome       string
	TransactionID string
	Session       string
	StatusCode    int64
	OccurredAt    string
}

const insertActivity = `
INSERT INTO activity (message_id, action, outcome, transaction_id, session, status_code, occurred_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (message_id) DO NOTHING
`

// InsertActivity returns the number of inserted rows: 0 when message_id was
// already recorded.
func (q *Queries) InsertActivity(ctx context.Context, arg InsertActivityParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertActivity,
		arg.MessageID,
		arg.Action,
		arg.Outcome,
		arg.TransactionID,
		arg.Session,
		arg.StatusCode,
		arg.OccurredAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listRecentActivity = `
SELECT id, message_id, action, outcome, transaction_id, session, status_code, occurred_at
FROM activity
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListRecentActivity(ctx context.Context, limit int64) ([]ActivityRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentActivity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ActivityRow
	for rows.Next() {
		var i ActivityRow
		if err := rows.Scan(
			&i.ID,
			&i.MessageID,
			&i.Action,
			&i.Outcome,
			&i.TransactionID,
			&i.Session,
			&i.StatusCode,
			&i.OccurredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type OutcomeCountRow struct {
	Action  string
	Outcome string
	Total   int64
}

const countOutcomes = `
SELECT action, outcome, total
FROM activity_outcome_counts
ORDER BY action, outcome
`

func (q *Queries) CountOutcomes(ctx context.Context) ([]OutcomeCountRow, error) {
	rows, err := q.db.QueryContext(ctx, countOutcomes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OutcomeCountRow
	for rows.Next() {
		var i OutcomeCountRow
		if err := rows.Scan(&i.Action, &i.Outcome, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
