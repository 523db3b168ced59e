package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mpataki/boda/internal/models"
)

// SessionLog is the append-only execution log of one session. Records are
// created pending and completed exactly once.
type SessionLog struct {
	db      *sql.DB
	session string
}

// Completion carries the final fields of an execution. ID is matched first;
// when it is zero the pending record with the same Start is completed.
type Completion struct {
	ID       int64
	Start    time.Time
	End      time.Time
	Stdout   string
	Stderr   string
	ExitCode int
}

func (l *SessionLog) SessionID() string {
	return l.session
}

// Create inserts a pending record started at start and returns its id.
func (l *SessionLog) Create(ctx context.Context, start time.Time) (int64, error) {
	result, err := l.db.ExecContext(ctx,
		`INSERT INTO executions (session_id, started_at) VALUES (?, ?)`,
		l.session, start.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: create execution: %w", ErrPersistence, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%w: create execution: %w", ErrPersistence, err)
	}
	return id, nil
}

// Complete finalizes the one matching pending record.
func (l *SessionLog) Complete(ctx context.Context, c Completion) error {
	result, err := l.db.ExecContext(ctx,
		`UPDATE executions SET completed_at = ?, stdout = ?, stderr = ?, exit_code = ?
		 WHERE session_id = ? AND completed_at IS NULL
		   AND (id = ? OR (? = 0 AND started_at = ?))`,
		c.End.UnixNano(), c.Stdout, c.Stderr, c.ExitCode,
		l.session, c.ID, c.ID, c.Start.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("%w: complete execution: %w", ErrPersistence, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: complete execution: %w", ErrPersistence, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id=%d start=%s", ErrNoPendingRecord, c.ID, c.Start.Format(time.RFC3339Nano))
	}
	return nil
}

// Get returns the record selected by target, or nil when there is none.
// Latest only ever resolves to a completed record.
func (l *SessionLog) Get(ctx context.Context, target models.Target) (*models.Execution, error) {
	var row *sql.Row
	if id, ok := target.ID(); ok {
		row = l.db.QueryRowContext(ctx,
			`SELECT id, session_id, started_at, completed_at, stdout, stderr, exit_code
			 FROM executions WHERE session_id = ? AND id = ?`, l.session, id,
		)
	} else {
		row = l.db.QueryRowContext(ctx,
			`SELECT id, session_id, started_at, completed_at, stdout, stderr, exit_code
			 FROM executions WHERE session_id = ? AND completed_at IS NOT NULL
			 ORDER BY id DESC LIMIT 1`, l.session,
		)
	}

	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", ErrPersistence, target, err)
	}
	return exec, nil
}

// History lists summaries newest first. limit <= 0 means no limit.
func (l *SessionLog) History(ctx context.Context, limit int) ([]models.Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, exit_code
		 FROM executions WHERE session_id = ? ORDER BY id DESC LIMIT ?`, l.session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %w", ErrPersistence, err)
	}
	defer rows.Close()

	var history []models.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: history: %w", ErrPersistence, err)
		}
		history = append(history, sum)
	}

	return history, rows.Err()
}

// Bounds returns the oldest and newest ids of the session. ok is false when
// the session has no records.
func (l *SessionLog) Bounds(ctx context.Context) (oldest, newest int64, ok bool, err error) {
	var lo, hi sql.NullInt64
	err = l.db.QueryRowContext(ctx,
		`SELECT MIN(id), MAX(id) FROM executions WHERE session_id = ?`, l.session,
	).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: bounds: %w", ErrPersistence, err)
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, false, nil
	}
	return lo.Int64, hi.Int64, true, nil
}

// Neighbor returns the closest existing id older (or newer) than id.
func (l *SessionLog) Neighbor(ctx context.Context, id int64, older bool) (int64, bool, error) {
	query := `SELECT MIN(id) FROM executions WHERE session_id = ? AND id > ?`
	if older {
		query = `SELECT MAX(id) FROM executions WHERE session_id = ? AND id < ?`
	}

	var n sql.NullInt64
	if err := l.db.QueryRowContext(ctx, query, l.session, id).Scan(&n); err != nil {
		return 0, false, fmt.Errorf("%w: neighbor of %d: %w", ErrPersistence, id, err)
	}
	if !n.Valid {
		return 0, false, nil
	}
	return n.Int64, true, nil
}
