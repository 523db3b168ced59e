package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mpataki/boda/internal/models"
	_ "modernc.org/sqlite"
)

var (
	// ErrPersistence wraps any failure of the backing database.
	ErrPersistence = errors.New("persistence error")

	// ErrNoPendingRecord is returned by Complete when nothing matched.
	ErrNoPendingRecord = errors.New("no matching pending execution")
)

const defaultBusyTimeout = 5 * time.Second

type Storage struct {
	db   *sql.DB
	path string
}

func New(dbPath string) (*Storage, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection serializes every create/complete/read.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Storage{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// configure applies the connection pragmas. WAL and busy_timeout let the
// viewer read while an execution is being recorded.
func configure(db *sql.DB) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set busy_timeout: %w", err)
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		return fmt.Errorf("set journal_mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("set journal_mode: database stayed in %s mode", mode)
	}

	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	return nil
}

func (s *Storage) Path() string {
	return s.path
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		command TEXT NOT NULL,
		interval_ms INTEGER NOT NULL,
		concurrency INTEGER NOT NULL,
		shell TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		stdout TEXT,
		stderr TEXT,
		exit_code INTEGER,
		UNIQUE(session_id, started_at)
	);

	CREATE INDEX IF NOT EXISTS idx_executions_session ON executions(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateSession(ctx context.Context, sess *models.Session) error {
	cmd, err := json.Marshal(sess.Command)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, command, interval_ms, concurrency, shell)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.StartedAt.UnixNano(), string(cmd), sess.Interval.Milliseconds(), sess.Concurrency, sess.Shell,
	)
	if err != nil {
		return fmt.Errorf("%w: create session: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Storage) GetSession(ctx context.Context, id string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, command, interval_ms, concurrency, shell
		 FROM sessions WHERE id = ?`, id,
	)
	return scanSession(row)
}

// LatestSession returns the most recently started session, or nil.
func (s *Storage) LatestSession(ctx context.Context) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, command, interval_ms, concurrency, shell
		 FROM sessions ORDER BY started_at DESC LIMIT 1`,
	)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sess, err
}

func (s *Storage) ListSessions(ctx context.Context, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, command, interval_ms, concurrency, shell
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}

	return sessions, rows.Err()
}

// GetExecution reads a record by id regardless of session.
func (s *Storage) GetExecution(ctx context.Context, id int64) (*models.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, started_at, completed_at, stdout, stderr, exit_code
		 FROM executions WHERE id = ?`, id,
	)
	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return exec, err
}

// Session returns the execution log of one session.
func (s *Storage) Session(id string) *SessionLog {
	return &SessionLog{db: s.db, session: id}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var sess models.Session
	var startedAt, intervalMS int64
	var command string

	err := row.Scan(&sess.ID, &startedAt, &command, &intervalMS, &sess.Concurrency, &sess.Shell)
	if err != nil {
		return nil, err
	}

	sess.StartedAt = time.Unix(0, startedAt)
	sess.Interval = time.Duration(intervalMS) * time.Millisecond
	if err := json.Unmarshal([]byte(command), &sess.Command); err != nil {
		return nil, fmt.Errorf("decode command of session %s: %w", sess.ID, err)
	}

	return &sess, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var exec models.Execution
	var startedAt int64
	var completedAt, exitCode sql.NullInt64
	var stdout, stderr sql.NullString

	err := row.Scan(&exec.ID, &exec.SessionID, &startedAt, &completedAt, &stdout, &stderr, &exitCode)
	if err != nil {
		return nil, err
	}

	exec.StartedAt = time.Unix(0, startedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		exec.CompletedAt = &t
	}
	if stdout.Valid {
		exec.Stdout = &stdout.String
	}
	if stderr.Valid {
		exec.Stderr = &stderr.String
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		exec.ExitCode = &code
	}

	return &exec, nil
}

func scanSummary(row scanner) (models.Summary, error) {
	var sum models.Summary
	var startedAt int64
	var completedAt, exitCode sql.NullInt64

	if err := row.Scan(&sum.ID, &startedAt, &completedAt, &exitCode); err != nil {
		return sum, err
	}

	sum.StartedAt = time.Unix(0, startedAt)
	if completedAt.Valid {
		t := time.Unix(0, completedAt.Int64)
		sum.CompletedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		sum.ExitCode = &code
	}

	return sum, nil
}
