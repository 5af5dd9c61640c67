package report

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tracecap/internal/check"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// SessionRecord is one sessions row.
type SessionRecord struct {
	ID         uuid.UUID
	StartedAt  time.Time
	Duration   time.Duration
	Env        string
	User       string
	Task       string
	TargetFPS  float64
	FrameCount int
	AppVersion string
}

// Store persists session records and consistency findings. SQLite
// with WAL mode; a single connection since SQLite allows one writer
// at a time.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applying pragmas and
// the schema. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WriteSession inserts the session row. Duplicate IDs are silently
// ignored so a re-run of the check command cannot double-insert.
func (s *Store) WriteSession(ctx context.Context, rec SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, started_at_ns, duration_ns, env, user, task, target_fps, frame_count, app_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID.String(),
		rec.StartedAt.UnixNano(),
		rec.Duration.Nanoseconds(),
		rec.Env,
		rec.User,
		rec.Task,
		rec.TargetFPS,
		rec.FrameCount,
		rec.AppVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteFindings inserts the findings for a session inside one
// transaction. The session row must exist.
func (s *Store) WriteFindings(ctx context.Context, session uuid.UUID, findings []check.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write findings: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO findings (session_id, severity, code, frame, message)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write findings: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if _, err := stmt.ExecContext(ctx, session.String(), f.Severity.String(), string(f.Code), f.Frame, f.Message); err != nil {
			return fmt.Errorf("write finding: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write findings: %w", err)
	}
	return nil
}

// Findings reads back the findings recorded for a session, in insert
// order.
func (s *Store) Findings(ctx context.Context, session uuid.UUID) ([]check.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT severity, code, frame, message
		FROM findings
		WHERE session_id = ?
		ORDER BY id
	`, session.String())
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	defer rows.Close()

	var out []check.Finding
	for rows.Next() {
		var severity string
		var f check.Finding
		var code string
		if err := rows.Scan(&severity, &code, &f.Frame, &f.Message); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.Code = check.Code(code)
		switch severity {
		case "error":
			f.Severity = check.SeverityError
		default:
			f.Severity = check.SeverityWarning
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	return out, nil
}

// Sessions lists session rows, newest first.
func (s *Store) Sessions(ctx context.Context) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at_ns, duration_ns, env, user, task, target_fps, frame_count, app_version
		FROM sessions
		ORDER BY started_at_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var id string
		var startedNs, durationNs int64
		if err := rows.Scan(&id, &startedNs, &durationNs, &rec.Env, &rec.User, &rec.Task, &rec.TargetFPS, &rec.FrameCount, &rec.AppVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		rec.ID = parsed
		rec.StartedAt = time.Unix(0, startedNs)
		rec.Duration = time.Duration(durationNs)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
