// Package db is the optional SQLite mirror of a capture: session metadata,
// fused landmark rows and session state transitions.
package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/posecapture/internal/fusion"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSessionNotFound is returned when a session ID has no row.
var ErrSessionNotFound = errors.New("session not found")

type DB struct {
	*sql.DB
	path string
}

// NewDB opens the database at path, applies pragmas and migrates it to the
// latest schema.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{DB: sqlDB, path: path}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without running migrations. It is used by the
// migrate command so the schema version can be inspected first.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

func applyPragmas(sqlDB *sql.DB) error {
	// A single connection keeps :memory: databases coherent and serializes
	// writers, which the capture loop needs anyway.
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the path the database was opened with.
func (db *DB) Path() string { return db.path }

// Session is one capture session row.
type Session struct {
	ID             string
	Exercise       string
	FrontOrigin    string
	SideOrigin     string
	FPS            float64
	StartOffsetMs  int64
	StartedAt      time.Time
	EndedAt        *time.Time
	FramesRead     int64
	FramesFused    int64
	RecordsWritten int64
}

// StartSession inserts a session row with a fresh UUID and returns it.
func (db *DB) StartSession(ctx context.Context, s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO capture_sessions (session_id, exercise, front_origin, side_origin, fps, start_offset_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.Exercise, s.FrontOrigin, s.SideOrigin, s.FPS, s.StartOffsetMs,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return s.ID, nil
}

// SessionTotals are the counters stored when a session ends.
type SessionTotals struct {
	FramesRead     int64
	FramesFused    int64
	RecordsWritten int64
}

// EndSession stamps the end time and final counters.
func (db *DB) EndSession(ctx context.Context, sessionID string, totals SessionTotals) error {
	res, err := db.ExecContext(ctx, `
		UPDATE capture_sessions
		SET ended_at = UNIXEPOCH('subsec'),
			frames_read = ?,
			frames_fused = ?,
			records_written = ?
		WHERE session_id = ?`,
		totals.FramesRead, totals.FramesFused, totals.RecordsWritten, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// InsertRecords stores one frame's records in a single transaction.
func (db *DB) InsertRecords(ctx context.Context, sessionID string, records []fusion.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO fused_landmarks (session_id, frame_ms, landmark_index, x, y, z)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, sessionID, r.TimestampMs, r.LandmarkIndex, r.X, r.Y, r.Z); err != nil {
			return fmt.Errorf("failed to insert landmark %d at %d ms: %w", r.LandmarkIndex, r.TimestampMs, err)
		}
	}
	return tx.Commit()
}

// Records returns the stored records of a session ordered by frame and index.
func (db *DB) Records(ctx context.Context, sessionID string) ([]fusion.Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT frame_ms, landmark_index, x, y, z
		FROM fused_landmarks
		WHERE session_id = ?
		ORDER BY frame_ms, landmark_index`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []fusion.Record
	for rows.Next() {
		var r fusion.Record
		if err := rows.Scan(&r.TimestampMs, &r.LandmarkIndex, &r.X, &r.Y, &r.Z); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSession loads one session row.
func (db *DB) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := db.QueryRowContext(ctx, sessionColumns+` WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, err
}

// Sessions lists the most recent sessions, newest first.
func (db *DB) Sessions(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, sessionColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const sessionColumns = `
	SELECT session_id, exercise, front_origin, side_origin, fps, start_offset_ms,
		started_at, ended_at, frames_read, frames_fused, records_written
	FROM capture_sessions`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		s       Session
		started float64
		ended   sql.NullFloat64
	)
	if err := row.Scan(&s.ID, &s.Exercise, &s.FrontOrigin, &s.SideOrigin, &s.FPS, &s.StartOffsetMs,
		&started, &ended, &s.FramesRead, &s.FramesFused, &s.RecordsWritten); err != nil {
		return Session{}, err
	}
	s.StartedAt = unixFloat(started)
	if ended.Valid {
		t := unixFloat(ended.Float64)
		s.EndedAt = &t
	}
	return s, nil
}

func unixFloat(v float64) time.Time {
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// StateEvent is one persisted session state transition.
type StateEvent struct {
	SessionID string
	From      string
	To        string
	Command   string
}

// RecordStateEvent appends a transition for a session.
func (db *DB) RecordStateEvent(ctx context.Context, ev StateEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO session_state_events (session_id, from_state, to_state, command)
		VALUES (?, ?, ?, ?)`,
		ev.SessionID, ev.From, ev.To, ev.Command,
	)
	if err != nil {
		return fmt.Errorf("failed to record state event: %w", err)
	}
	return nil
}

// StateEvents returns the transitions of a session in order.
func (db *DB) StateEvents(ctx context.Context, sessionID string) ([]StateEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT session_id, from_state, to_state, command
		FROM session_state_events
		WHERE session_id = ?
		ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateEvent
	for rows.Next() {
		var ev StateEvent
		if err := rows.Scan(&ev.SessionID, &ev.From, &ev.To, &ev.Command); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
