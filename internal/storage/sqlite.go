package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"loginwatch/internal/model"
	"loginwatch/migrations"
)

// timeLayout is fixed width so that lexical order of captured_at equals
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const captureColumns = `id, target_id, captured_at, raw_html, raw_digest, normalized_digest,
	ruleset_digest, byte_size, change_detected, change_details`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes appends from concurrent cycles and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Append inserts a capture and populates its ID and CapturedAt.
func (s *SQLite) Append(ctx context.Context, c *model.Capture) error {
	now := s.now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO captures (target_id, captured_at, raw_html, raw_digest, normalized_digest,
		                       ruleset_digest, byte_size, change_detected, change_details)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.TargetID, now, c.RawHTML, c.RawDigest, c.NormalizedDigest,
		c.RulesetDigest, c.ByteSize, boolToInt(c.ChangeDetected), string(c.ChangeDetails),
	)
	if err != nil {
		return fmt.Errorf("insert capture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	c.ID = id
	c.CapturedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// Latest returns the capture with the greatest captured_at for a target;
// ties go to the higher ID.
func (s *SQLite) Latest(ctx context.Context, targetID string) (*model.Capture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+`
		 FROM captures WHERE target_id = ?
		 ORDER BY captured_at DESC, id DESC LIMIT 1`, targetID,
	)
	return scanCapture(row)
}

// Get returns a single capture by its ID.
func (s *SQLite) Get(ctx context.Context, id int64) (*model.Capture, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+captureColumns+` FROM captures WHERE id = ?`, id,
	)
	return scanCapture(row)
}

// History returns all captures of a target, oldest first.
func (s *SQLite) History(ctx context.Context, targetID string) ([]model.Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+captureColumns+`
		 FROM captures WHERE target_id = ?
		 ORDER BY captured_at ASC, id ASC`, targetID,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCaptures(rows)
}

// Recent returns up to n captures of a target, newest first, leaving RawHTML
// empty.
func (s *SQLite) Recent(ctx context.Context, targetID string, n int) ([]model.Capture, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, captured_at, '', raw_digest, normalized_digest,
		        ruleset_digest, byte_size, change_detected, change_details
		 FROM captures WHERE target_id = ?
		 ORDER BY captured_at DESC, id DESC LIMIT ?`, targetID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanCaptures(rows)
}

// ListTargets returns the distinct target IDs that have captures.
func (s *SQLite) ListTargets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT target_id FROM captures ORDER BY target_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCapture(row scannable) (*model.Capture, error) {
	var c model.Capture
	var capturedAt, details string
	var changed int
	err := row.Scan(&c.ID, &c.TargetID, &capturedAt, &c.RawHTML, &c.RawDigest, &c.NormalizedDigest,
		&c.RulesetDigest, &c.ByteSize, &changed, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan capture: %w", err)
	}
	c.CapturedAt, _ = time.Parse(timeLayout, capturedAt)
	c.ChangeDetected = changed == 1
	c.ChangeDetails = model.Classification(details)
	return &c, nil
}

func scanCaptures(rows *sql.Rows) ([]model.Capture, error) {
	var captures []model.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, *c)
	}
	return captures, rows.Err()
}
