// Package store keeps the history of remediation attempts in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/setevik/autoheal/internal/fault"
)

// DB wraps an SQLite connection holding remediation history.
type DB struct {
	db       *sql.DB
	instance string
}

// Remediation is a stored task.
type Remediation struct {
	fault.Task
	InstanceID string
	Notified   bool
}

// Open opens or creates the database at path. Rows written through this
// handle are attributed to instanceID.
func Open(path, instanceID string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db, instance: instanceID}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Record stores a finished task. It satisfies the engine's recorder.
func (d *DB) Record(ctx context.Context, task fault.Task) error {
	return d.insert(ctx, task)
}

// Insert stores a task.
func (d *DB) Insert(task *fault.Task) error {
	return d.insert(context.Background(), *task)
}

func (d *DB) insert(ctx context.Context, t fault.Task) error {
	// A remediation cancelled at shutdown still gets recorded.
	ctx = context.WithoutCancel(ctx)

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO remediations (id, instance_id, kind, signal, source, captured_at, started_at, finished_at, status, success, message, notified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		d.instance,
		string(t.Kind),
		t.Signal.Text,
		t.Signal.Source,
		formatTime(t.Signal.CapturedAt),
		formatTime(t.StartedAt),
		formatTime(recordedAt(t)),
		string(t.Status),
		t.Result.Success,
		t.Result.Message,
		false,
	)
	if err != nil {
		return fmt.Errorf("inserting remediation: %w", err)
	}
	return nil
}

// MarkNotified flags a remediation as reported.
func (d *DB) MarkNotified(id string) error {
	_, err := d.db.Exec(`UPDATE remediations SET notified = TRUE WHERE id = ?`, id)
	return err
}

// QueryFilter controls which rows Query returns.
type QueryFilter struct {
	Since      time.Time
	Until      time.Time
	Kind       string
	Status     string
	InstanceID string
	Limit      int
}

// Query returns remediations matching the filter, newest first.
func (d *DB) Query(f QueryFilter) ([]*Remediation, error) {
	query := `SELECT id, instance_id, kind, signal, source, captured_at, started_at, finished_at, status, success, message, notified
		FROM remediations WHERE 1=1`
	var args []interface{}

	if !f.Since.IsZero() {
		query += " AND finished_at >= ?"
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		query += " AND finished_at <= ?"
		args = append(args, formatTime(f.Until))
	}
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.InstanceID != "" {
		query += " AND instance_id = ?"
		args = append(args, f.InstanceID)
	}

	query += " ORDER BY finished_at DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying remediations: %w", err)
	}
	defer rows.Close()

	var out []*Remediation
	for rows.Next() {
		r, err := scanRemediation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored remediations.
func (d *DB) Count() (int, error) {
	var n int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM remediations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting remediations: %w", err)
	}
	return n, nil
}

// Purge deletes remediations older than retention.
func (d *DB) Purge(retention time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-retention))
	result, err := d.db.Exec(`DELETE FROM remediations WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging old remediations: %w", err)
	}
	return result.RowsAffected()
}

// KindStat summarises outcomes for one fault kind.
type KindStat struct {
	Kind      fault.Kind
	Total     int
	Succeeded int
	Failed    int
	Last      time.Time
}

// KindStats aggregates outcomes per kind since the given time, most
// frequent first.
func (d *DB) KindStats(since time.Time) ([]KindStat, error) {
	rows, err := d.db.Query(`
		SELECT kind,
		       COUNT(*),
		       SUM(CASE WHEN success THEN 1 ELSE 0 END),
		       SUM(CASE WHEN success THEN 0 ELSE 1 END),
		       MAX(finished_at)
		FROM remediations
		WHERE finished_at >= ?
		GROUP BY kind
		ORDER BY COUNT(*) DESC, kind ASC`,
		formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating remediations: %w", err)
	}
	defer rows.Close()

	var stats []KindStat
	for rows.Next() {
		var (
			s    KindStat
			last string
		)
		if err := rows.Scan(&s.Kind, &s.Total, &s.Succeeded, &s.Failed, &last); err != nil {
			return nil, fmt.Errorf("scanning kind stats: %w", err)
		}
		s.Last = parseTime(last)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func scanRemediation(rows *sql.Rows) (*Remediation, error) {
	var r Remediation
	var captured, started, finished string
	var source, message sql.NullString

	err := rows.Scan(
		&r.ID,
		&r.InstanceID,
		&r.Kind,
		&r.Signal.Text,
		&source,
		&captured,
		&started,
		&finished,
		&r.Status,
		&r.Result.Success,
		&message,
		&r.Notified,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning remediation row: %w", err)
	}

	r.Signal.Source = source.String
	r.Signal.CapturedAt = parseTime(captured)
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	r.Result.Message = message.String
	return &r, nil
}

// recordedAt is the row's timestamp: when the task finished, or now for a
// task stored before finishing.
func recordedAt(t fault.Task) time.Time {
	if !t.FinishedAt.IsZero() {
		return t.FinishedAt
	}
	return time.Now()
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS remediations (
			id          TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			kind        TEXT NOT NULL,
			signal      TEXT NOT NULL,
			source      TEXT,
			captured_at TEXT,
			started_at  TEXT,
			finished_at TEXT NOT NULL,
			status      TEXT NOT NULL,
			success     BOOLEAN NOT NULL,
			message     TEXT,
			notified    BOOLEAN DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_remediations_finished ON remediations(finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_remediations_kind ON remediations(kind, finished_at)`,
		`CREATE INDEX IF NOT EXISTS idx_remediations_cooldown ON remediations(instance_id, kind, source, finished_at)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date")
	return nil
}
