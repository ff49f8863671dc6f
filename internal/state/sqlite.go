package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore is the on-disk Store, an embedded SQLite database in WAL mode.
type SQLiteStore struct {
	conn *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the state database at path and
// initializes its schema.
//
// The caller MUST call Close() when done.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping state database: %w", err)
	}

	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteStore{conn: conn, path: path}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		root TEXT NOT NULL,
		path TEXT NOT NULL,
		tool TEXT NOT NULL,
		rule_id TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL,
		generated INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (root, path)
	);

	CREATE TABLE IF NOT EXISTS passes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		written INTEGER NOT NULL DEFAULT 0,
		merged INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		dry_run INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS pass_tools (
		pass_id INTEGER NOT NULL,
		tool TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (pass_id, tool),
		FOREIGN KEY (pass_id) REFERENCES passes(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_passes_root ON passes(root, id);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize state schema: %w", err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	if s.conn == nil {
		return nil
	}
	// Best effort; the WAL is replayed on next open anyway.
	_, _ = s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close state database: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *SQLiteStore) db() (*sql.DB, error) {
	if s.conn == nil {
		return nil, ErrClosed
	}
	return s.conn, nil
}

func (s *SQLiteStore) Artifact(ctx context.Context, root, path string) (ArtifactRecord, bool, error) {
	conn, err := s.db()
	if err != nil {
		return ArtifactRecord{}, false, err
	}
	row := conn.QueryRowContext(ctx, `
		SELECT root, path, tool, rule_id, digest, generated, updated_at
		FROM artifacts WHERE root = ? AND path = ?`, root, path)
	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ArtifactRecord{}, false, nil
	}
	if err != nil {
		return ArtifactRecord{}, false, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Artifacts(ctx context.Context, root string) ([]ArtifactRecord, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT root, path, tool, rule_id, digest, generated, updated_at
		FROM artifacts WHERE root = ? ORDER BY path`, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRecord
	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row scanner) (ArtifactRecord, error) {
	var (
		rec       ArtifactRecord
		generated int
		updated   string
	)
	if err := row.Scan(&rec.Root, &rec.Path, &rec.Tool, &rec.RuleID, &rec.Digest, &generated, &updated); err != nil {
		return ArtifactRecord{}, err
	}
	rec.Generated = generated != 0
	rec.UpdatedAt = parseTime(updated)
	return rec, nil
}

func (s *SQLiteStore) PutArtifact(ctx context.Context, rec ArtifactRecord) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	_, err = conn.ExecContext(ctx, `
		INSERT INTO artifacts (root, path, tool, rule_id, digest, generated, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(root, path) DO UPDATE SET
			tool = excluded.tool,
			rule_id = excluded.rule_id,
			digest = excluded.digest,
			generated = excluded.generated,
			updated_at = excluded.updated_at`,
		rec.Root, rec.Path, rec.Tool, rec.RuleID, rec.Digest, boolToInt(rec.Generated), formatTime(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert artifact %s: %w", rec.Path, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteArtifact(ctx context.Context, root, path string) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM artifacts WHERE root = ? AND path = ?`, root, path); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", path, err)
	}
	return nil
}

func (s *SQLiteStore) RecordPass(ctx context.Context, rec *PassRecord) error {
	conn, err := s.db()
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO passes (root, trigger_kind, started_at, finished_at, written, merged, skipped, errors, dry_run, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Root, rec.Trigger, formatTime(rec.StartedAt), formatTime(rec.FinishedAt),
		rec.Written, rec.Merged, rec.Skipped, rec.Errors, boolToInt(rec.DryRun), rec.Error)
	if err != nil {
		return fmt.Errorf("failed to insert pass: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read pass id: %w", err)
	}

	for _, t := range rec.Tools {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pass_tools (pass_id, tool, action, detail) VALUES (?, ?, ?, ?)`,
			id, t.Tool, t.Action, t.Detail); err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", t.Tool, err)
		}
	}

	// Trim history beyond HistoryLimit for this root.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM passes WHERE root = ? AND id NOT IN (
			SELECT id FROM passes WHERE root = ? ORDER BY id DESC LIMIT ?
		)`, rec.Root, rec.Root, HistoryLimit); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pass: %w", err)
	}
	rec.ID = id
	return nil
}

func (s *SQLiteStore) RecentPasses(ctx context.Context, root string, limit int) ([]PassRecord, error) {
	conn, err := s.db()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = HistoryLimit
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id, root, trigger_kind, started_at, finished_at, written, merged, skipped, errors, dry_run, error
		FROM passes WHERE root = ? ORDER BY id DESC LIMIT ?`, root, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}

	var out []PassRecord
	for rows.Next() {
		var (
			p                 PassRecord
			started, finished string
			dryRun            int
		)
		if err := rows.Scan(&p.ID, &p.Root, &p.Trigger, &started, &finished,
			&p.Written, &p.Merged, &p.Skipped, &p.Errors, &dryRun, &p.Error); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		p.StartedAt = parseTime(started)
		p.FinishedAt = parseTime(finished)
		p.DryRun = dryRun != 0
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range out {
		tools, err := s.passTools(ctx, conn, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tools = tools
	}
	return out, nil
}

func (s *SQLiteStore) passTools(ctx context.Context, conn *sql.DB, passID int64) ([]ToolOutcome, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT tool, action, detail FROM pass_tools WHERE pass_id = ? ORDER BY rowid`, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pass tools: %w", err)
	}
	defer rows.Close()

	var out []ToolOutcome
	for rows.Next() {
		var t ToolOutcome
		if err := rows.Scan(&t.Tool, &t.Action, &t.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan pass tool: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
