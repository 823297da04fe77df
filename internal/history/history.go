// Package history is the SQLite-backed run journal. Every applying run
// records what changed, with the unified diff stored as a
// zstd-compressed blob.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"reqsync/internal/util"
)

// Run is one recorded synchronization run.
type Run struct {
	ID          int64
	At          time.Time
	Root        string
	Policy      string
	ChangeCount int
	FileCount   int
	ExitCode    int
	Diff        string
}

// DB wraps the journal database connection.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	at_ms        INTEGER NOT NULL,
	root         TEXT NOT NULL,
	policy       TEXT NOT NULL,
	change_count INTEGER NOT NULL,
	file_count   INTEGER NOT NULL,
	exit_code    INTEGER NOT NULL,
	diff_zstd    BLOB
);
CREATE INDEX IF NOT EXISTS idx_runs_at ON runs(at_ms DESC);
`

// DefaultPath is the journal location for a root requirement file: a
// .reqsync directory next to it.
func DefaultPath(root string) string {
	return filepath.Join(filepath.Dir(root), ".reqsync", "history.db")
}

// Open opens or creates the journal at the given path.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	// Enable WAL mode
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying journal schema: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the journal.
func (db *DB) Close() error {
	return db.conn.Close()
}

// RecordRun appends one run to the journal and returns its id.
func (db *DB) RecordRun(run *Run) (int64, error) {
	var blob []byte
	if run.Diff != "" {
		compressed, err := compress([]byte(run.Diff))
		if err != nil {
			return 0, err
		}
		blob = compressed
	}

	atMs := util.NowMs()
	if !run.At.IsZero() {
		atMs = run.At.UnixMilli()
	}

	res, err := db.conn.Exec(
		`INSERT INTO runs (at_ms, root, policy, change_count, file_count, exit_code, diff_zstd)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		atMs, run.Root, run.Policy, run.ChangeCount, run.FileCount, run.ExitCode, blob,
	)
	if err != nil {
		return 0, fmt.Errorf("recording run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to limit runs, newest first, with diffs inflated.
func (db *DB) Recent(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.conn.Query(
		`SELECT id, at_ms, root, policy, change_count, file_count, exit_code, diff_zstd
		 FROM runs ORDER BY at_ms DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var atMs int64
		var blob []byte
		if err := rows.Scan(&run.ID, &atMs, &run.Root, &run.Policy,
			&run.ChangeCount, &run.FileCount, &run.ExitCode, &blob); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		run.At = time.UnixMilli(atMs)
		if len(blob) > 0 {
			diff, err := decompress(blob)
			if err != nil {
				return nil, fmt.Errorf("inflating diff for run %d: %w", run.ID, err)
			}
			run.Diff = string(diff)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompress(blob []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()
	data, err := decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing diff: %w", err)
	}
	return data, nil
}
