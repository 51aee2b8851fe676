package transcript

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS call_transcript (
	call_sid     TEXT PRIMARY KEY,
	summary      TEXT NOT NULL DEFAULT '',
	summary_time TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS call_turn (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	call_sid TEXT NOT NULL,
	role     TEXT NOT NULL,
	text     TEXT NOT NULL,
	time     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_turn_call_sid ON call_turn (call_sid, id);
`

// SQLiteStore keeps transcripts in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "database ping failed")
	}
	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to apply %q", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendTurn(ctx context.Context, callSID string, role Role, text string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	ts := formatTime(at)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO call_transcript (call_sid, created_at) VALUES (?, ?) ON CONFLICT(call_sid) DO NOTHING`,
		callSID, ts); err != nil {
		return errors.Wrapf(err, "failed to upsert transcript %s", callSID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO call_turn (call_sid, role, text, time) VALUES (?, ?, ?, ?)`,
		callSID, string(role), text, ts); err != nil {
		return errors.Wrapf(err, "failed to append turn for %s", callSID)
	}
	return errors.Wrap(tx.Commit(), "failed to commit turn")
}

func (s *SQLiteStore) SaveSummary(ctx context.Context, callSID, summary string, at time.Time) error {
	ts := formatTime(at)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO call_transcript (call_sid, summary, summary_time, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(call_sid) DO UPDATE SET summary = excluded.summary, summary_time = excluded.summary_time`,
		callSID, summary, ts, ts)
	return errors.Wrapf(err, "failed to save summary for %s", callSID)
}

func (s *SQLiteStore) Get(ctx context.Context, callSID string) (*Record, error) {
	rec := &Record{CallSID: callSID, Transcript: []Entry{}}
	err := s.db.QueryRowContext(ctx,
		`SELECT summary, summary_time FROM call_transcript WHERE call_sid = ?`, callSID).
		Scan(&rec.Summary, &rec.SummaryTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load transcript %s", callSID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, time FROM call_turn WHERE call_sid = ? ORDER BY id`, callSID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load turns for %s", callSID)
	}
	defer rows.Close()
	for rows.Next() {
		var e Entry
		var role string
		if err := rows.Scan(&role, &e.Text, &e.Time); err != nil {
			return nil, errors.Wrap(err, "failed to scan turn")
		}
		e.Role = Role(role)
		rec.Transcript = append(rec.Transcript, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows iteration error")
	}
	return rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
