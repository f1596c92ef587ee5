// Package store archives completed conversation exchanges to SQLite so
// histories survive restarts and outlive the in-process session window.
package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/clipmind/clipmind/chat"
)

// DB wraps the SQLite connection used for the exchange archive.
type DB struct {
	db *sql.DB
}

// NewDB opens the archive database. Pragmas follow the modernc.org/sqlite
// convention; WAL plus a single connection avoids locking issues for a
// local file.
func NewDB(dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)

	return &DB{db: sqliteDB}, nil
}

// Migrate creates the archive schema.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS exchange (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			question TEXT NOT NULL,
			answer TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exchange_session ON exchange (session_id, id);
	`)
	return errors.Wrap(err, "failed to migrate archive schema")
}

// RecordExchange implements chat.Archiver.
func (d *DB) RecordExchange(ctx context.Context, sessionID string, ex chat.Exchange) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO exchange (session_id, question, answer, created_at)
		VALUES (?, ?, ?, ?)
	`, sessionID, ex.Question, ex.Answer, ex.At)
	return errors.Wrap(err, "failed to record exchange")
}

// ListExchanges returns a session's archived turns in chronological order.
// limit <= 0 means no limit.
func (d *DB) ListExchanges(ctx context.Context, sessionID string, limit int) ([]chat.Exchange, error) {
	query := `SELECT question, answer, created_at FROM exchange WHERE session_id = ? ORDER BY id ASC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list exchanges")
	}
	defer rows.Close()

	var exchanges []chat.Exchange
	for rows.Next() {
		var ex chat.Exchange
		if err := rows.Scan(&ex.Question, &ex.Answer, &ex.At); err != nil {
			return nil, errors.Wrap(err, "failed to scan exchange")
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// DeleteSession removes a session's archived turns.
func (d *DB) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := d.db.ExecContext(ctx, `DELETE FROM exchange WHERE session_id = ?`, sessionID)
	return errors.Wrap(err, "failed to delete session archive")
}

// Close releases the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
