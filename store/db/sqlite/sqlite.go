package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/dealcoach/dealcoach/store"
)

// session is the subset of database/sql shared by *sql.DB and *sql.Tx.
type session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB implements store.Driver on sqlite. A DB with a non-nil tx routes all
// statements through that transaction.
type DB struct {
	db *sql.DB
	tx *sql.Tx
}

// NewDB opens (or creates) the sqlite database at dbPath and runs migrations.
func NewDB(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, errors.Wrap(err, "create db dir")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// Pragmas are per-connection; one pooled connection keeps them applied
	// and leaves sqlite's single writer uncontended.
	db.SetMaxOpenConns(1)

	d := &DB{db: db}
	if err := d.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := d.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := d.db.Exec(p); err != nil {
			return errors.Wrapf(err, "sqlite pragma %q", p)
		}
	}
	return nil
}

// Migrate creates the schema when missing.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			uid               TEXT NOT NULL UNIQUE,
			creator_id        INTEGER NOT NULL,
			organization_id   TEXT NOT NULL DEFAULT '',
			transcript        TEXT,
			score             INTEGER,
			feedback          TEXT,
			prompt_tokens     INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			created_ts        INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
		`CREATE TABLE IF NOT EXISTS conversation_log (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id INTEGER NOT NULL,
			role            TEXT NOT NULL,
			type            TEXT NOT NULL,
			content         TEXT NOT NULL,
			context         TEXT NOT NULL DEFAULT '{}',
			created_ts      INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (conversation_id) REFERENCES conversation(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_log_conversation ON conversation_log(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS quota (
			organization_id TEXT PRIMARY KEY,
			used            INTEGER NOT NULL DEFAULT 0,
			monthly_limit   INTEGER NOT NULL,
			reset_ts        INTEGER NOT NULL,
			unlimited       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS prompt_template (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			uid        TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			template   TEXT NOT NULL,
			is_default INTEGER NOT NULL DEFAULT 0,
			created_ts INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
			updated_ts INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`,
	}
	for _, s := range stmts {
		if _, err := d.conn().ExecContext(ctx, s); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}
	return nil
}

func (d *DB) conn() session {
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

// RunInTransaction executes fn with a transaction-bound driver. Calls nested
// inside an existing transaction join it instead of opening a new one.
func (d *DB) RunInTransaction(ctx context.Context, fn func(store.Driver) error) error {
	if d.tx != nil {
		return fn(d)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(&DB{db: d.db, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Close closes the database handle.
func (d *DB) Close() error {
	if d.tx != nil {
		return nil
	}
	return d.db.Close()
}
