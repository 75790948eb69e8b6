package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

func migrations() []string {
	return []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS ledger_snapshots (
			key        TEXT PRIMARY KEY,
			payload    BLOB NOT NULL,
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
	}
}

// Repo stores snapshots in a single SQLite file. It is the local backend for
// the CLI and single-node deployments.
type Repo struct{ db *sql.DB }

func Open(ctx context.Context, path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	for _, stmt := range migrations() {
		_, err = db.ExecContext(ctx, stmt)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	return &Repo{db: db}, nil
}

func (r *Repo) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT payload
		FROM ledger_snapshots
		WHERE key = ?
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshots.ErrNotFound
		}

		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	return payload, nil
}

func (r *Repo) Save(ctx context.Context, key string, payload []byte) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (key, payload, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
			payload    = excluded.payload,
			updated_at = excluded.updated_at
	`, key, payload)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	return nil
}

func (r *Repo) Close() error {
	return r.db.Close()
}
