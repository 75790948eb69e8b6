package snapshots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/pgutils"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

type snapshotsRepo struct{ db *sql.DB }

func New(db *sql.DB) *snapshotsRepo {
	return &snapshotsRepo{db: db}
}

func (r *snapshotsRepo) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT payload
		FROM ledger_snapshots
		WHERE key = $1
	`, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, snapshots.ErrNotFound
		}

		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	return payload, nil
}

// Save replaces the snapshot under key. Writers for the same key are
// serialized with a transaction-scoped advisory lock.
func (r *snapshotsRepo) Save(ctx context.Context, key string, payload []byte) error {
	err := pgutils.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
		if err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_snapshots (key, payload, updated_at)
			VALUES ($1, $2::jsonb, now())
			ON CONFLICT (key) DO UPDATE SET
				payload    = EXCLUDED.payload,
				updated_at = EXCLUDED.updated_at
		`, key, string(payload))
		if err != nil {
			return fmt.Errorf("upsert snapshot: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	return nil
}
