package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/config"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

func TestOpen_Memory(t *testing.T) {
	t.Parallel()

	repo, closeFn, err := Open(t.Context(), config.StoreConfig{Driver: config.DriverMemory, SnapshotKey: "ledger"})
	require.NoError(t, err)

	defer closeFn(t.Context())

	_, err = repo.Load(t.Context(), "ledger")
	require.ErrorIs(t, err, snapshots.ErrNotFound)
}

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	cfg := config.StoreConfig{
		Driver:      config.DriverSQLite,
		SnapshotKey: "ledger",
		SQLite:      config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
	}

	repo, closeFn, err := Open(t.Context(), cfg)
	require.NoError(t, err)

	require.NoError(t, repo.Save(t.Context(), "ledger", []byte(`{"version":1}`)))
	require.NoError(t, closeFn(t.Context()))

	repo, closeFn, err = Open(t.Context(), cfg)
	require.NoError(t, err)

	defer closeFn(t.Context())

	got, err := repo.Load(t.Context(), "ledger")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1}`, string(got))
}

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     config.StoreConfig
		wantErr error
	}{
		{"unknown_driver", config.StoreConfig{Driver: "mongo", SnapshotKey: "ledger"}, config.ErrUnknownDriver},
		{"postgres_without_dsn", config.StoreConfig{Driver: config.DriverPostgres, SnapshotKey: "ledger"}, config.ErrInvalidConfig},
		{"empty_key", config.StoreConfig{Driver: config.DriverMemory}, config.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := Open(t.Context(), tt.cfg)
			require.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}
