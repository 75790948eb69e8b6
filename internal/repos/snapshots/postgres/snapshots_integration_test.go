package snapshots

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/infra/pgtestutil"
	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

func TestSnapshots_RoundTripPostgres(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	ctx := t.Context()

	_, err := repo.Load(ctx, "ledger")
	require.ErrorIs(t, err, snapshots.ErrNotFound)

	require.NoError(t, repo.Save(ctx, "ledger", []byte(`{"version":1}`)))
	require.NoError(t, repo.Save(ctx, "ledger", []byte(`{"version":1,"transactions":[]}`)))

	got, err := repo.Load(ctx, "ledger")
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"transactions":[]}`, string(got))
}
