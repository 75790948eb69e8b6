package snapshots

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

func TestRepo_SaveLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ledger.db")

	repo, err := Open(t.Context(), path)
	require.NoError(t, err)

	_, err = repo.Load(t.Context(), "ledger")
	require.ErrorIs(t, err, snapshots.ErrNotFound)

	require.NoError(t, repo.Save(t.Context(), "ledger", []byte(`{"version":1}`)))
	require.NoError(t, repo.Save(t.Context(), "ledger", []byte(`{"version":1,"transactions":[]}`)))
	require.NoError(t, repo.Save(t.Context(), "other", []byte(`{}`)))
	require.NoError(t, repo.Close())

	reopened, err := Open(t.Context(), path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load(t.Context(), "ledger")
	require.NoError(t, err)
	require.Equal(t, `{"version":1,"transactions":[]}`, string(got))
}
