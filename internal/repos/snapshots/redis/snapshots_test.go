package snapshots

import (
	"context"
	"os"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

func TestSnapshots_RoundTripRedis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	require.NoError(t, client.Ping(t.Context()).Err())

	repo := New(client)
	key := "test-" + uuid.NewString()

	t.Cleanup(func() { client.Del(context.Background(), keyPrefix+key) })

	_, err := repo.Load(t.Context(), key)
	require.ErrorIs(t, err, snapshots.ErrNotFound)

	require.NoError(t, repo.Save(t.Context(), key, []byte(`{"version":1}`)))

	got, err := repo.Load(t.Context(), key)
	require.NoError(t, err)
	require.Equal(t, `{"version":1}`, string(got))
}
