package snapshots

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

const keyPrefix = "leaf-ledger:snapshot:"

type snapshotsRepo struct{ client *redis.Client }

func New(client *redis.Client) *snapshotsRepo {
	return &snapshotsRepo{client: client}
}

func (r *snapshotsRepo) Load(ctx context.Context, key string) ([]byte, error) {
	payload, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, snapshots.ErrNotFound
		}

		return nil, fmt.Errorf("redis get: %w", err)
	}

	return payload, nil
}

func (r *snapshotsRepo) Save(ctx context.Context, key string, payload []byte) error {
	err := r.client.Set(ctx, keyPrefix+key, payload, 0).Err()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}
