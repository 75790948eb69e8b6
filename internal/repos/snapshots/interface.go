package snapshots

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("snapshot not found")

// Snapshots is the durable key-value store the ledger writes through to.
// Payloads are opaque to the adapter.
type Snapshots interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, payload []byte) error
}
