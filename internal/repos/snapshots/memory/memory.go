package snapshots

import (
	"context"
	"sync"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

var _ snapshots.Snapshots = (*Repo)(nil)

// Repo keeps snapshots in process memory. It backs tests and the
// STORE_DRIVER=memory mode; data is lost on restart.
type Repo struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	failErr error
}

func New() *Repo {
	return &Repo{data: make(map[string][]byte)}
}

func (r *Repo) Load(_ context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	payload, ok := r.data[key]
	if !ok {
		return nil, snapshots.ErrNotFound
	}

	return append([]byte(nil), payload...), nil
}

func (r *Repo) Save(ctx context.Context, key string, payload []byte) error {
	err := ctx.Err()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return r.failErr
	}

	r.data[key] = append([]byte(nil), payload...)
	r.saves++

	return nil
}

// FailWith makes every following Save return err until it is called with nil.
func (r *Repo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failErr = err
}

// Saves reports how many writes succeeded.
func (r *Repo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.saves
}
