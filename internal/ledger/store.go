package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots"
)

const DefaultSnapshotKey = "ledger"

// Observer is notified after every committed or failed write.
type Observer interface {
	Committed(txns []Transaction, took time.Duration)
	CommitFailed(err error)
}

type state struct {
	accounts map[string]*Balance
	txns     []Transaction
	byUser   map[string][]int
	progress map[progressKey]Progress
	seq      int64
	lastTS   time.Time
}

func newState() *state {
	return &state{
		accounts: make(map[string]*Balance),
		byUser:   make(map[string][]int),
		progress: make(map[progressKey]Progress),
	}
}

// Store owns every balance, the transaction log and per-user mission progress.
// All mutations go through WithTx, which holds the write lock for the whole
// read-modify-write including the write-through to the snapshot adapter.
type Store struct {
	mu       sync.RWMutex
	persist  snapshots.Snapshots
	key      string
	now      func() time.Time
	newID    func() string
	observer Observer
	state    *state
}

type Option func(*Store)

func WithSnapshotKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

func New(persist snapshots.Snapshots, opts ...Option) *Store {
	s := &Store{
		persist: persist,
		key:     DefaultSnapshotKey,
		now:     time.Now,
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
		state:   newState(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Open rehydrates the store from the snapshot adapter. A missing snapshot
// leaves the store empty.
func (s *Store) Open(ctx context.Context) error {
	payload, err := s.persist.Load(ctx, s.key)
	if err != nil {
		if errors.Is(err, snapshots.ErrNotFound) {
			slog.Info("ledger snapshot not found, starting empty", "key", s.key)
			return nil
		}

		return fmt.Errorf("load snapshot: %w", err)
	}

	st, err := decodeSnapshot(payload)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = st

	slog.Info("ledger rehydrated",
		"key", s.key,
		"accounts", len(st.accounts),
		"transactions", len(st.txns),
	)

	return nil
}

// WithTx runs fn against a staged view of the ledger. When fn succeeds the
// resulting snapshot is written through to the adapter and only then made
// visible. If fn or the write fails nothing changes.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)

	err := fn(tx)
	if err != nil {
		return err
	}

	if !tx.dirty() {
		return nil
	}

	next := tx.apply()

	payload, err := encodeSnapshot(next)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	start := time.Now()

	err = s.persist.Save(ctx, s.key, payload)
	if err != nil {
		slog.Error("ledger write-through failed, changes discarded",
			"key", s.key,
			"staged_transactions", len(tx.appended),
			"error", err,
		)

		if s.observer != nil {
			s.observer.CommitFailed(err)
		}

		return fmt.Errorf("%w: %w", ErrPersistenceWriteFailed, err)
	}

	s.state = next

	if s.observer != nil {
		s.observer.Committed(tx.appended, time.Since(start))
	}

	return nil
}

// Earn appends a positive transaction. See Tx.Earn.
func (s *Store) Earn(ctx context.Context, e Entry) (Transaction, error) {
	var out Transaction

	err := s.WithTx(ctx, func(tx *Tx) error {
		t, err := tx.Earn(e)
		out = t

		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	return out, nil
}

// Spend appends a negative transaction. See Tx.Spend.
func (s *Store) Spend(ctx context.Context, e Entry) (Transaction, error) {
	var out Transaction

	err := s.WithTx(ctx, func(tx *Tx) error {
		t, err := tx.Spend(e)
		out = t

		return err
	})
	if err != nil {
		return Transaction{}, err
	}

	return out, nil
}

func (s *Store) Exists(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.state.accounts[userID]

	return ok
}

func (s *Store) Balances(userID string) (Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.state.accounts[userID]
	if !ok {
		return Balance{}, ErrUnknownUser
	}

	return *b, nil
}

func (s *Store) Balance(userID string, c Currency) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCurrency, c)
	}

	b, err := s.Balances(userID)
	if err != nil {
		return 0, err
	}

	return b.Of(c), nil
}

// Transactions returns the user's transactions newest first. The sequence is
// lazy and may be ranged over repeatedly; it reflects the log at call time.
// A limit <= 0 means no limit.
func (s *Store) Transactions(userID string, limit int) (iter.Seq[Transaction], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.state.accounts[userID]; !ok {
		return nil, ErrUnknownUser
	}

	txns := s.state.txns
	idx := s.state.byUser[userID]
	idx = idx[:len(idx):len(idx)]

	return func(yield func(Transaction) bool) {
		n := 0
		for i := len(idx) - 1; i >= 0; i-- {
			if limit > 0 && n >= limit {
				return
			}

			if !yield(txns[idx[i]]) {
				return
			}

			n++
		}
	}, nil
}

func (s *Store) Progress(userID, missionID string) Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.progress[progressKey{userID: userID, missionID: missionID}]
}

func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.state.accounts))
	for id := range s.state.accounts {
		users = append(users, id)
	}

	slices.Sort(users)

	return users
}

// Verify recomputes every balance from the log and reports the first account
// whose cached total disagrees.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := sumLog(s.state.txns)

	for id, cached := range s.state.accounts {
		if sums[id] != *cached {
			return fmt.Errorf("%w: user %s cached %+v, log %+v", ErrCorruptSnapshot, id, *cached, sums[id])
		}
	}

	return nil
}

func sumLog(txns []Transaction) map[string]Balance {
	sums := make(map[string]Balance)
	for _, t := range txns {
		b := sums[t.UserID]
		b.add(t.Currency, t.Amount)
		sums[t.UserID] = b
	}

	return sums
}
