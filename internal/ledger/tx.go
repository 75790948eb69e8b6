package ledger

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

// Tx stages ledger changes for Store.WithTx. It must not be retained after fn returns.
type Tx struct {
	s        *Store
	base     *state
	opened   []string
	balances map[string]Balance
	appended []Transaction
	progress map[progressKey]Progress
	seq      int64
	lastTS   time.Time
}

func newTx(s *Store) *Tx {
	return &Tx{
		s:        s,
		base:     s.state,
		balances: make(map[string]Balance),
		progress: make(map[progressKey]Progress),
		seq:      s.state.seq,
		lastTS:   s.state.lastTS,
	}
}

func (tx *Tx) dirty() bool {
	return len(tx.opened) > 0 || len(tx.appended) > 0 || len(tx.progress) > 0
}

// Now returns the timestamp the next transaction will carry. Timestamps
// never go backwards within a process even if the wall clock does.
func (tx *Tx) Now() time.Time {
	now := tx.s.now().UTC()
	if now.Before(tx.lastTS) {
		return tx.lastTS
	}

	return now
}

// NewLinkID returns a fresh identifier for grouping related transactions.
func (tx *Tx) NewLinkID() string {
	return tx.s.newID()
}

func (tx *Tx) Exists(userID string) bool {
	if _, ok := tx.balances[userID]; ok {
		return true
	}

	_, ok := tx.base.accounts[userID]

	return ok
}

// OpenAccount registers userID with zero balances. It reports false when the
// account already exists.
func (tx *Tx) OpenAccount(userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrInvalidUserID
	}

	if tx.Exists(userID) {
		return false, nil
	}

	tx.opened = append(tx.opened, userID)
	tx.balances[userID] = Balance{}

	return true, nil
}

func (tx *Tx) Balances(userID string) (Balance, error) {
	if b, ok := tx.balances[userID]; ok {
		return b, nil
	}

	b, ok := tx.base.accounts[userID]
	if !ok {
		return Balance{}, ErrUnknownUser
	}

	return *b, nil
}

func (tx *Tx) Balance(userID string, c Currency) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCurrency, c)
	}

	b, err := tx.Balances(userID)
	if err != nil {
		return 0, err
	}

	return b.Of(c), nil
}

// Earn stages a positive transaction and increments the cached balance. A
// credit that would push the balance past math.MaxInt64 is rejected with
// ErrInvalidAmount.
func (tx *Tx) Earn(e Entry) (Transaction, error) {
	err := tx.validate(e)
	if err != nil {
		return Transaction{}, err
	}

	bal, err := tx.Balance(e.UserID, e.Currency)
	if err != nil {
		return Transaction{}, err
	}

	if bal > math.MaxInt64-e.Amount {
		return Transaction{}, fmt.Errorf("%w: crediting %s %s to %s overflows the balance", ErrInvalidAmount,
			FormatAmount(e.Currency, e.Amount), e.Currency, FormatAmount(e.Currency, bal))
	}

	return tx.record(e, e.Amount), nil
}

// Spend stages a negative transaction. It fails with ErrInsufficientBalance,
// staging nothing, when the balance is below the amount.
func (tx *Tx) Spend(e Entry) (Transaction, error) {
	err := tx.validate(e)
	if err != nil {
		return Transaction{}, err
	}

	bal, err := tx.Balance(e.UserID, e.Currency)
	if err != nil {
		return Transaction{}, err
	}

	if bal < e.Amount {
		return Transaction{}, fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance,
			FormatAmount(e.Currency, bal), FormatAmount(e.Currency, e.Amount), e.Currency)
	}

	return tx.record(e, -e.Amount), nil
}

func (tx *Tx) validate(e Entry) error {
	if !e.Currency.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, e.Currency)
	}

	if e.Amount <= 0 {
		return fmt.Errorf("%w: must be > 0, got %d", ErrInvalidAmount, e.Amount)
	}

	if !tx.Exists(e.UserID) {
		return ErrUnknownUser
	}

	return nil
}

func (tx *Tx) record(e Entry, signed int64) Transaction {
	ts := tx.Now()
	tx.seq++
	tx.lastTS = ts

	t := Transaction{
		ID:          tx.s.newID(),
		Seq:         tx.seq,
		UserID:      e.UserID,
		Currency:    e.Currency,
		Amount:      signed,
		Description: e.Description,
		MissionRef:  e.MissionRef,
		LinkID:      e.LinkID,
		Timestamp:   ts,
	}

	b, _ := tx.Balances(e.UserID)
	b.add(e.Currency, signed)
	tx.balances[e.UserID] = b
	tx.appended = append(tx.appended, t)

	return t
}

func (tx *Tx) Progress(userID, missionID string) Progress {
	k := progressKey{userID: userID, missionID: missionID}
	if p, ok := tx.progress[k]; ok {
		return p
	}

	return tx.base.progress[k]
}

// SetProgress stages mission progress for an existing account.
func (tx *Tx) SetProgress(userID, missionID string, p Progress) error {
	if !tx.Exists(userID) {
		return ErrUnknownUser
	}

	if p.Count < 0 {
		return fmt.Errorf("%w: progress count %d", ErrInvalidAmount, p.Count)
	}

	k := progressKey{userID: userID, missionID: missionID}
	if tx.Progress(userID, missionID) == p {
		return nil
	}

	tx.progress[k] = p

	return nil
}

// apply builds the state that results from the staged changes without
// touching the base state.
func (tx *Tx) apply() *state {
	base := tx.base
	next := &state{
		accounts: maps.Clone(base.accounts),
		txns:     slices.Concat(base.txns, tx.appended),
		byUser:   maps.Clone(base.byUser),
		progress: maps.Clone(base.progress),
		seq:      tx.seq,
		lastTS:   tx.lastTS,
	}

	for id, b := range tx.balances {
		bal := b
		next.accounts[id] = &bal
	}

	for i, t := range tx.appended {
		next.byUser[t.UserID] = append(next.byUser[t.UserID], len(base.txns)+i)
	}

	for k, p := range tx.progress {
		next.progress[k] = p
	}

	return next
}
