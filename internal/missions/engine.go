package missions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
)

var (
	ErrMissionNotFound         = errors.New("mission not found")
	ErrMissionAlreadyCompleted = errors.New("mission already completed")
	ErrMissionNotEligible      = errors.New("mission not eligible for completion")
)

type Status int

const (
	NotStarted Status = iota
	InProgress
	Completed
)

func (s Status) String() string {
	switch s {
	case InProgress:
		return "IN_PROGRESS"
	case Completed:
		return "COMPLETED"
	default:
		return "NOT_STARTED"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is a mission as seen by one user.
type State struct {
	Mission     Mission   `json:"mission"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
}

// Eligible reports whether the user may complete the mission now.
func (s State) Eligible() bool {
	return s.Status != Completed && s.Progress >= s.Mission.Requirement.TargetCount
}

func stateOf(m Mission, p ledger.Progress) State {
	st := State{Mission: m, Progress: p.Count, CompletedAt: p.CompletedAt}

	switch {
	case p.Completed:
		st.Status = Completed
	case p.Count > 0:
		st.Status = InProgress
	default:
		st.Status = NotStarted
	}

	return st
}

// Completion is the outcome of a successful Complete call.
type Completion struct {
	State   State                `json:"state"`
	Rewards []ledger.Transaction `json:"rewards"`
}

// Engine drives per-user mission progress. All state lives in the ledger
// store; the engine only stages changes through it.
type Engine struct {
	catalog *Catalog
	store   *ledger.Store
}

func NewEngine(catalog *Catalog, store *ledger.Store) *Engine {
	return &Engine{catalog: catalog, store: store}
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Progress adds incrementBy to the user's count, clamped at the target.
// Reaching the target makes the mission eligible but issues no reward.
func (e *Engine) Progress(ctx context.Context, userID, missionID string, incrementBy int) (State, error) {
	var out State

	err := e.store.WithTx(ctx, func(tx *ledger.Tx) error {
		st, err := e.ProgressIn(tx, userID, missionID, incrementBy)
		out = st

		return err
	})
	if err != nil {
		return State{}, err
	}

	return out, nil
}

func (e *Engine) ProgressIn(tx *ledger.Tx, userID, missionID string, incrementBy int) (State, error) {
	m, ok := e.catalog.Get(missionID)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrMissionNotFound, missionID)
	}

	if incrementBy <= 0 {
		return State{}, fmt.Errorf("%w: increment must be > 0, got %d", ledger.ErrInvalidAmount, incrementBy)
	}

	if !tx.Exists(userID) {
		return State{}, ledger.ErrUnknownUser
	}

	p := tx.Progress(userID, missionID)
	if p.Completed {
		return stateOf(m, p), fmt.Errorf("%w: %s", ErrMissionAlreadyCompleted, missionID)
	}

	p.Count = min(p.Count+incrementBy, m.Requirement.TargetCount)

	err := tx.SetProgress(userID, missionID, p)
	if err != nil {
		return State{}, fmt.Errorf("set progress: %w", err)
	}

	return stateOf(m, p), nil
}

// Complete marks an eligible mission completed and issues its rewards in the
// same unit of work. A second call fails with ErrMissionAlreadyCompleted and
// changes nothing.
func (e *Engine) Complete(ctx context.Context, userID, missionID string) (Completion, error) {
	var out Completion

	err := e.store.WithTx(ctx, func(tx *ledger.Tx) error {
		c, err := e.CompleteIn(tx, userID, missionID)
		out = c

		return err
	})
	if err != nil {
		return Completion{}, err
	}

	slog.Info("mission completed",
		"user_id", userID,
		"mission_id", missionID,
		"rewards", len(out.Rewards),
	)

	return out, nil
}

func (e *Engine) CompleteIn(tx *ledger.Tx, userID, missionID string) (Completion, error) {
	m, ok := e.catalog.Get(missionID)
	if !ok {
		return Completion{}, fmt.Errorf("%w: %s", ErrMissionNotFound, missionID)
	}

	if !tx.Exists(userID) {
		return Completion{}, ledger.ErrUnknownUser
	}

	p := tx.Progress(userID, missionID)
	if p.Completed {
		return Completion{}, fmt.Errorf("%w: %s", ErrMissionAlreadyCompleted, missionID)
	}

	if p.Count < m.Requirement.TargetCount {
		return Completion{}, fmt.Errorf("%w: %s progress %d/%d", ErrMissionNotEligible,
			missionID, p.Count, m.Requirement.TargetCount)
	}

	var rewards []ledger.Transaction

	desc := "Mission completed: " + m.Title

	for _, r := range []struct {
		currency ledger.Currency
		amount   int64
	}{
		{ledger.Leaf, m.LeafReward},
		{ledger.TreeCoin, m.TreeCoinReward},
	} {
		if r.amount <= 0 {
			continue
		}

		t, err := tx.Earn(ledger.Entry{
			UserID:      userID,
			Currency:    r.currency,
			Amount:      r.amount,
			Description: desc,
			MissionRef:  m.ID,
		})
		if err != nil {
			return Completion{}, fmt.Errorf("issue %s reward: %w", r.currency, err)
		}

		rewards = append(rewards, t)
	}

	done := ledger.Progress{Count: m.Requirement.TargetCount, Completed: true, CompletedAt: tx.Now()}
	if m.Repeatable {
		done = ledger.Progress{CompletedAt: done.CompletedAt}
	}

	err := tx.SetProgress(userID, missionID, done)
	if err != nil {
		return Completion{}, fmt.Errorf("set progress: %w", err)
	}

	return Completion{State: stateOf(m, done), Rewards: rewards}, nil
}

func (e *Engine) State(userID, missionID string) (State, error) {
	m, ok := e.catalog.Get(missionID)
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrMissionNotFound, missionID)
	}

	if !e.store.Exists(userID) {
		return State{}, ledger.ErrUnknownUser
	}

	return stateOf(m, e.store.Progress(userID, missionID)), nil
}

// Missions returns the whole catalog with the user's state for each entry.
func (e *Engine) Missions(userID string) ([]State, error) {
	if !e.store.Exists(userID) {
		return nil, ledger.ErrUnknownUser
	}

	all := e.catalog.All()
	out := make([]State, 0, len(all))

	for _, m := range all {
		out = append(out, stateOf(m, e.store.Progress(userID, m.ID)))
	}

	return out, nil
}

// Completed returns the user's completed missions in catalog order.
func (e *Engine) Completed(userID string) ([]Mission, error) {
	states, err := e.Missions(userID)
	if err != nil {
		return nil, err
	}

	var out []Mission
	for _, st := range states {
		if st.Status == Completed {
			out = append(out, st.Mission)
		}
	}

	return out, nil
}
