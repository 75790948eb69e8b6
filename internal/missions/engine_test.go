package missions

import (
	"errors"
	"testing"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
	memsnapshots "github.com/EDWINLEGEND/opshare-cegg-sub000/internal/repos/snapshots/memory"
)

func newTestEngine(t *testing.T, users ...string) (*Engine, *ledger.Store, *memsnapshots.Repo) {
	t.Helper()

	repo := memsnapshots.New()
	store := ledger.New(repo)

	err := store.Open(t.Context())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	err = store.WithTx(t.Context(), func(tx *ledger.Tx) error {
		for _, u := range users {
			_, err := tx.OpenAccount(u)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		t.Fatalf("open accounts: %v", err)
	}

	return NewEngine(MustDefaultCatalog(), store), store, repo
}

func missionTxns(t *testing.T, store *ledger.Store, userID, missionID string) []ledger.Transaction {
	t.Helper()

	seq, err := store.Transactions(userID, 0)
	if err != nil {
		t.Fatal(err)
	}

	var out []ledger.Transaction
	for txn := range seq {
		if txn.MissionRef == missionID {
			out = append(out, txn)
		}
	}

	return out
}

func TestEngine_ProgressThenComplete(t *testing.T) {
	t.Parallel()

	e, store, _ := newTestEngine(t, "u2")

	st, err := e.Progress(t.Context(), "u2", FirstListing, 1)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !st.Eligible() || st.Status != InProgress {
		t.Fatalf("state after progress = %+v, want eligible in progress", st)
	}

	bal, _ := store.Balance("u2", ledger.Leaf)
	if bal != 0 {
		t.Fatalf("progress must not reward, balance = %d", bal)
	}

	c, err := e.Complete(t.Context(), "u2", FirstListing)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if c.State.Status != Completed || len(c.Rewards) != 1 {
		t.Fatalf("completion = %+v", c)
	}

	bal, _ = store.Balance("u2", ledger.Leaf)
	if bal != 50 {
		t.Fatalf("balance = %d, want 50", bal)
	}

	if txns := missionTxns(t, store, "u2", FirstListing); len(txns) != 1 || txns[0].Description != "Mission completed: First Listing" {
		t.Fatalf("reward transactions = %+v", txns)
	}
}

func TestEngine_CompleteTwiceIsIdempotent(t *testing.T) {
	t.Parallel()

	e, store, repo := newTestEngine(t, "u1")

	_, err := e.Progress(t.Context(), "u1", ReferFriend, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = e.Complete(t.Context(), "u1", ReferFriend)
	if err != nil {
		t.Fatalf("first complete: %v", err)
	}

	after, _ := store.Balances("u1")
	if after.Leaf != 200 || after.TreeCoin != 250 {
		t.Fatalf("balances = %+v, want 200 leafs and 0.250 tree coins", after)
	}

	saves := repo.Saves()

	_, err = e.Complete(t.Context(), "u1", ReferFriend)
	if !errors.Is(err, ErrMissionAlreadyCompleted) {
		t.Fatalf("second complete: want ErrMissionAlreadyCompleted, got %v", err)
	}

	again, _ := store.Balances("u1")
	if again != after {
		t.Fatalf("balance changed on second completion: %+v -> %+v", after, again)
	}
	if n := len(missionTxns(t, store, "u1", ReferFriend)); n != 2 {
		t.Fatalf("reward transactions = %d, want one per currency", n)
	}
	if repo.Saves() != saves {
		t.Fatal("rejected completion must not write")
	}

	_, err = e.Progress(t.Context(), "u1", ReferFriend, 1)
	if !errors.Is(err, ErrMissionAlreadyCompleted) {
		t.Fatalf("progress after completion: want ErrMissionAlreadyCompleted, got %v", err)
	}
}

func TestEngine_ProgressClampsAtTarget(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, "u1")

	for _, inc := range []int{2, 100, 1, 7} {
		st, err := e.Progress(t.Context(), "u1", ShareItem, inc)
		if err != nil {
			t.Fatalf("progress %d: %v", inc, err)
		}
		if st.Progress > st.Mission.Requirement.TargetCount {
			t.Fatalf("progress %d exceeds target %d", st.Progress, st.Mission.Requirement.TargetCount)
		}
	}

	st, err := e.State("u1", ShareItem)
	if err != nil {
		t.Fatal(err)
	}
	if st.Progress != 5 {
		t.Fatalf("progress = %d, want 5", st.Progress)
	}
}

func TestEngine_Errors(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, "u1")

	tests := []struct {
		name    string
		run     func() error
		wantErr error
	}{
		{"progress_unknown_mission", func() error {
			_, err := e.Progress(t.Context(), "u1", "NOPE", 1)
			return err
		}, ErrMissionNotFound},
		{"progress_zero_increment", func() error {
			_, err := e.Progress(t.Context(), "u1", ShareItem, 0)
			return err
		}, ledger.ErrInvalidAmount},
		{"progress_unknown_user", func() error {
			_, err := e.Progress(t.Context(), "ghost", ShareItem, 1)
			return err
		}, ledger.ErrUnknownUser},
		{"complete_unknown_mission", func() error {
			_, err := e.Complete(t.Context(), "u1", "NOPE")
			return err
		}, ErrMissionNotFound},
		{"complete_not_eligible", func() error {
			_, err := e.Complete(t.Context(), "u1", LeaveReview)
			return err
		}, ErrMissionNotEligible},
		{"missions_unknown_user", func() error {
			_, err := e.Missions("ghost")
			return err
		}, ledger.ErrUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestEngine_CompleteRollsBackOnPersistenceFailure(t *testing.T) {
	t.Parallel()

	e, store, repo := newTestEngine(t, "u1")

	_, err := e.Progress(t.Context(), "u1", SustainableChoice, 5)
	if err != nil {
		t.Fatal(err)
	}

	repo.FailWith(errors.New("disk full"))

	_, err = e.Complete(t.Context(), "u1", SustainableChoice)
	if !errors.Is(err, ledger.ErrPersistenceWriteFailed) {
		t.Fatalf("want ErrPersistenceWriteFailed, got %v", err)
	}

	st, _ := e.State("u1", SustainableChoice)
	if st.Status == Completed {
		t.Fatal("mission marked completed despite failed write")
	}

	b, _ := store.Balances("u1")
	if b != (ledger.Balance{}) {
		t.Fatalf("balances = %+v, want zero", b)
	}

	repo.FailWith(nil)

	_, err = e.Complete(t.Context(), "u1", SustainableChoice)
	if err != nil {
		t.Fatalf("retry complete: %v", err)
	}
}

func TestEngine_MissionsAndCompleted(t *testing.T) {
	t.Parallel()

	e, _, _ := newTestEngine(t, "u1")

	_, err := e.Progress(t.Context(), "u1", CompleteProfile, 1)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Complete(t.Context(), "u1", CompleteProfile)
	if err != nil {
		t.Fatal(err)
	}
	_, err = e.Progress(t.Context(), "u1", RentItem, 1)
	if err != nil {
		t.Fatal(err)
	}

	states, err := e.Missions("u1")
	if err != nil {
		t.Fatal(err)
	}

	got := map[string]Status{}
	for _, st := range states {
		got[st.Mission.ID] = st.Status
	}

	if got[CompleteProfile] != Completed || got[RentItem] != InProgress || got[Signup] != NotStarted {
		t.Fatalf("statuses = %v", got)
	}

	done, err := e.Completed("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].ID != CompleteProfile {
		t.Fatalf("completed = %+v", done)
	}
}
