package ledger

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

const snapshotVersion = 1

type snapshot struct {
	Version      int                `json:"version"`
	Balances     map[string]Balance `json:"balances"`
	Transactions []Transaction      `json:"transactions"`
	Missions     []missionSnapshot  `json:"missions"`
}

type missionSnapshot struct {
	ID             string               `json:"id"`
	ProgressByUser map[string]int       `json:"progressByUser"`
	CompletedBy    map[string]time.Time `json:"completedBy"`
}

func encodeSnapshot(st *state) ([]byte, error) {
	snap := snapshot{
		Version:      snapshotVersion,
		Balances:     make(map[string]Balance, len(st.accounts)),
		Transactions: st.txns,
	}

	for id, b := range st.accounts {
		snap.Balances[id] = *b
	}

	byMission := make(map[string]*missionSnapshot)
	for k, p := range st.progress {
		ms, ok := byMission[k.missionID]
		if !ok {
			ms = &missionSnapshot{
				ID:             k.missionID,
				ProgressByUser: make(map[string]int),
				CompletedBy:    make(map[string]time.Time),
			}
			byMission[k.missionID] = ms
		}

		ms.ProgressByUser[k.userID] = p.Count
		if p.Completed {
			ms.CompletedBy[k.userID] = p.CompletedAt
		}
	}

	for _, ms := range byMission {
		snap.Missions = append(snap.Missions, *ms)
	}

	slices.SortFunc(snap.Missions, func(a, b missionSnapshot) int {
		return cmp.Compare(a.ID, b.ID)
	})

	return json.Marshal(snap)
}

// decodeSnapshot rebuilds state from a payload. Balances are recomputed from
// the transaction log; the cached totals in the payload are only compared.
func decodeSnapshot(payload []byte) (*state, error) {
	var snap snapshot

	err := json.Unmarshal(payload, &snap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptSnapshot, snap.Version)
	}

	st := newState()

	for id := range snap.Balances {
		st.accounts[id] = &Balance{}
	}

	seen := make(map[string]struct{}, len(snap.Transactions))

	for i, t := range snap.Transactions {
		if !t.Currency.Valid() || t.Amount == 0 || t.ID == "" {
			return nil, fmt.Errorf("%w: malformed transaction at %d", ErrCorruptSnapshot, i)
		}

		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate transaction id %s", ErrCorruptSnapshot, t.ID)
		}
		seen[t.ID] = struct{}{}

		if t.Seq <= st.seq {
			return nil, fmt.Errorf("%w: transaction %s out of order", ErrCorruptSnapshot, t.ID)
		}

		b, ok := st.accounts[t.UserID]
		if !ok {
			b = &Balance{}
			st.accounts[t.UserID] = b
		}

		b.add(t.Currency, t.Amount)
		st.byUser[t.UserID] = append(st.byUser[t.UserID], i)
		st.seq = t.Seq

		if t.Timestamp.After(st.lastTS) {
			st.lastTS = t.Timestamp
		}
	}

	st.txns = snap.Transactions

	for id, b := range st.accounts {
		if b.Leaf < 0 || b.TreeCoin < 0 {
			return nil, fmt.Errorf("%w: user %s has negative balance in log", ErrCorruptSnapshot, id)
		}

		cached, ok := snap.Balances[id]
		if ok && cached != *b {
			slog.Warn("snapshot balance drift, using log totals",
				"user_id", id,
				"cached_leaf", cached.Leaf,
				"cached_treecoin", cached.TreeCoin,
				"log_leaf", b.Leaf,
				"log_treecoin", b.TreeCoin,
			)
		}
	}

	for _, ms := range snap.Missions {
		for userID, count := range ms.ProgressByUser {
			p := Progress{Count: count}
			if at, done := ms.CompletedBy[userID]; done {
				p.Completed = true
				p.CompletedAt = at
			}

			st.progress[progressKey{userID: userID, missionID: ms.ID}] = p
		}

		for userID, at := range ms.CompletedBy {
			k := progressKey{userID: userID, missionID: ms.ID}
			if _, ok := st.progress[k]; !ok {
				st.progress[k] = Progress{Completed: true, CompletedAt: at}
			}
		}
	}

	return st, nil
}
