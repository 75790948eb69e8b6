package ledger

import (
	"fmt"
	"strings"
	"time"
)

type Currency string

const (
	Leaf     Currency = "LEAF"
	TreeCoin Currency = "TREECOIN"
)

func (c Currency) Valid() bool {
	return c == Leaf || c == TreeCoin
}

// ParseCurrency accepts the canonical names plus the lower-case forms used by the UI.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LEAF", "LEAFS":
		return Leaf, nil
	case "TREECOIN", "TREECOINS", "TREE_COIN":
		return TreeCoin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
}

type Kind string

const (
	KindEarned Kind = "EARNED"
	KindSpent  Kind = "SPENT"
)

// Transaction is an immutable ledger record. Amount is in minor units of
// Currency and is positive when earned, negative when spent.
type Transaction struct {
	ID          string    `json:"id"`
	Seq         int64     `json:"seq"`
	UserID      string    `json:"userId"`
	Currency    Currency  `json:"currency"`
	Amount      int64     `json:"amount"`
	Description string    `json:"description"`
	MissionRef  string    `json:"missionRef,omitempty"`
	LinkID      string    `json:"linkId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (t Transaction) Kind() Kind {
	if t.Amount < 0 {
		return KindSpent
	}

	return KindEarned
}

// Entry describes a mutation requested from the ledger.
type Entry struct {
	UserID      string
	Currency    Currency
	Amount      int64 // minor units, always positive
	Description string
	MissionRef  string
	LinkID      string
}

// Balance is a user's cached running totals in minor units.
type Balance struct {
	Leaf     int64 `json:"leaf"`
	TreeCoin int64 `json:"treeCoin"`
}

func (b Balance) Of(c Currency) int64 {
	if c == TreeCoin {
		return b.TreeCoin
	}

	return b.Leaf
}

func (b *Balance) add(c Currency, delta int64) {
	if c == TreeCoin {
		b.TreeCoin += delta
		return
	}

	b.Leaf += delta
}

// Progress is the per-(user, mission) state the mission engine stores here.
type Progress struct {
	Count       int       `json:"count"`
	Completed   bool      `json:"completed"`
	CompletedAt time.Time `json:"completedAt"`
}

type progressKey struct {
	userID    string
	missionID string
}
