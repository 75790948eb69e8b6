package conversion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
)

const DefaultRatio int64 = 1000

var ErrInvalidRatio = errors.New("conversion ratio must be positive")

// Result describes one committed conversion. TreeCoinsEarned is in ledger
// minor units.
type Result struct {
	LeafsSpent      int64  `json:"leafsSpent"`
	TreeCoinsEarned int64  `json:"treeCoinsEarned"`
	LinkID          string `json:"linkId"`
}

// Engine converts Leafs into TreeCoins at a fixed ratio of Leafs per coin.
type Engine struct {
	store *ledger.Store
	ratio int64
}

func New(store *ledger.Store, ratio int64) (*Engine, error) {
	if ratio <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRatio, ratio)
	}

	return &Engine{store: store, ratio: ratio}, nil
}

func (e *Engine) Ratio() int64 {
	return e.ratio
}

// Quote returns the TreeCoin minor units that converting leafs would credit.
func (e *Engine) Quote(leafs int64) (int64, error) {
	if leafs <= 0 || leafs%e.ratio != 0 {
		return 0, fmt.Errorf("%w: %d is not a positive multiple of %d", ledger.ErrInvalidAmount, leafs, e.ratio)
	}

	coins := leafs / e.ratio
	if coins > math.MaxInt64/ledger.TreeCoinScale {
		return 0, fmt.Errorf("%w: %d leafs exceeds the largest convertible amount", ledger.ErrInvalidAmount, leafs)
	}

	return coins * ledger.TreeCoinScale, nil
}

// Convert spends Leafs and credits TreeCoins as one unit of work. A nil amount
// converts the largest multiple of the ratio the balance allows.
func (e *Engine) Convert(ctx context.Context, userID string, amount *int64) (Result, error) {
	var out Result

	err := e.store.WithTx(ctx, func(tx *ledger.Tx) error {
		res, err := e.ConvertIn(tx, userID, amount)
		out = res

		return err
	})
	if err != nil {
		return Result{}, err
	}

	slog.Info("leafs converted",
		"user_id", userID,
		"leafs", out.LeafsSpent,
		"tree_coins", ledger.FormatAmount(ledger.TreeCoin, out.TreeCoinsEarned),
		"link_id", out.LinkID,
	)

	return out, nil
}

func (e *Engine) ConvertIn(tx *ledger.Tx, userID string, amount *int64) (Result, error) {
	balance, err := tx.Balance(userID, ledger.Leaf)
	if err != nil {
		return Result{}, err
	}

	var leafs int64

	if amount == nil {
		leafs = balance / e.ratio * e.ratio
		if leafs == 0 {
			return Result{}, fmt.Errorf("%w: %d leafs is below the ratio of %d", ledger.ErrInsufficientBalance, balance, e.ratio)
		}
	} else {
		leafs = *amount
	}

	credit, err := e.Quote(leafs)
	if err != nil {
		return Result{}, err
	}

	link := tx.NewLinkID()

	_, err = tx.Spend(ledger.Entry{
		UserID:      userID,
		Currency:    ledger.Leaf,
		Amount:      leafs,
		Description: "Converted to TreeCoins",
		LinkID:      link,
	})
	if err != nil {
		return Result{}, fmt.Errorf("debit leafs: %w", err)
	}

	_, err = tx.Earn(ledger.Entry{
		UserID:      userID,
		Currency:    ledger.TreeCoin,
		Amount:      credit,
		Description: "Converted from Leafs",
		LinkID:      link,
	})
	if err != nil {
		return Result{}, fmt.Errorf("credit tree coins: %w", err)
	}

	return Result{LeafsSpent: leafs, TreeCoinsEarned: credit, LinkID: link}, nil
}
