package ecoscore

import (
	"errors"
	"fmt"
	"iter"

	"github.com/EDWINLEGEND/opshare-cegg-sub000/internal/ledger"
)

const (
	DefaultMaxScore     int64 = 100
	DefaultScaleDivisor int64 = 500
)

var ErrInvalidScale = errors.New("eco score scale must be positive")

type TransactionSource interface {
	Transactions(userID string, limit int) (iter.Seq[ledger.Transaction], error)
}

// SustainabilityIndex decides which mission rewards count towards the score.
type SustainabilityIndex interface {
	IsSustainable(missionRef string) bool
}

// Calculator derives eco scores from the transaction log on demand. Nothing
// it computes is stored.
type Calculator struct {
	txns     TransactionSource
	index    SustainabilityIndex
	maxScore int64
	divisor  int64
}

func NewCalculator(txns TransactionSource, index SustainabilityIndex, maxScore, divisor int64) (*Calculator, error) {
	if maxScore <= 0 || divisor <= 0 {
		return nil, fmt.Errorf("%w: max %d, divisor %d", ErrInvalidScale, maxScore, divisor)
	}

	return &Calculator{txns: txns, index: index, maxScore: maxScore, divisor: divisor}, nil
}

func (c *Calculator) MaxScore() int64 {
	return c.maxScore
}

// Points sums the Leaf rewards the user earned from sustainable missions.
func (c *Calculator) Points(userID string) (int64, error) {
	seq, err := c.txns.Transactions(userID, 0)
	if err != nil {
		return 0, err
	}

	var points int64
	for t := range seq {
		if t.Currency != ledger.Leaf || t.Kind() != ledger.KindEarned || t.MissionRef == "" {
			continue
		}

		if c.index.IsSustainable(t.MissionRef) {
			points += t.Amount
		}
	}

	return points, nil
}

func (c *Calculator) Score(userID string) (int64, error) {
	points, err := c.Points(userID)
	if err != nil {
		return 0, err
	}

	return c.ScoreFromPoints(points), nil
}

// ScoreFromPoints scales points into [0, max] with integer floor division.
func (c *Calculator) ScoreFromPoints(points int64) int64 {
	if points <= 0 {
		return 0
	}

	if points >= c.divisor {
		return c.maxScore
	}

	return min(points*c.maxScore/c.divisor, c.maxScore)
}

// Level maps a score produced by this calculator onto the level bands, which
// are defined on a 0-100 scale.
func (c *Calculator) Level(score int64) Level {
	score = max(0, min(score, c.maxScore))

	return LevelFor(score * DefaultMaxScore / c.maxScore)
}
