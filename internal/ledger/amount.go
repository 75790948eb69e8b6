package ledger

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	treeCoinDigits = 3

	// TreeCoinScale is the number of TreeCoin minor units per whole coin.
	TreeCoinScale int64 = 1000
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

func digits(c Currency) int32 {
	if c == TreeCoin {
		return treeCoinDigits
	}

	return 0
}

// FormatAmount renders minor units as a decimal string, e.g. 2500 TreeCoin -> "2.500".
func FormatAmount(c Currency, minor int64) string {
	d := digits(c)
	if d == 0 {
		return decimal.NewFromInt(minor).String()
	}

	return decimal.New(minor, -d).StringFixed(d)
}

// ParseAmount converts a decimal string into minor units of c. Fractions finer
// than the currency precision are rejected rather than rounded.
func ParseAmount(c Currency, s string) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCurrency, c)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	scaled := d.Shift(digits(c))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s supports %d decimals", ErrInvalidAmount, c, digits(c))
	}

	if !scaled.IsPositive() {
		return 0, fmt.Errorf("%w: must be > 0", ErrInvalidAmount)
	}

	if scaled.GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("%w: %s exceeds the largest %s amount", ErrInvalidAmount, s, c)
	}

	return scaled.IntPart(), nil
}
