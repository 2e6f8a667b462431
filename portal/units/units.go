package units

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision shared by ETH (wei) and the DEX token.
const Decimals = 18

var unitScale = decimal.New(1, Decimals)

// ToSmallestUnit converts a human-facing decimal string ("1.5") into an integer
// amount in the smallest unit (1500000000000000000). The input must resolve to
// a whole number of smallest units.
func ToSmallestUnit(human string) (*big.Int, error) {
	d, err := decimal.NewFromString(human)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", human, err)
	}
	scaled := d.Mul(unitScale)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q has more than %d decimal places", human, Decimals)
	}
	return scaled.BigInt(), nil
}

// FromSmallestUnit renders an integer smallest-unit amount as a human-facing
// decimal string. A nil amount renders as "0".
func FromSmallestUnit(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -Decimals).String()
}

// ParsePositiveAmount converts a human-facing decimal string and rejects
// anything that is not strictly positive. Every user-entered amount goes
// through here before it reaches the chain.
func ParsePositiveAmount(human string) (*big.Int, error) {
	amount, err := ToSmallestUnit(human)
	if err != nil {
		return nil, err
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", human)
	}
	return amount, nil
}

// DeadlineFromMinutes computes an absolute unix deadline from a relative
// minute count, the only deadline form the UI accepts.
func DeadlineFromMinutes(now time.Time, minutes int64) (uint64, error) {
	if minutes <= 0 {
		return 0, fmt.Errorf("deadline minutes must be positive, got %d", minutes)
	}
	return uint64(now.Unix() + minutes*60), nil
}
