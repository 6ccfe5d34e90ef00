package bridge

import (
	"fmt"

	"github.com/opbridge/opbridge/op-service/eth"
)

var (
	// MinAmount is the exclusive lower bound of a transfer.
	MinAmount = eth.OneThousandth
	// MaxAmount is the inclusive upper bound of a transfer.
	MaxAmount = eth.TenEther
	// DefaultAmount is transferred when no amount is given.
	DefaultAmount = "0.01"
)

// ParseAmount parses a human-entered ETH amount and checks MinAmount < amount <= MaxAmount.
// Exponent notation such as "1e-2" is accepted. Bounds are checked on the exact value
// before precision, so out-of-range amounts report the bound they violate.
func ParseAmount(input string) (eth.ETH, error) {
	wei, err := eth.ParseWeiRat(input)
	if err != nil {
		return eth.ZeroWei, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, input, err)
	}
	if wei.Cmp(MinAmount.Rat()) <= 0 {
		return eth.ZeroWei, fmt.Errorf("%w: %q, must be > %s ETH per tx", ErrBelowMinimum, input, MinAmount.EtherString())
	}
	if wei.Cmp(MaxAmount.Rat()) > 0 {
		return eth.ZeroWei, fmt.Errorf("%w: %q, must be <= %s ETH per tx", ErrAboveMaximum, input, MaxAmount.EtherString())
	}
	amount, err := eth.ExactWei(wei)
	if err != nil {
		return eth.ZeroWei, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, input, err)
	}
	return amount, nil
}
