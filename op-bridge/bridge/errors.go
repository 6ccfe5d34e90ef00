package bridge

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBelowMinimum        = errors.New("amount below minimum")
	ErrAboveMaximum        = errors.New("amount above maximum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrDerivationNotFound is returned by a ChainClient when an L1 receipt carries no deposit.
	ErrDerivationNotFound = errors.New("L2 transaction hash not found in L1 receipt")
	ErrNoTransition       = errors.New("no transition for stage")
)

// RevertedError is a transaction that was mined with a failed status.
type RevertedError struct {
	Stage  Stage
	Chain  Chain
	TxHash common.Hash
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("%s transaction %s reverted at stage %s", e.Chain, e.TxHash, e.Stage)
}

func (e *RevertedError) Unwrap() error {
	return ErrTransactionReverted
}
