package network

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package wraps exactly one of
// them, so callers can branch with errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrUnsupportedCombination = errors.New("unsupported combination")
)

// Specific failures.
var (
	ErrSelfLoop         = fmt.Errorf("%w: self-loops are not allowed", ErrValidation)
	ErrSelfMerge        = fmt.Errorf("%w: a bank cannot acquire itself", ErrValidation)
	ErrAlreadyInNetwork = fmt.Errorf("%w: already in network", ErrValidation)
	ErrInvalidWeight    = fmt.Errorf("%w: weight must be non-negative and finite", ErrValidation)
	ErrInvalidParameter = fmt.Errorf("%w: parameter out of range", ErrValidation)
	ErrTooFewBanks      = fmt.Errorf("%w: at least two banks are required", ErrValidation)
	ErrNotInNetwork     = fmt.Errorf("%w: not in network", ErrNotFound)
	ErrNoSuchLink       = fmt.Errorf("%w: no such link", ErrNotFound)
	ErrNoSuchInvestment = fmt.Errorf("%w: no such investment", ErrNotFound)
	ErrNoPendingState   = fmt.Errorf("%w: no pending balance sheet", ErrInvalidState)
	ErrPairingExhausted = fmt.Errorf("%w: merge pairing exhausted", ErrInvalidState)
	ErrMergeDefaulted   = fmt.Errorf("%w: defaulted banks cannot merge, reset the cascade first", ErrInvalidState)

	ErrSequentialFireSale = fmt.Errorf("%w: sequential cascade does not support asset devaluation", ErrUnsupportedCombination)
)

func bankNotFound(id BankID) error {
	return fmt.Errorf("bank %d: %w", id, ErrNotInNetwork)
}

func assetNotFound(id AssetID) error {
	return fmt.Errorf("asset %d: %w", id, ErrNotInNetwork)
}
