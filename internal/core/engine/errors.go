package engine

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrRailNotFound          = errors.New("rail not found")
	ErrRailFinalized         = errors.New("rail already finalized")
	ErrRailTerminated        = errors.New("rail is terminated")
	ErrRailNotTerminated     = errors.New("rail is not terminated")
	ErrOperatorNotApproved   = errors.New("operator not approved")
	ErrNotAuthorized         = errors.New("caller not authorized for this rail")
	ErrInvalidRateChange     = errors.New("invalid rate change")
	ErrAccountNotSettled     = errors.New("payer account is not fully settled")
	ErrRateChangeQueueFull   = errors.New("rate change queue is full")
	ErrValidatorNotFound     = errors.New("validator not registered")
	ErrInvalidAmount         = errors.New("amount must be non-negative")
	ErrLockupPeriodTooLong   = errors.New("lockup period exceeds operator maximum")
	ErrCommissionTooHigh     = errors.New("commission exceeds maximum bps")
	ErrMissingFeeRecipient   = errors.New("commission requires a service fee recipient")
	ErrSelfRail              = errors.New("payer and payee must differ")
	ErrBadAuthorization      = errors.New("deposit authorization rejected")
	ErrAuthorizationReplayed = errors.New("deposit authorization nonce already used")
)

// InsufficientUnlockedFundsError is returned when a withdraw or lockup
// increase would dip into locked funds.
type InsufficientUnlockedFundsError struct {
	Available *big.Int
	Requested *big.Int
}

func (e *InsufficientUnlockedFundsError) Error() string {
	return fmt.Sprintf("insufficient unlocked funds: available %s, requested %s",
		e.Available, e.Requested)
}

// AllowanceExceededError is returned when a rail mutation would push the
// operator's usage past its allowance.
type AllowanceExceededError struct {
	Kind      string // "rate" or "lockup"
	Allowance *big.Int
	Usage     *big.Int
}

func (e *AllowanceExceededError) Error() string {
	return fmt.Sprintf("%s allowance exceeded: allowance %s, requested usage %s",
		e.Kind, e.Allowance, e.Usage)
}

// WithdrawAmountExceedsAccumulatedFeesError is returned by BurnForFees
// when the requested lot is larger than the token's fee accumulator.
type WithdrawAmountExceedsAccumulatedFeesError struct {
	Token     string
	Available *big.Int
	Requested *big.Int
}

func (e *WithdrawAmountExceedsAccumulatedFeesError) Error() string {
	return fmt.Sprintf("accumulated fees exceeded for %s: available %s, requested %s",
		e.Token, e.Available, e.Requested)
}

// InsufficientNativeTokenForBurnError is returned when the native value
// attached to BurnForFees does not cover the current decayed price.
type InsufficientNativeTokenForBurnError struct {
	Provided *big.Int
	Required *big.Int
}

func (e *InsufficientNativeTokenForBurnError) Error() string {
	return fmt.Sprintf("insufficient native token for burn: provided %s, required %s",
		e.Provided, e.Required)
}
