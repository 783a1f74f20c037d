package engine

import "math/big"

// Account is the per-(token, owner) ledger record.
type Account struct {
	// Funds is the total deposited balance, including locked funds.
	Funds *big.Int

	// LockupCurrent is the portion of Funds reserved for rails; never
	// withdrawable. Invariant: Funds >= LockupCurrent after every
	// completed operation.
	LockupCurrent *big.Int

	// LockupRate is the summed payment rate of all rails whose lockup is
	// actively accruing against this account.
	LockupRate *big.Int

	// LockupLastSettledAt is the epoch through which lockup accrual has
	// been projected. Accrual is lazy: it advances only when an operation
	// touches the account.
	LockupLastSettledAt uint64
}

// settleLockup projects lockup accrual forward to epoch. If the account
// cannot fund the full projection it advances only through the last
// fully fundable epoch and reports false; the account is then "in debt".
func (a *Account) settleLockup(epoch uint64) bool {
	if epoch <= a.LockupLastSettledAt {
		return true
	}
	if a.LockupRate.Sign() == 0 {
		a.LockupLastSettledAt = epoch
		return true
	}

	elapsed := new(big.Int).SetUint64(epoch - a.LockupLastSettledAt)
	required := new(big.Int).Mul(a.LockupRate, elapsed)
	available := new(big.Int).Sub(a.Funds, a.LockupCurrent)

	if required.Cmp(available) <= 0 {
		a.LockupCurrent.Add(a.LockupCurrent, required)
		a.LockupLastSettledAt = epoch
		return true
	}

	// Partial projection: whole epochs only.
	fundable := new(big.Int).Div(available, a.LockupRate)
	if fundable.Sign() > 0 {
		step := fundable.Uint64()
		a.LockupCurrent.Add(a.LockupCurrent, new(big.Int).Mul(a.LockupRate, fundable))
		a.LockupLastSettledAt += step
	}
	return false
}

// unlocked returns Funds - LockupCurrent.
func (a *Account) unlocked() *big.Int {
	return new(big.Int).Sub(a.Funds, a.LockupCurrent)
}

// Deposit transfers amount of token from the caller's custody into the
// contract and credits the beneficiary's ledger account with the amount
// actually received. Fee-on-transfer tokens therefore credit the
// delivered delta, not the nominal argument.
func (e *Engine) Deposit(caller, token, beneficiary string, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.depositLocked(caller, token, beneficiary, amount)
}

func (e *Engine) depositLocked(caller, token, beneficiary string, amount *big.Int) (*big.Int, error) {
	received, err := e.custody.Transfer(token, caller, ContractAddress, amount)
	if err != nil {
		return nil, err
	}

	acc := e.account(token, beneficiary)
	acc.settleLockup(e.currentEpoch)
	acc.Funds.Add(acc.Funds, received)

	e.emit(DepositEvent{
		Token:       token,
		From:        caller,
		Beneficiary: beneficiary,
		Amount:      new(big.Int).Set(amount),
		Received:    new(big.Int).Set(received),
	})
	return new(big.Int).Set(received), nil
}

// Withdraw moves amount of unlocked funds from the caller's ledger
// account back to its custody balance. Lockup is projected to the
// current epoch before the unlocked check.
func (e *Engine) Withdraw(caller, token string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	acc := e.account(token, caller)
	acc.settleLockup(e.currentEpoch)

	available := acc.unlocked()
	if available.Cmp(amount) < 0 {
		return &InsufficientUnlockedFundsError{
			Available: available,
			Requested: new(big.Int).Set(amount),
		}
	}

	acc.Funds.Sub(acc.Funds, amount)
	if _, err := e.custody.Transfer(token, ContractAddress, caller, amount); err != nil {
		// Custody holds every deposited unit, so this cannot run dry;
		// restore the ledger if it somehow does.
		acc.Funds.Add(acc.Funds, amount)
		return err
	}

	e.emit(WithdrawEvent{Token: token, Owner: caller, Amount: new(big.Int).Set(amount)})
	return nil
}

// AccountInfo is the read-side projection of an account.
type AccountInfo struct {
	Funds               *big.Int `json:"funds"`
	LockupCurrent       *big.Int `json:"lockup_current"`
	LockupRate          *big.Int `json:"lockup_rate"`
	LockupLastSettledAt uint64   `json:"lockup_last_settled_at"`
	FullySettled        bool     `json:"fully_settled"`

	// FundedUntilEpoch estimates the epoch at which the account runs out
	// of unlocked funds at the current lockup rate (current epoch when
	// the rate is zero).
	FundedUntilEpoch uint64 `json:"funded_until_epoch"`
}

// GetAccountInfo projects the account to the current epoch without
// mutating it and reports whether it is fully settled.
func (e *Engine) GetAccountInfo(token, owner string) AccountInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	acc := e.accounts[accountKey{token, owner}]
	if acc == nil {
		return AccountInfo{
			Funds:               new(big.Int),
			LockupCurrent:       new(big.Int),
			LockupRate:          new(big.Int),
			LockupLastSettledAt: e.currentEpoch,
			FullySettled:        true,
			FundedUntilEpoch:    e.currentEpoch,
		}
	}

	// Project on a scratch copy; reads must not commit accrual.
	scratch := &Account{
		Funds:               new(big.Int).Set(acc.Funds),
		LockupCurrent:       new(big.Int).Set(acc.LockupCurrent),
		LockupRate:          new(big.Int).Set(acc.LockupRate),
		LockupLastSettledAt: acc.LockupLastSettledAt,
	}
	fully := scratch.settleLockup(e.currentEpoch)

	fundedUntil := e.currentEpoch
	if scratch.LockupRate.Sign() > 0 {
		runway := new(big.Int).Div(scratch.unlocked(), scratch.LockupRate)
		if runway.IsUint64() {
			fundedUntil = scratch.LockupLastSettledAt + runway.Uint64()
		}
	} else if !fully {
		fundedUntil = scratch.LockupLastSettledAt
	}

	return AccountInfo{
		Funds:               scratch.Funds,
		LockupCurrent:       scratch.LockupCurrent,
		LockupRate:          scratch.LockupRate,
		LockupLastSettledAt: scratch.LockupLastSettledAt,
		FullySettled:        fully,
		FundedUntilEpoch:    fundedUntil,
	}
}
