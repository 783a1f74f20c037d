package engine

import "math/big"

// OperatorApproval is the (token, owner, operator) spending gate. Usage
// fields track the operator's outstanding commitments across every rail
// it manages for the owner; each rail mutation updates usage in the same
// transaction and must stay inside the allowance.
type OperatorApproval struct {
	Approved bool

	RateAllowance *big.Int
	RateUsage     *big.Int

	LockupAllowance *big.Int
	LockupUsage     *big.Int

	MaxLockupPeriod uint64
}

// SetOperatorApproval replaces the approval record in full; it is not
// additive. Only the owner may call it. Existing usage survives the
// replacement so already-committed rails keep counting against the new
// allowance.
func (e *Engine) SetOperatorApproval(owner, token, operator string, approved bool,
	rateAllowance, lockupAllowance *big.Int, maxLockupPeriod uint64) error {

	if rateAllowance == nil || lockupAllowance == nil ||
		rateAllowance.Sign() < 0 || lockupAllowance.Sign() < 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	k := approvalKey{token, owner, operator}
	prev := e.approvals[k]
	next := &OperatorApproval{
		Approved:        approved,
		RateAllowance:   new(big.Int).Set(rateAllowance),
		RateUsage:       new(big.Int),
		LockupAllowance: new(big.Int).Set(lockupAllowance),
		LockupUsage:     new(big.Int),
		MaxLockupPeriod: maxLockupPeriod,
	}
	if prev != nil {
		next.RateUsage.Set(prev.RateUsage)
		next.LockupUsage.Set(prev.LockupUsage)
	}
	e.approvals[k] = next

	e.emit(OperatorApprovalEvent{
		Token:           token,
		Owner:           owner,
		Operator:        operator,
		Approved:        approved,
		RateAllowance:   new(big.Int).Set(rateAllowance),
		LockupAllowance: new(big.Int).Set(lockupAllowance),
		MaxLockupPeriod: maxLockupPeriod,
	})
	return nil
}

// GetOperatorApproval returns a copy of the approval record, or an
// unapproved zero record if none was ever set.
func (e *Engine) GetOperatorApproval(token, owner, operator string) OperatorApproval {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.approvals[approvalKey{token, owner, operator}]
	if a == nil {
		return OperatorApproval{
			RateAllowance:   new(big.Int),
			RateUsage:       new(big.Int),
			LockupAllowance: new(big.Int),
			LockupUsage:     new(big.Int),
		}
	}
	return OperatorApproval{
		Approved:        a.Approved,
		RateAllowance:   new(big.Int).Set(a.RateAllowance),
		RateUsage:       new(big.Int).Set(a.RateUsage),
		LockupAllowance: new(big.Int).Set(a.LockupAllowance),
		LockupUsage:     new(big.Int).Set(a.LockupUsage),
		MaxLockupPeriod: a.MaxLockupPeriod,
	}
}

// approvalFor loads the approval an operator needs to mutate rails for
// (token, owner).
func (e *Engine) approvalFor(token, owner, operator string) (*OperatorApproval, error) {
	a := e.approvals[approvalKey{token, owner, operator}]
	if a == nil || !a.Approved {
		return nil, ErrOperatorNotApproved
	}
	return a, nil
}

// chargeRate moves the operator's rate usage by delta (which may be
// negative) and enforces the allowance on increases.
func (a *OperatorApproval) chargeRate(delta *big.Int) error {
	next := new(big.Int).Add(a.RateUsage, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	if delta.Sign() > 0 && next.Cmp(a.RateAllowance) > 0 {
		return &AllowanceExceededError{Kind: "rate", Allowance: new(big.Int).Set(a.RateAllowance), Usage: next}
	}
	a.RateUsage = next
	return nil
}

// chargeLockup moves the operator's lockup usage by delta and enforces
// the allowance on increases.
func (a *OperatorApproval) chargeLockup(delta *big.Int) error {
	next := new(big.Int).Add(a.LockupUsage, delta)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	if delta.Sign() > 0 && next.Cmp(a.LockupAllowance) > 0 {
		return &AllowanceExceededError{Kind: "lockup", Allowance: new(big.Int).Set(a.LockupAllowance), Usage: next}
	}
	a.LockupUsage = next
	return nil
}
