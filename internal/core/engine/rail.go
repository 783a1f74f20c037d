package engine

import "math/big"

// Rail is a directed payment channel from a payer to a payee, managed by
// an approved operator.
type Rail struct {
	ID        uint64
	Token     string
	From      string // cleared at finalization
	To        string
	Operator  string
	Validator string // registered arbiter name; "" = no arbitration

	PaymentRate  *big.Int
	LockupPeriod uint64
	LockupFixed  *big.Int

	// SettledUpTo is the last epoch settled (inclusive); monotonically
	// non-decreasing. Settlement of [a+1, b] pays rate*(b-a).
	SettledUpTo uint64

	// EndEpoch is zero while the rail is live; set at termination to the
	// final epoch the payee is guaranteed payment for.
	EndEpoch uint64

	CommissionRateBps   uint64
	ServiceFeeRecipient string

	Finalized bool

	queue rateQueue
}

func (r *Rail) terminated() bool { return r.EndEpoch != 0 }

// RailView is the read-side copy of a rail, including pending rate
// changes.
type RailView struct {
	ID                  uint64   `json:"rail_id"`
	Token               string   `json:"token"`
	From                string   `json:"from"`
	To                  string   `json:"to"`
	Operator            string   `json:"operator"`
	Validator           string   `json:"validator,omitempty"`
	PaymentRate         *big.Int `json:"payment_rate"`
	LockupPeriod        uint64   `json:"lockup_period"`
	LockupFixed         *big.Int `json:"lockup_fixed"`
	SettledUpTo         uint64   `json:"settled_up_to"`
	EndEpoch            uint64   `json:"end_epoch"`
	CommissionRateBps   uint64   `json:"commission_rate_bps"`
	ServiceFeeRecipient string   `json:"service_fee_recipient,omitempty"`
	Finalized           bool     `json:"finalized"`

	PendingRateChanges []RateChangeView `json:"pending_rate_changes"`
}

type RateChangeView struct {
	UntilEpoch uint64   `json:"until_epoch"`
	Rate       *big.Int `json:"rate"`
}

// CreateRail allocates a new rail with zero rate and lockup. The caller
// must be an approved operator for (token, from); no allowance is
// consumed until rate or lockup are set.
func (e *Engine) CreateRail(operator, token, from, to, validator string,
	commissionRateBps uint64, serviceFeeRecipient string) (uint64, error) {

	if from == to {
		return 0, ErrSelfRail
	}
	if commissionRateBps > e.cfg.CommissionMaxBps {
		return 0, ErrCommissionTooHigh
	}
	if commissionRateBps > 0 && serviceFeeRecipient == "" {
		return 0, ErrMissingFeeRecipient
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.approvalFor(token, from, operator); err != nil {
		return 0, err
	}
	if validator != "" {
		if _, ok := e.validators[validator]; !ok {
			return 0, ErrValidatorNotFound
		}
	}

	// Position the payer before handing out settlement epochs.
	acc := e.account(token, from)
	acc.settleLockup(e.currentEpoch)

	id := e.nextRailID
	e.nextRailID++

	rail := &Rail{
		ID:                  id,
		Token:               token,
		From:                from,
		To:                  to,
		Operator:            operator,
		Validator:           validator,
		PaymentRate:         new(big.Int),
		LockupFixed:         new(big.Int),
		SettledUpTo:         e.currentEpoch,
		CommissionRateBps:   commissionRateBps,
		ServiceFeeRecipient: serviceFeeRecipient,
		queue:               newRateQueue(e.cfg.MaxQueuedRateChanges),
	}
	e.rails[id] = rail
	e.railsByPayer[accountKey{token, from}] = append(e.railsByPayer[accountKey{token, from}], id)
	e.railsByPayee[accountKey{token, to}] = append(e.railsByPayee[accountKey{token, to}], id)

	e.emit(RailCreatedEvent{RailID: id, Token: token, From: from, To: to, Operator: operator})
	return id, nil
}

// ModifyRailPayment changes the rail's payment rate and/or makes a
// one-time payment out of the fixed lockup. Operator only.
//
// On a live rail the rate change requires the payer account to be fully
// settled and takes effect the epoch after the call: the old rate stays
// in force through the current epoch via a rate-change queue entry. On a
// terminated rail the rate may only decrease, and only before EndEpoch.
func (e *Engine) ModifyRailPayment(caller string, railID uint64, newRate, oneTimePayment *big.Int) error {
	if newRate == nil || newRate.Sign() < 0 {
		return ErrInvalidAmount
	}
	if oneTimePayment == nil {
		oneTimePayment = new(big.Int)
	}
	if oneTimePayment.Sign() < 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rail, err := e.liveRail(railID)
	if err != nil {
		return err
	}
	if caller != rail.Operator {
		return ErrNotAuthorized
	}
	approval, err := e.approvalFor(rail.Token, rail.From, rail.Operator)
	if err != nil {
		return err
	}

	acc := e.account(rail.Token, rail.From)
	fully := acc.settleLockup(e.currentEpoch)

	rateDelta := new(big.Int).Sub(newRate, rail.PaymentRate)

	if rateDelta.Sign() != 0 {
		if rail.terminated() {
			// Protects the payer: after termination the rate can only
			// fall, and only while the guarantee window is still open.
			if rateDelta.Sign() > 0 || e.currentEpoch >= rail.EndEpoch {
				return ErrInvalidRateChange
			}
			if err := e.applyTerminatedRateDecrease(rail, acc, approval, newRate); err != nil {
				return err
			}
		} else {
			if !fully {
				return ErrAccountNotSettled
			}
			if err := e.applyLiveRateChange(rail, acc, approval, newRate, rateDelta); err != nil {
				return err
			}
		}
	}

	if oneTimePayment.Sign() > 0 {
		if err := e.applyOneTimePayment(rail, acc, approval, oneTimePayment); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyLiveRateChange(rail *Rail, acc *Account, approval *OperatorApproval, newRate, rateDelta *big.Int) error {
	oldRate := new(big.Int).Set(rail.PaymentRate)

	// The old rate governs epochs up to and including the current one.
	if err := e.enqueueOldRate(rail); err != nil {
		return err
	}

	// Window lockup scales with the rate.
	lockupDelta := new(big.Int).Mul(rateDelta, new(big.Int).SetUint64(rail.LockupPeriod))

	if err := approval.chargeRate(rateDelta); err != nil {
		return err
	}
	if err := approval.chargeLockup(lockupDelta); err != nil {
		approval.chargeRate(new(big.Int).Neg(rateDelta)) // roll back
		return err
	}

	newLockup := new(big.Int).Add(acc.LockupCurrent, lockupDelta)
	if newLockup.Cmp(acc.Funds) > 0 {
		approval.chargeRate(new(big.Int).Neg(rateDelta))
		approval.chargeLockup(new(big.Int).Neg(lockupDelta))
		return &InsufficientUnlockedFundsError{
			Available: acc.unlocked(),
			Requested: lockupDelta,
		}
	}
	if newLockup.Sign() < 0 {
		newLockup.SetInt64(0)
	}

	acc.LockupCurrent = newLockup
	acc.LockupRate.Add(acc.LockupRate, rateDelta)
	if acc.LockupRate.Sign() < 0 {
		acc.LockupRate.SetInt64(0)
	}
	rail.PaymentRate = new(big.Int).Set(newRate)

	e.emit(RailRateModifiedEvent{RailID: rail.ID, OldRate: oldRate, NewRate: new(big.Int).Set(newRate)})
	return nil
}

// applyTerminatedRateDecrease lowers the rate on a terminated rail,
// releasing the unaccrued tail of the guarantee window.
func (e *Engine) applyTerminatedRateDecrease(rail *Rail, acc *Account, approval *OperatorApproval, newRate *big.Int) error {
	oldRate := new(big.Int).Set(rail.PaymentRate)

	if err := e.enqueueOldRate(rail); err != nil {
		return err
	}

	// Epochs after the current one, through EndEpoch, were reserved at
	// the old rate; the difference unlocks now.
	if rail.EndEpoch > e.currentEpoch {
		remaining := new(big.Int).SetUint64(rail.EndEpoch - e.currentEpoch)
		release := new(big.Int).Sub(oldRate, newRate)
		release.Mul(release, remaining)

		acc.LockupCurrent.Sub(acc.LockupCurrent, release)
		if acc.LockupCurrent.Sign() < 0 {
			acc.LockupCurrent.SetInt64(0)
		}
		approval.chargeLockup(new(big.Int).Neg(release))
	}

	rail.PaymentRate = new(big.Int).Set(newRate)
	e.emit(RailRateModifiedEvent{RailID: rail.ID, OldRate: oldRate, NewRate: new(big.Int).Set(newRate)})
	return nil
}

// enqueueOldRate records the rail's current rate as governing epochs up
// to and including the current one, unless those epochs are already
// settled or already recorded. The new rate then takes effect from the
// next epoch.
func (e *Engine) enqueueOldRate(rail *Rail) error {
	until := e.currentEpoch
	if rail.SettledUpTo >= until {
		return nil
	}
	if tail, ok := rail.queue.tail(); ok && tail.UntilEpoch >= until {
		// A change earlier in this epoch already pinned the rate that
		// was in force when the epoch began.
		return nil
	}
	return rail.queue.push(rateChange{
		UntilEpoch: until,
		Rate:       new(big.Int).Set(rail.PaymentRate),
	})
}

// applyOneTimePayment pays the payee immediately out of the rail's fixed
// lockup, net of network fee and commission.
func (e *Engine) applyOneTimePayment(rail *Rail, acc *Account, approval *OperatorApproval, amount *big.Int) error {
	if amount.Cmp(rail.LockupFixed) > 0 {
		return &InsufficientUnlockedFundsError{
			Available: new(big.Int).Set(rail.LockupFixed),
			Requested: new(big.Int).Set(amount),
		}
	}

	fee, commission, net := e.splitSettled(amount, rail.CommissionRateBps)

	rail.LockupFixed.Sub(rail.LockupFixed, amount)
	acc.Funds.Sub(acc.Funds, amount)
	acc.LockupCurrent.Sub(acc.LockupCurrent, amount)
	approval.chargeLockup(new(big.Int).Neg(amount))

	payee := e.account(rail.Token, rail.To)
	payee.settleLockup(e.currentEpoch)
	payee.Funds.Add(payee.Funds, net)
	if commission.Sign() > 0 {
		rec := e.account(rail.Token, rail.ServiceFeeRecipient)
		rec.settleLockup(e.currentEpoch)
		rec.Funds.Add(rec.Funds, commission)
	}
	e.accrueFees(rail.Token, fee)

	e.emit(OneTimePaymentEvent{
		RailID:     rail.ID,
		Amount:     new(big.Int).Set(amount),
		NetPayee:   net,
		Fee:        fee,
		Commission: commission,
	})
	return nil
}

// ModifyRailLockup adjusts the rail's lockup period and fixed lockup.
// Operator only; live rails only, with a fully settled payer account.
func (e *Engine) ModifyRailLockup(caller string, railID uint64, newPeriod uint64, newFixed *big.Int) error {
	if newFixed == nil || newFixed.Sign() < 0 {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rail, err := e.liveRail(railID)
	if err != nil {
		return err
	}
	if caller != rail.Operator {
		return ErrNotAuthorized
	}
	if rail.terminated() {
		return ErrRailTerminated
	}
	approval, err := e.approvalFor(rail.Token, rail.From, rail.Operator)
	if err != nil {
		return err
	}
	if newPeriod > approval.MaxLockupPeriod {
		return ErrLockupPeriodTooLong
	}

	acc := e.account(rail.Token, rail.From)
	if !acc.settleLockup(e.currentEpoch) {
		return ErrAccountNotSettled
	}

	oldLockup := new(big.Int).Mul(rail.PaymentRate, new(big.Int).SetUint64(rail.LockupPeriod))
	oldLockup.Add(oldLockup, rail.LockupFixed)
	newLockup := new(big.Int).Mul(rail.PaymentRate, new(big.Int).SetUint64(newPeriod))
	newLockup.Add(newLockup, newFixed)
	delta := new(big.Int).Sub(newLockup, oldLockup)

	if err := approval.chargeLockup(delta); err != nil {
		return err
	}

	next := new(big.Int).Add(acc.LockupCurrent, delta)
	if next.Cmp(acc.Funds) > 0 {
		approval.chargeLockup(new(big.Int).Neg(delta))
		return &InsufficientUnlockedFundsError{Available: acc.unlocked(), Requested: delta}
	}
	if next.Sign() < 0 {
		next.SetInt64(0)
	}

	acc.LockupCurrent = next
	rail.LockupPeriod = newPeriod
	rail.LockupFixed = new(big.Int).Set(newFixed)

	e.emit(RailLockupModifiedEvent{
		RailID:       rail.ID,
		LockupPeriod: newPeriod,
		LockupFixed:  new(big.Int).Set(newFixed),
	})
	return nil
}

// TerminateRail closes the rail: EndEpoch becomes the payer account's
// settled-through epoch plus the lockup period, lockup rate accrual
// stops, and settlement keeps running until the queue drains through
// EndEpoch. Callable by payer, payee, or operator; the payer may only
// terminate from a fully settled account.
func (e *Engine) TerminateRail(caller string, railID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rail, err := e.liveRail(railID)
	if err != nil {
		return err
	}
	if rail.terminated() {
		return ErrRailTerminated
	}
	if caller != rail.From && caller != rail.To && caller != rail.Operator {
		return ErrNotAuthorized
	}
	// Termination must work even after the owner revoked the operator,
	// so use the raw record for usage bookkeeping.
	approval := e.approvals[approvalKey{rail.Token, rail.From, rail.Operator}]

	acc := e.account(rail.Token, rail.From)
	fully := acc.settleLockup(e.currentEpoch)
	if caller == rail.From && !fully {
		return ErrAccountNotSettled
	}

	rail.EndEpoch = acc.LockupLastSettledAt + rail.LockupPeriod
	if rail.EndEpoch == 0 {
		// Rail created, never rated, terminated at epoch 0: finalize via
		// a zero-length window one epoch out.
		rail.EndEpoch = rail.SettledUpTo
	}

	acc.LockupRate.Sub(acc.LockupRate, rail.PaymentRate)
	if acc.LockupRate.Sign() < 0 {
		acc.LockupRate.SetInt64(0)
	}
	if approval != nil {
		approval.chargeRate(new(big.Int).Neg(rail.PaymentRate))
	}

	e.emit(RailTerminatedEvent{RailID: rail.ID, By: caller, EndEpoch: rail.EndEpoch})

	// Nothing left to pay: close out immediately.
	if rail.SettledUpTo >= rail.EndEpoch && rail.queue.empty() {
		e.finalizeRail(rail, acc, approval)
	}
	return nil
}

// finalizeRail releases the remaining fixed lockup, returns the
// operator's residual commitment, clears the payer and drops the rail
// from enumerations.
func (e *Engine) finalizeRail(rail *Rail, acc *Account, approval *OperatorApproval) {
	residual := new(big.Int).Set(rail.LockupFixed)

	acc.LockupCurrent.Sub(acc.LockupCurrent, residual)
	if acc.LockupCurrent.Sign() < 0 {
		acc.LockupCurrent.SetInt64(0)
	}
	if approval != nil {
		approval.chargeLockup(new(big.Int).Neg(residual))
	}
	rail.LockupFixed = new(big.Int)

	e.removeFromIndex(e.railsByPayer, accountKey{rail.Token, rail.From}, rail.ID)
	e.removeFromIndex(e.railsByPayee, accountKey{rail.Token, rail.To}, rail.ID)

	rail.From = ""
	rail.Finalized = true
	e.emit(RailFinalizedEvent{RailID: rail.ID})
}

func (e *Engine) removeFromIndex(idx map[accountKey][]uint64, k accountKey, id uint64) {
	ids := idx[k]
	for i, v := range ids {
		if v == id {
			idx[k] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// liveRail resolves a rail id, rejecting unknown and finalized rails.
func (e *Engine) liveRail(railID uint64) (*Rail, error) {
	rail, ok := e.rails[railID]
	if !ok {
		return nil, ErrRailNotFound
	}
	if rail.Finalized {
		return nil, ErrRailFinalized
	}
	return rail, nil
}

// GetRail returns a copy of the rail record, finalized or not.
func (e *Engine) GetRail(railID uint64) (RailView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rail, ok := e.rails[railID]
	if !ok {
		return RailView{}, ErrRailNotFound
	}

	view := RailView{
		ID:                  rail.ID,
		Token:               rail.Token,
		From:                rail.From,
		To:                  rail.To,
		Operator:            rail.Operator,
		Validator:           rail.Validator,
		PaymentRate:         new(big.Int).Set(rail.PaymentRate),
		LockupPeriod:        rail.LockupPeriod,
		LockupFixed:         new(big.Int).Set(rail.LockupFixed),
		SettledUpTo:         rail.SettledUpTo,
		EndEpoch:            rail.EndEpoch,
		CommissionRateBps:   rail.CommissionRateBps,
		ServiceFeeRecipient: rail.ServiceFeeRecipient,
		Finalized:           rail.Finalized,
	}
	for _, rc := range rail.queue.entries() {
		view.PendingRateChanges = append(view.PendingRateChanges, RateChangeView{
			UntilEpoch: rc.UntilEpoch,
			Rate:       rc.Rate,
		})
	}
	return view, nil
}
