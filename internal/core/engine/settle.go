package engine

import "math/big"

// SettledSegment describes one settled span of epochs.
type SettledSegment struct {
	Start      uint64   `json:"start"`
	End        uint64   `json:"end"`
	Rate       *big.Int `json:"rate"`
	Settled    *big.Int `json:"settled"`
	NetPayee   *big.Int `json:"net_payee"`
	Fee        *big.Int `json:"fee"`
	Commission *big.Int `json:"commission"`
	Note       string   `json:"note,omitempty"`

	// lockupRelease is the nominal locked amount freed for the segment;
	// it exceeds Settled when an arbiter reduced the payout.
	lockupRelease *big.Int
}

// SettlementResult summarizes one SettleRail call.
type SettlementResult struct {
	RailID       uint64           `json:"rail_id"`
	SettledUpTo  uint64           `json:"settled_up_to"`
	TotalSettled *big.Int         `json:"total_settled"`
	TotalNet     *big.Int         `json:"total_net"`
	TotalFee     *big.Int         `json:"total_fee"`
	TotalCommiss *big.Int         `json:"total_commission"`
	Segments     []SettledSegment `json:"segments,omitempty"`
	Finalized    bool             `json:"finalized"`
}

// SettleRail realizes owed payments for elapsed epochs on one rail.
// Callable by the payer, payee, or operator; idempotent and monotonic:
// epochs at or past SettledUpTo are never re-processed, and a call whose
// clamped target does not exceed SettledUpTo changes nothing.
//
// The target epoch is clamped to the current epoch, to EndEpoch for
// terminated rails, and to the payer account's funded point for live
// rails — an underfunded payer leaves the rail in debt, not in error.
func (e *Engine) SettleRail(caller string, railID uint64, upToEpoch uint64) (SettlementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settleRailLocked(caller, railID, upToEpoch)
}

func (e *Engine) settleRailLocked(caller string, railID uint64, upToEpoch uint64) (SettlementResult, error) {
	rail, err := e.liveRail(railID)
	if err != nil {
		return SettlementResult{}, err
	}
	if caller != rail.From && caller != rail.To && caller != rail.Operator {
		return SettlementResult{}, ErrNotAuthorized
	}
	validator, err := e.validatorFor(rail)
	if err != nil {
		return SettlementResult{}, err
	}

	acc := e.account(rail.Token, rail.From)
	acc.settleLockup(e.currentEpoch)

	target := minEpoch(upToEpoch, e.currentEpoch)
	if rail.terminated() {
		target = minEpoch(target, rail.EndEpoch)
	} else {
		// Live rails settle only through the funded point; the lockup
		// window past it is consumed solely by termination.
		target = minEpoch(target, acc.LockupLastSettledAt)
	}

	result := SettlementResult{
		RailID:       railID,
		SettledUpTo:  rail.SettledUpTo,
		TotalSettled: new(big.Int),
		TotalNet:     new(big.Int),
		TotalFee:     new(big.Int),
		TotalCommiss: new(big.Int),
	}

	// Phase 1: plan segments, consulting the arbiter, without touching
	// ledger state. A validator error aborts the call whole.
	segments, err := e.planSegments(rail, validator, target)
	if err != nil {
		return SettlementResult{}, err
	}

	// Phase 2: apply.
	payee := e.account(rail.Token, rail.To)
	payee.settleLockup(e.currentEpoch)

	for _, seg := range segments {
		acc.Funds.Sub(acc.Funds, seg.Settled)
		acc.LockupCurrent.Sub(acc.LockupCurrent, seg.lockupRelease)
		if acc.LockupCurrent.Sign() < 0 {
			acc.LockupCurrent.SetInt64(0)
		}
		payee.Funds.Add(payee.Funds, seg.NetPayee)
		if seg.Commission.Sign() > 0 {
			rec := e.account(rail.Token, rail.ServiceFeeRecipient)
			rec.settleLockup(e.currentEpoch)
			rec.Funds.Add(rec.Funds, seg.Commission)
		}
		e.accrueFees(rail.Token, seg.Fee)

		// Consume queue entries the segment exhausted.
		for {
			head, ok := rail.queue.peek()
			if !ok || head.UntilEpoch > seg.End {
				break
			}
			rail.queue.pop()
		}
		rail.SettledUpTo = seg.End

		result.TotalSettled.Add(result.TotalSettled, seg.Settled)
		result.TotalNet.Add(result.TotalNet, seg.NetPayee)
		result.TotalFee.Add(result.TotalFee, seg.Fee)
		result.TotalCommiss.Add(result.TotalCommiss, seg.Commission)
		result.Segments = append(result.Segments, seg)

		e.emit(RailSettledEvent{
			RailID:       rail.ID,
			SegmentStart: seg.Start,
			SegmentEnd:   seg.End,
			Rate:         seg.Rate,
			Settled:      seg.Settled,
			NetPayee:     seg.NetPayee,
			Fee:          seg.Fee,
			Commission:   seg.Commission,
		})
	}
	result.SettledUpTo = rail.SettledUpTo

	if rail.EndEpoch > 0 && rail.SettledUpTo >= rail.EndEpoch && rail.queue.empty() {
		approval := e.approvals[approvalKey{rail.Token, rail.From, rail.Operator}]
		e.finalizeRail(rail, acc, approval)
		result.Finalized = true
	}
	return result, nil
}

// planSegments walks the rate-change queue from SettledUpTo to target
// and produces the fully-arbitrated segment list. Queue entries record
// the historical rate for epochs through their UntilEpoch; once the
// queue is exhausted the rail's current rate governs the remainder. An
// arbiter returning an earlier settle epoch truncates the plan.
func (e *Engine) planSegments(rail *Rail, validator Validator, target uint64) ([]SettledSegment, error) {
	var segments []SettledSegment

	cursor := rail.SettledUpTo
	qi := 0
	pending := rail.queue.entries()

	for cursor < target {
		segEnd := target
		rate := rail.PaymentRate

		// Skip entries already behind the cursor (possible after an
		// arbiter truncation in an earlier call).
		for qi < len(pending) && pending[qi].UntilEpoch <= cursor {
			qi++
		}
		if qi < len(pending) {
			rate = pending[qi].Rate
			segEnd = minEpoch(pending[qi].UntilEpoch, target)
		}

		length := new(big.Int).SetUint64(segEnd - cursor)
		nominal := new(big.Int).Mul(rate, length)

		res, err := validator.Validate(ValidationRequest{
			RailID:        rail.ID,
			SegmentStart:  cursor,
			SegmentEnd:    segEnd,
			Rate:          new(big.Int).Set(rate),
			NominalAmount: new(big.Int).Set(nominal),
		})
		if err != nil {
			return nil, err
		}

		// Arbiters only ever reduce.
		settledEnd := segEnd
		if res.SettleUpTo < settledEnd {
			settledEnd = res.SettleUpTo
		}
		if settledEnd <= cursor {
			// Nothing approved; the call ends here.
			return segments, nil
		}
		maxForSpan := new(big.Int).Mul(rate, new(big.Int).SetUint64(settledEnd-cursor))
		amount := maxForSpan
		if res.ApprovedAmount != nil && res.ApprovedAmount.Cmp(maxForSpan) < 0 {
			amount = new(big.Int).Set(res.ApprovedAmount)
		}
		if amount.Sign() < 0 {
			amount = new(big.Int)
		}
		note := res.Note

		fee, commission, net := e.splitSettled(amount, rail.CommissionRateBps)
		release := new(big.Int).Mul(rate, new(big.Int).SetUint64(settledEnd-cursor))

		segments = append(segments, SettledSegment{
			Start:         cursor,
			End:           settledEnd,
			Rate:          new(big.Int).Set(rate),
			Settled:       amount,
			NetPayee:      net,
			Fee:           fee,
			Commission:    commission,
			Note:          note,
			lockupRelease: release,
		})

		if settledEnd < segEnd {
			// Arbiter-shortened: the remainder of this call is dropped.
			return segments, nil
		}
		cursor = segEnd
	}
	return segments, nil
}

// splitSettled divides a settled amount into network fee, operator
// commission and the payee's net share. The three parts sum exactly to
// the input: integer-division remainders stay with the payee.
func (e *Engine) splitSettled(amount *big.Int, commissionBps uint64) (fee, commission, net *big.Int) {
	fee = new(big.Int).Mul(amount, new(big.Int).SetUint64(e.cfg.NetworkFeeNumerator))
	fee.Div(fee, new(big.Int).SetUint64(e.cfg.NetworkFeeDenominator))

	afterFee := new(big.Int).Sub(amount, fee)
	commission = new(big.Int).Mul(afterFee, new(big.Int).SetUint64(commissionBps))
	commission.Div(commission, big.NewInt(10_000))

	net = new(big.Int).Sub(afterFee, commission)
	return fee, commission, net
}

// SettleAll settles every live rail where addr is the payer for the
// given token, up to the current epoch. Keeper convenience; individual
// rail failures abort the sweep.
func (e *Engine) SettleAll(caller, token, payer string) ([]SettlementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := append([]uint64(nil), e.railsByPayer[accountKey{token, payer}]...)
	var out []SettlementResult
	for _, id := range ids {
		rail, ok := e.rails[id]
		if !ok || rail.Finalized {
			continue
		}
		if caller != rail.From && caller != rail.To && caller != rail.Operator {
			continue
		}
		res, err := e.settleRailLocked(caller, id, e.currentEpoch)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
