package engine

import (
	"math/big"
	"time"
)

// AuctionState is the in-progress decayed-price sale of one token's
// accumulated protocol fees.
type AuctionState struct {
	StartPrice *big.Int
	StartTime  time.Time
}

// AuctionInfo is the read-side view of a token's auction.
type AuctionInfo struct {
	Token           string   `json:"token"`
	StartPrice      *big.Int `json:"start_price"`
	StartTime       int64    `json:"start_time"` // unix seconds; 0 = no auction
	CurrentPrice    *big.Int `json:"current_price"`
	AccumulatedFees *big.Int `json:"accumulated_fees"`
}

// accrueFees adds a settlement skim to the token's accumulator. New fees
// arriving while an auction is live restart it at the reset multiple of
// the current decayed price, so the accumulator never races the clock
// independently of the sale schedule.
func (e *Engine) accrueFees(token string, fee *big.Int) {
	if fee == nil || fee.Sign() == 0 {
		return
	}
	acc := e.accumulatedFees[token]
	if acc == nil {
		acc = new(big.Int)
		e.accumulatedFees[token] = acc
	}
	acc.Add(acc, fee)

	now := e.now()
	auction := e.auctions[token]
	if auction == nil {
		e.auctions[token] = &AuctionState{
			StartPrice: new(big.Int).Set(e.cfg.AuctionInitialPrice),
			StartTime:  now,
		}
		e.emit(AuctionRestartedEvent{Token: token, StartPrice: new(big.Int).Set(e.cfg.AuctionInitialPrice)})
		return
	}

	current := e.cfg.AuctionCurve.PriceAt(auction.StartPrice, now.Sub(auction.StartTime))
	next := e.resetPrice(current)
	auction.StartPrice = next
	auction.StartTime = now
	e.emit(AuctionRestartedEvent{Token: token, StartPrice: new(big.Int).Set(next)})
}

// resetPrice computes the next start price from an effective sale price:
// price times the reset factor, clamped to [floor, ceiling].
func (e *Engine) resetPrice(effective *big.Int) *big.Int {
	next := new(big.Int).Mul(effective, new(big.Int).SetUint64(e.cfg.AuctionResetFactor))
	if e.cfg.AuctionCeilingPrice.Sign() > 0 && next.Cmp(e.cfg.AuctionCeilingPrice) > 0 {
		next.Set(e.cfg.AuctionCeilingPrice)
	}
	if next.Cmp(e.cfg.AuctionFloorPrice) < 0 {
		next.Set(e.cfg.AuctionFloorPrice)
	}
	return next
}

// AccumulatedFees returns the token's current fee accumulator.
func (e *Engine) AccumulatedFees(token string) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if acc := e.accumulatedFees[token]; acc != nil {
		return new(big.Int).Set(acc)
	}
	return new(big.Int)
}

// GetAuctionInfo returns the auction state and current decayed price.
func (e *Engine) GetAuctionInfo(token string) AuctionInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := AuctionInfo{
		Token:           token,
		StartPrice:      new(big.Int),
		CurrentPrice:    new(big.Int),
		AccumulatedFees: new(big.Int),
	}
	if acc := e.accumulatedFees[token]; acc != nil {
		info.AccumulatedFees.Set(acc)
	}
	if auction := e.auctions[token]; auction != nil {
		info.StartPrice.Set(auction.StartPrice)
		info.StartTime = auction.StartTime.Unix()
		info.CurrentPrice = e.cfg.AuctionCurve.PriceAt(auction.StartPrice, e.now().Sub(auction.StartTime))
	}
	return info
}

// BurnForFees buys amount of the token's accumulated fees at the current
// decayed price, paid in native token which is sent whole to the burn
// address. One price covers the whole lot. A successful nonzero sale
// resets the auction upward: new start price = effective price times the
// reset factor, capped at the ceiling.
//
// A zero-amount request is a no-op that clears a fully decayed stale
// auction down to a zero start price.
func (e *Engine) BurnForFees(caller, token, recipient string, amount, nativeProvided *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if nativeProvided == nil {
		nativeProvided = new(big.Int)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	available := e.accumulatedFees[token]
	if available == nil {
		available = new(big.Int)
	}
	if amount.Cmp(available) > 0 {
		return &WithdrawAmountExceedsAccumulatedFeesError{
			Token:     token,
			Available: new(big.Int).Set(available),
			Requested: new(big.Int).Set(amount),
		}
	}

	now := e.now()
	auction := e.auctions[token]
	price := new(big.Int)
	if auction != nil {
		price = e.cfg.AuctionCurve.PriceAt(auction.StartPrice, now.Sub(auction.StartTime))
	}

	if amount.Sign() == 0 {
		// Clearing call: a stale auction that has decayed to zero resets
		// to the floor so the next accrual rebuilds from scratch.
		if auction != nil && price.Sign() == 0 {
			auction.StartPrice = new(big.Int)
			auction.StartTime = now
			e.emit(AuctionRestartedEvent{Token: token, StartPrice: new(big.Int)})
		}
		return nil
	}

	if nativeProvided.Cmp(price) < 0 {
		return &InsufficientNativeTokenForBurnError{
			Provided: new(big.Int).Set(nativeProvided),
			Required: price,
		}
	}

	// Checks done; move value. The attached native goes to the burn
	// address in full, the fee lot leaves contract custody.
	if price.Sign() > 0 || nativeProvided.Sign() > 0 {
		if err := e.custody.TransferNative(caller, BurnAddress, nativeProvided); err != nil {
			return err
		}
	}
	if _, err := e.custody.Transfer(token, ContractAddress, recipient, amount); err != nil {
		// Fee custody tracks the accumulator exactly; refund native on
		// the impossible mismatch.
		e.custody.TransferNative(BurnAddress, caller, nativeProvided)
		return err
	}
	available.Sub(available, amount)
	e.totalBurned.Add(e.totalBurned, nativeProvided)

	next := e.resetPrice(price)
	if auction == nil {
		auction = &AuctionState{}
		e.auctions[token] = auction
	}
	auction.StartPrice = next
	auction.StartTime = now

	e.emit(FeesBurnedEvent{
		Token:         token,
		Recipient:     recipient,
		Amount:        new(big.Int).Set(amount),
		NativeBurned:  new(big.Int).Set(nativeProvided),
		PriceAtSale:   new(big.Int).Set(price),
		NewStartPrice: new(big.Int).Set(next),
	})
	return nil
}
