// Package decay implements the halving price curve used by the fee
// burn auction: the price halves every interval and interpolates
// linearly between interval boundaries.
package decay

import (
	"math/big"
	"time"
)

// DefaultHalvingInterval is the time it takes for the price to halve.
// Chosen so a full auction cycle runs in roughly one week.
const DefaultHalvingInterval = 84 * time.Hour // 3.5 days

// DefaultMaxIntervals is the number of halving intervals after which the
// price is exactly zero regardless of the start price.
const DefaultMaxIntervals = 64

// Curve describes a decaying price schedule.
type Curve struct {
	// HalvingInterval is the duration over which the price halves.
	HalvingInterval time.Duration

	// MaxIntervals caps the decay: at or beyond this many intervals the
	// price is zero.
	MaxIntervals uint64
}

// DefaultCurve returns the curve used by the production auction.
func DefaultCurve() Curve {
	return Curve{
		HalvingInterval: DefaultHalvingInterval,
		MaxIntervals:    DefaultMaxIntervals,
	}
}

// PriceAt returns the decayed price for startPrice after elapsed time.
//
// At whole multiples of the halving interval the price is exactly
// startPrice >> n. Inside an interval the price falls linearly from one
// boundary to the next, so the curve is continuous and monotonically
// non-increasing. Elapsed durations at or past MaxIntervals intervals
// return zero.
func (c Curve) PriceAt(startPrice *big.Int, elapsed time.Duration) *big.Int {
	if startPrice == nil || startPrice.Sign() <= 0 || elapsed < 0 {
		return new(big.Int)
	}

	interval := int64(c.HalvingInterval / time.Second)
	if interval <= 0 {
		return new(big.Int)
	}

	secs := int64(elapsed / time.Second)
	whole := uint64(secs / interval)
	frac := secs % interval

	if whole >= c.MaxIntervals {
		return new(big.Int)
	}

	// head = startPrice / 2^whole
	head := new(big.Int).Rsh(startPrice, uint(whole))
	if head.Sign() == 0 {
		return head
	}

	// price = head - (head/2) * frac / interval
	drop := new(big.Int).Rsh(head, 1)
	drop.Mul(drop, big.NewInt(frac))
	drop.Div(drop, big.NewInt(interval))

	return head.Sub(head, drop)
}

// IsExhausted reports whether the curve has fully decayed after elapsed
// time, i.e. PriceAt returns zero for every start price representable in
// MaxIntervals halvings.
func (c Curve) IsExhausted(elapsed time.Duration) bool {
	if elapsed < 0 {
		return false
	}
	interval := int64(c.HalvingInterval / time.Second)
	if interval <= 0 {
		return true
	}
	return uint64(int64(elapsed/time.Second)/interval) >= c.MaxIntervals
}
