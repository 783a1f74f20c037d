// Package engine implements the payment-rail ledger: per-token account
// bookkeeping with lazy lockup accrual, operator-managed rails with a
// replayable rate-change queue, validator-arbitrated settlement with
// network fee extraction, and the decayed-price auction that disposes of
// accumulated fees against a native-token burn.
//
// All state belongs to one Engine and every operation serializes through
// its mutex, mirroring the single-threaded transactional model of the
// chain this ledger shadows.
package engine

import (
	"math/big"
	"sync"
	"time"

	"github.com/railpay/paymentsd/internal/core/decay"
)

// BurnAddress is where native token paid into the auction is sent.
// Nothing ever spends from it.
const BurnAddress = "burn:0000000000000000000000000000000000000000"

// Config carries the protocol parameters of the engine.
type Config struct {
	// Network fee skimmed from every settled amount, as a fraction.
	NetworkFeeNumerator   uint64
	NetworkFeeDenominator uint64

	// CommissionMaxBps caps the per-rail operator commission.
	CommissionMaxBps uint64

	// MaxQueuedRateChanges bounds each rail's pending rate-change queue.
	MaxQueuedRateChanges int

	// Auction parameters.
	AuctionCurve        decay.Curve
	AuctionResetFactor  uint64
	AuctionInitialPrice *big.Int
	AuctionFloorPrice   *big.Int
	AuctionCeilingPrice *big.Int
}

// DefaultConfig returns production parameters: a 1% network fee and a
// week-cycle auction.
func DefaultConfig() Config {
	return Config{
		NetworkFeeNumerator:   1,
		NetworkFeeDenominator: 100,
		CommissionMaxBps:      10_000,
		MaxQueuedRateChanges:  1024,
		AuctionCurve:          decay.DefaultCurve(),
		AuctionResetFactor:    4,
		AuctionInitialPrice:   new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil),
		AuctionFloorPrice:     new(big.Int),
		AuctionCeilingPrice:   new(big.Int).Exp(big.NewInt(10), big.NewInt(26), nil),
	}
}

type accountKey struct {
	token string
	owner string
}

type approvalKey struct {
	token    string
	owner    string
	operator string
}

// Engine owns every piece of mutable contract state.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	// now supplies wall time for auction decay; injectable for tests.
	now func() time.Time

	currentEpoch uint64

	accounts  map[accountKey]*Account
	approvals map[approvalKey]*OperatorApproval

	rails        map[uint64]*Rail
	railsByPayer map[accountKey][]uint64
	railsByPayee map[accountKey][]uint64
	nextRailID   uint64

	accumulatedFees map[string]*big.Int
	auctions        map[string]*AuctionState
	totalBurned     *big.Int

	custody    *TokenCustody
	validators map[string]Validator

	// authNonces tracks consumed deposit-authorization nonces per signer.
	authNonces map[string]uint64

	sinks multiSink
}

// Option customizes a new Engine.
type Option func(*Engine)

// WithClock replaces the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSink attaches an event sink.
func WithSink(s EventSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, s) }
}

// New creates an empty engine at epoch 0.
func New(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:             cfg,
		now:             time.Now,
		accounts:        make(map[accountKey]*Account),
		approvals:       make(map[approvalKey]*OperatorApproval),
		rails:           make(map[uint64]*Rail),
		railsByPayer:    make(map[accountKey][]uint64),
		railsByPayee:    make(map[accountKey][]uint64),
		nextRailID:      1,
		accumulatedFees: make(map[string]*big.Int),
		auctions:        make(map[string]*AuctionState),
		totalBurned:     new(big.Int),
		custody:         NewTokenCustody(),
		validators:      make(map[string]Validator),
		authNonces:      make(map[string]uint64),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Custody exposes the token custody layer (faucet, balance queries).
func (e *Engine) Custody() *TokenCustody { return e.custody }

// RegisterValidator installs an arbiter under a name rails can reference.
func (e *Engine) RegisterValidator(name string, v Validator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.validators[name] = v
}

// CurrentEpoch returns the engine's view of the chain epoch.
func (e *Engine) CurrentEpoch() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentEpoch
}

// AdvanceEpochs moves the chain clock forward by n epochs and returns the
// new current epoch. The daemon mirrors the chain; it never ticks itself.
func (e *Engine) AdvanceEpochs(n uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentEpoch += n
	return e.currentEpoch
}

// TotalBurned returns the cumulative native token sent to the burn
// address by the auction.
func (e *Engine) TotalBurned() *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.totalBurned)
}

func (e *Engine) emit(ev Event) {
	e.sinks.Emit(ev)
}

// account returns the ledger account for (token, owner), creating a zero
// account positioned at the current epoch on first touch.
func (e *Engine) account(token, owner string) *Account {
	k := accountKey{token, owner}
	acc := e.accounts[k]
	if acc == nil {
		acc = &Account{
			Funds:               new(big.Int),
			LockupCurrent:       new(big.Int),
			LockupRate:          new(big.Int),
			LockupLastSettledAt: e.currentEpoch,
		}
		e.accounts[k] = acc
	}
	return acc
}

func (e *Engine) validatorFor(rail *Rail) (Validator, error) {
	if rail.Validator == "" {
		return NoopValidator{}, nil
	}
	v, ok := e.validators[rail.Validator]
	if !ok {
		return nil, ErrValidatorNotFound
	}
	return v, nil
}

func minEpoch(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
