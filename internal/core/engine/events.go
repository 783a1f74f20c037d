package engine

import "math/big"

// Event is a committed state change, published to sinks after the owning
// operation has fully applied. The external indexer consumes these.
type Event interface {
	Kind() string
}

// EventSink receives events in commit order. Implementations must not
// call back into the engine; they run under the engine lock.
type EventSink interface {
	Emit(ev Event)
}

// multiSink fans one event out to several sinks.
type multiSink []EventSink

func (m multiSink) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

type DepositEvent struct {
	Token       string   `json:"token"`
	From        string   `json:"from"`
	Beneficiary string   `json:"beneficiary"`
	Amount      *big.Int `json:"amount"`
	Received    *big.Int `json:"received"`
}

func (DepositEvent) Kind() string { return "account.deposit" }

type WithdrawEvent struct {
	Token  string   `json:"token"`
	Owner  string   `json:"owner"`
	Amount *big.Int `json:"amount"`
}

func (WithdrawEvent) Kind() string { return "account.withdraw" }

type OperatorApprovalEvent struct {
	Token           string   `json:"token"`
	Owner           string   `json:"owner"`
	Operator        string   `json:"operator"`
	Approved        bool     `json:"approved"`
	RateAllowance   *big.Int `json:"rate_allowance"`
	LockupAllowance *big.Int `json:"lockup_allowance"`
	MaxLockupPeriod uint64   `json:"max_lockup_period"`
}

func (OperatorApprovalEvent) Kind() string { return "operator.approval" }

type RailCreatedEvent struct {
	RailID   uint64 `json:"rail_id"`
	Token    string `json:"token"`
	From     string `json:"from"`
	To       string `json:"to"`
	Operator string `json:"operator"`
}

func (RailCreatedEvent) Kind() string { return "rail.created" }

type RailRateModifiedEvent struct {
	RailID  uint64   `json:"rail_id"`
	OldRate *big.Int `json:"old_rate"`
	NewRate *big.Int `json:"new_rate"`
}

func (RailRateModifiedEvent) Kind() string { return "rail.rate_modified" }

type RailLockupModifiedEvent struct {
	RailID       uint64   `json:"rail_id"`
	LockupPeriod uint64   `json:"lockup_period"`
	LockupFixed  *big.Int `json:"lockup_fixed"`
}

func (RailLockupModifiedEvent) Kind() string { return "rail.lockup_modified" }

type OneTimePaymentEvent struct {
	RailID     uint64   `json:"rail_id"`
	Amount     *big.Int `json:"amount"`
	NetPayee   *big.Int `json:"net_payee"`
	Fee        *big.Int `json:"fee"`
	Commission *big.Int `json:"commission"`
}

func (OneTimePaymentEvent) Kind() string { return "rail.one_time_payment" }

type RailTerminatedEvent struct {
	RailID   uint64 `json:"rail_id"`
	By       string `json:"by"`
	EndEpoch uint64 `json:"end_epoch"`
}

func (RailTerminatedEvent) Kind() string { return "rail.terminated" }

// RailSettledEvent is emitted once per settled segment.
type RailSettledEvent struct {
	RailID       uint64   `json:"rail_id"`
	SegmentStart uint64   `json:"segment_start"`
	SegmentEnd   uint64   `json:"segment_end"`
	Rate         *big.Int `json:"rate"`
	Settled      *big.Int `json:"settled"`
	NetPayee     *big.Int `json:"net_payee"`
	Fee          *big.Int `json:"fee"`
	Commission   *big.Int `json:"commission"`
}

func (RailSettledEvent) Kind() string { return "rail.settled" }

type RailFinalizedEvent struct {
	RailID uint64 `json:"rail_id"`
}

func (RailFinalizedEvent) Kind() string { return "rail.finalized" }

type FeesBurnedEvent struct {
	Token         string   `json:"token"`
	Recipient     string   `json:"recipient"`
	Amount        *big.Int `json:"amount"`
	NativeBurned  *big.Int `json:"native_burned"`
	PriceAtSale   *big.Int `json:"price_at_sale"`
	NewStartPrice *big.Int `json:"new_start_price"`
}

func (FeesBurnedEvent) Kind() string { return "fees.burned" }

type AuctionRestartedEvent struct {
	Token      string   `json:"token"`
	StartPrice *big.Int `json:"start_price"`
}

func (AuctionRestartedEvent) Kind() string { return "fees.auction_restarted" }
