package engine

import "math/big"

// ValidationRequest describes one settlement segment offered to an
// arbiter for review.
type ValidationRequest struct {
	RailID        uint64
	SegmentStart  uint64
	SegmentEnd    uint64
	Rate          *big.Int
	NominalAmount *big.Int
}

// ValidationResult is the arbiter's verdict. ApprovedAmount above the
// nominal amount and SettleUpTo outside the segment are clamped by the
// engine; arbiters can only reduce, never enlarge.
type ValidationResult struct {
	// ApprovedAmount is the amount actually payable for the segment.
	ApprovedAmount *big.Int

	// SettleUpTo lets the arbiter stop settlement early: epochs from
	// SettleUpTo onward stay unsettled and the settlement call ends.
	SettleUpTo uint64

	// Note is carried into the settlement result for off-chain audit.
	Note string
}

// Validator arbitrates settlement segments. It is called synchronously,
// at most once per segment per settlement call; an error aborts the
// whole call with no ledger mutation.
type Validator interface {
	Validate(req ValidationRequest) (ValidationResult, error)
}

// NoopValidator approves every segment in full. Rails without an
// arbiter use a shared instance instead of branching on a nil hook.
type NoopValidator struct{}

func (NoopValidator) Validate(req ValidationRequest) (ValidationResult, error) {
	return ValidationResult{
		ApprovedAmount: new(big.Int).Set(req.NominalAmount),
		SettleUpTo:     req.SegmentEnd,
	}, nil
}
