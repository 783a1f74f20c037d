package rpc

import (
	"errors"

	"github.com/railpay/paymentsd/internal/core/engine"
)

// JSON-RPC 2.0 protocol error codes plus application codes for engine
// rejections. Application codes are stable; clients dispatch on them.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeNotFound           = 1000
	CodeNotAuthorized      = 1001
	CodeInvalidAmount      = 1002
	CodeInsufficientFunds  = 1003
	CodeAllowanceExceeded  = 1004
	CodeNotSettled         = 1005
	CodeRailState          = 1006
	CodeQueueFull          = 1007
	CodeBadAuthorization   = 1008
	CodeAuctionUnderfunded = 1009
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func errInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, Message: msg}
}

func errMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "method " + method + " not found"}
}

// toRPCError maps engine rejections onto stable application codes;
// anything unrecognized becomes an internal error.
func toRPCError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	code := CodeInternal
	switch {
	case errors.Is(err, engine.ErrRailNotFound),
		errors.Is(err, engine.ErrValidatorNotFound):
		code = CodeNotFound
	case errors.Is(err, engine.ErrNotAuthorized),
		errors.Is(err, engine.ErrOperatorNotApproved):
		code = CodeNotAuthorized
	case errors.Is(err, engine.ErrInvalidAmount),
		errors.Is(err, engine.ErrInvalidRateChange),
		errors.Is(err, engine.ErrLockupPeriodTooLong),
		errors.Is(err, engine.ErrCommissionTooHigh),
		errors.Is(err, engine.ErrMissingFeeRecipient),
		errors.Is(err, engine.ErrSelfRail):
		code = CodeInvalidAmount
	case errors.Is(err, engine.ErrAccountNotSettled):
		code = CodeNotSettled
	case errors.Is(err, engine.ErrRailFinalized),
		errors.Is(err, engine.ErrRailTerminated),
		errors.Is(err, engine.ErrRailNotTerminated):
		code = CodeRailState
	case errors.Is(err, engine.ErrRateChangeQueueFull):
		code = CodeQueueFull
	case errors.Is(err, engine.ErrBadAuthorization),
		errors.Is(err, engine.ErrAuthorizationReplayed):
		code = CodeBadAuthorization
	}

	var insufficient *engine.InsufficientUnlockedFundsError
	var allowance *engine.AllowanceExceededError
	var feesExceeded *engine.WithdrawAmountExceedsAccumulatedFeesError
	var burnShort *engine.InsufficientNativeTokenForBurnError
	switch {
	case errors.As(err, &insufficient):
		return &Error{Code: CodeInsufficientFunds, Message: err.Error(), Data: map[string]string{
			"available": insufficient.Available.String(),
			"requested": insufficient.Requested.String(),
		}}
	case errors.As(err, &allowance):
		return &Error{Code: CodeAllowanceExceeded, Message: err.Error(), Data: map[string]string{
			"kind":      allowance.Kind,
			"allowance": allowance.Allowance.String(),
			"usage":     allowance.Usage.String(),
		}}
	case errors.As(err, &feesExceeded):
		return &Error{Code: CodeInvalidAmount, Message: err.Error(), Data: map[string]string{
			"token":     feesExceeded.Token,
			"available": feesExceeded.Available.String(),
			"requested": feesExceeded.Requested.String(),
		}}
	case errors.As(err, &burnShort):
		return &Error{Code: CodeAuctionUnderfunded, Message: err.Error(), Data: map[string]string{
			"provided": burnShort.Provided.String(),
			"required": burnShort.Required.String(),
		}}
	}

	return &Error{Code: code, Message: err.Error()}
}
