package rpc

import (
	"math/big"
)

// Amounts travel as decimal strings: token quantities routinely exceed
// int64 and JSON numbers lose precision past 2^53.

type depositParams struct {
	Caller      string `json:"caller"`
	Token       string `json:"token"`
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
}

type depositWithAuthorizationParams struct {
	Token       string `json:"token"`
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
	Nonce       uint64 `json:"nonce"`
	Signature   string `json:"signature"` // hex, 65-byte compact recoverable
}

type withdrawParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type accountInfoParams struct {
	Token string `json:"token"`
	Owner string `json:"owner"`
}

type setOperatorApprovalParams struct {
	Owner           string `json:"owner"`
	Token           string `json:"token"`
	Operator        string `json:"operator"`
	Approved        bool   `json:"approved"`
	RateAllowance   string `json:"rate_allowance"`
	LockupAllowance string `json:"lockup_allowance"`
	MaxLockupPeriod uint64 `json:"max_lockup_period"`
}

type getOperatorApprovalParams struct {
	Token    string `json:"token"`
	Owner    string `json:"owner"`
	Operator string `json:"operator"`
}

type operatorApprovalResult struct {
	Approved        bool   `json:"approved"`
	RateAllowance   string `json:"rate_allowance"`
	RateUsage       string `json:"rate_usage"`
	LockupAllowance string `json:"lockup_allowance"`
	LockupUsage     string `json:"lockup_usage"`
	MaxLockupPeriod uint64 `json:"max_lockup_period"`
}

type createRailParams struct {
	Operator            string `json:"operator"`
	Token               string `json:"token"`
	From                string `json:"from"`
	To                  string `json:"to"`
	Validator           string `json:"validator,omitempty"`
	CommissionRateBps   uint64 `json:"commission_rate_bps,omitempty"`
	ServiceFeeRecipient string `json:"service_fee_recipient,omitempty"`
}

type modifyRailPaymentParams struct {
	Caller         string `json:"caller"`
	RailID         uint64 `json:"rail_id"`
	Rate           string `json:"rate"`
	OneTimePayment string `json:"one_time_payment,omitempty"`
}

type modifyRailLockupParams struct {
	Caller string `json:"caller"`
	RailID uint64 `json:"rail_id"`
	Period uint64 `json:"period"`
	Fixed  string `json:"fixed"`
}

type railIDParams struct {
	Caller string `json:"caller,omitempty"`
	RailID uint64 `json:"rail_id"`
}

type settleRailParams struct {
	Caller    string `json:"caller"`
	RailID    uint64 `json:"rail_id"`
	UpToEpoch uint64 `json:"up_to_epoch"`
}

type settleAllParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Payer  string `json:"payer"`
}

type railEnumerationParams struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Offset  int    `json:"offset,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type tokenParams struct {
	Token string `json:"token"`
}

type burnForFeesParams struct {
	Caller         string `json:"caller"`
	Token          string `json:"token"`
	Recipient      string `json:"recipient"`
	Amount         string `json:"amount"`
	NativeProvided string `json:"native_provided"`
}

type advanceEpochsParams struct {
	Count uint64 `json:"count"`
}

type signerParams struct {
	Signer string `json:"signer"`
}

type eventQueryParams struct {
	RailID uint64 `json:"rail_id,omitempty"`
	Kind   string `json:"kind,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

type serverInfoResult struct {
	Version      string `json:"version"`
	CurrentEpoch uint64 `json:"current_epoch"`
	TotalBurned  string `json:"total_burned"`
	EventCount   int64  `json:"event_count,omitempty"`
	Subscribers  int    `json:"subscribers"`
}

// parseAmount parses a non-negative decimal amount; empty means zero
// when required is false.
func parseAmount(field, s string, required bool) (*big.Int, *Error) {
	if s == "" {
		if required {
			return nil, errInvalidParams("missing required parameter: " + field)
		}
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, errInvalidParams(field + " must be a non-negative decimal integer")
	}
	return v, nil
}
