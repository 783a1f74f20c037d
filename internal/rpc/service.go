package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/storage/eventdb"
	"github.com/railpay/paymentsd/internal/storage/statestore"
)

const defaultEventQueryLimit = 100

// Service implements every RPC method over the engine and its stores.
// Enumeration pages are cached in an LRU keyed by a generation counter
// that every mutating method bumps, so a cached page can never outlive
// the state it was computed from.
type Service struct {
	engine  *engine.Engine
	state   *statestore.Store
	events  *eventdb.Store
	version string

	gen   atomic.Uint64
	pages *lru.Cache[string, engine.RailPage]

	subscriberCount func() int
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithStateStore enables the snapshot_save method.
func WithStateStore(s *statestore.Store) ServiceOption {
	return func(svc *Service) { svc.state = s }
}

// WithEventStore enables the event query methods.
func WithEventStore(s *eventdb.Store) ServiceOption {
	return func(svc *Service) { svc.events = s }
}

// WithSubscriberCount wires the websocket hub's live connection count
// into server_info.
func WithSubscriberCount(f func() int) ServiceOption {
	return func(svc *Service) { svc.subscriberCount = f }
}

// WithVersion sets the version string reported by server_info.
func WithVersion(v string) ServiceOption {
	return func(svc *Service) { svc.version = v }
}

// NewService builds a service over an engine. pageCacheSize bounds the
// enumeration cache; sizes below 1 fall back to a small default.
func NewService(e *engine.Engine, pageCacheSize int, opts ...ServiceOption) *Service {
	if pageCacheSize < 1 {
		pageCacheSize = 64
	}
	pages, _ := lru.New[string, engine.RailPage](pageCacheSize)
	svc := &Service{
		engine:  e,
		version: "dev",
		pages:   pages,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) bumpGeneration() {
	s.gen.Add(1)
}

func unmarshalParams(params json.RawMessage, into interface{}) *Error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, into); err != nil {
		return errInvalidParams("invalid parameters: " + err.Error())
	}
	return nil
}

func (s *Service) handleServerInfo(params json.RawMessage) (interface{}, *Error) {
	info := serverInfoResult{
		Version:      s.version,
		CurrentEpoch: s.engine.CurrentEpoch(),
		TotalBurned:  s.engine.TotalBurned().String(),
	}
	if s.events != nil {
		if count, err := s.events.Count(context.Background()); err == nil {
			info.EventCount = count
		}
	}
	if s.subscriberCount != nil {
		info.Subscribers = s.subscriberCount()
	}
	return info, nil
}

func (s *Service) handleAdvanceEpochs(params json.RawMessage) (interface{}, *Error) {
	var p advanceEpochsParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Count == 0 {
		return nil, errInvalidParams("count must be positive")
	}
	s.bumpGeneration()
	epoch := s.engine.AdvanceEpochs(p.Count)
	return map[string]uint64{"current_epoch": epoch}, nil
}

func (s *Service) handleDeposit(params json.RawMessage) (interface{}, *Error) {
	var p depositParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" || p.Token == "" || p.Beneficiary == "" {
		return nil, errInvalidParams("caller, token and beneficiary are required")
	}
	amount, rpcErr := parseAmount("amount", p.Amount, true)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	received, err := s.engine.Deposit(p.Caller, p.Token, p.Beneficiary, amount)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]string{"received": received.String()}, nil
}

func (s *Service) handleDepositWithAuthorization(params json.RawMessage) (interface{}, *Error) {
	var p depositWithAuthorizationParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" || p.Beneficiary == "" {
		return nil, errInvalidParams("token and beneficiary are required")
	}
	amount, rpcErr := parseAmount("amount", p.Amount, true)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sig, err := hex.DecodeString(p.Signature)
	if err != nil {
		return nil, errInvalidParams("signature must be hex encoded")
	}

	s.bumpGeneration()
	received, err := s.engine.DepositWithAuthorization(engine.DepositAuthorization{
		Token:       p.Token,
		Beneficiary: p.Beneficiary,
		Amount:      amount,
		Nonce:       p.Nonce,
		Signature:   sig,
	})
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]string{"received": received.String()}, nil
}

func (s *Service) handleAuthorizationNonce(params json.RawMessage) (interface{}, *Error) {
	var p signerParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Signer == "" {
		return nil, errInvalidParams("missing required parameter: signer")
	}
	return map[string]uint64{"nonce": s.engine.AuthorizationNonce(p.Signer)}, nil
}

func (s *Service) handleWithdraw(params json.RawMessage) (interface{}, *Error) {
	var p withdrawParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" || p.Token == "" {
		return nil, errInvalidParams("caller and token are required")
	}
	amount, rpcErr := parseAmount("amount", p.Amount, true)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	if err := s.engine.Withdraw(p.Caller, p.Token, amount); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleAccountInfo(params json.RawMessage) (interface{}, *Error) {
	var p accountInfoParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" || p.Owner == "" {
		return nil, errInvalidParams("token and owner are required")
	}
	return s.engine.GetAccountInfo(p.Token, p.Owner), nil
}

func (s *Service) handleSetOperatorApproval(params json.RawMessage) (interface{}, *Error) {
	var p setOperatorApprovalParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Owner == "" || p.Token == "" || p.Operator == "" {
		return nil, errInvalidParams("owner, token and operator are required")
	}
	rate, rpcErr := parseAmount("rate_allowance", p.RateAllowance, false)
	if rpcErr != nil {
		return nil, rpcErr
	}
	lockup, rpcErr := parseAmount("lockup_allowance", p.LockupAllowance, false)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	if err := s.engine.SetOperatorApproval(p.Owner, p.Token, p.Operator, p.Approved,
		rate, lockup, p.MaxLockupPeriod); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleGetOperatorApproval(params json.RawMessage) (interface{}, *Error) {
	var p getOperatorApprovalParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" || p.Owner == "" || p.Operator == "" {
		return nil, errInvalidParams("token, owner and operator are required")
	}
	approval := s.engine.GetOperatorApproval(p.Token, p.Owner, p.Operator)
	return operatorApprovalResult{
		Approved:        approval.Approved,
		RateAllowance:   approval.RateAllowance.String(),
		RateUsage:       approval.RateUsage.String(),
		LockupAllowance: approval.LockupAllowance.String(),
		LockupUsage:     approval.LockupUsage.String(),
		MaxLockupPeriod: approval.MaxLockupPeriod,
	}, nil
}

func (s *Service) handleCreateRail(params json.RawMessage) (interface{}, *Error) {
	var p createRailParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Operator == "" || p.Token == "" || p.From == "" || p.To == "" {
		return nil, errInvalidParams("operator, token, from and to are required")
	}

	s.bumpGeneration()
	railID, err := s.engine.CreateRail(p.Operator, p.Token, p.From, p.To, p.Validator,
		p.CommissionRateBps, p.ServiceFeeRecipient)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]uint64{"rail_id": railID}, nil
}

func (s *Service) handleModifyRailPayment(params json.RawMessage) (interface{}, *Error) {
	var p modifyRailPaymentParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" {
		return nil, errInvalidParams("missing required parameter: caller")
	}
	rate, rpcErr := parseAmount("rate", p.Rate, true)
	if rpcErr != nil {
		return nil, rpcErr
	}
	oneTime, rpcErr := parseAmount("one_time_payment", p.OneTimePayment, false)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	if err := s.engine.ModifyRailPayment(p.Caller, p.RailID, rate, oneTime); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleModifyRailLockup(params json.RawMessage) (interface{}, *Error) {
	var p modifyRailLockupParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" {
		return nil, errInvalidParams("missing required parameter: caller")
	}
	fixed, rpcErr := parseAmount("fixed", p.Fixed, false)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	if err := s.engine.ModifyRailLockup(p.Caller, p.RailID, p.Period, fixed); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleTerminateRail(params json.RawMessage) (interface{}, *Error) {
	var p railIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" {
		return nil, errInvalidParams("missing required parameter: caller")
	}

	s.bumpGeneration()
	if err := s.engine.TerminateRail(p.Caller, p.RailID); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleSettleRail(params json.RawMessage) (interface{}, *Error) {
	var p settleRailParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" {
		return nil, errInvalidParams("missing required parameter: caller")
	}

	s.bumpGeneration()
	result, err := s.engine.SettleRail(p.Caller, p.RailID, p.UpToEpoch)
	if err != nil {
		return nil, toRPCError(err)
	}
	return result, nil
}

func (s *Service) handleSettleAll(params json.RawMessage) (interface{}, *Error) {
	var p settleAllParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" || p.Token == "" || p.Payer == "" {
		return nil, errInvalidParams("caller, token and payer are required")
	}

	s.bumpGeneration()
	results, err := s.engine.SettleAll(p.Caller, p.Token, p.Payer)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]interface{}{"results": results}, nil
}

func (s *Service) handleGetRail(params json.RawMessage) (interface{}, *Error) {
	var p railIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	view, err := s.engine.GetRail(p.RailID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return view, nil
}

func (s *Service) handleRailsForPayer(params json.RawMessage) (interface{}, *Error) {
	return s.handleRailEnumeration(params, "payer")
}

func (s *Service) handleRailsForPayee(params json.RawMessage) (interface{}, *Error) {
	return s.handleRailEnumeration(params, "payee")
}

func (s *Service) handleRailEnumeration(params json.RawMessage, side string) (interface{}, *Error) {
	var p railEnumerationParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Address == "" || p.Token == "" {
		return nil, errInvalidParams("address and token are required")
	}

	key := fmt.Sprintf("%d/%s/%s/%s/%d/%d", s.gen.Load(), side, p.Address, p.Token, p.Offset, p.Limit)
	if page, ok := s.pages.Get(key); ok {
		return page, nil
	}

	var page engine.RailPage
	if side == "payer" {
		page = s.engine.GetRailsForPayerAndToken(p.Address, p.Token, p.Offset, p.Limit)
	} else {
		page = s.engine.GetRailsForPayeeAndToken(p.Address, p.Token, p.Offset, p.Limit)
	}
	s.pages.Add(key, page)
	return page, nil
}

func (s *Service) handleAuctionInfo(params json.RawMessage) (interface{}, *Error) {
	var p tokenParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, errInvalidParams("missing required parameter: token")
	}
	return s.engine.GetAuctionInfo(p.Token), nil
}

func (s *Service) handleAccumulatedFees(params json.RawMessage) (interface{}, *Error) {
	var p tokenParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, errInvalidParams("missing required parameter: token")
	}
	return map[string]string{"amount": s.engine.AccumulatedFees(p.Token).String()}, nil
}

func (s *Service) handleBurnForFees(params json.RawMessage) (interface{}, *Error) {
	var p burnForFeesParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	if p.Caller == "" || p.Token == "" || p.Recipient == "" {
		return nil, errInvalidParams("caller, token and recipient are required")
	}
	amount, rpcErr := parseAmount("amount", p.Amount, true)
	if rpcErr != nil {
		return nil, rpcErr
	}
	native, rpcErr := parseAmount("native_provided", p.NativeProvided, false)
	if rpcErr != nil {
		return nil, rpcErr
	}

	s.bumpGeneration()
	if err := s.engine.BurnForFees(p.Caller, p.Token, p.Recipient, amount, native); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]bool{"ok": true}, nil
}

func (s *Service) handleEvents(params json.RawMessage) (interface{}, *Error) {
	if s.events == nil {
		return nil, &Error{Code: CodeInternal, Message: "event log not configured"}
	}
	var p eventQueryParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, err
	}
	limit := p.Limit
	if limit <= 0 {
		limit = defaultEventQueryLimit
	}

	var (
		rows []eventdb.StoredEvent
		err  error
	)
	switch {
	case p.RailID != 0:
		rows, err = s.events.ByRail(context.Background(), p.RailID, limit)
	case p.Kind != "":
		rows, err = s.events.ByKind(context.Background(), p.Kind, limit)
	default:
		rows, err = s.events.Recent(context.Background(), limit)
	}
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]interface{}{"events": rows}, nil
}

func (s *Service) handleSnapshotSave(params json.RawMessage) (interface{}, *Error) {
	if s.state == nil {
		return nil, &Error{Code: CodeInternal, Message: "state store not configured"}
	}
	snap := s.engine.Snapshot()
	if err := s.state.Save(context.Background(), snap); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]uint64{"epoch": snap.CurrentEpoch}, nil
}
