package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/railpay/paymentsd/internal/core/engine"
	"github.com/railpay/paymentsd/internal/storage/eventdb"
)

const (
	tokUSD = "tok-usd"
	alice  = "addr:alice"
	bob    = "addr:bob"
	opr    = "addr:operator"
)

func newTestService(t *testing.T) (*Service, *engine.Engine) {
	t.Helper()
	e := engine.New(engine.DefaultConfig())
	e.Custody().Mint(tokUSD, alice, big.NewInt(1_000_000))
	return NewService(e, 16, WithVersion("test")), e
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	ID     interface{}     `json:"id"`
}

func call(t *testing.T, url, method string, params interface{}) rpcResponse {
	t.Helper()

	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = params
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func mustCall(t *testing.T, url, method string, params interface{}) json.RawMessage {
	t.Helper()
	resp := call(t, url, method, params)
	require.Nil(t, resp.Error, "method %s: %+v", method, resp.Error)
	return resp.Result
}

func TestServerEndToEndFlow(t *testing.T) {
	svc, e := newTestService(t)
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	mustCall(t, srv.URL, "deposit", depositParams{
		Caller: alice, Token: tokUSD, Beneficiary: alice, Amount: "50000",
	})
	mustCall(t, srv.URL, "set_operator_approval", setOperatorApprovalParams{
		Owner: alice, Token: tokUSD, Operator: opr, Approved: true,
		RateAllowance: "1000000", LockupAllowance: "1000000", MaxLockupPeriod: 100,
	})

	var created struct {
		RailID uint64 `json:"rail_id"`
	}
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "create_rail", createRailParams{
		Operator: opr, Token: tokUSD, From: alice, To: bob,
	}), &created))
	require.NotZero(t, created.RailID)

	mustCall(t, srv.URL, "modify_rail_payment", modifyRailPaymentParams{
		Caller: opr, RailID: created.RailID, Rate: "500",
	})

	var advanced struct {
		CurrentEpoch uint64 `json:"current_epoch"`
	}
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "advance_epochs", advanceEpochsParams{Count: 10}), &advanced))
	assert.Equal(t, uint64(10), advanced.CurrentEpoch)

	var settled engine.SettlementResult
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "settle_rail", settleRailParams{
		Caller: opr, RailID: created.RailID, UpToEpoch: 10,
	}), &settled))
	assert.Equal(t, uint64(10), settled.SettledUpTo)
	assert.Equal(t, "5000", settled.TotalSettled.String())

	var info engine.AccountInfo
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "account_info", accountInfoParams{
		Token: tokUSD, Owner: bob,
	}), &info))
	// 1% network fee skimmed from 5000.
	assert.Equal(t, "4950", info.Funds.String())

	var fees struct {
		Amount string `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "accumulated_fees", tokenParams{Token: tokUSD}), &fees))
	assert.Equal(t, "50", fees.Amount)

	// Engine state observed through the server matches direct reads.
	assert.Equal(t, uint64(10), e.CurrentEpoch())
}

func TestServerErrorMapping(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	resp := call(t, srv.URL, "no_such_method", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)

	resp = call(t, srv.URL, "get_rail", railIDParams{RailID: 99})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeNotFound, resp.Error.Code)

	resp = call(t, srv.URL, "withdraw", withdrawParams{Caller: alice, Token: tokUSD, Amount: "123"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInsufficientFunds, resp.Error.Code)

	resp = call(t, srv.URL, "deposit", depositParams{Caller: alice, Token: tokUSD, Beneficiary: alice, Amount: "-5"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)

	resp = call(t, srv.URL, "deposit", depositParams{Token: tokUSD, Beneficiary: alice, Amount: "5"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestServerRejectsNonPost(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerParseError(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out rpcResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotNil(t, out.Error)
	assert.Equal(t, CodeParseError, out.Error.Code)
}

func TestPageCacheFollowsMutations(t *testing.T) {
	svc, e := newTestService(t)
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	_, err := e.Deposit(alice, tokUSD, alice, big.NewInt(50_000))
	require.NoError(t, err)
	require.NoError(t, e.SetOperatorApproval(alice, tokUSD, opr, true,
		big.NewInt(1_000_000), big.NewInt(1_000_000), 100))

	mustCall(t, srv.URL, "create_rail", createRailParams{Operator: opr, Token: tokUSD, From: alice, To: bob})

	var page engine.RailPage
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "rails_for_payer", railEnumerationParams{
		Address: alice, Token: tokUSD,
	}), &page))
	assert.Equal(t, 1, page.Total)

	// Same query twice hits the cache and stays consistent.
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "rails_for_payer", railEnumerationParams{
		Address: alice, Token: tokUSD,
	}), &page))
	assert.Equal(t, 1, page.Total)

	// A mutation through the server bumps the generation; the next read
	// sees the new rail instead of the stale page.
	mustCall(t, srv.URL, "create_rail", createRailParams{Operator: opr, Token: tokUSD, From: alice, To: "addr:carol"})
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "rails_for_payer", railEnumerationParams{
		Address: alice, Token: tokUSD,
	}), &page))
	assert.Equal(t, 2, page.Total)
}

func TestEventsMethod(t *testing.T) {
	events, err := eventdb.Open(":memory:")
	require.NoError(t, err)
	defer events.Close()

	e := engine.New(engine.DefaultConfig())
	svc := NewService(e, 16, WithEventStore(events))
	srv := httptest.NewServer(NewServer(svc))
	defer srv.Close()

	require.NoError(t, events.Append(t.Context(), 2, engine.RailFinalizedEvent{RailID: 3}))

	var out struct {
		Events []eventdb.StoredEvent `json:"events"`
	}
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "events", eventQueryParams{RailID: 3}), &out))
	require.Len(t, out.Events, 1)
	assert.Equal(t, "rail.finalized", out.Events[0].Kind)

	var info serverInfoResult
	require.NoError(t, json.Unmarshal(mustCall(t, srv.URL, "server_info", nil), &info))
	assert.Equal(t, int64(1), info.EventCount)
}
