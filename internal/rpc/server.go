package rpc

import (
	"encoding/json"
	"net/http"
)

// HandlerFunc is one registered RPC method.
type HandlerFunc func(params json.RawMessage) (interface{}, *Error)

// Server serves the JSON-RPC 2.0 surface over HTTP POST.
type Server struct {
	methods map[string]HandlerFunc
}

// NewServer builds a server with every service method registered.
func NewServer(svc *Service) *Server {
	s := &Server{methods: make(map[string]HandlerFunc)}

	s.methods["server_info"] = svc.handleServerInfo
	s.methods["advance_epochs"] = svc.handleAdvanceEpochs

	s.methods["deposit"] = svc.handleDeposit
	s.methods["deposit_with_authorization"] = svc.handleDepositWithAuthorization
	// Alias kept for clients using the permit-style name.
	s.methods["deposit_with_permit"] = svc.handleDepositWithAuthorization
	s.methods["authorization_nonce"] = svc.handleAuthorizationNonce
	s.methods["withdraw"] = svc.handleWithdraw
	s.methods["account_info"] = svc.handleAccountInfo

	s.methods["set_operator_approval"] = svc.handleSetOperatorApproval
	s.methods["get_operator_approval"] = svc.handleGetOperatorApproval

	s.methods["create_rail"] = svc.handleCreateRail
	s.methods["modify_rail_payment"] = svc.handleModifyRailPayment
	s.methods["modify_rail_lockup"] = svc.handleModifyRailLockup
	s.methods["terminate_rail"] = svc.handleTerminateRail
	s.methods["get_rail"] = svc.handleGetRail
	s.methods["rails_for_payer"] = svc.handleRailsForPayer
	s.methods["rails_for_payee"] = svc.handleRailsForPayee

	s.methods["settle_rail"] = svc.handleSettleRail
	s.methods["settle_all"] = svc.handleSettleAll

	s.methods["auction_info"] = svc.handleAuctionInfo
	s.methods["accumulated_fees"] = svc.handleAccumulatedFees
	s.methods["burn_for_fees"] = svc.handleBurnForFees

	s.methods["events"] = svc.handleEvents
	s.methods["snapshot_save"] = svc.handleSnapshotSave

	return s
}

// Handle dispatches one method call; the websocket layer shares it.
func (s *Server) Handle(method string, params json.RawMessage) (interface{}, *Error) {
	handler, exists := s.methods[method]
	if !exists {
		return nil, errMethodNotFound(method)
	}
	return handler(params)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		JsonRPC string          `json:"jsonrpc"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		ID      interface{}     `json:"id"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, &Error{Code: CodeParseError, Message: "Parse error"})
		return
	}
	if req.Method == "" {
		writeError(w, req.ID, &Error{Code: CodeInvalidRequest, Message: "missing method"})
		return
	}

	result, rpcErr := s.Handle(req.Method, req.Params)
	if rpcErr != nil {
		writeError(w, req.ID, rpcErr)
		return
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"result":  result,
		"id":      req.ID,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func writeError(w http.ResponseWriter, id interface{}, rpcErr *Error) {
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
