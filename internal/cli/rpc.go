package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

// rpcCmd represents the rpc command group
var rpcCmd = &cobra.Command{
	Use:   "rpc",
	Short: "RPC client commands",
	Long:  `Execute RPC methods against a running paymentsd server.`,
}

var rpcURL string

func init() {
	rootCmd.AddCommand(rpcCmd, advanceCmd)
	rpcCmd.PersistentFlags().StringVar(&rpcURL, "url", "http://127.0.0.1:8264/", "server JSON-RPC endpoint")
	advanceCmd.Flags().StringVar(&rpcURL, "url", "http://127.0.0.1:8264/", "server JSON-RPC endpoint")
}

// advanceCmd ticks the engine clock on a running server. The chain is
// the clock authority; standalone and keeper deployments advance epochs
// explicitly with this command.
var advanceCmd = &cobra.Command{
	Use:   "advance <count>",
	Short: "Advance the engine clock on a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count: %w", err)
		}
		return executeMethod("advance_epochs", map[string]interface{}{"count": count})
	},
}

// executeMethod posts one JSON-RPC call and pretty prints the result.
func executeMethod(method string, params interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"id":      1,
	}
	if params != nil {
		body["params"] = params
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := http.Post(rpcURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != nil {
		return fmt.Errorf("RPC error [%d]: %s", out.Error.Code, out.Error.Message)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, out.Result, "", "  "); err != nil {
		fmt.Println(string(out.Result))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

// =============================================================================
// SERVER COMMANDS
// =============================================================================

var serverInfoCmd = &cobra.Command{
	Use:   "server_info",
	Short: "Get server information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("server_info", nil)
	},
}

var advanceEpochsCmd = &cobra.Command{
	Use:   "advance_epochs <count>",
	Short: "Advance the engine clock",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid count: %w", err)
		}
		return executeMethod("advance_epochs", map[string]interface{}{"count": count})
	},
}

var snapshotSaveCmd = &cobra.Command{
	Use:   "snapshot_save",
	Short: "Persist an engine snapshot now",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("snapshot_save", nil)
	},
}

// =============================================================================
// ACCOUNT COMMANDS
// =============================================================================

var accountInfoCmd = &cobra.Command{
	Use:   "account_info <token> <owner>",
	Short: "Get account balances and lockup",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("account_info", map[string]interface{}{
			"token": args[0],
			"owner": args[1],
		})
	},
}

var depositCmd = &cobra.Command{
	Use:   "deposit <caller> <token> <beneficiary> <amount>",
	Short: "Deposit funds into custody",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("deposit", map[string]interface{}{
			"caller":      args[0],
			"token":       args[1],
			"beneficiary": args[2],
			"amount":      args[3],
		})
	},
}

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <caller> <token> <amount>",
	Short: "Withdraw unlocked funds",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("withdraw", map[string]interface{}{
			"caller": args[0],
			"token":  args[1],
			"amount": args[2],
		})
	},
}

var operatorApprovalCmd = &cobra.Command{
	Use:   "get_operator_approval <token> <owner> <operator>",
	Short: "Get an operator's allowances and usage",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("get_operator_approval", map[string]interface{}{
			"token":    args[0],
			"owner":    args[1],
			"operator": args[2],
		})
	},
}

// =============================================================================
// RAIL COMMANDS
// =============================================================================

var getRailCmd = &cobra.Command{
	Use:   "get_rail <rail_id>",
	Short: "Get rail state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		railID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rail id: %w", err)
		}
		return executeMethod("get_rail", map[string]interface{}{"rail_id": railID})
	},
}

var railsForPayerCmd = &cobra.Command{
	Use:   "rails_for_payer <address> <token> [offset] [limit]",
	Short: "List rails paying out of an address",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRailEnumeration("rails_for_payer", args)
	},
}

var railsForPayeeCmd = &cobra.Command{
	Use:   "rails_for_payee <address> <token> [offset] [limit]",
	Short: "List rails paying into an address",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeRailEnumeration("rails_for_payee", args)
	},
}

func executeRailEnumeration(method string, args []string) error {
	params := map[string]interface{}{
		"address": args[0],
		"token":   args[1],
	}
	if len(args) > 2 {
		offset, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid offset: %w", err)
		}
		params["offset"] = offset
	}
	if len(args) > 3 {
		limit, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid limit: %w", err)
		}
		params["limit"] = limit
	}
	return executeMethod(method, params)
}

var settleRailCmd = &cobra.Command{
	Use:   "settle_rail <caller> <rail_id> <up_to_epoch>",
	Short: "Settle a rail up to an epoch",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		railID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid rail id: %w", err)
		}
		upTo, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid epoch: %w", err)
		}
		return executeMethod("settle_rail", map[string]interface{}{
			"caller":      args[0],
			"rail_id":     railID,
			"up_to_epoch": upTo,
		})
	},
}

// =============================================================================
// AUCTION AND EVENT COMMANDS
// =============================================================================

var auctionInfoCmd = &cobra.Command{
	Use:   "auction_info <token>",
	Short: "Get the burn auction state for a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("auction_info", map[string]interface{}{"token": args[0]})
	},
}

var accumulatedFeesCmd = &cobra.Command{
	Use:   "accumulated_fees <token>",
	Short: "Get network fees accumulated for a token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod("accumulated_fees", map[string]interface{}{"token": args[0]})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [rail_id|kind] [limit]",
	Short: "Query the event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{}
		if len(args) > 0 {
			if railID, err := strconv.ParseUint(args[0], 10, 64); err == nil {
				params["rail_id"] = railID
			} else {
				params["kind"] = args[0]
			}
		}
		if len(args) > 1 {
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit: %w", err)
			}
			params["limit"] = limit
		}
		return executeMethod("events", params)
	},
}

// Generic JSON command for any method
var jsonCmd = &cobra.Command{
	Use:   "json <method> [json_params]",
	Short: "Execute any RPC method with JSON parameters",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var params interface{}
		if len(args) > 1 {
			if err := json.Unmarshal([]byte(args[1]), &params); err != nil {
				return fmt.Errorf("invalid JSON parameters: %w", err)
			}
		}
		return executeMethod(args[0], params)
	},
}

// =============================================================================
// ADD ALL COMMANDS
// =============================================================================

func init() {
	rpcCmd.AddCommand(
		// Server commands
		serverInfoCmd,
		advanceEpochsCmd,
		snapshotSaveCmd,

		// Account commands
		accountInfoCmd,
		depositCmd,
		withdrawCmd,
		operatorApprovalCmd,

		// Rail commands
		getRailCmd,
		railsForPayerCmd,
		railsForPayeeCmd,
		settleRailCmd,

		// Auction and event commands
		auctionInfoCmd,
		accumulatedFeesCmd,
		eventsCmd,

		// Generic JSON command
		jsonCmd,
	)
}
