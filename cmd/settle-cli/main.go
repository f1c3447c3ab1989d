package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"rtsettle/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("RTS_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	args = args[1:]
	switch command {
	case "generate-key":
		generateKey()
	case "balance":
		requireArgs(args, 2, "balance <token> <address>")
		getBalance(args[0], args[1])
	case "supply":
		requireArgs(args, 1, "supply <token>")
		getSupply(args[0])
	case "transfer":
		requireArgs(args, 4, "transfer <token> <from> <to> <amount>")
		transfer(args[0], args[1], args[2], args[3])
	case "approve":
		requireArgs(args, 4, "approve <token> <owner> <spender> <amount>")
		approve(args[0], args[1], args[2], args[3])
	case "mint":
		requireArgs(args, 4, "mint <token> <caller> <to> <amount>")
		mint(args[0], args[1], args[2], args[3])
	case "restrict":
		requireArgs(args, 3, "restrict <token> <caller> <address>")
		setRestricted(args[0], args[1], args[2], true)
	case "unrestrict":
		requireArgs(args, 3, "unrestrict <token> <caller> <address>")
		setRestricted(args[0], args[1], args[2], false)
	case "grant-role":
		requireArgs(args, 3, "grant-role <caller> <role> <address>")
		changeRole("registry_grantRole", args[0], args[1], args[2])
	case "revoke-role":
		requireArgs(args, 3, "revoke-role <caller> <role> <address>")
		changeRole("registry_revokeRole", args[0], args[1], args[2])
	case "coordinator":
		coordinator()
	case "init-trade":
		requireArgs(args, 7, "init-trade <creator> <seller> <buyer> <sellToken> <sellAmount> <buyToken> <buyAmount>")
		initTrade(args)
	case "approve-trade":
		requireArgs(args, 2, "approve-trade <caller> <id>")
		tradeCall("settlement_approveTrade", args[0], args[1])
	case "execute-trade":
		requireArgs(args, 2, "execute-trade <caller> <id>")
		tradeCall("settlement_executeTrade", args[0], args[1])
	case "get-trade":
		requireArgs(args, 1, "get-trade <id>")
		getTrade(args[0])
	case "list-trades":
		listTrades()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func requireArgs(args []string, want int, usage string) {
	if len(args) < want {
		fmt.Printf("Usage: settle-cli %s\n", usage)
		os.Exit(1)
	}
}

func generateKey() {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
		panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your account address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely.")
}

func getBalance(token, address string) {
	result, err := call("token_balanceOf", map[string]string{"token": token, "address": address}, false)
	if err != nil {
		fmt.Printf("Error fetching balance: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func getSupply(token string) {
	result, err := call("token_totalSupply", map[string]string{"token": token}, false)
	if err != nil {
		fmt.Printf("Error fetching supply: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func transfer(token, from, to, amount string) {
	_, err := call("token_transfer", map[string]string{
		"token": token, "from": from, "to": to, "amount": amount,
	}, false)
	if err != nil {
		fmt.Printf("Error sending transfer: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Transferred %s %s.\n", amount, strings.ToUpper(token))
}

func approve(token, owner, spender, amount string) {
	_, err := call("token_approve", map[string]string{
		"token": token, "owner": owner, "spender": spender, "amount": amount,
	}, false)
	if err != nil {
		fmt.Printf("Error setting allowance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Approved %s %s for %s.\n", amount, strings.ToUpper(token), spender)
}

func mint(token, caller, to, amount string) {
	_, err := call("token_mint", map[string]string{
		"token": token, "caller": caller, "to": to, "amount": amount,
	}, true)
	if err != nil {
		fmt.Printf("Error minting: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Minted %s %s to %s.\n", amount, strings.ToUpper(token), to)
}

func setRestricted(token, caller, address string, restricted bool) {
	_, err := call("token_setRestricted", map[string]interface{}{
		"token": token, "caller": caller, "address": address, "restricted": restricted,
	}, true)
	if err != nil {
		fmt.Printf("Error updating restriction: %v\n", err)
		os.Exit(1)
	}
	if restricted {
		fmt.Printf("Restricted %s on %s.\n", address, strings.ToUpper(token))
	} else {
		fmt.Printf("Cleared restriction for %s on %s.\n", address, strings.ToUpper(token))
	}
}

func changeRole(method, caller, role, address string) {
	_, err := call(method, map[string]string{
		"caller": caller, "role": role, "address": address,
	}, true)
	if err != nil {
		fmt.Printf("Error changing role: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Role change applied: %s for %s.\n", strings.ToUpper(role), address)
}

func coordinator() {
	result, err := call("settlement_coordinator", nil, false)
	if err != nil {
		fmt.Printf("Error fetching coordinator: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func initTrade(args []string) {
	result, err := call("settlement_initTrade", map[string]string{
		"creator":    args[0],
		"seller":     args[1],
		"buyer":      args[2],
		"sellToken":  args[3],
		"sellAmount": args[4],
		"buyToken":   args[5],
		"buyAmount":  args[6],
	}, false)
	if err != nil {
		fmt.Printf("Error initiating trade: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func tradeCall(method, caller, idArg string) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid trade id %q\n", idArg)
		os.Exit(1)
	}
	result, err := call(method, map[string]interface{}{"caller": caller, "id": id}, false)
	if err != nil {
		fmt.Printf("Error calling %s: %v\n", method, err)
		os.Exit(1)
	}
	printJSON(result)
}

func getTrade(idArg string) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		fmt.Printf("Error: invalid trade id %q\n", idArg)
		os.Exit(1)
	}
	result, err := call("settlement_getTrade", map[string]interface{}{"id": id}, false)
	if err != nil {
		fmt.Printf("Error fetching trade: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func listTrades() {
	result, err := call("settlement_listTrades", nil, false)
	if err != nil {
		fmt.Printf("Error listing trades: %v\n", err)
		os.Exit(1)
	}
	printJSON(result)
}

func call(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if rpcAuthToken == "" {
			return nil, fmt.Errorf("privileged RPC call requires RTS_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node")
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node (%d): %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSON(raw json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(out.String())
}

func printUsage() {
	fmt.Println("Usage: settle-cli [--rpc <url>] <command> [args]")
	fmt.Println("Commands:")
	fmt.Println("  generate-key                                                            Generate a new key pair")
	fmt.Println("  balance <token> <address>                                               Query a balance")
	fmt.Println("  supply <token>                                                          Query the total supply")
	fmt.Println("  transfer <token> <from> <to> <amount>                                   Move funds")
	fmt.Println("  approve <token> <owner> <spender> <amount>                              Set a spending allowance")
	fmt.Println("  mint <token> <caller> <to> <amount>                                     Mint new units (requires RTS_RPC_TOKEN)")
	fmt.Println("  restrict <token> <caller> <address>                                     Restrict an identity (requires RTS_RPC_TOKEN)")
	fmt.Println("  unrestrict <token> <caller> <address>                                   Clear a restriction (requires RTS_RPC_TOKEN)")
	fmt.Println("  grant-role <caller> <role> <address>                                    Grant a role (requires RTS_RPC_TOKEN)")
	fmt.Println("  revoke-role <caller> <role> <address>                                   Revoke a role (requires RTS_RPC_TOKEN)")
	fmt.Println("  coordinator                                                             Show the settlement coordinator address")
	fmt.Println("  init-trade <creator> <seller> <buyer> <sellToken> <sellAmt> <buyToken> <buyAmt>")
	fmt.Println("  approve-trade <caller> <id>                                             Approve a trade as a counterparty")
	fmt.Println("  execute-trade <caller> <id>                                             Execute a fully approved trade")
	fmt.Println("  get-trade <id>                                                          Show one trade")
	fmt.Println("  list-trades                                                             Show every trade")
}
