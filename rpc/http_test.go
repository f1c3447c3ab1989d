package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"rtsettle/config"
	"rtsettle/core"
	"rtsettle/crypto"
	"rtsettle/storage"
)

type testAccounts struct {
	admin  crypto.Address
	issuer crypto.Address
	seller crypto.Address
	buyer  crypto.Address
}

func newTestServer(t *testing.T, authToken string) (*httptest.Server, testAccounts) {
	t.Helper()
	t.Setenv(authTokenEnv, authToken)
	gen := func() crypto.Address {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		return key.PubKey().Address()
	}
	accounts := testAccounts{admin: gen(), issuer: gen(), seller: gen(), buyer: gen()}
	cfg := &config.Config{
		Storage: config.BackendLevelDB,
		Genesis: config.GenesisConfig{
			Admin:              accounts.admin.String(),
			ComplianceOfficers: []string{accounts.admin.String()},
		},
		Assets: []config.AssetConfig{
			{Symbol: "TSEC", InitialSupply: "1000", Issuer: accounts.issuer.String()},
			{Symbol: "TCASH", InitialSupply: "100000", Issuer: accounts.issuer.String()},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	node, err := core.NewNode(storage.NewMemDB(), cfg, logger)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	server := httptest.NewServer(NewServer(node, logger).Handler())
	t.Cleanup(server.Close)
	return server, accounts
}

func call(t *testing.T, server *httptest.Server, token, method string, params interface{}) (*RPCResponse, int) {
	t.Helper()
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = []interface{}{params}
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, server.URL+"/", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &rpcResp, resp.StatusCode
}

func resultMap(t *testing.T, resp *RPCResponse) map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", resp.Result)
	}
	return result
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, "")
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t, "")
	resp, status := call(t, server, "", "token_burn", nil)
	if status != http.StatusNotFound {
		t.Fatalf("unexpected status %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestInvalidJSON(t *testing.T) {
	server, _ := newTestServer(t, "")
	resp, err := http.Post(server.URL+"/", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rpcResp.Error == nil || rpcResp.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", rpcResp.Error)
	}
}

func TestTokenBalanceOf(t *testing.T) {
	server, accounts := newTestServer(t, "")
	resp, _ := call(t, server, "", "token_balanceOf", map[string]string{
		"token":   "TSEC",
		"address": accounts.issuer.String(),
	})
	result := resultMap(t, resp)
	if result["amount"] != "1000" {
		t.Fatalf("unexpected balance %v", result["amount"])
	}
}

func TestPrivilegedMethodRequiresToken(t *testing.T) {
	server, accounts := newTestServer(t, "secret")
	params := map[string]interface{}{
		"token":  "TSEC",
		"caller": accounts.issuer.String(),
		"to":     accounts.seller.String(),
		"amount": "5",
	}

	resp, status := call(t, server, "", "token_mint", params)
	if status != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", status)
	}
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", resp.Error)
	}

	resp, status = call(t, server, "wrong", "token_mint", params)
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("wrong token accepted: %d %+v", status, resp.Error)
	}

	resp, _ = call(t, server, "secret", "token_mint", params)
	if resp.Error != nil {
		t.Fatalf("valid token rejected: %+v", resp.Error)
	}
}

func TestPrivilegedMethodsDisabledWithoutConfiguredToken(t *testing.T) {
	server, accounts := newTestServer(t, "")
	resp, status := call(t, server, "anything", "registry_grantRole", map[string]string{
		"caller":  accounts.admin.String(),
		"role":    "ROLE_ISSUER",
		"address": accounts.seller.String(),
	})
	if status != http.StatusUnauthorized || resp.Error == nil {
		t.Fatalf("privileged method should be disabled: %d %+v", status, resp.Error)
	}
}

func TestTradeLifecycleOverRPC(t *testing.T) {
	server, accounts := newTestServer(t, "")

	coordResp, _ := call(t, server, "", "settlement_coordinator", nil)
	coordinator := resultMap(t, coordResp)["coordinator"].(string)

	transfer := func(token, from, to, amount string) {
		resp, _ := call(t, server, "", "token_transfer", map[string]string{
			"token": token, "from": from, "to": to, "amount": amount,
		})
		if resp.Error != nil {
			t.Fatalf("transfer: %+v", resp.Error)
		}
	}
	approve := func(token, owner, spender, amount string) {
		resp, _ := call(t, server, "", "token_approve", map[string]string{
			"token": token, "owner": owner, "spender": spender, "amount": amount,
		})
		if resp.Error != nil {
			t.Fatalf("approve: %+v", resp.Error)
		}
	}
	transfer("TSEC", accounts.issuer.String(), accounts.seller.String(), "100")
	transfer("TCASH", accounts.issuer.String(), accounts.buyer.String(), "5000")
	approve("TSEC", accounts.seller.String(), coordinator, "100")
	approve("TCASH", accounts.buyer.String(), coordinator, "5000")

	initResp, _ := call(t, server, "", "settlement_initTrade", map[string]string{
		"creator":    accounts.seller.String(),
		"seller":     accounts.seller.String(),
		"buyer":      accounts.buyer.String(),
		"sellToken":  "TSEC",
		"sellAmount": "10",
		"buyToken":   "TCASH",
		"buyAmount":  "500",
	})
	trade := resultMap(t, initResp)
	if trade["status"] != "created" {
		t.Fatalf("unexpected trade status %v", trade["status"])
	}
	id := trade["id"].(float64)

	for _, party := range []string{accounts.seller.String(), accounts.buyer.String()} {
		resp, _ := call(t, server, "", "settlement_approveTrade", map[string]interface{}{
			"caller": party, "id": id,
		})
		if resp.Error != nil {
			t.Fatalf("approve trade: %+v", resp.Error)
		}
	}
	execResp, _ := call(t, server, "", "settlement_executeTrade", map[string]interface{}{
		"caller": accounts.seller.String(), "id": id,
	})
	executed := resultMap(t, execResp)
	if executed["status"] != "executed" {
		t.Fatalf("trade not executed: %v", executed["status"])
	}

	balResp, _ := call(t, server, "", "token_balanceOf", map[string]string{
		"token": "TCASH", "address": accounts.seller.String(),
	})
	if resultMap(t, balResp)["amount"] != "500" {
		t.Fatalf("seller cash not settled")
	}

	listResp, _ := call(t, server, "", "settlement_listTrades", nil)
	if listResp.Error != nil {
		t.Fatalf("list trades: %+v", listResp.Error)
	}
	trades, ok := listResp.Result.([]interface{})
	if !ok || len(trades) != 1 {
		t.Fatalf("unexpected trade list %v", listResp.Result)
	}

	eventsResp, _ := call(t, server, "", "settlement_events", map[string]interface{}{"afterSequence": 0})
	if eventsResp.Error != nil {
		t.Fatalf("events: %+v", eventsResp.Error)
	}
}

func TestEngineErrorCodes(t *testing.T) {
	server, accounts := newTestServer(t, "")

	resp, status := call(t, server, "", "settlement_getTrade", map[string]interface{}{"id": 42})
	if status != http.StatusNotFound || resp.Error == nil || resp.Error.Code != codeUnknownTrade {
		t.Fatalf("expected unknown-trade error, got %d %+v", status, resp.Error)
	}

	initResp, _ := call(t, server, "", "settlement_initTrade", map[string]string{
		"creator":    accounts.seller.String(),
		"seller":     accounts.seller.String(),
		"buyer":      accounts.buyer.String(),
		"sellToken":  "TSEC",
		"sellAmount": "10",
		"buyToken":   "TCASH",
		"buyAmount":  "500",
	})
	id := resultMap(t, initResp)["id"].(float64)

	resp, status = call(t, server, "", "settlement_approveTrade", map[string]interface{}{
		"caller": accounts.admin.String(), "id": id,
	})
	if status != http.StatusForbidden || resp.Error == nil || resp.Error.Code != codeNotAParty {
		t.Fatalf("expected not-a-party error, got %d %+v", status, resp.Error)
	}

	resp, _ = call(t, server, "", "settlement_executeTrade", map[string]interface{}{
		"caller": accounts.seller.String(), "id": id,
	})
	if resp.Error == nil || resp.Error.Code != codeNotFullyApproved {
		t.Fatalf("expected not-fully-approved error, got %+v", resp.Error)
	}

	resp, _ = call(t, server, "", "token_balanceOf", map[string]string{
		"token": "TSEC", "address": "garbage",
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}
