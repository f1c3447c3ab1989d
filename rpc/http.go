package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rtsettle/core"
	"rtsettle/crypto"
	"rtsettle/native/registry"
	"rtsettle/native/settlement"
	"rtsettle/native/token"
	"rtsettle/observability"
	"rtsettle/observability/logging"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "RTS_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000

	codeTokenRestricted     = -32030
	codeInsufficientBalance = -32031
	codeAllowanceExceeded   = -32032
	codeRoleRequired        = -32033
	codeInvalidAmount       = -32034
	codeUnknownAsset        = -32035

	codeUnknownTrade     = -32040
	codeNotAParty        = -32041
	codeAlreadyExecuted  = -32042
	codeNotFullyApproved = -32043

	codeRegistryUnauthorized = -32050
	codeUnknownRole          = -32051
	codeLastAdmin            = -32052
)

// Server exposes the node's public operations over JSON-RPC 2.0.
type Server struct {
	node      *core.Node
	authToken string
	logger    *slog.Logger
}

// NewServer constructs a server for the node. The bearer token protecting
// privileged methods is read from the RTS_RPC_TOKEN environment variable; an
// empty token disables those methods entirely.
func NewServer(node *core.Node, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:      node,
		authToken: strings.TrimSpace(os.Getenv(authTokenEnv)),
		logger:    logger,
	}
}

// Handler returns the full HTTP surface: JSON-RPC at /, liveness at
// /healthz, and prometheus metrics at /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start blocks serving the handler on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting JSON-RPC server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}
	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}

	started := time.Now()
	outcome := s.route(w, r, &req)
	observability.SettlementMetrics().RecordRPC(req.Method, outcome, time.Since(started).Seconds())
}

// route dispatches the request and reports an outcome label for metrics.
func (s *Server) route(w http.ResponseWriter, r *http.Request, req *RPCRequest) string {
	handler, privileged := s.lookup(req.Method)
	if handler == nil {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return "not_found"
	}
	if privileged {
		if err := s.requireAuth(r); err != nil {
			s.logger.Warn("unauthorized RPC call",
				slog.String("method", req.Method),
				logging.MaskField("auth", r.Header.Get("Authorization")))
			writeError(w, http.StatusUnauthorized, req.ID, err.Code, err.Message, err.Data)
			return "unauthorized"
		}
	}
	return handler(w, req)
}

type handlerFunc func(w http.ResponseWriter, req *RPCRequest) string

func (s *Server) lookup(method string) (handlerFunc, bool) {
	switch method {
	case "token_totalSupply":
		return s.handleTokenTotalSupply, false
	case "token_balanceOf":
		return s.handleTokenBalanceOf, false
	case "token_allowance":
		return s.handleTokenAllowance, false
	case "token_isRestricted":
		return s.handleTokenIsRestricted, false
	case "token_transfer":
		return s.handleTokenTransfer, false
	case "token_approve":
		return s.handleTokenApprove, false
	case "token_transferFrom":
		return s.handleTokenTransferFrom, false
	case "token_mint":
		return s.handleTokenMint, true
	case "token_setRestricted":
		return s.handleTokenSetRestricted, true
	case "settlement_initTrade":
		return s.handleInitTrade, false
	case "settlement_approveTrade":
		return s.handleApproveTrade, false
	case "settlement_executeTrade":
		return s.handleExecuteTrade, false
	case "settlement_getTrade":
		return s.handleGetTrade, false
	case "settlement_listTrades":
		return s.handleListTrades, false
	case "settlement_coordinator":
		return s.handleCoordinator, false
	case "settlement_events":
		return s.handleEvents, false
	case "registry_grantRole":
		return s.handleGrantRole, true
	case "registry_revokeRole":
		return s.handleRevokeRole, true
	case "registry_hasRole":
		return s.handleHasRole, false
	case "registry_roleMembers":
		return s.handleRoleMembers, false
	default:
		return nil, false
	}
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "privileged methods disabled: no auth token configured"}
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "missing bearer token"}
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "unauthorized", Data: "invalid token"}
	}
	return nil
}

// decodeParams unmarshals the single parameter object expected by every
// method that takes arguments.
func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAddress(field, value string) ([20]byte, error) {
	decoded, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return decoded.Array(), nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s: amount required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid base-10 amount", field)
	}
	return amount, nil
}

// errorCode maps engine failures onto the JSON-RPC error codes surfaced to
// clients.
func errorCode(err error) int {
	switch {
	case errors.Is(err, token.ErrRestrictedParty):
		return codeTokenRestricted
	case errors.Is(err, token.ErrInsufficientBalance):
		return codeInsufficientBalance
	case errors.Is(err, token.ErrAllowanceExceeded):
		return codeAllowanceExceeded
	case errors.Is(err, token.ErrUnauthorized):
		return codeRoleRequired
	case errors.Is(err, token.ErrInvalidAmount), errors.Is(err, settlement.ErrInvalidAmount):
		return codeInvalidAmount
	case errors.Is(err, core.ErrUnknownAsset), errors.Is(err, settlement.ErrUnknownAsset):
		return codeUnknownAsset
	case errors.Is(err, settlement.ErrUnknownTrade):
		return codeUnknownTrade
	case errors.Is(err, settlement.ErrNotAParty):
		return codeNotAParty
	case errors.Is(err, settlement.ErrAlreadyExecuted):
		return codeAlreadyExecuted
	case errors.Is(err, settlement.ErrNotFullyApproved):
		return codeNotFullyApproved
	case errors.Is(err, registry.ErrUnauthorized):
		return codeRegistryUnauthorized
	case errors.Is(err, registry.ErrUnknownRole):
		return codeUnknownRole
	case errors.Is(err, registry.ErrLastAdmin):
		return codeLastAdmin
	default:
		return codeServerError
	}
}

func httpStatus(code int) int {
	switch code {
	case codeUnknownTrade, codeUnknownAsset, codeUnknownRole:
		return http.StatusNotFound
	case codeNotAParty, codeRoleRequired, codeRegistryUnauthorized:
		return http.StatusForbidden
	case codeServerError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeEngineError maps an engine failure and reports the metric outcome.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) string {
	code := errorCode(err)
	writeError(w, httpStatus(code), id, code, err.Error(), nil)
	return "error"
}
