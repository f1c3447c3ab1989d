package rpc

import (
	"net/http"

	"rtsettle/crypto"
	"rtsettle/native/settlement"
)

type initTradeParams struct {
	Creator    string `json:"creator"`
	Seller     string `json:"seller"`
	Buyer      string `json:"buyer"`
	SellToken  string `json:"sellToken"`
	SellAmount string `json:"sellAmount"`
	BuyToken   string `json:"buyToken"`
	BuyAmount  string `json:"buyAmount"`
}

type tradeCallParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type tradeQueryParams struct {
	ID uint64 `json:"id"`
}

type eventsParams struct {
	AfterSequence uint64 `json:"afterSequence"`
}

// tradeJSON is the wire representation of a trade. Amounts are decimal
// strings and addresses are bech32 encoded.
type tradeJSON struct {
	ID             uint64 `json:"id"`
	Status         string `json:"status"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer"`
	SellToken      string `json:"sellToken"`
	SellAmount     string `json:"sellAmount"`
	BuyToken       string `json:"buyToken"`
	BuyAmount      string `json:"buyAmount"`
	SellerApproved bool   `json:"sellerApproved"`
	BuyerApproved  bool   `json:"buyerApproved"`
	Executed       bool   `json:"executed"`
	CreatedAt      int64  `json:"createdAt"`
	ExecutedAt     int64  `json:"executedAt,omitempty"`
}

func tradeView(t *settlement.Trade) tradeJSON {
	view := tradeJSON{
		ID:             t.ID,
		Status:         t.Status().String(),
		Seller:         crypto.MustNewAddress(t.Seller[:]).String(),
		Buyer:          crypto.MustNewAddress(t.Buyer[:]).String(),
		SellToken:      t.SellToken,
		BuyToken:       t.BuyToken,
		SellerApproved: t.SellerApproved,
		BuyerApproved:  t.BuyerApproved,
		Executed:       t.Executed,
		CreatedAt:      t.CreatedAt,
		ExecutedAt:     t.ExecutedAt,
	}
	if t.SellAmount != nil {
		view.SellAmount = t.SellAmount.String()
	}
	if t.BuyAmount != nil {
		view.BuyAmount = t.BuyAmount.String()
	}
	return view
}

func (s *Server) handleInitTrade(w http.ResponseWriter, req *RPCRequest) string {
	var params initTradeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	creator, err := parseAddress("creator", params.Creator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	seller, err := parseAddress("seller", params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	buyer, err := parseAddress("buyer", params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	sellAmount, err := parseAmount("sellAmount", params.SellAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	buyAmount, err := parseAmount("buyAmount", params.BuyAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	trade, err := s.node.InitTrade(creator, seller, buyer, params.SellToken, sellAmount, params.BuyToken, buyAmount)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, tradeView(trade))
	return "ok"
}

func (s *Server) handleApproveTrade(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	trade, err := s.node.ApproveTrade(caller, params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, tradeView(trade))
	return "ok"
}

func (s *Server) handleExecuteTrade(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeCallParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	trade, err := s.node.ExecuteTrade(caller, params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, tradeView(trade))
	return "ok"
}

func (s *Server) handleGetTrade(w http.ResponseWriter, req *RPCRequest) string {
	var params tradeQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	trade, err := s.node.GetTrade(params.ID)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, tradeView(trade))
	return "ok"
}

func (s *Server) handleListTrades(w http.ResponseWriter, req *RPCRequest) string {
	trades, err := s.node.ListTrades()
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	views := make([]tradeJSON, 0, len(trades))
	for _, trade := range trades {
		views = append(views, tradeView(trade))
	}
	writeResult(w, req.ID, views)
	return "ok"
}

func (s *Server) handleCoordinator(w http.ResponseWriter, req *RPCRequest) string {
	coordinator := s.node.Coordinator()
	writeResult(w, req.ID, map[string]string{
		"coordinator": crypto.MustNewAddress(coordinator[:]).String(),
	})
	return "ok"
}

func (s *Server) handleEvents(w http.ResponseWriter, req *RPCRequest) string {
	var params eventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
			return "invalid_params"
		}
	}
	writeResult(w, req.ID, s.node.Events(params.AfterSequence))
	return "ok"
}
