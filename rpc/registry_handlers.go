package rpc

import (
	"net/http"

	"rtsettle/crypto"
)

type roleChangeParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role"`
	Address string `json:"address"`
}

type roleQueryParams struct {
	Role    string `json:"role"`
	Address string `json:"address,omitempty"`
}

func (s *Server) handleGrantRole(w http.ResponseWriter, req *RPCRequest) string {
	var params roleChangeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.node.GrantRole(caller, params.Role, addr); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return "ok"
}

func (s *Server) handleRevokeRole(w http.ResponseWriter, req *RPCRequest) string {
	var params roleChangeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	if err := s.node.RevokeRole(caller, params.Role, addr); err != nil {
		return writeEngineError(w, req.ID, err)
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
	return "ok"
}

func (s *Server) handleHasRole(w http.ResponseWriter, req *RPCRequest) string {
	var params roleQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	writeResult(w, req.ID, map[string]bool{"hasRole": s.node.HasRole(params.Role, addr)})
	return "ok"
}

func (s *Server) handleRoleMembers(w http.ResponseWriter, req *RPCRequest) string {
	var params roleQueryParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return "invalid_params"
	}
	members, err := s.node.RoleMembers(params.Role)
	if err != nil {
		return writeEngineError(w, req.ID, err)
	}
	encoded := make([]string, 0, len(members))
	for _, member := range members {
		encoded = append(encoded, crypto.MustNewAddress(member[:]).String())
	}
	writeResult(w, req.ID, encoded)
	return "ok"
}
