package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"creditbridge/core/types"
	"creditbridge/crypto"
)

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected signed envelope parameter", nil)
		return
	}
	var env types.Envelope
	if err := json.Unmarshal(req.Params[0], &env); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid envelope", err.Error())
		return
	}
	receipt, err := s.backend.Submit(r.Context(), &env)
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 || !isJSONObject(req.Params[0]) {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected query object parameter", nil)
		return
	}
	result, err := s.backend.Query(r.Context(), req.Params[0])
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) handleBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	balances, err := s.backend.Balances(addr)
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	seq, err := s.backend.Sequence(addr)
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	if balances == nil {
		balances = []types.Coin{}
	}
	writeResult(w, req.ID, BalanceResult{Address: addr, Balances: balances, Sequence: seq})
}

func (s *Server) handleSequence(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		writeError(w, http.StatusBadRequest, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	seq, err := s.backend.Sequence(addr)
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, SequenceResult{Address: addr, Sequence: seq})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	ok, err := s.backend.Instantiated()
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, StatusResult{
		ChainID:      s.backend.ChainID(),
		Contract:     s.backend.Contract(),
		BlockTime:    s.backend.LastBlockTime(),
		Instantiated: ok,
	})
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	receipt, err := s.backend.Migrate(r.Context())
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receipt)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected fund parameter", nil)
		return
	}
	var params FundParams
	if err := json.Unmarshal(req.Params[0], &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid fund parameter", err.Error())
		return
	}
	params.Address = strings.TrimSpace(params.Address)
	if _, err := crypto.ValidateAddress(params.Address, s.cfg.Prefix); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	if len(params.Coins) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "coins required", nil)
		return
	}
	if err := s.backend.Fund(r.Context(), params.Address, params.Coins); err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	balances, err := s.backend.Balances(params.Address)
	if err != nil {
		s.writeBackendError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, FundResult{Address: params.Address, Balances: balances})
}

// addressParam accepts either a bare string or {"address": "..."}.
func (s *Server) addressParam(req *RPCRequest) (string, *RPCError) {
	if len(req.Params) != 1 {
		return "", &RPCError{Code: codeInvalidParams, Message: "expected address parameter"}
	}
	var addr string
	if err := json.Unmarshal(req.Params[0], &addr); err != nil {
		var wrapper struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(req.Params[0], &wrapper); err != nil {
			return "", &RPCError{Code: codeInvalidParams, Message: "invalid address parameter", Data: err.Error()}
		}
		addr = wrapper.Address
	}
	addr = strings.TrimSpace(addr)
	if _, err := crypto.ValidateAddress(addr, s.cfg.Prefix); err != nil {
		return "", &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("invalid address %q", addr), Data: err.Error()}
	}
	return addr, nil
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
