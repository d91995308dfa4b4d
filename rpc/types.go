package rpc

import (
	"encoding/json"

	"creditbridge/core/types"
	"creditbridge/native/bridge"
)

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

// BridgeErrorData is attached to errors raised by the bridge contract so
// clients can branch on the stable code instead of the message text.
type BridgeErrorData struct {
	Code    string            `json:"code"`
	Kind    bridge.Kind       `json:"kind,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// BalanceResult lists an account's native holdings.
type BalanceResult struct {
	Address  string       `json:"address"`
	Balances []types.Coin `json:"balances"`
	Sequence uint64       `json:"sequence"`
}

type SequenceResult struct {
	Address  string `json:"address"`
	Sequence uint64 `json:"sequence"`
}

// StatusResult identifies the chain and bridge account served by the node.
type StatusResult struct {
	ChainID      string `json:"chain_id"`
	Contract     string `json:"contract"`
	BlockTime    uint64 `json:"block_time"`
	Instantiated bool   `json:"instantiated"`
}

type FundParams struct {
	Address string       `json:"address"`
	Coins   []types.Coin `json:"coins"`
}

type FundResult struct {
	Address  string       `json:"address"`
	Balances []types.Coin `json:"balances"`
}
