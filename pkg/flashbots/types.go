package flashbots

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Resolution is the relay outcome of one bundle submission.
type Resolution int

const (
	ResolutionIncluded Resolution = iota
	ResolutionBlockPassedWithoutInclusion
	ResolutionAccountNonceTooHigh
)

func (r Resolution) String() string {
	switch r {
	case ResolutionIncluded:
		return "included"
	case ResolutionBlockPassedWithoutInclusion:
		return "block_passed_without_inclusion"
	case ResolutionAccountNonceTooHigh:
		return "account_nonce_too_high"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// JSON-RPC request structure
type JSONRPCRequest struct {
	Jsonrpc string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Id      int           `json:"id"`
}

// JSON-RPC response structure
type JSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("relay error %d: %s", e.Code, e.Message)
}

type callBundleArgs struct {
	Txs              []hexutil.Bytes `json:"txs"`
	BlockNumber      hexutil.Uint64  `json:"blockNumber"`
	StateBlockNumber string          `json:"stateBlockNumber"`
}

type sendBundleArgs struct {
	Txs         []hexutil.Bytes `json:"txs"`
	BlockNumber hexutil.Uint64  `json:"blockNumber"`
}

type sendBundleResult struct {
	BundleHash common.Hash `json:"bundleHash"`
}

// CallResult is the per transaction part of an eth_callBundle response.
type CallResult struct {
	TxHash       common.Hash    `json:"txHash"`
	FromAddress  common.Address `json:"fromAddress"`
	ToAddress    common.Address `json:"toAddress"`
	GasUsed      uint64         `json:"gasUsed"`
	GasPrice     string         `json:"gasPrice"`
	CoinbaseDiff string         `json:"coinbaseDiff"`
	Value        string         `json:"value,omitempty"`
	Error        string         `json:"error,omitempty"`
	Revert       string         `json:"revert,omitempty"`
}

// Reverted reports whether the call failed or reverted in simulation.
func (r CallResult) Reverted() bool {
	return r.Error != "" || r.Revert != ""
}

func (r CallResult) Reason() string {
	if r.Revert != "" {
		return r.Revert
	}
	return r.Error
}

// SimulationResult is the eth_callBundle response.
type SimulationResult struct {
	BundleHash        common.Hash  `json:"bundleHash"`
	BundleGasPrice    string       `json:"bundleGasPrice"`
	CoinbaseDiff      string       `json:"coinbaseDiff"`
	EthSentToCoinbase string       `json:"ethSentToCoinbase"`
	GasFees           string       `json:"gasFees"`
	StateBlockNumber  uint64       `json:"stateBlockNumber"`
	TotalGasUsed      uint64       `json:"totalGasUsed"`
	Results           []CallResult `json:"results"`
}

// FirstRevert returns the index and result of the first failed call, or -1.
func (s *SimulationResult) FirstRevert() (int, *CallResult) {
	for i := range s.Results {
		if s.Results[i].Reverted() {
			return i, &s.Results[i]
		}
	}
	return -1, nil
}

// EffectiveGasPrice is coinbaseDiff / totalGasUsed, the price actually paid to the
// block builder per unit of gas.
func (s *SimulationResult) EffectiveGasPrice() *big.Int {
	diff, ok := new(big.Int).SetString(s.CoinbaseDiff, 10)
	if !ok || s.TotalGasUsed == 0 {
		return new(big.Int)
	}
	return diff.Div(diff, new(big.Int).SetUint64(s.TotalGasUsed))
}
