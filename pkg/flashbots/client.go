// Provide primitives to work with a private bundle relay speaking the flashbots
// JSON-RPC dialect (eth_callBundle, eth_sendBundle).
package flashbots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-resty/resty/v2"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

const (
	DefaultRelayURL = "https://relay.flashbots.net"

	signatureHeader = "X-Flashbots-Signature"
)

var (
	ErrEmptyBundle        = errors.New("bundle has no transactions")
	ErrSimulationReverted = errors.New("bundle simulation reverted")
)

// ChainReader is the slice of the chain client the resolution wait needs.
type ChainReader interface {
	SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error)
}

// Client is a relay client. Every request is authenticated with the relay signing identity,
// which carries no funds and only builds reputation with the relay.
type Client struct {
	httpClient *resty.Client
	url        string
	auth       *signer.Identity
	chain      ChainReader
	logger     logger.Logger
}

func NewClient(url string, auth *signer.Identity, chain ChainReader, log logger.Logger) *Client {
	if url == "" {
		url = DefaultRelayURL
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &Client{
		httpClient: client,
		url:        url,
		auth:       auth,
		chain:      chain,
		logger:     logger.EnsureLogger(log),
	}
}

// CallBundle simulates the signed transactions on top of stateBlock ("latest" or a hex
// number) as if they were mined in blockNumber.
func (c *Client) CallBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64, stateBlock string) (*SimulationResult, error) {
	raw, err := EncodeTransactions(txs)
	if err != nil {
		return nil, err
	}

	var result SimulationResult
	if err := c.call(ctx, "eth_callBundle", callBundleArgs{
		Txs:              raw,
		BlockNumber:      hexutil.Uint64(blockNumber),
		StateBlockNumber: stateBlock,
	}, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// SendBundle broadcasts the signed transactions for inclusion in targetBlock. The returned
// Submission waits for the relay outcome against chain state.
func (c *Client) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (Submission, error) {
	raw, err := EncodeTransactions(txs)
	if err != nil {
		return nil, err
	}

	var result sendBundleResult
	if err := c.call(ctx, "eth_sendBundle", sendBundleArgs{
		Txs:         raw,
		BlockNumber: hexutil.Uint64(targetBlock),
	}, &result); err != nil {
		return nil, err
	}

	entries, err := submissionEntries(txs)
	if err != nil {
		return nil, err
	}

	hash := result.BundleHash
	if hash == (common.Hash{}) {
		hash = BundleHash(txs)
	}
	c.logger.Debug("bundle accepted by relay", "bundle_hash", hash.Hex(), "target_block", targetBlock)

	return &bundleSubmission{
		chain:       c.chain,
		bundleHash:  hash,
		targetBlock: targetBlock,
		entries:     entries,
		logger:      c.logger,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(JSONRPCRequest{
		Jsonrpc: "2.0",
		Method:  method,
		Params:  []interface{}{params},
		Id:      1,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	signature, err := c.auth.RelaySignature(body)
	if err != nil {
		return fmt.Errorf("failed to sign %s request: %w", method, err)
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader(signatureHeader, signature).
		SetBody(body).
		Post(c.url)
	if err != nil {
		return fmt.Errorf("relay %s failed: %w", method, err)
	}

	// relays report JSON-RPC errors with both 200 and 4xx status codes
	var response JSONRPCResponse
	decodeErr := json.Unmarshal(resp.Body(), &response)
	if decodeErr == nil && response.Error != nil {
		return fmt.Errorf("relay %s: %w", method, response.Error)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("relay %s: %d %s: %s", method, resp.StatusCode(), http.StatusText(resp.StatusCode()), resp.String())
	}
	if decodeErr != nil {
		return fmt.Errorf("relay %s: failed to parse JSON response: %w", method, decodeErr)
	}
	if len(response.Result) == 0 {
		return fmt.Errorf("relay %s: missing result in JSON-RPC response", method)
	}

	if err := json.Unmarshal(response.Result, result); err != nil {
		return fmt.Errorf("relay %s: cannot decode result: %w", method, err)
	}
	return nil
}

// EncodeTransactions returns the canonical binary encoding of each transaction.
func EncodeTransactions(txs []*types.Transaction) ([]hexutil.Bytes, error) {
	if len(txs) == 0 {
		return nil, ErrEmptyBundle
	}

	raw := make([]hexutil.Bytes, len(txs))
	for i, tx := range txs {
		b, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to encode transaction %d: %w", i, err)
		}
		raw[i] = b
	}
	return raw, nil
}

// BundleHash is keccak256 over the concatenated transaction hashes.
func BundleHash(txs []*types.Transaction) common.Hash {
	concat := make([]byte, 0, len(txs)*common.HashLength)
	for _, tx := range txs {
		concat = append(concat, tx.Hash().Bytes()...)
	}
	return common.Hash(signer.Byte32Digest(concat))
}
