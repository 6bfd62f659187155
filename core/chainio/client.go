package chainio

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

const (
	reconnectDelay = 15 * time.Second
	pollInterval   = 2 * time.Second
)

// Block is the slice of a header the submitter cares about.
type Block struct {
	Number  uint64
	BaseFee *big.Int
}

type RpcOption struct {
	RpcURL   string
	WsRpcURL string
}

// Client talks to an execution node. Calls go over HTTP; new heads come from a websocket
// subscription when a ws url is configured, otherwise the head is polled. Every block
// subscription dials and owns its own websocket connection.
type Client struct {
	ethClient *ethclient.Client
	rpcOption *RpcOption

	logger         logger.Logger
	reconnectDelay time.Duration

	chainIDMu sync.RWMutex
	chainID   *big.Int
}

func NewClient(o *RpcOption, log logger.Logger) (*Client, error) {
	c := &Client{
		rpcOption:      o,
		logger:         logger.EnsureLogger(log),
		reconnectDelay: reconnectDelay,
	}

	var err error
	c.ethClient, err = ethclient.Dial(o.RpcURL)
	if err != nil {
		return nil, fmt.Errorf("cannot dial rpc %s: %w", o.RpcURL, err)
	}

	return c, nil
}

func (c *Client) Close() {
	c.ethClient.Close()
}

// Caller exposes the HTTP client for contract bindings.
func (c *Client) Caller() bind.ContractCaller {
	return c.ethClient
}

// ChainID is fetched once and cached for the life of the client.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.chainIDMu.RLock()
	if c.chainID != nil {
		defer c.chainIDMu.RUnlock()
		return new(big.Int).Set(c.chainID), nil
	}
	c.chainIDMu.RUnlock()

	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot get chain id: %w", err)
	}

	c.chainIDMu.Lock()
	c.chainID = id
	c.chainIDMu.Unlock()

	return new(big.Int).Set(id), nil
}

func (c *Client) LatestBlock(ctx context.Context) (*Block, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot get latest block: %w", err)
	}

	return &Block{Number: header.Number.Uint64(), BaseFee: header.BaseFee}, nil
}

func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.ethClient.EstimateGas(ctx, msg)
}

// NonceAt returns the account nonce at the given block, latest when blockNumber is nil.
func (c *Client) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return c.ethClient.NonceAt(ctx, account, blockNumber)
}

// BlockTransactionHashes lists the hashes of every transaction in block number.
func (c *Client) BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error) {
	block, err := c.ethClient.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("cannot get block %d: %w", number, err)
	}

	hashes := make([]common.Hash, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		hashes = append(hashes, tx.Hash())
	}
	return hashes, nil
}

// SubscribeNewBlocks streams new block numbers until ctx is done, then closes the channel.
// Numbers may repeat or skip; consumers react to whatever arrives.
func (c *Client) SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error) {
	out := make(chan uint64)

	if c.rpcOption.WsRpcURL == "" {
		c.logger.Info("no websocket rpc configured, polling for new blocks", "interval", pollInterval)
		go c.pollBlocks(ctx, out)
		return out, nil
	}

	headers := make(chan *types.Header)
	conn, sub, err := c.subscribeHeads(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("cannot subscribe to new heads: %w", err)
	}
	c.logger.Info("block subscription started", "rpc", c.rpcOption.WsRpcURL)

	go c.forwardHeads(ctx, conn, sub, headers, out)
	return out, nil
}

func (c *Client) subscribeHeads(ctx context.Context, headers chan *types.Header) (*ethclient.Client, ethereum.Subscription, error) {
	conn, err := ethclient.DialContext(ctx, c.rpcOption.WsRpcURL)
	if err != nil {
		return nil, nil, err
	}

	sub, err := conn.SubscribeNewHead(ctx, headers)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, sub, nil
}

// forwardHeads owns conn and sub; whichever connection is current is closed on return.
func (c *Client) forwardHeads(ctx context.Context, conn *ethclient.Client, sub ethereum.Subscription, headers chan *types.Header, out chan<- uint64) {
	defer close(out)
	defer func() {
		sub.Unsubscribe()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				c.logger.Error("block subscription error, retrying", "error", err)
			}
			sub.Unsubscribe()
			conn.Close()

			newConn, newSub, ok := c.resubscribe(ctx, headers)
			if !ok {
				// the deferred cleanup tolerates closing the dead pair again
				return
			}
			conn, sub = newConn, newSub
		case header := <-headers:
			if header == nil {
				continue
			}
			select {
			case out <- header.Number.Uint64():
			case <-ctx.Done():
				return
			}
		}
	}
}

// resubscribe redials the websocket endpoint until it succeeds or ctx is done.
func (c *Client) resubscribe(ctx context.Context, headers chan *types.Header) (*ethclient.Client, ethereum.Subscription, bool) {
	for {
		conn, sub, err := c.subscribeHeads(ctx, headers)
		if err == nil {
			c.logger.Info("block subscription re-established", "rpc", c.rpcOption.WsRpcURL)
			return conn, sub, true
		}
		c.logger.Error("cannot establish websocket client for RPC, retrying", "retry_in", c.reconnectDelay, "error", err)

		select {
		case <-ctx.Done():
			return nil, nil, false
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) pollBlocks(ctx context.Context, out chan<- uint64) {
	defer close(out)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			number, err := c.ethClient.BlockNumber(ctx)
			if err != nil {
				c.logger.Warn("cannot poll block number", "error", err)
				continue
			}
			if number == last {
				continue
			}
			last = number

			select {
			case out <- number:
			case <-ctx.Done():
				return
			}
		}
	}
}
