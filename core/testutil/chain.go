package testutil

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio"
)

// FakeChain is an in-memory stand in for chainio.Client. Estimates are keyed by the
// destination of the call; blocks pushed with Mine reach every subscriber.
type FakeChain struct {
	mu sync.Mutex

	ID      *big.Int
	Head    chainio.Block
	Nonces  map[common.Address]uint64
	Gas     map[common.Address]uint64
	GasErr  error
	Mined   map[uint64][]common.Hash
	Calls   []ethereum.CallMsg
	blocks  []chan uint64
	pending []uint64
}

func NewFakeChain(head uint64, baseFee *big.Int) *FakeChain {
	return &FakeChain{
		ID:     big.NewInt(1),
		Head:   chainio.Block{Number: head, BaseFee: baseFee},
		Nonces: map[common.Address]uint64{},
		Gas:    map[common.Address]uint64{},
		Mined:  map[uint64][]common.Hash{},
	}
}

func (c *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(c.ID), nil
}

func (c *FakeChain) LatestBlock(ctx context.Context) (*chainio.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	head := c.Head
	return &head, nil
}

func (c *FakeChain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Calls = append(c.Calls, msg)
	if c.GasErr != nil {
		return 0, c.GasErr
	}
	if msg.To == nil {
		return 0, fmt.Errorf("contract creation is not supported")
	}
	gas, ok := c.Gas[*msg.To]
	if !ok {
		return 0, fmt.Errorf("execution reverted")
	}
	return gas, nil
}

func (c *FakeChain) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Nonces[account], nil
}

func (c *FakeChain) SetNonce(account common.Address, nonce uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Nonces[account] = nonce
}

func (c *FakeChain) BlockTransactionHashes(ctx context.Context, number uint64) ([]common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Mined[number], nil
}

// SubscribeNewBlocks hands out a buffered stream; it is closed when ctx is done.
func (c *FakeChain) SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error) {
	ch := make(chan uint64, 16)

	c.mu.Lock()
	c.blocks = append(c.blocks, ch)
	for _, n := range c.pending {
		ch <- n
	}
	c.pending = nil
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, b := range c.blocks {
			if b == ch {
				c.blocks = append(c.blocks[:i], c.blocks[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Mine advances the head and notifies subscribers. Without subscribers the number is
// queued for the next one.
func (c *FakeChain) Mine(number uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Head.Number = number
	if len(c.blocks) == 0 {
		c.pending = append(c.pending, number)
		return
	}
	for _, ch := range c.blocks {
		select {
		case ch <- number:
		default:
		}
	}
}

func (c *FakeChain) EstimateCalls() []ethereum.CallMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ethereum.CallMsg(nil), c.Calls...)
}
