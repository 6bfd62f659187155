package bundle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
)

const latestState = "latest"

// Simulator is the relay capability used to dry run a bundle.
type Simulator interface {
	CallBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64, stateBlock string) (*flashbots.SimulationResult, error)
}

// BlockReader returns the current head.
type BlockReader interface {
	LatestBlock(ctx context.Context) (*chainio.Block, error)
}

// RevertError reports the first transaction that failed in simulation.
type RevertError struct {
	Index  int
	TxHash common.Hash
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("%s: transaction %d (%s): %s", flashbots.ErrSimulationReverted, e.Index, e.TxHash.Hex(), e.Reason)
}

func (e *RevertError) Unwrap() error {
	return flashbots.ErrSimulationReverted
}

// Simulation is the outcome of a successful simulation.
type Simulation struct {
	Block             uint64
	EffectiveGasPrice *big.Int
	TotalGasUsed      uint64
	Result            *flashbots.SimulationResult
}

// Simulate runs the signed bundle against the latest block. A failing call or any reverted
// transaction is an error; on success the coinbase diff per gas is reported. It is
// informational and never changes the bundle.
func Simulate(ctx context.Context, relay Simulator, chain BlockReader, sb *SignedBundle) (*Simulation, error) {
	head, err := chain.LatestBlock(ctx)
	if err != nil {
		return nil, err
	}

	result, err := relay.CallBundle(ctx, sb.Txs, head.Number, latestState)
	if err != nil {
		return nil, fmt.Errorf("simulation at block %d: %w", head.Number, err)
	}

	if idx, rev := result.FirstRevert(); rev != nil {
		hash := rev.TxHash
		if hash == (common.Hash{}) && idx < len(sb.Txs) {
			hash = sb.Txs[idx].Hash()
		}
		return nil, &RevertError{Index: idx, TxHash: hash, Reason: rev.Reason()}
	}

	return &Simulation{
		Block:             head.Number,
		EffectiveGasPrice: result.EffectiveGasPrice(),
		TotalGasUsed:      result.TotalGasUsed,
		Result:            result,
	}, nil
}
