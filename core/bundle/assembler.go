package bundle

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
)

// Assemble builds [funding, ...ops]. Every transaction carries gas.GasPrice; op i gets
// estimates[i] as its gas limit, so the last op receives the funding reserve. The funding
// entry is signed by the sponsor, every op by the executor.
func Assemble(sponsor, executor *signer.Identity, ops []Operation, estimates []uint64, gas eip1559.GasParameters) (*Bundle, error) {
	if sponsor == nil || executor == nil {
		return nil, ErrMissingIdentity
	}
	if len(ops) == 0 {
		return nil, ErrEmptyPlan
	}
	if len(estimates) != len(ops) {
		return nil, fmt.Errorf("%w: %d operations, %d estimates", ErrEstimateMismatch, len(ops), len(estimates))
	}

	value := FundingValue(estimates, gas)

	entries := make([]Entry, 0, len(ops)+1)
	entries = append(entries, Entry{
		Tx:     FundingTx(executor.Address, value, gas),
		Signer: sponsor,
	})
	for i, op := range ops {
		entries = append(entries, Entry{
			Tx:     operationTx(op, estimates[i], gas),
			Signer: executor,
		})
	}

	return &Bundle{
		Entries:      entries,
		Estimates:    append([]uint64(nil), estimates...),
		Gas:          gas,
		FundingValue: value,
	}, nil
}

func operationTx(op Operation, gasLimit uint64, gas eip1559.GasParameters) *types.LegacyTx {
	tx := &types.LegacyTx{
		Gas:      gasLimit,
		GasPrice: new(big.Int).Set(gas.GasPrice),
		Value:    new(big.Int),
		Data:     common.CopyBytes(op.Data),
	}
	if op.To != nil {
		to := *op.To
		tx.To = &to
	}
	if op.Value != nil {
		tx.Value.Set(op.Value)
	}
	return tx
}
