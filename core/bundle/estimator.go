package bundle

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// EstimateGas asks the chain for a gas limit for every operation but the last, in
// parallel, and appends FundingReserveGas. The result has exactly len(ops) entries so it
// pairs with the plan by position. Any failed estimate fails the whole batch.
func EstimateGas(ctx context.Context, chain GasEstimator, ops []Operation, executor common.Address) ([]uint64, error) {
	if len(ops) == 0 {
		return nil, ErrEmptyPlan
	}

	estimated := ops[:len(ops)-1]
	estimates := make([]uint64, len(estimated), len(ops))

	g, gctx := errgroup.WithContext(ctx)
	for i, op := range estimated {
		g.Go(func() error {
			msg := ethereum.CallMsg{
				From:  executor,
				To:    op.To,
				Value: op.Value,
				Data:  op.Data,
			}
			if op.From != nil {
				msg.From = *op.From
			}

			gas, err := chain.EstimateGas(gctx, msg)
			if err != nil {
				return fmt.Errorf("estimate gas for operation %d: %w", i, err)
			}
			estimates[i] = gas
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return append(estimates, FundingReserveGas), nil
}
