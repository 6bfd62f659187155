package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
	"github.com/AvaProtocol/sponsored-bundle/model"
	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
)

// loop handles one block at a time. Heads are funneled through a single slot: a head that
// arrives while a cycle is in flight replaces any older unhandled one.
func (e *Engine) loop(ctx context.Context) Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks, err := e.chain.SubscribeNewBlocks(ctx)
	if err != nil {
		return fatal(NewStructuredError(ErrorCodeChainRead, "cannot subscribe to new blocks", err))
	}

	ticks := make(chan uint64, 1)
	go coalesce(blocks, ticks)

	for {
		select {
		case <-ctx.Done():
			return aborted(ctx.Err())
		case number, ok := <-ticks:
			if !ok {
				if ctx.Err() != nil {
					return aborted(ctx.Err())
				}
				return fatal(NewStructuredError(ErrorCodeChainRead, "block stream closed", flashbots.ErrBlockStreamClosed))
			}

			if outcome, done := e.handleBlock(ctx, number); done {
				return outcome
			}
		}
	}
}

// coalesce forwards blocks into a capacity 1 channel, dropping the oldest pending value
// when the consumer is busy. It closes out when blocks closes.
func coalesce(blocks <-chan uint64, out chan uint64) {
	defer close(out)

	for number := range blocks {
		select {
		case out <- number:
			continue
		default:
		}

		select {
		case <-out:
		default:
		}
		select {
		case out <- number:
		default:
		}
	}
}

// handleBlock is one simulate, broadcast, await cycle. done reports a terminal outcome.
func (e *Engine) handleBlock(ctx context.Context, number uint64) (Outcome, bool) {
	if e.maxAttempts > 0 && e.attempts >= e.maxAttempts {
		return fatal(NewStructuredError(ErrorCodeAttemptsExhausted,
			fmt.Sprintf("bundle not included after %d attempts", e.attempts), nil)), true
	}

	sim, err := e.simulate(ctx, e.signed)
	if err != nil {
		if ctx.Err() != nil {
			return aborted(ctx.Err()), true
		}
		return fatal(err), true
	}

	target := number + BlocksInFuture
	e.logger.Info("submitting bundle",
		"current_block", number,
		"target_block", target,
		"gas_price_gwei", eip1559.ToGwei(sim.EffectiveGasPrice))

	e.attempts++
	e.metrics.SetTargetBlock(target)
	attempt := e.recordAttempt(number, target, sim)

	sub, err := e.relay.SendBundle(ctx, e.signed.Txs, target)
	if err != nil {
		e.resolveAttempt(attempt, "error", err)
		if ctx.Err() != nil {
			return aborted(ctx.Err()), true
		}
		e.metrics.IncAttempt("error")
		return fatal(NewRelayTransportError("eth_sendBundle", err)), true
	}

	if attempt != nil {
		attempt.RelayBundleHash = sub.BundleHash().Hex()
	}
	e.logger.Debug("bundle accepted by relay", "relay_bundle_hash", sub.BundleHash().Hex(), "target_block", sub.TargetBlock())

	resolution, err := sub.Wait(ctx)
	if err != nil {
		e.resolveAttempt(attempt, "error", err)
		if ctx.Err() != nil {
			return aborted(ctx.Err()), true
		}
		e.metrics.IncAttempt("error")
		return fatal(NewRelayTransportError("bundle wait", err)), true
	}

	e.metrics.IncAttempt(resolution.String())
	e.resolveAttempt(attempt, resolution.String(), nil)

	target = sub.TargetBlock()
	e.logger.Info("bundle resolved",
		"resolution", resolution.String(),
		"relay_bundle_hash", sub.BundleHash().Hex(),
		"target_block", target)

	switch resolution {
	case flashbots.ResolutionIncluded:
		return Outcome{Kind: OutcomeIncluded, TargetBlock: target}, true
	case flashbots.ResolutionAccountNonceTooHigh:
		return Outcome{Kind: OutcomeNonceInvalid, TargetBlock: target, Err: NewNonceInvalidatedError(target)}, true
	case flashbots.ResolutionBlockPassedWithoutInclusion:
		e.logger.Info("Not included", "target_block", target, "attempt", e.attempts)
		return Outcome{}, false
	default:
		return fatal(NewStructuredError(ErrorCodeUnspecified, fmt.Sprintf("unknown resolution %s", resolution), nil)), true
	}
}

func aborted(cause error) Outcome {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeAborted, Err: NewStructuredError(ErrorCodeAborted, "run cancelled", cause)}
	}
	return Outcome{Kind: OutcomeAborted, Err: cause}
}

// Journal failures never stop a submission.
func (e *Engine) recordAttempt(block, target uint64, sim *bundle.Simulation) *model.Attempt {
	if e.journal == nil {
		return nil
	}

	attempt := model.NewAttempt(e.signed.Hash.Hex(), block, target)
	attempt.SimulatedGasPrice = sim.EffectiveGasPrice.String()
	if err := e.journal.Record(attempt); err != nil {
		e.logger.Warn("cannot journal attempt", "target_block", target, "error", err)
		return nil
	}
	return attempt
}

func (e *Engine) resolveAttempt(attempt *model.Attempt, resolution string, cause error) {
	if attempt == nil {
		return
	}
	if err := e.journal.Resolve(attempt, resolution, cause); err != nil {
		e.logger.Warn("cannot journal resolution", "attempt", attempt.ID, "error", err)
	}
}
