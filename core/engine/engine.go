// Package engine drives a sponsored bundle from action plan to inclusion: it builds and
// signs the bundle once, proves it in simulation, then resubmits it on every new block
// until the relay resolves it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
	"github.com/AvaProtocol/sponsored-bundle/core/chainio"
	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/core/plan"
	"github.com/AvaProtocol/sponsored-bundle/metrics"
	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
	"github.com/AvaProtocol/sponsored-bundle/storage"
)

// BlocksInFuture is how far ahead of the current head a submission targets.
const BlocksInFuture uint64 = 2

// Chain is the execution node as the engine sees it.
type Chain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	LatestBlock(ctx context.Context) (*chainio.Block, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	SubscribeNewBlocks(ctx context.Context) (<-chan uint64, error)
}

// Relay is the private relay as the engine sees it.
type Relay interface {
	CallBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64, stateBlock string) (*flashbots.SimulationResult, error)
	SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (flashbots.Submission, error)
}

type Options struct {
	Chain    Chain
	Relay    Relay
	Plan     plan.Provider
	Sponsor  *signer.Identity
	Executor *signer.Identity

	DryRun bool
	// MaxAttempts caps broadcasts; 0 retries until a terminal resolution
	MaxAttempts int

	Logger  logger.Logger
	Metrics metrics.MetricsGenerator
	// Storage journals attempts for the run; optional
	Storage storage.Storage
	// Dump receives a pretty printed copy of the signed bundle; optional
	Dump io.Writer
}

type Engine struct {
	chain    Chain
	relay    Relay
	plan     plan.Provider
	sponsor  *signer.Identity
	executor *signer.Identity

	dryRun      bool
	maxAttempts int

	logger  logger.Logger
	metrics metrics.MetricsGenerator
	db      storage.Storage
	dump    io.Writer

	// set once the bundle is signed
	signed   *bundle.SignedBundle
	journal  *Journal
	attempts int
}

func New(o Options) (*Engine, error) {
	switch {
	case o.Chain == nil:
		return nil, NewConfigurationError("chain client is required", nil)
	case o.Relay == nil:
		return nil, NewConfigurationError("relay client is required", nil)
	case o.Plan == nil:
		return nil, NewConfigurationError("action plan is required", nil)
	case o.Sponsor == nil:
		return nil, NewConfigurationError("sponsor identity is required", nil)
	case o.Executor == nil:
		return nil, NewConfigurationError("executor identity is required", nil)
	case o.MaxAttempts < 0:
		return nil, NewConfigurationError("max attempts cannot be negative", nil)
	}

	m := o.Metrics
	if m == nil {
		m = metrics.NoopMetrics{}
	}

	return &Engine{
		chain:       o.Chain,
		relay:       o.Relay,
		plan:        o.Plan,
		sponsor:     o.Sponsor,
		executor:    o.Executor,
		dryRun:      o.DryRun,
		maxAttempts: o.MaxAttempts,
		logger:      logger.EnsureLogger(o.Logger),
		metrics:     m,
		db:          o.Storage,
		dump:        o.Dump,
	}, nil
}

// Run builds, signs and simulates the bundle, then submits it on every new block until a
// terminal resolution. Cancelling ctx aborts the run.
func (e *Engine) Run(ctx context.Context) Outcome {
	if e.dryRun {
		e.logger.Info("** DRY RUN **")
	}

	signed, err := e.prepare(ctx)
	if err != nil {
		return e.terminate(fatal(err))
	}
	e.signed = signed
	if e.db != nil {
		e.journal = NewJournal(e.db, signed.Hash.Hex())
	}

	if e.dryRun {
		e.logger.Info("** DRY RUN ENDED **")
		return Outcome{Kind: OutcomeDryRun, BundleHash: signed.Hash}
	}

	return e.terminate(e.loop(ctx))
}

// prepare covers everything that happens once per run: plan, estimates, funding,
// assembly, signing, the pre-flight simulation and the summary.
func (e *Engine) prepare(ctx context.Context) (*bundle.SignedBundle, error) {
	ops, err := e.plan.BuildOperations(ctx)
	if err != nil {
		return nil, NewEstimationError(fmt.Errorf("build operations: %w", err))
	}

	head, err := e.chain.LatestBlock(ctx)
	if err != nil {
		return nil, NewStructuredError(ErrorCodeChainRead, "cannot read latest block", err)
	}
	gas := eip1559.NewGasParameters(head.BaseFee)

	estimates, err := bundle.EstimateGas(ctx, e.chain, ops, e.executor.Address)
	if err != nil {
		return nil, NewEstimationError(err)
	}

	b, err := bundle.Assemble(e.sponsor, e.executor, ops, estimates, gas)
	if err != nil {
		return nil, NewEstimationError(err)
	}

	chainID, err := e.chain.ChainID(ctx)
	if err != nil {
		return nil, NewStructuredError(ErrorCodeChainRead, "cannot read chain id", err)
	}
	signed, err := bundle.Sign(ctx, e.chain, chainID, b)
	if err != nil {
		return nil, NewStructuredError(ErrorCodeChainRead, "cannot sign bundle", err)
	}

	e.printTransactions(signed)
	e.dumpBundle(signed)

	sim, err := e.simulate(ctx, signed)
	if err != nil {
		return nil, err
	}

	description, err := e.plan.Description(ctx)
	if err != nil {
		e.logger.Warn("cannot describe action plan", "error", err)
	}
	e.printSummary(description, signed, sim)

	return signed, nil
}

func (e *Engine) simulate(ctx context.Context, signed *bundle.SignedBundle) (*bundle.Simulation, error) {
	sim, err := bundle.Simulate(ctx, e.relay, e.chain, signed)
	if err != nil {
		e.metrics.IncSimulation("failed")
		if errors.Is(err, flashbots.ErrSimulationReverted) {
			return nil, NewSimulationRevertError(err)
		}
		return nil, NewRelayTransportError("eth_callBundle", err)
	}

	e.metrics.IncSimulation("ok")
	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(sim.EffectiveGasPrice), big.NewFloat(1e9)).Float64()
	e.metrics.SetEffectiveGasPrice(gwei)
	return sim, nil
}

func (e *Engine) terminate(o Outcome) Outcome {
	if e.signed != nil {
		o.BundleHash = e.signed.Hash
	}
	o.Attempts = e.attempts

	switch o.Kind {
	case OutcomeIncluded:
		e.logger.Info("Congrats, included", "target_block", o.TargetBlock, "attempts", o.Attempts)
	case OutcomeNonceInvalid:
		e.logger.Error("Nonce too high, bailing", "target_block", o.TargetBlock, "attempts", o.Attempts)
	case OutcomeAborted:
		e.logger.Warn("run aborted", "attempts", o.Attempts, "error", o.Err)
	case OutcomeFatal:
		e.logger.Error("run failed", "code", GetErrorCode(o.Err), "error", o.Err, "attempts", o.Attempts)
	}
	return o
}
