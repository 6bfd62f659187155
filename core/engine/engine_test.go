package engine

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
	"github.com/AvaProtocol/sponsored-bundle/core/testutil"
	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

var (
	stakingAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	tokenAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fixedPlan struct {
	ops []bundle.Operation
	err error
}

func (p *fixedPlan) BuildOperations(ctx context.Context) ([]bundle.Operation, error) {
	return p.ops, p.err
}

func (p *fixedPlan) Description(ctx context.Context) (string, error) {
	return "unstake then sweep", nil
}

func newPlan() *fixedPlan {
	return &fixedPlan{ops: []bundle.Operation{
		{To: &stakingAddr, Data: []byte{0x2e, 0x1a, 0x7d, 0x4d}},
		{To: &tokenAddr, Data: []byte{0xa9, 0x05, 0x9c, 0xbb}},
	}}
}

func newChain() *testutil.FakeChain {
	chain := testutil.NewFakeChain(100, big.NewInt(10*params.GWei))
	chain.Gas[stakingAddr] = 50_000
	return chain
}

func newEngine(t *testing.T, chain *testutil.FakeChain, relay *testutil.FakeRelay, mutate ...func(*Options)) *Engine {
	opts := Options{
		Chain:    chain,
		Relay:    relay,
		Plan:     newPlan(),
		Sponsor:  testutil.Sponsor(),
		Executor: testutil.Executor(),
		Logger:   logger.NewNoOpLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}

	e, err := New(opts)
	require.NoError(t, err)
	return e
}

// mineOnSend produces exactly one new head per submission so no tick is coalesced away.
func mineOnSend(chain *testutil.FakeChain, relay *testutil.FakeRelay) {
	relay.OnSend = func(target uint64) {
		chain.Mine(target - BlocksInFuture + 1)
	}
	chain.Mine(100)
}

func runWithTimeout(t *testing.T, e *Engine) Outcome {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Run(ctx)
}

func TestRunRetriesUntilIncluded(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(
		flashbots.ResolutionBlockPassedWithoutInclusion,
		flashbots.ResolutionBlockPassedWithoutInclusion,
		flashbots.ResolutionIncluded,
	)
	mineOnSend(chain, relay)
	db := testutil.TestMustDB()
	defer db.Close()

	e := newEngine(t, chain, relay, func(o *Options) { o.Storage = db })
	outcome := runWithTimeout(t, e)

	require.Equal(t, OutcomeIncluded, outcome.Kind, outcome.String())
	assert.Equal(t, 0, outcome.ExitCode())
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, uint64(104), outcome.TargetBlock)

	sent := relay.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []uint64{102, 103, 104}, []uint64{sent[0].TargetBlock, sent[1].TargetBlock, sent[2].TargetBlock})
	for _, s := range sent[1:] {
		assert.Equal(t, sent[0].Raw, s.Raw, "bundle must be resubmitted byte for byte")
	}

	// pre-flight plus one per block
	assert.Equal(t, 4, relay.Simulations())

	count, err := e.journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	attempts, err := e.journal.Attempts()
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, flashbots.ResolutionBlockPassedWithoutInclusion.String(), attempts[0].Resolution)
	assert.Equal(t, flashbots.ResolutionIncluded.String(), attempts[2].Resolution)
}

func TestRunJournalsRelayBundleHash(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(flashbots.ResolutionIncluded)
	relay.BundleHash = common.HexToHash("0xfeed")
	mineOnSend(chain, relay)
	db := testutil.TestMustDB()
	defer db.Close()

	e := newEngine(t, chain, relay, func(o *Options) { o.Storage = db })
	outcome := runWithTimeout(t, e)

	require.Equal(t, OutcomeIncluded, outcome.Kind, outcome.String())
	assert.Equal(t, uint64(102), outcome.TargetBlock)
	assert.NotEqual(t, relay.BundleHash, outcome.BundleHash)

	attempts, err := e.journal.Attempts()
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, relay.BundleHash.Hex(), attempts[0].RelayBundleHash)
	assert.Equal(t, outcome.BundleHash.Hex(), attempts[0].BundleHash)
}

func TestRunBundleLayout(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(flashbots.ResolutionIncluded)
	mineOnSend(chain, relay)

	e := newEngine(t, chain, relay)
	outcome := runWithTimeout(t, e)
	require.Equal(t, OutcomeIncluded, outcome.Kind, outcome.String())

	b := e.signed.Bundle
	require.Len(t, e.signed.Txs, 3)
	assert.Equal(t, []uint64{50_000, 100_000}, b.Estimates)

	gasPrice := big.NewInt(60 * params.GWei)
	funding := e.signed.Txs[0]
	assert.Equal(t, uint64(21_000), funding.Gas())
	assert.Equal(t, testutil.Executor().Address, *funding.To())
	assert.Equal(t, 0, new(big.Int).Mul(big.NewInt(150_000), gasPrice).Cmp(funding.Value()))
	for _, tx := range e.signed.Txs {
		assert.Equal(t, 0, gasPrice.Cmp(tx.GasPrice()))
	}
	assert.Equal(t, testutil.Sponsor().Address, e.signed.Senders()[0])
	assert.Equal(t, testutil.Executor().Address, e.signed.Senders()[1])
	assert.Equal(t, testutil.Executor().Address, e.signed.Senders()[2])
}

func TestDryRunNeverBroadcasts(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(flashbots.ResolutionIncluded)
	var dump bytes.Buffer

	e := newEngine(t, chain, relay, func(o *Options) {
		o.DryRun = true
		o.Dump = &dump
	})
	outcome := runWithTimeout(t, e)

	assert.Equal(t, OutcomeDryRun, outcome.Kind)
	assert.Equal(t, 0, outcome.ExitCode())
	assert.Empty(t, relay.Sent())
	assert.Equal(t, 1, relay.Simulations())
	assert.Contains(t, dump.String(), "BundleHash")
	assert.Equal(t, e.signed.Hash, outcome.BundleHash)
}

func TestSimulationRevertAbortsBeforeBroadcast(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(flashbots.ResolutionIncluded)
	relay.Simulation = &flashbots.SimulationResult{
		CoinbaseDiff: "0",
		Results:      []flashbots.CallResult{{}, {}, {Revert: "ERC20: transfer amount exceeds balance"}},
	}
	mineOnSend(chain, relay)

	outcome := runWithTimeout(t, newEngine(t, chain, relay))

	assert.Equal(t, OutcomeFatal, outcome.Kind)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Equal(t, ErrorCodeSimulationRevert, GetErrorCode(outcome.Err))
	assert.ErrorIs(t, outcome.Err, flashbots.ErrSimulationReverted)
	assert.Empty(t, relay.Sent())
}

func TestNonceTooHighExitsWithFailure(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay(
		flashbots.ResolutionBlockPassedWithoutInclusion,
		flashbots.ResolutionAccountNonceTooHigh,
	)
	mineOnSend(chain, relay)

	outcome := runWithTimeout(t, newEngine(t, chain, relay))

	assert.Equal(t, OutcomeNonceInvalid, outcome.Kind)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Equal(t, ErrorCodeNonceInvalidated, GetErrorCode(outcome.Err))
	assert.Equal(t, 2, outcome.Attempts)
}

func TestRelayErrorIsFatal(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay()
	relay.SendErr = errors.New("relay error -32000: bundle rejected")
	chain.Mine(100)

	outcome := runWithTimeout(t, newEngine(t, chain, relay))

	assert.Equal(t, OutcomeFatal, outcome.Kind)
	assert.Equal(t, ErrorCodeRelayTransport, GetErrorCode(outcome.Err))
	assert.ErrorContains(t, outcome.Err, "bundle rejected")
	assert.Equal(t, 1, outcome.Attempts)
}

func TestMaxAttemptsStopsRetrying(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay()
	mineOnSend(chain, relay)

	outcome := runWithTimeout(t, newEngine(t, chain, relay, func(o *Options) { o.MaxAttempts = 2 }))

	assert.Equal(t, OutcomeFatal, outcome.Kind)
	assert.Equal(t, ErrorCodeAttemptsExhausted, GetErrorCode(outcome.Err))
	assert.Len(t, relay.Sent(), 2)
}

func TestCancelAborts(t *testing.T) {
	chain := newChain()
	relay := testutil.NewFakeRelay()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	outcome := newEngine(t, chain, relay).Run(ctx)

	assert.Equal(t, OutcomeAborted, outcome.Kind)
	assert.Equal(t, 1, outcome.ExitCode())
	assert.Equal(t, ErrorCodeAborted, GetErrorCode(outcome.Err))
	assert.Empty(t, relay.Sent())
}

func TestEstimationFailureIsFatal(t *testing.T) {
	chain := newChain()
	delete(chain.Gas, stakingAddr)
	relay := testutil.NewFakeRelay()

	outcome := runWithTimeout(t, newEngine(t, chain, relay))

	assert.Equal(t, OutcomeFatal, outcome.Kind)
	assert.Equal(t, ErrorCodeEstimation, GetErrorCode(outcome.Err))
	assert.Equal(t, 0, relay.Simulations())
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Chain: newChain(), Relay: testutil.NewFakeRelay(), Plan: newPlan(), Sponsor: testutil.Sponsor()})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeConfiguration, GetErrorCode(err))
}

func TestCoalesceKeepsNewestBlock(t *testing.T) {
	blocks := make(chan uint64, 3)
	blocks <- 1
	blocks <- 2
	blocks <- 3
	close(blocks)

	out := make(chan uint64, 1)
	coalesce(blocks, out)

	var got []uint64
	for n := range out {
		got = append(got, n)
	}
	assert.Equal(t, []uint64{3}, got)
}
