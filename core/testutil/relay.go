package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
)

// SentBundle is what the fake relay recorded for one eth_sendBundle.
type SentBundle struct {
	Raw         []hexutil.Bytes
	TargetBlock uint64
}

// FakeRelay scripts relay behaviour. Resolutions are handed out one per SendBundle; once
// exhausted every further submission passes without inclusion.
type FakeRelay struct {
	mu sync.Mutex

	Simulation  *flashbots.SimulationResult
	SimulateErr error
	SendErr     error
	Resolutions []flashbots.Resolution
	// OnSend runs after every recorded submission, outside the relay lock
	OnSend func(targetBlock uint64)
	// BundleHash, when set, is acknowledged instead of the locally computed hash
	BundleHash common.Hash

	simulations int
	sent        []SentBundle
}

func NewFakeRelay(resolutions ...flashbots.Resolution) *FakeRelay {
	return &FakeRelay{
		Simulation: &flashbots.SimulationResult{
			CoinbaseDiff: "0",
		},
		Resolutions: resolutions,
	}
}

func (r *FakeRelay) CallBundle(ctx context.Context, txs []*types.Transaction, blockNumber uint64, stateBlock string) (*flashbots.SimulationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.simulations++
	if r.SimulateErr != nil {
		return nil, r.SimulateErr
	}
	sim := *r.Simulation
	if len(sim.Results) == 0 {
		sim.Results = make([]flashbots.CallResult, len(txs))
		for i, tx := range txs {
			sim.Results[i] = flashbots.CallResult{TxHash: tx.Hash(), GasUsed: tx.Gas()}
		}
	}
	return &sim, nil
}

func (r *FakeRelay) SendBundle(ctx context.Context, txs []*types.Transaction, targetBlock uint64) (flashbots.Submission, error) {
	sub, err := r.record(txs, targetBlock)
	if err == nil && r.OnSend != nil {
		r.OnSend(targetBlock)
	}
	return sub, err
}

func (r *FakeRelay) record(txs []*types.Transaction, targetBlock uint64) (flashbots.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.SendErr != nil {
		return nil, r.SendErr
	}

	raw, err := flashbots.EncodeTransactions(txs)
	if err != nil {
		return nil, err
	}
	r.sent = append(r.sent, SentBundle{Raw: raw, TargetBlock: targetBlock})

	resolution := flashbots.ResolutionBlockPassedWithoutInclusion
	if len(r.Resolutions) > 0 {
		resolution, r.Resolutions = r.Resolutions[0], r.Resolutions[1:]
	}

	hash := r.BundleHash
	if hash == (common.Hash{}) {
		hash = flashbots.BundleHash(txs)
	}
	return &fakeSubmission{
		hash:       hash,
		target:     targetBlock,
		resolution: resolution,
	}, nil
}

func (r *FakeRelay) Simulations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.simulations
}

func (r *FakeRelay) Sent() []SentBundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentBundle(nil), r.sent...)
}

type fakeSubmission struct {
	hash       common.Hash
	target     uint64
	resolution flashbots.Resolution
}

func (s *fakeSubmission) BundleHash() common.Hash { return s.hash }
func (s *fakeSubmission) TargetBlock() uint64     { return s.target }

func (s *fakeSubmission) Wait(ctx context.Context) (flashbots.Resolution, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("wait for bundle %s: %w", s.hash.Hex(), err)
	}
	return s.resolution, nil
}
