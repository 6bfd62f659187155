package flashbots

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

var ErrBlockStreamClosed = errors.New("block stream closed before the bundle resolved")

// Submission is the handle of one eth_sendBundle call.
type Submission interface {
	BundleHash() common.Hash
	TargetBlock() uint64
	// Wait blocks until the target block settles the bundle one way or the other.
	Wait(ctx context.Context) (Resolution, error)
}

type submissionEntry struct {
	account common.Address
	nonce   uint64
	hash    common.Hash
}

type bundleSubmission struct {
	chain       ChainReader
	bundleHash  common.Hash
	targetBlock uint64
	entries     []submissionEntry
	logger      logger.Logger
}

func submissionEntries(txs []*types.Transaction) ([]submissionEntry, error) {
	entries := make([]submissionEntry, len(txs))
	for i, tx := range txs {
		from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return nil, fmt.Errorf("cannot recover sender of transaction %d: %w", i, err)
		}
		entries[i] = submissionEntry{account: from, nonce: tx.Nonce(), hash: tx.Hash()}
	}
	return entries, nil
}

func (s *bundleSubmission) BundleHash() common.Hash {
	return s.bundleHash
}

func (s *bundleSubmission) TargetBlock() uint64 {
	return s.targetBlock
}

// Wait follows new blocks. Before the target block, any signer whose on-chain nonce moved
// past its bundle nonce makes the bundle unminable. Once the target block exists, the
// bundle counts as included only if every one of its transactions is in that block.
func (s *bundleSubmission) Wait(ctx context.Context) (Resolution, error) {
	if s.chain == nil {
		return 0, fmt.Errorf("no chain reader to follow bundle %s", s.bundleHash.Hex())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	blocks, err := s.chain.SubscribeNewBlocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot follow blocks for bundle %s: %w", s.bundleHash.Hex(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case number, ok := <-blocks:
			if !ok {
				return 0, ErrBlockStreamClosed
			}

			resolution, settled, err := s.check(ctx, number)
			if err != nil {
				return 0, err
			}
			if settled {
				return resolution, nil
			}
		}
	}
}

func (s *bundleSubmission) check(ctx context.Context, number uint64) (Resolution, bool, error) {
	if number < s.targetBlock {
		for _, e := range s.entries {
			current, err := s.chain.NonceAt(ctx, e.account, nil)
			if err != nil {
				return 0, false, fmt.Errorf("cannot read nonce of %s: %w", e.account.Hex(), err)
			}
			if e.nonce < current {
				s.logger.Debug("bundle nonce consumed elsewhere",
					"account", e.account.Hex(), "bundle_nonce", e.nonce, "chain_nonce", current)
				return ResolutionAccountNonceTooHigh, true, nil
			}
		}
		return 0, false, nil
	}

	hashes, err := s.chain.BlockTransactionHashes(ctx, s.targetBlock)
	if err != nil {
		return 0, false, err
	}

	mined := make(map[common.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		mined[h] = struct{}{}
	}
	for _, e := range s.entries {
		if _, ok := mined[e.hash]; !ok {
			return ResolutionBlockPassedWithoutInclusion, true, nil
		}
	}
	return ResolutionIncluded, true, nil
}
