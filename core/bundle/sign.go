package bundle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/pkg/flashbots"
)

// Sign assigns nonces and signs every entry. Each signer starts at its latest on-chain
// nonce and counts up for every further entry it signs, so the executor's ops get
// consecutive nonces.
func Sign(ctx context.Context, nonces NonceSource, chainID *big.Int, b *Bundle) (*SignedBundle, error) {
	if b == nil || len(b.Entries) == 0 {
		return nil, ErrEmptyPlan
	}

	next := make(map[common.Address]uint64)
	txs := make([]*types.Transaction, len(b.Entries))
	for i, e := range b.Entries {
		addr := e.Signer.Address
		nonce, ok := next[addr]
		if !ok {
			var err error
			nonce, err = nonces.NonceAt(ctx, addr, nil)
			if err != nil {
				return nil, fmt.Errorf("cannot read nonce of %s: %w", addr.Hex(), err)
			}
		}
		next[addr] = nonce + 1

		body := *e.Tx
		body.Nonce = nonce
		tx, err := e.Signer.SignTx(&body, chainID)
		if err != nil {
			return nil, fmt.Errorf("cannot sign entry %d: %w", i, err)
		}
		txs[i] = tx
	}

	return &SignedBundle{
		Bundle: b,
		Txs:    txs,
		Hash:   flashbots.BundleHash(txs),
	}, nil
}
