// Package bundle turns an action plan into a sponsored, signed bundle: gas estimation,
// funding, assembly, signing and simulation.
package bundle

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/AvaProtocol/sponsored-bundle/core/chainio/signer"
	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
)

const (
	// FundingReserveGas is the synthetic estimate appended after the plan estimates.
	FundingReserveGas uint64 = 100_000
	// FundingTransferGas is the gas limit of the sponsor to executor transfer.
	FundingTransferGas uint64 = 21_000
)

var (
	ErrEmptyPlan        = errors.New("action plan has no operations")
	ErrEstimateMismatch = errors.New("gas estimates do not match plan length")
	ErrMissingIdentity  = errors.New("sponsor and executor identities are required")
)

// Operation is one unsigned call of an action plan. From only matters for gas estimation
// and defaults to the executor.
type Operation struct {
	To    *common.Address
	Data  []byte
	Value *big.Int
	From  *common.Address
}

// Entry pairs a transaction body with the identity that has to sign it.
type Entry struct {
	Tx     *types.LegacyTx
	Signer *signer.Identity
}

// Bundle is the ordered, unsigned bundle. Entries[0] is always the funding transfer.
type Bundle struct {
	Entries      []Entry
	Estimates    []uint64
	Gas          eip1559.GasParameters
	FundingValue *big.Int
}

// TotalGas is the gas budget the sponsor pays for.
func (b *Bundle) TotalGas() uint64 {
	return TotalGas(b.Estimates)
}

// SponsoredValue is what the sponsor spends in total: the funding value plus the cost of
// the funding transfer itself.
func (b *Bundle) SponsoredValue() *big.Int {
	return new(big.Int).Add(b.FundingValue, b.Gas.Cost(FundingTransferGas))
}

// SignedBundle is a Bundle after every entry has been signed. It is signed once per run and
// resubmitted byte for byte.
type SignedBundle struct {
	Bundle *Bundle
	Txs    []*types.Transaction
	Hash   common.Hash
}

// Senders lists the signing address of every transaction in order.
func (s *SignedBundle) Senders() []common.Address {
	senders := make([]common.Address, len(s.Bundle.Entries))
	for i, e := range s.Bundle.Entries {
		senders[i] = e.Signer.Address
	}
	return senders
}

// GasEstimator is the chain capability used by the estimator.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// NonceSource is the chain capability used when signing.
type NonceSource interface {
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}
