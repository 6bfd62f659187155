package bundle

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/samber/lo"

	"github.com/AvaProtocol/sponsored-bundle/pkg/eip1559"
)

func TotalGas(estimates []uint64) uint64 {
	return lo.Sum(estimates)
}

// FundingValue is sum(estimates) * gasPrice, in wei.
func FundingValue(estimates []uint64, gas eip1559.GasParameters) *big.Int {
	return gas.Cost(TotalGas(estimates))
}

// FundingTx is the plain transfer that moves the gas budget from the sponsor to the
// executor. Its nonce is assigned at signing time.
func FundingTx(executor common.Address, value *big.Int, gas eip1559.GasParameters) *types.LegacyTx {
	to := executor
	return &types.LegacyTx{
		To:       &to,
		Value:    new(big.Int).Set(value),
		Gas:      FundingTransferGas,
		GasPrice: new(big.Int).Set(gas.GasPrice),
	}
}
