package eip1559

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
	"github.com/shopspring/decimal"
)

// PriorityFeePerGas is the static premium paid on top of the base fee for the whole run.
var PriorityFeePerGas = new(big.Int).Mul(big.NewInt(50), big.NewInt(params.GWei))

// GasParameters holds the uniform gas price every transaction of a bundle is stamped with.
type GasParameters struct {
	BaseFeePerGas     *big.Int
	PriorityFeePerGas *big.Int
	GasPrice          *big.Int
}

// NewGasParameters computes gasPrice = baseFee + PriorityFeePerGas. A nil base fee is
// treated as zero, which is what a pre-London chain reports.
func NewGasParameters(baseFee *big.Int) GasParameters {
	base := new(big.Int)
	if baseFee != nil {
		base.Set(baseFee)
	}
	priority := new(big.Int).Set(PriorityFeePerGas)

	return GasParameters{
		BaseFeePerGas:     base,
		PriorityFeePerGas: priority,
		GasPrice:          new(big.Int).Add(base, priority),
	}
}

// Cost returns gasUnits * GasPrice.
func (g GasParameters) Cost(gasUnits uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUnits), g.GasPrice)
}

func (g GasParameters) String() string {
	return fmt.Sprintf("gasPrice=%s gwei (base=%s gwei, priority=%s gwei)",
		ToGwei(g.GasPrice), ToGwei(g.BaseFeePerGas), ToGwei(g.PriorityFeePerGas))
}

// ToGwei renders a wei amount in gwei, keeping up to 9 decimals.
func ToGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}

// ToEther renders a wei amount in ether.
func ToEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
