package eip1559

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGasParametersAddsPriorityFee(t *testing.T) {
	baseFee := big.NewInt(12_000_000_000)

	gas := NewGasParameters(baseFee)

	assert.Equal(t, "50000000000", gas.PriorityFeePerGas.String())
	assert.Equal(t, "62000000000", gas.GasPrice.String())

	// caller's value must not be aliased
	baseFee.SetInt64(1)
	assert.Equal(t, "12000000000", gas.BaseFeePerGas.String())
}

func TestNewGasParametersNilBaseFee(t *testing.T) {
	gas := NewGasParameters(nil)

	assert.Equal(t, 0, gas.BaseFeePerGas.Sign())
	assert.Equal(t, PriorityFeePerGas.String(), gas.GasPrice.String())
}

func TestCost(t *testing.T) {
	gas := NewGasParameters(big.NewInt(10_000_000_000))

	assert.Equal(t, new(big.Int).Mul(big.NewInt(230_000), gas.GasPrice).String(), gas.Cost(230_000).String())
}

func TestToGwei(t *testing.T) {
	assert.Equal(t, "50", ToGwei(big.NewInt(50_000_000_000)))
	assert.Equal(t, "1.5", ToGwei(big.NewInt(1_500_000_000)))
	assert.Equal(t, "0", ToGwei(nil))
	assert.Equal(t, "0.25", ToEther(big.NewInt(250_000_000_000_000_000)))
}
