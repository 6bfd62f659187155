package plan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
)

const UnstakeTransferERC20Name = "unstake-transfer-erc20"

func init() {
	Register(UnstakeTransferERC20Name, "withdraw the staked amount, then transfer the expected token balance to the recipient", NewUnstakeTransferERC20)
}

// UnstakeTransferERC20 withdraws a stake and sweeps the resulting token balance in the
// same bundle. The sweep cannot be estimated before the withdrawal has run, so it is the
// trailing operation.
type UnstakeTransferERC20 struct {
	tokens          *TokenMetadataService
	token           common.Address
	staking         common.Address
	sender          common.Address
	recipient       common.Address
	stakedAmount    *big.Int
	expectedBalance *big.Int
}

func NewUnstakeTransferERC20(opts Options) (Provider, error) {
	for field, addr := range map[string]common.Address{
		"token": opts.Token, "staking contract": opts.StakingContract, "sender": opts.Sender, "recipient": opts.Recipient,
	} {
		if err := requireAddress(field, addr); err != nil {
			return nil, err
		}
	}
	if err := requireAmount("staked amount", opts.StakedAmount); err != nil {
		return nil, err
	}
	if err := requireAmount("expected balance", opts.ExpectedBalance); err != nil {
		return nil, err
	}

	return &UnstakeTransferERC20{
		tokens:          opts.Tokens,
		token:           opts.Token,
		staking:         opts.StakingContract,
		sender:          opts.Sender,
		recipient:       opts.Recipient,
		stakedAmount:    new(big.Int).Set(opts.StakedAmount),
		expectedBalance: new(big.Int).Set(opts.ExpectedBalance),
	}, nil
}

func (p *UnstakeTransferERC20) BuildOperations(ctx context.Context) ([]bundle.Operation, error) {
	withdraw, err := stakingABI.Pack("withdraw", p.stakedAmount)
	if err != nil {
		return nil, err
	}
	transfer, err := erc20ABI.Pack("transfer", p.recipient, p.expectedBalance)
	if err != nil {
		return nil, err
	}

	staking, token := p.staking, p.token
	return []bundle.Operation{
		{To: &staking, Data: withdraw},
		{To: &token, Data: transfer},
	}, nil
}

func (p *UnstakeTransferERC20) Description(ctx context.Context) (string, error) {
	meta := p.tokens.Get(ctx, p.token)

	return fmt.Sprintf("Unstake %s from %s, then transfer %s @ %s from %s to %s",
		meta.FormatValue(p.stakedAmount), p.staking.Hex(),
		meta.FormatValue(p.expectedBalance), p.token.Hex(), p.sender.Hex(), p.recipient.Hex()), nil
}
