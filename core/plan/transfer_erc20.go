package plan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
)

const TransferERC20Name = "transfer-erc20"

func init() {
	Register(TransferERC20Name, "transfer the executor's whole balance of token to the recipient", NewTransferERC20)
}

// TransferERC20 moves the sender's entire token balance to the recipient.
type TransferERC20 struct {
	caller    bind.ContractCaller
	tokens    *TokenMetadataService
	token     common.Address
	sender    common.Address
	recipient common.Address
}

func NewTransferERC20(opts Options) (Provider, error) {
	for field, addr := range map[string]common.Address{
		"token": opts.Token, "sender": opts.Sender, "recipient": opts.Recipient,
	} {
		if err := requireAddress(field, addr); err != nil {
			return nil, err
		}
	}

	return &TransferERC20{
		caller:    opts.Caller,
		tokens:    opts.Tokens,
		token:     opts.Token,
		sender:    opts.Sender,
		recipient: opts.Recipient,
	}, nil
}

func (p *TransferERC20) balance(ctx context.Context) (*big.Int, error) {
	out, err := call(ctx, p.caller, erc20ABI, p.token, "balanceOf", p.sender)
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf output %T", out[0])
	}
	return balance, nil
}

func (p *TransferERC20) BuildOperations(ctx context.Context) ([]bundle.Operation, error) {
	balance, err := p.balance(ctx)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, fmt.Errorf("no token balance for %s on %s", p.sender.Hex(), p.token.Hex())
	}

	data, err := erc20ABI.Pack("transfer", p.recipient, balance)
	if err != nil {
		return nil, err
	}

	token := p.token
	return []bundle.Operation{{To: &token, Data: data}}, nil
}

func (p *TransferERC20) Description(ctx context.Context) (string, error) {
	balance, err := p.balance(ctx)
	if err != nil {
		return "", err
	}
	meta := p.tokens.Get(ctx, p.token)

	return fmt.Sprintf("Transfer ERC20 balance %s @ %s from %s to %s",
		meta.FormatValue(balance), p.token.Hex(), p.sender.Hex(), p.recipient.Hex()), nil
}
