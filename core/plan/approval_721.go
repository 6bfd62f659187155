package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
)

const Approval721Name = "approval-721"

func init() {
	Register(Approval721Name, "grant the recipient approval for all tokens of each ERC721 contract", NewApproval721)
}

// Approval721 sets the recipient as operator on every listed ERC721 contract that does
// not approve it yet.
type Approval721 struct {
	caller    bind.ContractCaller
	sender    common.Address
	recipient common.Address
	contracts []common.Address
}

func NewApproval721(opts Options) (Provider, error) {
	if err := requireAddress("sender", opts.Sender); err != nil {
		return nil, err
	}
	if err := requireAddress("recipient", opts.Recipient); err != nil {
		return nil, err
	}
	contracts := lo.Uniq(opts.NFTContracts)
	if len(contracts) == 0 {
		return nil, fmt.Errorf("%w: nft contracts", ErrMissingField)
	}

	return &Approval721{
		caller:    opts.Caller,
		sender:    opts.Sender,
		recipient: opts.Recipient,
		contracts: contracts,
	}, nil
}

func (p *Approval721) pending(ctx context.Context) ([]common.Address, error) {
	var pending []common.Address
	for _, c := range p.contracts {
		out, err := call(ctx, p.caller, erc721ABI, c, "isApprovedForAll", p.sender, p.recipient)
		if err != nil {
			return nil, err
		}
		if approved, ok := out[0].(bool); ok && approved {
			continue
		}
		pending = append(pending, c)
	}
	return pending, nil
}

func (p *Approval721) BuildOperations(ctx context.Context) ([]bundle.Operation, error) {
	pending, err := p.pending(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("recipient %s is already approved on every contract", p.recipient.Hex())
	}

	data, err := erc721ABI.Pack("setApprovalForAll", p.recipient, true)
	if err != nil {
		return nil, err
	}

	return lo.Map(pending, func(c common.Address, _ int) bundle.Operation {
		to := c
		return bundle.Operation{To: &to, Data: common.CopyBytes(data)}
	}), nil
}

func (p *Approval721) Description(ctx context.Context) (string, error) {
	pending, err := p.pending(ctx)
	if err != nil {
		return "", err
	}

	names := lo.Map(pending, func(c common.Address, _ int) string { return c.Hex() })
	return fmt.Sprintf("Granting all ERC721 approvals to %s for contracts:\n%s",
		p.recipient.Hex(), strings.Join(names, "\n")), nil
}
