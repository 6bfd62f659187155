// Package plan holds the action plan strategies: each one produces the ordered calls the
// executor makes inside a sponsored bundle, and a human readable description of them.
package plan

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AvaProtocol/sponsored-bundle/core/bundle"
)

// Provider is an action plan strategy. The last operation it returns is never gas
// estimated; it runs on the funding reserve, so it may depend on state the earlier
// operations create.
type Provider interface {
	BuildOperations(ctx context.Context) ([]bundle.Operation, error)
	Description(ctx context.Context) (string, error)
}

// Options carries everything a strategy may need. Each strategy validates the fields it uses.
type Options struct {
	Caller bind.ContractCaller
	Tokens *TokenMetadataService

	// Sender is the executor, Recipient receives the assets.
	Sender    common.Address
	Recipient common.Address

	Token           common.Address
	StakingContract common.Address
	StakedAmount    *big.Int
	ExpectedBalance *big.Int
	NFTContracts    []common.Address
}

type Factory func(opts Options) (Provider, error)

type registration struct {
	factory Factory
	usage   string
}

var (
	ErrUnknownPlan  = errors.New("unknown action plan")
	ErrMissingField = errors.New("missing action plan option")

	registry = map[string]registration{}
)

// Register makes a strategy available by name. It panics on duplicates since it only runs
// from init.
func Register(name, usage string, factory Factory) {
	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("action plan %q registered twice", name))
	}
	registry[name] = registration{factory: factory, usage: usage}
}

// New builds the strategy registered under name.
func New(name string, opts Options) (Provider, error) {
	reg, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w %q, available: %v", ErrUnknownPlan, name, Names())
	}
	if opts.Caller == nil {
		return nil, fmt.Errorf("%w: contract caller", ErrMissingField)
	}
	if opts.Tokens == nil {
		opts.Tokens = NewTokenMetadataService(opts.Caller, nil, nil)
	}
	return reg.factory(opts)
}

// Names lists registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns the one line help of a registered strategy.
func Usage(name string) string {
	return registry[name].usage
}

func requireAddress(field string, addr common.Address) error {
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return nil
}

func requireAmount(field string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", ErrMissingField, field)
	}
	return nil
}

func call(ctx context.Context, caller bind.ContractCaller, contractABI abi.ABI, addr common.Address, method string, args ...interface{}) ([]interface{}, error) {
	contract := bind.NewBoundContract(addr, contractABI, caller, nil, nil)
	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, addr.Hex(), err)
	}
	return out, nil
}
