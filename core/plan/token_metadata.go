package plan

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/allegro/bigcache/v3"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/AvaProtocol/sponsored-bundle/pkg/logger"
)

// TokenMetadata represents ERC20 token information
type TokenMetadata struct {
	Address  string `json:"address"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// FormatValue renders a raw token amount using the token decimals.
func (m *TokenMetadata) FormatValue(value *big.Int) string {
	if value == nil {
		return "0 " + m.Symbol
	}
	return decimal.NewFromBigInt(value, -int32(m.Decimals)).String() + " " + m.Symbol
}

// TokenMetadataService resolves token metadata over RPC and keeps it in a bigcache so
// descriptions can be rendered repeatedly without extra calls.
type TokenMetadataService struct {
	cache  *bigcache.BigCache
	caller bind.ContractCaller
	logger logger.Logger
}

func NewTokenMetadataService(caller bind.ContractCaller, cache *bigcache.BigCache, log logger.Logger) *TokenMetadataService {
	return &TokenMetadataService{
		cache:  cache,
		caller: caller,
		logger: logger.EnsureLogger(log),
	}
}

// Get checks the cache first, then RPC. Failing name/symbol/decimals calls fall back to
// placeholders instead of failing, the same way a block explorer would.
func (t *TokenMetadataService) Get(ctx context.Context, token common.Address) *TokenMetadata {
	key := strings.ToLower(token.Hex())

	if t.cache != nil {
		if data, err := t.cache.Get(key); err == nil {
			var cached TokenMetadata
			if err := json.Unmarshal(data, &cached); err == nil {
				return &cached
			}
		}
	}

	metadata := t.fetch(ctx, token)

	if t.cache != nil {
		if data, err := json.Marshal(metadata); err == nil {
			if err := t.cache.Set(key, data); err != nil {
				t.logger.Warn("cannot cache token metadata", "address", key, "error", err)
			}
		}
	}

	return metadata
}

func (t *TokenMetadataService) fetch(ctx context.Context, token common.Address) *TokenMetadata {
	contract := bind.NewBoundContract(token, erc20ABI, t.caller, nil, nil)
	opts := &bind.CallOpts{Context: ctx}

	metadata := &TokenMetadata{
		Address:  strings.ToLower(token.Hex()),
		Name:     "Unknown Token",
		Symbol:   "UNKNOWN",
		Decimals: 18,
	}

	var out []interface{}
	if err := contract.Call(opts, &out, "name"); err == nil && len(out) > 0 {
		if name, ok := out[0].(string); ok {
			metadata.Name = name
		}
	} else if err != nil {
		t.logger.Warn("Failed to get token name", "address", metadata.Address, "error", err)
	}

	out = nil
	if err := contract.Call(opts, &out, "symbol"); err == nil && len(out) > 0 {
		if symbol, ok := out[0].(string); ok {
			metadata.Symbol = symbol
		}
	} else if err != nil {
		t.logger.Warn("Failed to get token symbol", "address", metadata.Address, "error", err)
	}

	out = nil
	if err := contract.Call(opts, &out, "decimals"); err == nil && len(out) > 0 {
		if decimals, ok := out[0].(uint8); ok {
			metadata.Decimals = decimals
		}
	} else if err != nil {
		t.logger.Warn("Failed to get token decimals", "address", metadata.Address, "error", err)
	}

	t.logger.Debug("fetched token metadata", "address", metadata.Address, "symbol", metadata.Symbol, "decimals", metadata.Decimals)
	return metadata
}
