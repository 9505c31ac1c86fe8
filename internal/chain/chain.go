// Package chain provides EVM chain identifiers and common utilities.
package chain

import (
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/ethereum/go-ethereum/common"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

// ID is an EVM chain id.
type ID uint64

// Supported chain identifiers.
const (
	Mainnet  ID = 1
	Optimism ID = 10
	BNB      ID = 56
	Polygon  ID = 137
	Base     ID = 8453
	Arbitrum ID = 42161
	Sepolia  ID = 11155111
)

// CoinTypeETH is the BIP44 coin type shared by every EVM chain.
const CoinTypeETH uint32 = 60

type chainInfo struct {
	name          string
	nativeSymbol  string
	wrappedNative string
}

var known = map[ID]chainInfo{
	Mainnet:  {"mainnet", "ETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"},
	Optimism: {"optimism", "ETH", "0x4200000000000000000000000000000000000006"},
	BNB:      {"bnb", "BNB", "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c"},
	Polygon:  {"polygon", "POL", "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"},
	Base:     {"base", "ETH", "0x4200000000000000000000000000000000000006"},
	Arbitrum: {"arbitrum", "ETH", "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"},
	Sepolia:  {"sepolia", "ETH", "0xfFf9976782d46CC05630D1f6eBAb18b2324d6B14"},
}

// String returns the decimal chain id.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Name returns the short network name, or the decimal id for unknown chains.
func (id ID) Name() string {
	if info, ok := known[id]; ok {
		return info.name
	}
	return id.String()
}

// IsSupported returns true if the chain id is a known chain.
func (id ID) IsSupported() bool {
	_, ok := known[id]
	return ok
}

// NativeSymbol returns the symbol of the chain's gas token.
func (id ID) NativeSymbol() string {
	return known[id].nativeSymbol
}

// WrappedNative returns the wrapped native token contract for the chain.
// The zero address is returned for unknown chains.
func (id ID) WrappedNative() common.Address {
	info, ok := known[id]
	if !ok {
		return common.Address{}
	}
	return common.HexToAddress(info.wrappedNative)
}

// DerivationPath returns the BIP44 account path prefix used for EVM keys.
func DerivationPath() string {
	return "m/44'/60'/0'/0"
}

// SupportedChains returns all known chain ids in ascending order.
func SupportedChains() []ID {
	ids := make([]ID, 0, len(known))
	for id := range known {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ParseChainID parses a decimal chain id or a network name.
// Unknown names fail with ErrUnsupportedChain and suggest the closest name.
func ParseChainID(s string) (ID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{"chain": s})
	}

	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		id := ID(n)
		if !id.IsSupported() {
			return 0, courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{"chain": s})
		}
		return id, nil
	}

	best := ""
	bestDist := -1
	for id, info := range known {
		if info.name == s {
			return id, nil
		}
		d := levenshtein.ComputeDistance(s, info.name)
		if bestDist < 0 || d < bestDist {
			best, bestDist = info.name, d
		}
	}

	err := courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{"chain": s})
	if bestDist >= 0 && bestDist <= 2 {
		err = courierr.WithSuggestion(err, "did you mean '"+best+"'?")
	}
	return 0, err
}
