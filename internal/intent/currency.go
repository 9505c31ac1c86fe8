// Package intent turns swap and transfer drafts into transaction requests
// plus the type info they are recorded with.
package intent

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/courier/internal/chain"
)

// NativeAddress stands in for the native asset in currency ids.
const NativeAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Currency is a fungible asset on one chain.
type Currency struct {
	ChainID  chain.ID `json:"chainId"`
	Address  string   `json:"address,omitempty"`
	Decimals int32    `json:"decimals"`
	Symbol   string   `json:"symbol,omitempty"`
	Native   bool     `json:"native,omitempty"`
}

// NativeCurrency returns the native asset of id.
func NativeCurrency(id chain.ID) Currency {
	return Currency{ChainID: id, Decimals: 18, Symbol: id.NativeSymbol(), Native: true}
}

// CurrencyID returns "<chainId>-<address>".
func (c Currency) CurrencyID() string {
	addr := NativeAddress
	if !c.Native {
		addr = common.HexToAddress(c.Address).Hex()
	}
	return c.ChainID.String() + "-" + addr
}

// IsWrappedNative reports whether c is the chain's wrapped native token.
func (c Currency) IsWrappedNative() bool {
	if c.Native || !common.IsHexAddress(c.Address) {
		return false
	}
	wrapped := c.ChainID.WrappedNative()
	return wrapped != (common.Address{}) && strings.EqualFold(wrapped.Hex(), c.Address)
}
