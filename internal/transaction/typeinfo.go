package transaction

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Type discriminates TypeInfo variants.
type Type string

// Transaction types.
const (
	TypeApprove      Type = "approve"
	TypeSwap         Type = "swap"
	TypeWrap         Type = "wrap"
	TypeSend         Type = "send"
	TypeFiatPurchase Type = "fiat-purchase"
	TypeUnknown      Type = "unknown"
)

// TypeInfo describes what a transaction means. Values are immutable once
// constructed. The set of variants is closed: only this package's Info
// types implement it.
type TypeInfo interface {
	Type() Type
	// Fields returns the flat key/value view used in notifications.
	Fields() map[string]string
	sealed()
}

// TradeType is the side of a swap the user fixed.
type TradeType string

// Trade types.
const (
	ExactInput  TradeType = "exact-input"
	ExactOutput TradeType = "exact-output"
)

// AssetType is the kind of asset a Send moves.
type AssetType string

// Asset types.
const (
	AssetCurrency AssetType = "currency"
	AssetERC721   AssetType = "erc721"
	AssetERC1155  AssetType = "erc1155"
)

// ApproveInfo is an ERC-20 allowance grant.
type ApproveInfo struct {
	TokenAddress   string `json:"tokenAddress"`
	Spender        string `json:"spender"`
	ApprovalAmount string `json:"approvalAmount,omitempty"`
}

// SwapInfo is a token swap. For ExactInput, InputCurrencyAmountRaw is fixed
// and MinimumOutputAmountRaw bounds slippage. For ExactOutput,
// OutputCurrencyAmountRaw is fixed and MaximumInputAmountRaw bounds it.
type SwapInfo struct {
	TradeType               TradeType `json:"tradeType"`
	InputCurrencyID         string    `json:"inputCurrencyId"`
	OutputCurrencyID        string    `json:"outputCurrencyId"`
	InputCurrencyAmountRaw  string    `json:"inputCurrencyAmountRaw"`
	OutputCurrencyAmountRaw string    `json:"outputCurrencyAmountRaw"`
	MinimumOutputAmountRaw  string    `json:"minimumOutputAmountRaw,omitempty"`
	MaximumInputAmountRaw   string    `json:"maximumInputAmountRaw,omitempty"`
}

// WrapInfo is a native to wrapped-native deposit, or the reverse when
// Unwrapped is set.
type WrapInfo struct {
	CurrencyAmountRaw string `json:"currencyAmountRaw"`
	Unwrapped         bool   `json:"unwrapped"`
}

// SendInfo is a transfer of a fungible token or an NFT.
type SendInfo struct {
	AssetType         AssetType `json:"assetType"`
	TokenAddress      string    `json:"tokenAddress,omitempty"`
	TokenID           string    `json:"tokenId,omitempty"`
	Recipient         string    `json:"recipient"`
	CurrencyAmountRaw string    `json:"currencyAmountRaw,omitempty"`
}

// FiatPurchaseInfo is an on-ramp purchase. Until SyncedWithBackend is set
// the record is a local placeholder, not an on-chain transaction.
type FiatPurchaseInfo struct {
	InputCurrency           string `json:"inputCurrency,omitempty"`
	InputCurrencyAmount     string `json:"inputCurrencyAmount,omitempty"`
	OutputCurrencyID        string `json:"outputCurrencyId,omitempty"`
	OutputCurrencyAmountRaw string `json:"outputCurrencyAmountRaw,omitempty"`
	ServiceProvider         string `json:"serviceProvider,omitempty"`
	SyncedWithBackend       bool   `json:"syncedWithBackend"`
}

// UnknownInfo is a transaction courier did not build.
type UnknownInfo struct {
	TokenAddress string `json:"tokenAddress,omitempty"`
}

func (ApproveInfo) Type() Type      { return TypeApprove }
func (SwapInfo) Type() Type         { return TypeSwap }
func (WrapInfo) Type() Type         { return TypeWrap }
func (SendInfo) Type() Type         { return TypeSend }
func (FiatPurchaseInfo) Type() Type { return TypeFiatPurchase }
func (UnknownInfo) Type() Type      { return TypeUnknown }

func (ApproveInfo) sealed()      {}
func (SwapInfo) sealed()         {}
func (WrapInfo) sealed()         {}
func (SendInfo) sealed()         {}
func (FiatPurchaseInfo) sealed() {}
func (UnknownInfo) sealed()      {}

// Fields implements TypeInfo.
func (i ApproveInfo) Fields() map[string]string {
	return compact(map[string]string{
		"token_address":   i.TokenAddress,
		"spender":         i.Spender,
		"approval_amount": i.ApprovalAmount,
	})
}

// Fields implements TypeInfo.
func (i SwapInfo) Fields() map[string]string {
	return compact(map[string]string{
		"trade_type":         string(i.TradeType),
		"input_currency_id":  i.InputCurrencyID,
		"output_currency_id": i.OutputCurrencyID,
		"input_amount_raw":   i.InputCurrencyAmountRaw,
		"output_amount_raw":  i.OutputCurrencyAmountRaw,
		"minimum_output_raw": i.MinimumOutputAmountRaw,
		"maximum_input_raw":  i.MaximumInputAmountRaw,
	})
}

// Fields implements TypeInfo.
func (i WrapInfo) Fields() map[string]string {
	return map[string]string{
		"currency_amount_raw": i.CurrencyAmountRaw,
		"unwrapped":           strconv.FormatBool(i.Unwrapped),
	}
}

// Fields implements TypeInfo.
func (i SendInfo) Fields() map[string]string {
	return compact(map[string]string{
		"asset_type":          string(i.AssetType),
		"token_address":       i.TokenAddress,
		"token_id":            i.TokenID,
		"recipient":           i.Recipient,
		"currency_amount_raw": i.CurrencyAmountRaw,
	})
}

// Fields implements TypeInfo.
func (i FiatPurchaseInfo) Fields() map[string]string {
	return compact(map[string]string{
		"input_currency":        i.InputCurrency,
		"input_currency_amount": i.InputCurrencyAmount,
		"output_currency_id":    i.OutputCurrencyID,
		"output_amount_raw":     i.OutputCurrencyAmountRaw,
		"service_provider":      i.ServiceProvider,
	})
}

// Fields implements TypeInfo.
func (i UnknownInfo) Fields() map[string]string {
	return compact(map[string]string{"token_address": i.TokenAddress})
}

func compact(m map[string]string) map[string]string {
	for k, v := range m {
		if v == "" {
			delete(m, k)
		}
	}
	return m
}

type typeTag struct {
	Type Type `json:"type"`
}

// MarshalTypeInfo encodes info as a JSON object with a "type" discriminator.
func MarshalTypeInfo(info TypeInfo) ([]byte, error) {
	if info == nil {
		return []byte("null"), nil
	}
	head, err := json.Marshal(typeTag{Type: info.Type()})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(info)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// UnmarshalTypeInfo decodes a value written by MarshalTypeInfo.
func UnmarshalTypeInfo(data []byte) (TypeInfo, error) {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil //nolint:nilnil // absent type info is valid
	}
	var tag typeTag
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, fmt.Errorf("decoding type info: %w", err)
	}

	var err error
	switch tag.Type {
	case TypeApprove:
		var v ApproveInfo
		err = json.Unmarshal(data, &v)
		return v, err
	case TypeSwap:
		var v SwapInfo
		err = json.Unmarshal(data, &v)
		return v, err
	case TypeWrap:
		var v WrapInfo
		err = json.Unmarshal(data, &v)
		return v, err
	case TypeSend:
		var v SendInfo
		err = json.Unmarshal(data, &v)
		return v, err
	case TypeFiatPurchase:
		var v FiatPurchaseInfo
		err = json.Unmarshal(data, &v)
		return v, err
	case TypeUnknown:
		var v UnknownInfo
		err = json.Unmarshal(data, &v)
		return v, err
	default:
		return nil, fmt.Errorf("decoding type info: unknown type %q", tag.Type)
	}
}
