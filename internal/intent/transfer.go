package intent

import (
	"math/big"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// TransferDraft is the editable state of a send form.
type TransferDraft struct {
	Account      string
	ChainID      chain.ID
	Recipient    string
	AssetType    transaction.AssetType
	Currency     *Currency
	TokenAddress string
	TokenID      string
	AmountRaw    string
}

// TransferIntent is the request a transfer draft resolves to.
type TransferIntent struct {
	Request  transaction.Request
	TypeInfo transaction.SendInfo
}

// BuildTransfer validates d and builds a native, ERC-20, ERC-721 or
// ERC-1155 transfer.
func (b *Builder) BuildTransfer(d TransferDraft) (*TransferIntent, error) {
	owner, err := requireAddress("account", d.Account)
	if err != nil {
		return nil, err
	}
	if err := requireChain(d.ChainID); err != nil {
		return nil, err
	}
	to, err := requireAddress("recipient", d.Recipient)
	if err != nil {
		return nil, err
	}

	req := transaction.Request{ChainID: d.ChainID, From: owner.Hex()}
	info := transaction.SendInfo{AssetType: d.AssetType, Recipient: to.Hex()}

	switch d.AssetType {
	case transaction.AssetCurrency, "":
		info.AssetType = transaction.AssetCurrency
		if d.Currency == nil {
			return nil, incomplete("currency")
		}
		amount, err := requireAmount(d.AmountRaw)
		if err != nil {
			return nil, err
		}
		info.CurrencyAmountRaw = amount.String()
		if d.Currency.Native {
			req.To = to.Hex()
			req.Value = amount.String()
			break
		}
		token, err := requireAddress("currency", d.Currency.Address)
		if err != nil {
			return nil, err
		}
		if req.Data, err = packTransfer(to, amount); err != nil {
			return nil, courierr.Wrap(err, "encoding transfer")
		}
		req.To = token.Hex()
		info.TokenAddress = token.Hex()

	case transaction.AssetERC721, transaction.AssetERC1155:
		token, err := requireAddress("tokenAddress", d.TokenAddress)
		if err != nil {
			return nil, err
		}
		id, err := requireTokenID(d.TokenID)
		if err != nil {
			return nil, err
		}
		if d.AssetType == transaction.AssetERC721 {
			req.Data, err = packERC721Transfer(owner, to, id)
		} else {
			amount, aerr := requireAmount(d.AmountRaw)
			if aerr != nil {
				return nil, aerr
			}
			info.CurrencyAmountRaw = amount.String()
			req.Data, err = packERC1155Transfer(owner, to, id, amount)
		}
		if err != nil {
			return nil, courierr.Wrap(err, "encoding transfer")
		}
		req.To = token.Hex()
		info.TokenAddress = token.Hex()
		info.TokenID = id.String()

	default:
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "assetType", "value": string(d.AssetType)})
	}

	return &TransferIntent{Request: req, TypeInfo: info}, nil
}

func requireAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, incomplete("amount")
	}
	return parseAmount(raw)
}

// parseAmount is ParseRawAmount bounded to uint256.
func parseAmount(raw string) (*big.Int, error) {
	v, err := chain.ParseRawAmount(raw)
	if err != nil {
		return nil, err
	}
	if v.BitLen() > 256 {
		return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{"amount": raw, "reason": "exceeds uint256"})
	}
	return v, nil
}

// requireTokenID accepts zero, unlike amounts.
func requireTokenID(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, incomplete("tokenId")
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "tokenId", "value": raw})
	}
	return id, nil
}
