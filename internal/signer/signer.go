// Package signer resolves signing capabilities for accounts and turns
// transaction requests into signed EIP-1559 transactions.
package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// ErrNotConnected is returned when a signer needs chain data but has no
// provider.
var ErrNotConnected = &courierr.CourierError{
	Code:     "SIGNER_NOT_CONNECTED",
	Message:  "signer is not connected to a provider",
	ExitCode: courierr.ExitGeneral,
}

// Signer signs transactions for one address.
type Signer interface {
	// Address returns the signing address.
	Address() common.Address

	// Connect returns a copy of the signer bound to p.
	Connect(p provider.Provider) Signer

	// PopulateTransaction fills nonce, gas limit and fee caps that req
	// leaves unset, and returns the unsigned transaction.
	PopulateTransaction(ctx context.Context, req transaction.Request) (*types.Transaction, error)

	// SignTransaction returns the RLP-encoded signed transaction.
	SignTransaction(ctx context.Context, tx *types.Transaction) ([]byte, error)
}

// populate builds a DynamicFeeTx from req, asking p only for what is missing.
func populate(ctx context.Context, p provider.Provider, from common.Address, req transaction.Request) (*types.Transaction, error) {
	if p == nil {
		return nil, ErrNotConnected
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ChainID != p.ChainID() {
		return nil, courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{
			"request":  req.ChainID.String(),
			"provider": p.ChainID().String(),
		})
	}
	value, err := req.ValueInt()
	if err != nil {
		return nil, err
	}
	to := req.ToAddress()

	var nonce uint64
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else if nonce, err = p.PendingNonce(ctx, from); err != nil {
		return nil, fmt.Errorf("resolving nonce: %w", err)
	}

	var feeCap, tipCap *big.Int
	if req.MaxFeePerGas != nil {
		feeCap = req.MaxFeePerGas.ToInt()
	}
	if req.MaxPriorityFeePerGas != nil {
		tipCap = req.MaxPriorityFeePerGas.ToInt()
	}
	if feeCap == nil || tipCap == nil {
		fees, err := p.FeeData(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching fee data: %w", err)
		}
		if feeCap == nil {
			feeCap = fees.MaxFeePerGas
		}
		if tipCap == nil {
			tipCap = fees.MaxPriorityFeePerGas
		}
	}
	if tipCap.Cmp(feeCap) > 0 {
		tipCap = new(big.Int).Set(feeCap)
	}

	gas := req.GasLimit
	if gas == 0 {
		gas, err = p.EstimateGas(ctx, ethereum.CallMsg{
			From:      from,
			To:        &to,
			Value:     value,
			Data:      req.Data,
			GasFeeCap: feeCap,
			GasTipCap: tipCap,
		})
		if err != nil {
			return nil, fmt.Errorf("estimating gas: %w", err)
		}
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   new(big.Int).SetUint64(uint64(req.ChainID)),
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	}), nil
}

func checkFrom(req transaction.Request, addr common.Address) error {
	if req.From == "" || common.HexToAddress(req.From) == addr {
		return nil
	}
	return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{
		"from":   req.From,
		"signer": addr.Hex(),
	})
}
