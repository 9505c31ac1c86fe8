// Package provider resolves chain ids to connections that can read chain
// state and broadcast signed transactions.
package provider

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/courier/internal/chain"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// ErrReceiptNotFound is returned by TransactionReceipt while a transaction
// is still pending.
var ErrReceiptNotFound = &courierr.CourierError{
	Code:     "RECEIPT_NOT_FOUND",
	Message:  "transaction receipt not available yet",
	ExitCode: courierr.ExitNotFound,
}

// FeeData holds EIP-1559 fee suggestions.
type FeeData struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Provider is a connection to one chain.
type Provider interface {
	// ChainID returns the chain the provider is connected to.
	ChainID() chain.ID

	// PendingNonce returns getTransactionCount(address, "pending").
	PendingNonce(ctx context.Context, address common.Address) (uint64, error)

	// EstimateGas estimates the gas limit for msg.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)

	// FeeData suggests EIP-1559 fee caps.
	FeeData(ctx context.Context) (*FeeData, error)

	// Call executes a read-only contract call against the latest block.
	Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)

	// SendRawTransaction broadcasts signed transaction bytes.
	SendRawTransaction(ctx context.Context, signed []byte) (common.Hash, error)

	// TransactionReceipt returns the receipt for hash, or ErrReceiptNotFound.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// Close releases the underlying connection.
	Close()
}
