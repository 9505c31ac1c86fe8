// Package transaction defines courier's transaction model: requests,
// persisted details, statuses and semantic type info.
package transaction

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/courier/internal/chain"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Status is the lifecycle state of a transaction.
type Status string

// Transaction statuses.
const (
	StatusPending    Status = "pending"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

// IsFinal reports whether s is terminal.
func (s Status) IsFinal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	case StatusPending, StatusCancelling:
		return false
	default:
		return false
	}
}

// CanTransition reports whether s may move to next. Statuses only move
// forward; staying in place is allowed so repeated updates are no-ops.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusCancelling || next.IsFinal()
	case StatusCancelling:
		return next.IsFinal()
	case StatusSuccess, StatusFailed, StatusCancelled:
		return false
	default:
		return false
	}
}

// Request is an unsigned transaction. Value is a base-unit integer string.
// Nonce is nil until something decides it; a nil nonce is filled by the
// signer from the provider's pending count.
type Request struct {
	ChainID              chain.ID      `json:"chainId"`
	From                 string        `json:"from,omitempty"`
	To                   string        `json:"to"`
	Data                 hexutil.Bytes `json:"data,omitempty"`
	Value                string        `json:"value,omitempty"`
	Nonce                *uint64       `json:"nonce,omitempty"`
	GasLimit             uint64        `json:"gasLimit,omitempty"`
	MaxFeePerGas         *hexutil.Big  `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big  `json:"maxPriorityFeePerGas,omitempty"`
}

// Validate checks the request has a chain id and a destination.
func (r Request) Validate() error {
	if r.ChainID == 0 {
		return courierr.WithDetails(courierr.ErrIncompleteTransactionRequest, map[string]string{"field": "chainId"})
	}
	if !common.IsHexAddress(r.To) {
		return courierr.WithDetails(courierr.ErrIncompleteTransactionRequest, map[string]string{"field": "to", "to": r.To})
	}
	if _, err := r.ValueInt(); err != nil {
		return err
	}
	return nil
}

// ToAddress returns the destination as an address.
func (r Request) ToAddress() common.Address {
	return common.HexToAddress(r.To)
}

// ValueInt parses Value. An empty value is zero.
func (r Request) ValueInt() (*big.Int, error) {
	if r.Value == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(r.Value, 10)
	if !ok || v.Sign() < 0 || strings.HasPrefix(r.Value, "+") {
		return nil, courierr.WithDetails(courierr.ErrInvalidAmount, map[string]string{"value": r.Value})
	}
	return v, nil
}

// WithNonce returns a copy of r carrying nonce.
func (r Request) WithNonce(nonce uint64) Request {
	out := r.Clone()
	out.Nonce = &nonce
	return out
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	out := r
	if r.Data != nil {
		out.Data = append(hexutil.Bytes(nil), r.Data...)
	}
	if r.Nonce != nil {
		n := *r.Nonce
		out.Nonce = &n
	}
	if r.MaxFeePerGas != nil {
		v := *r.MaxFeePerGas
		out.MaxFeePerGas = &v
	}
	if r.MaxPriorityFeePerGas != nil {
		v := *r.MaxPriorityFeePerGas
		out.MaxPriorityFeePerGas = &v
	}
	return out
}

// Options holds the request a transaction was sent with.
type Options struct {
	Request Request `json:"request"`
}

// Receipt is the confirmation data of a mined transaction.
type Receipt struct {
	BlockHash         string `json:"blockHash"`
	BlockNumber       uint64 `json:"blockNumber"`
	TransactionIndex  uint   `json:"transactionIndex"`
	ConfirmedTime     int64  `json:"confirmedTime"`
	GasUsed           uint64 `json:"gasUsed"`
	EffectiveGasPrice string `json:"effectiveGasPrice,omitempty"`
}

// Details is the persisted record of a transaction.
// AddedTime is in unix milliseconds.
type Details struct {
	ID        string   `json:"id"`
	ChainID   chain.ID `json:"chainId"`
	From      string   `json:"from"`
	Hash      string   `json:"hash,omitempty"`
	AddedTime int64    `json:"addedTime"`
	Status    Status   `json:"status"`
	TypeInfo  TypeInfo `json:"-"`
	Options   Options  `json:"options"`
	Receipt   *Receipt `json:"receipt,omitempty"`
}

// Nonce returns the nonce the transaction was sent with, if known.
func (d *Details) Nonce() (uint64, bool) {
	if d.Options.Request.Nonce == nil {
		return 0, false
	}
	return *d.Options.Request.Nonce, true
}

// Type returns the type of d's TypeInfo, or TypeUnknown.
func (d *Details) Type() Type {
	if d.TypeInfo == nil {
		return TypeUnknown
	}
	return d.TypeInfo.Type()
}

// IsUnsyncedFiatPurchase reports whether d is a local on-ramp placeholder.
func (d *Details) IsUnsyncedFiatPurchase() bool {
	fp, ok := d.TypeInfo.(FiatPurchaseInfo)
	return ok && !fp.SyncedWithBackend
}

// Clone returns a deep copy of d. TypeInfo values are immutable and shared.
func (d *Details) Clone() *Details {
	out := *d
	out.Options.Request = d.Options.Request.Clone()
	if d.Receipt != nil {
		r := *d.Receipt
		out.Receipt = &r
	}
	return &out
}

type detailsAlias Details

type detailsJSON struct {
	*detailsAlias
	TypeInfo json.RawMessage `json:"typeInfo,omitempty"`
}

// MarshalJSON encodes TypeInfo with its "type" discriminator.
func (d Details) MarshalJSON() ([]byte, error) {
	ti, err := MarshalTypeInfo(d.TypeInfo)
	if err != nil {
		return nil, err
	}
	alias := detailsAlias(d)
	return json.Marshal(detailsJSON{detailsAlias: &alias, TypeInfo: ti})
}

// UnmarshalJSON decodes a value written by MarshalJSON.
func (d *Details) UnmarshalJSON(data []byte) error {
	aux := detailsJSON{detailsAlias: (*detailsAlias)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	ti, err := UnmarshalTypeInfo(aux.TypeInfo)
	if err != nil {
		return err
	}
	d.TypeInfo = ti
	return nil
}
