package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mrz1836/courier/internal/keystore"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// HardwareSigner delegates the digest signature to a hardware keystore.
type HardwareSigner struct {
	address  common.Address
	device   keystore.HardwareKeystore
	provider provider.Provider
}

// NewHardwareSigner returns a signer backed by device.
func NewHardwareSigner(address common.Address, device keystore.HardwareKeystore) *HardwareSigner {
	return &HardwareSigner{address: address, device: device}
}

// Address implements Signer.
func (s *HardwareSigner) Address() common.Address { return s.address }

// Connect implements Signer.
func (s *HardwareSigner) Connect(p provider.Provider) Signer {
	c := *s
	c.provider = p
	return &c
}

// PopulateTransaction implements Signer.
func (s *HardwareSigner) PopulateTransaction(ctx context.Context, req transaction.Request) (*types.Transaction, error) {
	if err := checkFrom(req, s.address); err != nil {
		return nil, err
	}
	return populate(ctx, s.provider, s.address, req)
}

// SignTransaction implements Signer.
func (s *HardwareSigner) SignTransaction(ctx context.Context, tx *types.Transaction) ([]byte, error) {
	txSigner := types.LatestSignerForChainID(tx.ChainId())
	digest := txSigner.Hash(tx)

	sig, err := s.device.SignDigest(ctx, s.address, digest.Bytes())
	if err != nil {
		return nil, courierr.Wrap(err, "hardware signature")
	}
	signed, err := tx.WithSignature(txSigner, sig)
	if err != nil {
		return nil, courierr.Wrap(err, "applying hardware signature")
	}

	sender, err := types.Sender(txSigner, signed)
	if err != nil || sender != s.address {
		return nil, courierr.WithDetails(courierr.ErrNoSignerAvailable, map[string]string{
			"address": s.address.Hex(),
			"reason":  "device signed with a different key",
		})
	}
	return signed.MarshalBinary()
}
