package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/keystore"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// MnemonicSigner signs with a key derived from a stored mnemonic. The key
// exists only for the duration of a SignTransaction call.
type MnemonicSigner struct {
	address    common.Address
	mnemonicID string
	index      uint32
	seeds      keystore.SeedSource
	provider   provider.Provider
}

// NewMnemonicSigner returns a signer for a mnemonic-backed account.
func NewMnemonicSigner(a account.Account, seeds keystore.SeedSource) *MnemonicSigner {
	return &MnemonicSigner{
		address:    a.HexAddress(),
		mnemonicID: a.MnemonicID,
		index:      a.DerivationIndex,
		seeds:      seeds,
	}
}

// Address implements Signer.
func (s *MnemonicSigner) Address() common.Address { return s.address }

// Connect implements Signer.
func (s *MnemonicSigner) Connect(p provider.Provider) Signer {
	c := *s
	c.provider = p
	return &c
}

// PopulateTransaction implements Signer.
func (s *MnemonicSigner) PopulateTransaction(ctx context.Context, req transaction.Request) (*types.Transaction, error) {
	if err := checkFrom(req, s.address); err != nil {
		return nil, err
	}
	return populate(ctx, s.provider, s.address, req)
}

// SignTransaction implements Signer.
func (s *MnemonicSigner) SignTransaction(ctx context.Context, tx *types.Transaction) ([]byte, error) {
	seed, err := s.seeds.Seed(ctx, s.mnemonicID)
	if err != nil {
		return nil, err
	}
	key, err := keystore.DeriveKey(seed.Bytes(), s.index)
	seed.Destroy()
	if err != nil {
		return nil, err
	}
	defer keystore.ZeroKey(key)

	if crypto.PubkeyToAddress(key.PublicKey) != s.address {
		return nil, courierr.WithDetails(courierr.ErrNoSignerAvailable, map[string]string{
			"address": s.address.Hex(),
			"reason":  "derived key does not match account",
		})
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(tx.ChainId()), key)
	if err != nil {
		return nil, courierr.Wrap(err, "signing transaction")
	}
	return signed.MarshalBinary()
}
