package app

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/keystore"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// ImportMnemonic stores mnemonic in the keystore and registers the account
// at index. The keystore must be unlocked.
func (s *Service) ImportMnemonic(ctx context.Context, mnemonic string, index uint32, name string) (account.Account, error) {
	id, err := s.Keystore.ImportMnemonic(mnemonic)
	if err != nil {
		return account.Account{}, err
	}
	seed, err := s.Keystore.Seed(ctx, id)
	if err != nil {
		return account.Account{}, err
	}
	defer seed.Destroy()

	addr, err := keystore.DeriveAddress(seed.Bytes(), index)
	if err != nil {
		return account.Account{}, err
	}
	return s.Accounts.Add(account.Account{
		Address:         addr.Hex(),
		Kind:            account.KindSignerMnemonic,
		MnemonicID:      id,
		DerivationIndex: index,
		Name:            name,
	})
}

// AddAccount registers an account with no mnemonic, either watch-only or
// backed by the hardware keystore.
func (s *Service) AddAccount(address string, kind account.Kind, name string) (account.Account, error) {
	if kind == account.KindSignerMnemonic {
		return account.Account{}, courierr.WithSuggestion(
			courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"kind": string(kind)}),
			"import a mnemonic instead",
		)
	}
	return s.Accounts.Add(account.Account{Address: address, Kind: kind, Name: name})
}

// RemoveAccount unregisters an account and drops its cached signer.
func (s *Service) RemoveAccount(address string) error {
	if err := s.Accounts.Remove(address); err != nil {
		return err
	}
	s.Signers.Forget(common.HexToAddress(address))
	return nil
}
