// Package account holds the process-wide registry of wallet identities.
package account

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Kind is how an account signs.
type Kind string

// Account kinds.
const (
	KindSignerMnemonic Kind = "signer_mnemonic"
	KindHardware       Kind = "hardware"
	KindReadonly       Kind = "readonly"
)

// CanSign reports whether accounts of this kind have a signing capability.
func (k Kind) CanSign() bool {
	return k == KindSignerMnemonic || k == KindHardware
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindSignerMnemonic, KindHardware, KindReadonly:
		return true
	default:
		return false
	}
}

// Account is a wallet identity. Address, Kind, MnemonicID and
// DerivationIndex never change after creation; only Name and BackedUp do.
type Account struct {
	Address         string    `json:"address"`
	Kind            Kind      `json:"kind"`
	MnemonicID      string    `json:"mnemonicId,omitempty"`
	DerivationIndex uint32    `json:"derivationIndex"`
	Name            string    `json:"name,omitempty"`
	BackedUp        bool      `json:"backedUp"`
	CreatedAt       time.Time `json:"createdAt"`
}

// HexAddress returns the account address.
func (a Account) HexAddress() common.Address {
	return common.HexToAddress(a.Address)
}

// Validate checks the identity fields.
func (a Account) Validate() error {
	if !common.IsHexAddress(a.Address) {
		return courierr.WithDetails(courierr.ErrInvalidAddress, map[string]string{"address": a.Address})
	}
	if !a.Kind.IsValid() {
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"kind": string(a.Kind)})
	}
	if a.Kind == KindSignerMnemonic && strings.TrimSpace(a.MnemonicID) == "" {
		return courierr.WithDetails(courierr.ErrIncompleteForm, map[string]string{"field": "mnemonicId"})
	}
	if len(a.Name) > maxNameLength {
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "name", "max": "64"})
	}
	return nil
}

const maxNameLength = 64

// normalize returns the map key for an address.
func normalize(address string) string {
	return strings.ToLower(common.HexToAddress(address).Hex())
}
