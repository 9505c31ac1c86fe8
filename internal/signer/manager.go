package signer

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/keystore"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Manager hands out signers for accounts. Signers are cached per address;
// callers Connect the returned signer to a provider before use.
type Manager struct {
	seeds    keystore.SeedSource
	hardware keystore.HardwareKeystore
	log      zerolog.Logger

	mu    sync.Mutex
	cache map[common.Address]Signer
}

// NewManager returns a Manager. Either source may be nil, in which case
// accounts of that kind have no signer.
func NewManager(seeds keystore.SeedSource, hardware keystore.HardwareKeystore, log zerolog.Logger) *Manager {
	return &Manager{
		seeds:    seeds,
		hardware: hardware,
		log:      log,
		cache:    make(map[common.Address]Signer),
	}
}

// GetSignerForAccount returns the signer for a. Read-only accounts always
// fail with ErrNoSignerAvailable.
func (m *Manager) GetSignerForAccount(a account.Account) (Signer, error) {
	addr := a.HexAddress()

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.cache[addr]; ok {
		return s, nil
	}

	var s Signer
	switch a.Kind {
	case account.KindSignerMnemonic:
		if m.seeds != nil && strings.TrimSpace(a.MnemonicID) != "" {
			s = NewMnemonicSigner(a, m.seeds)
		}
	case account.KindHardware:
		if m.hardware != nil {
			s = NewHardwareSigner(addr, m.hardware)
		}
	case account.KindReadonly:
	}
	if s == nil {
		m.log.Debug().Str("account", addr.Hex()).Str("kind", string(a.Kind)).Msg("no signer for account")
		return nil, courierr.WithDetails(courierr.ErrNoSignerAvailable, map[string]string{
			"address": addr.Hex(),
			"kind":    string(a.Kind),
		})
	}
	m.cache[addr] = s
	return s, nil
}

// Forget drops the cached signer for address.
func (m *Manager) Forget(address common.Address) {
	m.mu.Lock()
	delete(m.cache, address)
	m.mu.Unlock()
}
