package account

import (
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/courier/internal/fileutil"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const registryVersion = 1

type registryFile struct {
	Version  int       `json:"version"`
	Accounts []Account `json:"accounts"`
}

// Registry stores accounts in a JSON file. Every mutation is written
// atomically before it returns.
type Registry struct {
	path     string
	mu       sync.RWMutex
	accounts map[string]Account
	now      func() time.Time
}

// OpenRegistry loads the registry at path. A missing file is an empty
// registry.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{
		path:     path,
		accounts: make(map[string]Account),
		now:      time.Now,
	}

	var f registryFile
	if _, err := fileutil.ReadJSON(path, &f); err != nil {
		return nil, courierr.Wrap(err, "loading accounts")
	}
	for _, a := range f.Accounts {
		r.accounts[normalize(a.Address)] = a
	}
	return r, nil
}

// Add registers a new account. The address is stored checksummed and
// CreatedAt is set when zero.
func (r *Registry) Add(a Account) (Account, error) {
	if err := a.Validate(); err != nil {
		return Account{}, err
	}
	a.Address = common.HexToAddress(a.Address).Hex()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(a.Address)
	if _, exists := r.accounts[key]; exists {
		return Account{}, courierr.WithDetails(courierr.ErrAccountExists, map[string]string{"address": a.Address})
	}
	r.accounts[key] = a
	if err := r.saveLocked(); err != nil {
		delete(r.accounts, key)
		return Account{}, err
	}
	return a, nil
}

// Get returns the account for address.
func (r *Registry) Get(address string) (Account, error) {
	if !common.IsHexAddress(address) {
		return Account{}, courierr.WithDetails(courierr.ErrInvalidAddress, map[string]string{"address": address})
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[normalize(address)]
	if !ok {
		return Account{}, courierr.WithDetails(courierr.ErrAccountNotFound, map[string]string{"address": address})
	}
	return a, nil
}

// List returns all accounts ordered by creation time.
func (r *Registry) List() []Account {
	r.mu.RLock()
	out := make([]Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Address < out[j].Address
	})
	return out
}

// Rename sets the display name of an account.
func (r *Registry) Rename(address, name string) (Account, error) {
	return r.update(address, func(a *Account) error {
		if len(name) > maxNameLength {
			return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "name", "max": "64"})
		}
		a.Name = name
		return nil
	})
}

// SetBackedUp records whether the account's recovery material is backed up.
func (r *Registry) SetBackedUp(address string, backedUp bool) (Account, error) {
	return r.update(address, func(a *Account) error {
		a.BackedUp = backedUp
		return nil
	})
}

// Remove deletes an account from the registry.
func (r *Registry) Remove(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(address)
	prev, ok := r.accounts[key]
	if !ok {
		return courierr.WithDetails(courierr.ErrAccountNotFound, map[string]string{"address": address})
	}
	delete(r.accounts, key)
	if err := r.saveLocked(); err != nil {
		r.accounts[key] = prev
		return err
	}
	return nil
}

func (r *Registry) update(address string, mutate func(*Account) error) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(address)
	prev, ok := r.accounts[key]
	if !ok {
		return Account{}, courierr.WithDetails(courierr.ErrAccountNotFound, map[string]string{"address": address})
	}
	next := prev
	if err := mutate(&next); err != nil {
		return Account{}, err
	}
	r.accounts[key] = next
	if err := r.saveLocked(); err != nil {
		r.accounts[key] = prev
		return Account{}, err
	}
	return next, nil
}

func (r *Registry) saveLocked() error {
	f := registryFile{Version: registryVersion, Accounts: make([]Account, 0, len(r.accounts))}
	for _, a := range r.accounts {
		f.Accounts = append(f.Accounts, a)
	}
	sort.Slice(f.Accounts, func(i, j int) bool { return f.Accounts[i].Address < f.Accounts[j].Address })
	if err := fileutil.WriteJSON(r.path, f); err != nil {
		return courierr.Wrap(err, "saving accounts")
	}
	return nil
}
