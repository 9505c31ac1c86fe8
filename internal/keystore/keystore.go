// Package keystore keeps mnemonic secrets encrypted at rest and hands out
// seeds to signers while unlocked.
package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mrz1836/courier/internal/fileutil"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const fileExt = ".age"

// HardwareKeystore signs digests on an external device. The returned
// signature is 65 bytes in [R || S || V] form with V in {0, 1}.
type HardwareKeystore interface {
	SignDigest(ctx context.Context, address common.Address, digest []byte) ([]byte, error)
}

// SeedSource hands out the BIP39 seed for a stored mnemonic.
type SeedSource interface {
	Seed(ctx context.Context, mnemonicID string) (*SecureBytes, error)
}

// Option configures a FileKeystore.
type Option func(*FileKeystore)

// WithWorkFactor overrides the scrypt work factor for new files.
func WithWorkFactor(logN int) Option {
	return func(k *FileKeystore) { k.workFactor = logN }
}

// FileKeystore stores one age-encrypted file per mnemonic. The mnemonic
// ID is the lowercase address at derivation index 0.
type FileKeystore struct {
	dir        string
	workFactor int

	mu         sync.Mutex
	passphrase *SecureBytes
}

// NewFileKeystore returns a locked keystore rooted at dir.
func NewFileKeystore(dir string, opts ...Option) *FileKeystore {
	k := &FileKeystore{dir: dir, workFactor: DefaultWorkFactor}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Unlock keeps a copy of passphrase in secure memory until Lock.
func (k *FileKeystore) Unlock(passphrase []byte) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.passphrase.Destroy()
	k.passphrase = NewSecureBytes(passphrase)
}

// Lock forgets the passphrase.
func (k *FileKeystore) Lock() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.passphrase.Destroy()
	k.passphrase = nil
}

// IsLocked reports whether a passphrase is held.
func (k *FileKeystore) IsLocked() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.passphrase == nil
}

// ImportMnemonic validates and stores a mnemonic, returning its ID.
// Importing the same phrase twice returns the existing ID.
func (k *FileKeystore) ImportMnemonic(mnemonic string) (string, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return "", err
	}
	normalized := NormalizeMnemonic(mnemonic)

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.passphrase == nil {
		return "", courierr.ErrKeystoreLocked
	}

	seed, err := mnemonicToSeed(normalized)
	if err != nil {
		return "", err
	}
	defer seed.Destroy()

	addr, err := DeriveAddress(seed.Bytes(), 0)
	if err != nil {
		return "", err
	}
	id := strings.ToLower(addr.Hex())

	path := k.path(id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}

	plain := []byte(normalized)
	defer zero(plain)
	sealed, err := encrypt(plain, k.passphrase.Bytes(), k.workFactor)
	if err != nil {
		return "", courierr.Wrap(err, "encrypting mnemonic")
	}
	if err := fileutil.WriteAtomic(path, sealed, fileutil.PrivateFile); err != nil {
		return "", courierr.Wrap(err, "writing keystore file")
	}
	return id, nil
}

// Seed decrypts the mnemonic and returns its BIP39 seed. The caller must
// Destroy the result.
func (k *FileKeystore) Seed(ctx context.Context, mnemonicID string) (*SecureBytes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.passphrase == nil {
		return nil, courierr.ErrKeystoreLocked
	}

	sealed, err := os.ReadFile(k.path(mnemonicID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, courierr.WithDetails(courierr.ErrNotFound, map[string]string{"mnemonicId": mnemonicID})
	}
	if err != nil {
		return nil, courierr.Wrap(err, "reading keystore file")
	}

	mnemonic, err := decrypt(sealed, k.passphrase.Bytes())
	if err != nil {
		return nil, courierr.WithCause(courierr.ErrDecryptionFailed, err)
	}
	defer mnemonic.Destroy()

	return mnemonicToSeed(string(mnemonic.Bytes()))
}

// MnemonicIDs lists the stored mnemonic IDs.
func (k *FileKeystore) MnemonicIDs() ([]string, error) {
	entries, err := os.ReadDir(k.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, courierr.Wrap(err, "listing keystore")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

func (k *FileKeystore) path(id string) string {
	return filepath.Join(k.dir, filepath.Base(strings.ToLower(id))+fileExt)
}
