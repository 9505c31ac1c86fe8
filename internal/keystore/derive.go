package keystore

import (
	"crypto/ecdsa"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"

	"github.com/mrz1836/courier/internal/chain"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// AccountPath returns the BIP44 path of the account at index.
func AccountPath(index uint32) string {
	return fmt.Sprintf("%s/%d", chain.DerivationPath(), index)
}

// DeriveKey derives the secp256k1 key at index from a BIP39 seed.
// The caller must zero the key with ZeroKey when done.
func DeriveKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, courierr.Wrap(err, "creating master key")
	}
	indices, err := parsePath(AccountPath(index))
	if err != nil {
		return nil, err
	}

	key := master
	for _, i := range indices {
		if key, err = key.NewChildKey(i); err != nil {
			return nil, courierr.Wrap(err, "deriving child key")
		}
	}

	raw := common.LeftPadBytes(key.Key, 32)
	defer zero(raw)
	defer zero(key.Key)

	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, courierr.Wrap(err, "converting derived key")
	}
	return priv, nil
}

// DeriveAddress returns the address at index without keeping the key.
func DeriveAddress(seed []byte, index uint32) (common.Address, error) {
	priv, err := DeriveKey(seed, index)
	if err != nil {
		return common.Address{}, err
	}
	defer ZeroKey(priv)
	return crypto.PubkeyToAddress(priv.PublicKey), nil
}

// ZeroKey clears the private scalar.
func ZeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}
	k.D.SetInt64(0)
}

func parsePath(path string) ([]uint32, error) {
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] != "m" {
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"path": path})
	}

	out := make([]uint32, 0, len(parts)-1)
	for _, p := range parts[1:] {
		hardened := strings.HasSuffix(p, "'")
		n, err := strconv.ParseUint(strings.TrimSuffix(p, "'"), 10, 31)
		if err != nil {
			return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"path": path})
		}
		idx := uint32(n)
		if hardened {
			idx += bip32.FirstHardenedChild
		}
		out = append(out, idx)
	}
	return out, nil
}
