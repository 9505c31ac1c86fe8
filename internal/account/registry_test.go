package account

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	courierr "github.com/mrz1836/courier/pkg/errors"
)

const (
	alice = "0x742d35cc6634c0532925a3b844bc454e4438f44e"
	bob   = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

func openTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.json")
	r, err := OpenRegistry(path)
	require.NoError(t, err)
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return r, path
}

func TestRegistry_AddAndReload(t *testing.T) {
	t.Parallel()
	r, path := openTestRegistry(t)

	added, err := r.Add(Account{Address: alice, Kind: KindSignerMnemonic, MnemonicID: "m1", DerivationIndex: 2, Name: "main"})
	require.NoError(t, err)
	assert.Equal(t, "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", added.Address, "stored checksummed")
	assert.False(t, added.CreatedAt.IsZero())

	_, err = r.Add(Account{Address: bob, Kind: KindReadonly})
	require.NoError(t, err)

	reloaded, err := OpenRegistry(path)
	require.NoError(t, err)
	list := reloaded.List()
	require.Len(t, list, 2)
	assert.Equal(t, added, list[0])
	assert.Equal(t, KindReadonly, list[1].Kind)
}

func TestRegistry_AddRejects(t *testing.T) {
	t.Parallel()
	r, _ := openTestRegistry(t)
	_, err := r.Add(Account{Address: alice, Kind: KindReadonly})
	require.NoError(t, err)

	tests := []struct {
		name    string
		account Account
		wantErr error
	}{
		{"duplicate any case", Account{Address: "0x742D35CC6634C0532925A3B844BC454E4438F44E", Kind: KindReadonly}, courierr.ErrAccountExists},
		{"bad address", Account{Address: "0x12", Kind: KindReadonly}, courierr.ErrInvalidAddress},
		{"bad kind", Account{Address: bob, Kind: "magic"}, courierr.ErrInvalidInput},
		{"mnemonic without id", Account{Address: bob, Kind: KindSignerMnemonic}, courierr.ErrIncompleteForm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Add(tt.account)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_MetadataMutatesIdentityDoesNot(t *testing.T) {
	t.Parallel()
	r, path := openTestRegistry(t)
	orig, err := r.Add(Account{Address: alice, Kind: KindSignerMnemonic, MnemonicID: "m1", DerivationIndex: 3})
	require.NoError(t, err)

	renamed, err := r.Rename(alice, "savings")
	require.NoError(t, err)
	assert.Equal(t, "savings", renamed.Name)

	backed, err := r.SetBackedUp(alice, true)
	require.NoError(t, err)
	assert.True(t, backed.BackedUp)

	assert.Equal(t, orig.Address, backed.Address)
	assert.Equal(t, orig.MnemonicID, backed.MnemonicID)
	assert.Equal(t, orig.DerivationIndex, backed.DerivationIndex)
	assert.Equal(t, orig.CreatedAt, backed.CreatedAt)

	reloaded, err := OpenRegistry(path)
	require.NoError(t, err)
	got, err := reloaded.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, "savings", got.Name)
	assert.True(t, got.BackedUp)
}

func TestRegistry_NotFound(t *testing.T) {
	t.Parallel()
	r, _ := openTestRegistry(t)

	_, err := r.Get(bob)
	require.ErrorIs(t, err, courierr.ErrAccountNotFound)
	_, err = r.Rename(bob, "x")
	require.ErrorIs(t, err, courierr.ErrAccountNotFound)
	require.ErrorIs(t, r.Remove(bob), courierr.ErrAccountNotFound)
	_, err = r.Get("not-an-address")
	require.ErrorIs(t, err, courierr.ErrInvalidAddress)
}

func TestRegistry_Remove(t *testing.T) {
	t.Parallel()
	r, path := openTestRegistry(t)
	_, err := r.Add(Account{Address: bob, Kind: KindHardware})
	require.NoError(t, err)
	require.NoError(t, r.Remove(bob))

	reloaded, err := OpenRegistry(path)
	require.NoError(t, err)
	assert.Empty(t, reloaded.List())
}

func TestKind_CanSign(t *testing.T) {
	t.Parallel()
	assert.True(t, KindSignerMnemonic.CanSign())
	assert.True(t, KindHardware.CanSign())
	assert.False(t, KindReadonly.CanSign())
}
