package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/config"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/saga"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	testAddress  = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	watchAddress = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

type stubChain struct {
	mu     sync.Mutex
	sent   []common.Hash
	mined  map[common.Hash]bool
	nonces uint64
}

func (c *stubChain) ChainID() chain.ID { return chain.Mainnet }
func (c *stubChain) PendingNonce(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces, nil
}

func (c *stubChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (c *stubChain) FeeData(context.Context) (*provider.FeeData, error) {
	return &provider.FeeData{MaxFeePerGas: big.NewInt(20), MaxPriorityFeePerGas: big.NewInt(1)}, nil
}
func (c *stubChain) Call(context.Context, ethereum.CallMsg) ([]byte, error) { return nil, nil }

func (c *stubChain) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := crypto.Keccak256Hash(raw)
	c.sent = append(c.sent, h)
	c.nonces++
	return h, nil
}

func (c *stubChain) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mined[h] {
		return nil, provider.ErrReceiptNotFound
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}
func (c *stubChain) Close() {}

// setupCLI points the CLI at a temp home with a stubbed chain and
// scripted prompts, and restores the globals afterwards.
func setupCLI(t *testing.T) *stubChain {
	t.Helper()
	stub := &stubChain{mined: make(map[common.Hash]bool)}

	origService, origPass, origMnemonic := newService, promptPassphraseFn, promptMnemonicFn
	origOut, origErr := stdout, stderr
	t.Cleanup(func() {
		newService, promptPassphraseFn, promptMnemonicFn = origService, origPass, origMnemonic
		stdout, stderr = origOut, origErr
		homeDir, outputFormat = "", "auto"
	})

	newService = func(cfg *config.Config, opts app.Options) (*app.Service, error) {
		cfg.Keystore.WorkFactor = 10
		opts.Creator = func(provider.Network, string) (provider.Provider, error) { return stub, nil }
		return app.New(cfg, opts)
	}
	promptPassphraseFn = func(string) ([]byte, error) { return []byte("a long passphrase"), nil }
	promptMnemonicFn = func() (string, error) { return testMnemonic, nil }

	home := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("logging:\n  level: off\n"), 0o600))
	homeDir = home
	return stub
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	stdout, stderr = &out, &errOut
	rootCmd.SetArgs(append([]string{"--home", homeDir, "--output", "json"}, args...))
	err := Execute(context.Background())
	return out.String(), errOut.String(), err
}

//nolint:paralleltest // mutates package globals
func TestAccountCommands(t *testing.T) {
	setupCLI(t)

	out, _, err := run(t, "account", "import", "--name", "main", "--index", "0")
	require.NoError(t, err)
	var imported []account.Account
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	require.Len(t, imported, 1)
	assert.Equal(t, testAddress, imported[0].Address)
	assert.Equal(t, account.KindSignerMnemonic, imported[0].Kind)

	_, _, err = run(t, "account", "add", watchAddress, "--kind", "readonly", "--name", "cold")
	require.NoError(t, err)

	out, _, err = run(t, "account", "list")
	require.NoError(t, err)
	var listed []account.Account
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)
	assert.Equal(t, "main", listed[0].Name)
	assert.Equal(t, account.KindReadonly, listed[1].Kind)

	_, _, err = run(t, "account", "add", watchAddress, "--kind", "signer_mnemonic")
	require.ErrorIs(t, err, courierr.ErrInvalidInput)
}

//nolint:paralleltest // mutates package globals
func TestSendAndWatch(t *testing.T) {
	stub := setupCLI(t)

	_, _, err := run(t, "account", "import", "--index", "0")
	require.NoError(t, err)

	out, status, err := run(t, "send", "--account", testAddress, "--chain", "mainnet",
		"--to", watchAddress, "--amount", "0.5", "--tx-id", "send-1")
	require.NoError(t, err, status)

	var res submissionResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, saga.StatusSuccess, res.Status)
	assert.Equal(t, "send-1", res.TxID)
	require.Len(t, res.Transactions, 1)
	assert.Equal(t, "500000000000000000", res.Transactions[0].Options.Request.Value)
	assert.Contains(t, status, "Submitting transfer send-1")

	out, _, err = run(t, "tx", "pending")
	require.NoError(t, err)
	var pending []*transaction.Details
	require.NoError(t, json.Unmarshal([]byte(out), &pending))
	require.Len(t, pending, 1)

	stub.mu.Lock()
	stub.mined[stub.sent[0]] = true
	stub.mu.Unlock()

	_, status, err = run(t, "watch", "--once")
	require.NoError(t, err)
	assert.Contains(t, status, "Finalized 1 transaction(s), 0 still pending.")

	out, _, err = run(t, "tx", "list", "--account", testAddress)
	require.NoError(t, err)
	var history []*transaction.Details
	require.NoError(t, json.Unmarshal([]byte(out), &history))
	require.Len(t, history, 1)
	assert.Equal(t, transaction.StatusSuccess, history[0].Status)
}

//nolint:paralleltest // mutates package globals
func TestSendFromReadonlyAccount(t *testing.T) {
	stub := setupCLI(t)
	_, _, err := run(t, "account", "add", watchAddress, "--kind", "readonly")
	require.NoError(t, err)

	out, errOut, err := run(t, "send", "--account", watchAddress, "--to", testAddress, "--amount", "1", "--tx-id", "ro")
	require.ErrorIs(t, err, courierr.ErrNoSignerAvailable)
	assert.Equal(t, courierr.ExitAuth, ExitCode(err))
	assert.Contains(t, out, `"status": "failure"`)
	assert.Contains(t, errOut, courierr.ErrNoSignerAvailable.Code)
	assert.Empty(t, stub.sent)
}

//nolint:paralleltest // mutates package globals
func TestSwapRejectsBadInput(t *testing.T) {
	setupCLI(t)

	_, _, err := run(t, "swap", "--account", testAddress, "--amount", "1", "--side", "sideways")
	require.ErrorIs(t, err, courierr.ErrInvalidInput)

	_, _, err = run(t, "swap", "--account", testAddress, "--amount=-1", "--side", "exact-input")
	require.ErrorIs(t, err, courierr.ErrInvalidAmount)

	_, _, err = run(t, "swap", "--account", testAddress, "--amount", "1", "--chain", "mainnnet")
	require.ErrorIs(t, err, courierr.ErrUnsupportedChain)
}

func TestReadQuote(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	q, err := readQuote("")
	require.NoError(t, err)
	assert.Nil(t, q)

	good := filepath.Join(dir, "quote.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"router":"0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD","calldata":"0x1234","amountInRaw":"10","amountOutRaw":"9"}`), 0o600))
	q, err = readQuote(good)
	require.NoError(t, err)
	assert.Equal(t, "10", q.AmountInRaw)
	assert.Equal(t, []byte{0x12, 0x34}, []byte(q.Calldata))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"calldata":"zz"}`), 0o600))
	_, err = readQuote(bad)
	require.ErrorIs(t, err, courierr.ErrInvalidInput)

	_, err = readQuote(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestParseCurrency(t *testing.T) {
	t.Parallel()
	native, err := parseCurrency(chain.Polygon, "native", 6)
	require.NoError(t, err)
	assert.True(t, native.Native)
	assert.Equal(t, int32(18), native.Decimals)

	bySymbol, err := parseCurrency(chain.Polygon, "POL", 0)
	require.NoError(t, err)
	assert.True(t, bySymbol.Native)

	tok, err := parseCurrency(chain.Mainnet, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 6)
	require.NoError(t, err)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", tok.Address)
	assert.Equal(t, int32(6), tok.Decimals)

	_, err = parseCurrency(chain.Mainnet, "usdc", 6)
	require.ErrorIs(t, err, courierr.ErrInvalidAddress)
	_, err = parseCurrency(chain.Mainnet, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", 99)
	require.ErrorIs(t, err, courierr.ErrInvalidInput)
}

func TestShortHash(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "", shortHash(""))
	assert.Equal(t, "0x1234", shortHash("0x1234"))
	assert.Equal(t, "0x9d4ae6…ab12", shortHash("0x9d4ae6c1f0e2b3a4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f80912ab12"))
}
