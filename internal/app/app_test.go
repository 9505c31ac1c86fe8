package app

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/config"
	"github.com/mrz1836/courier/internal/intent"
	"github.com/mrz1836/courier/internal/notify"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/saga"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	// first account of testMnemonic
	testAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	recipient   = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

type chainStub struct {
	mu       sync.Mutex
	sent     []common.Hash
	receipts map[common.Hash]*types.Receipt
}

func (c *chainStub) ChainID() chain.ID { return chain.Mainnet }
func (c *chainStub) PendingNonce(context.Context, common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint64(len(c.sent)), nil
}

func (c *chainStub) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (c *chainStub) FeeData(context.Context) (*provider.FeeData, error) {
	return &provider.FeeData{MaxFeePerGas: big.NewInt(30), MaxPriorityFeePerGas: big.NewInt(2)}, nil
}
func (c *chainStub) Call(context.Context, ethereum.CallMsg) ([]byte, error) { return nil, nil }

func (c *chainStub) SendRawTransaction(_ context.Context, raw []byte) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := crypto.Keccak256Hash(raw)
	c.sent = append(c.sent, h)
	return h, nil
}

func (c *chainStub) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.receipts[h]; ok {
		return r, nil
	}
	return nil, provider.ErrReceiptNotFound
}
func (c *chainStub) Close() {}

func (c *chainStub) mine(h common.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receipts[h] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
}

type harness struct {
	svc    *Service
	chain  *chainStub
	reg    *prometheus.Registry
	events chan notify.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Keystore.WorkFactor = 10
	cfg.Submission.TaskTimeout = 5 * time.Second

	h := &harness{
		chain:  &chainStub{receipts: make(map[common.Hash]*types.Receipt)},
		reg:    prometheus.NewRegistry(),
		events: make(chan notify.Event, 16),
	}
	svc, err := New(cfg, Options{
		Logger:     zerolog.Nop(),
		Registerer: h.reg,
		Notifier: notify.Func(func(_ context.Context, e notify.Event) {
			h.events <- e
		}),
		Creator: func(provider.Network, string) (provider.Provider, error) { return h.chain, nil },
		Storage: storage.NewMemStorage(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	h.svc = svc
	return h
}

func await(t *testing.T, ch <-chan saga.State) saga.State {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(10 * time.Second):
		t.Fatal("task did not finish")
		return saga.State{}
	}
}

func nativeTransfer(from string) TransferParams {
	native := intent.NativeCurrency(chain.Mainnet)
	return TransferParams{TransferDraft: intent.TransferDraft{
		Account:   from,
		ChainID:   chain.Mainnet,
		Recipient: recipient,
		Currency:  &native,
		AmountRaw: "1000",
	}}
}

func TestService_TransferLifecycle(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	h.svc.Keystore.Unlock([]byte("correct horse"))
	acct, err := h.svc.ImportMnemonic(ctx, testMnemonic, 0, "main")
	require.NoError(t, err)
	assert.Equal(t, testAddress, acct.Address)
	assert.Equal(t, account.KindSignerMnemonic, acct.Kind)

	sub := h.svc.SubmitTransfer(ctx, nativeTransfer(testAddress))
	require.NotEmpty(t, sub.TxID)
	st := await(t, sub.States)
	require.Equal(t, saga.StatusSuccess, st.Status, "err: %v", st.Err)

	added := <-h.events
	assert.Equal(t, notify.KindAdded, added.Kind)
	assert.Equal(t, sub.TxID, added.TxID)

	txs := h.svc.Transactions(testAddress)
	require.Len(t, txs, 1)
	d := txs[0]
	assert.Equal(t, sub.TxID, d.ID)
	assert.Equal(t, transaction.StatusPending, d.Status)
	assert.Equal(t, transaction.TypeSend, d.Type())
	nonce, ok := d.Nonce()
	require.True(t, ok)
	assert.Zero(t, nonce)
	require.Len(t, h.svc.Pending(), 1)

	h.chain.mine(common.HexToHash(d.Hash))
	n, err := h.svc.Watcher.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.svc.Pending())

	finalized := <-h.events
	assert.Equal(t, notify.KindFinalized, finalized.Kind)
	assert.Equal(t, transaction.StatusSuccess, finalized.TxStatus)

	assert.InDelta(t, 1, testutil.ToFloat64(h.svc.Metrics.Finalized.WithLabelValues(string(transaction.StatusSuccess))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.svc.Metrics.Tasks.WithLabelValues(TaskTransfer, string(saga.StatusSuccess))), 0)
}

func TestService_ReadonlyAccountCannotSubmit(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.AddAccount(recipient, account.KindReadonly, "watch")
	require.NoError(t, err)

	st := await(t, h.svc.SubmitTransfer(context.Background(), nativeTransfer(recipient)).States)
	assert.Equal(t, saga.StatusFailure, st.Status)
	require.ErrorIs(t, st.Err, courierr.ErrNoSignerAvailable)
	assert.Empty(t, h.chain.sent)

	ev := <-h.events
	assert.Equal(t, notify.KindTaskFailed, ev.Kind)
	assert.Equal(t, TaskTransfer, ev.Task)
}

func TestService_LockedKeystore(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.ImportMnemonic(ctx, testMnemonic, 0, "")
	require.ErrorIs(t, err, courierr.ErrKeystoreLocked)

	h.svc.Keystore.Unlock([]byte("pw"))
	_, err = h.svc.ImportMnemonic(ctx, testMnemonic, 1, "")
	require.NoError(t, err)
	h.svc.Keystore.Lock()
	h.svc.Signers.Forget(common.HexToAddress(h.svc.Accounts.List()[0].Address))

	st := await(t, h.svc.SubmitTransfer(ctx, nativeTransfer(h.svc.Accounts.List()[0].Address)).States)
	require.Equal(t, saga.StatusFailure, st.Status)
	require.ErrorIs(t, st.Err, courierr.ErrKeystoreLocked)
}

func TestService_SwapValidationIsNotNotified(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	native := intent.NativeCurrency(chain.Mainnet)
	st := await(t, h.svc.SubmitSwap(context.Background(), SwapParams{SwapDraft: intent.SwapDraft{
		Account:        testAddress,
		ChainID:        chain.Mainnet,
		Input:          &native,
		ExactSide:      transaction.ExactInput,
		ExactAmountRaw: "100",
	}}).States)

	require.Equal(t, saga.StatusFailure, st.Status)
	assert.True(t, courierr.IsValidation(st.Err), "got %v", st.Err)
	select {
	case ev := <-h.events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestService_TaskControl(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	st, err := h.svc.TaskState(TaskSwap)
	require.NoError(t, err)
	assert.Equal(t, saga.StatusIdle, st.Status)
	require.NoError(t, h.svc.Cancel(TaskTransfer))

	_, err = h.svc.TaskState("bridge")
	require.ErrorIs(t, err, courierr.ErrInvalidInput)
	require.ErrorIs(t, h.svc.Cancel("bridge"), courierr.ErrInvalidInput)
}

func TestService_AddAccountRejectsMnemonicKind(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	_, err := h.svc.AddAccount(recipient, account.KindSignerMnemonic, "")
	require.ErrorIs(t, err, courierr.ErrInvalidInput)

	_, err = h.svc.AddAccount(strings.ToLower(recipient), account.KindHardware, "ledger")
	require.NoError(t, err)
	require.NoError(t, h.svc.RemoveAccount(recipient))
	assert.Empty(t, h.svc.Accounts.List())
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Defaults()
	cfg.Home = t.TempDir()
	cfg.Submission.ApprovalMode = "forever"
	_, err := New(cfg, Options{Logger: zerolog.Nop(), Storage: storage.NewMemStorage()})
	require.ErrorIs(t, err, courierr.ErrConfigInvalid)
}
