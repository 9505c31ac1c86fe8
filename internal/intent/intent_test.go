package intent

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const (
	owner     = "0x742d35Cc6634C0532925a3b844Bc454e4438f44e"
	router    = "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
	usdc      = "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"
	recipient = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"
)

type allowanceProvider struct {
	allowance *big.Int
	calls     []ethereum.CallMsg
}

func (p *allowanceProvider) ChainID() chain.ID { return chain.Mainnet }
func (p *allowanceProvider) PendingNonce(context.Context, common.Address) (uint64, error) {
	return 0, nil
}

func (p *allowanceProvider) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, nil
}

func (p *allowanceProvider) FeeData(context.Context) (*provider.FeeData, error) { return nil, nil }

func (p *allowanceProvider) Call(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	p.calls = append(p.calls, msg)
	return erc20ABI.Methods["allowance"].Outputs.Pack(p.allowance)
}

func (p *allowanceProvider) SendRawTransaction(context.Context, []byte) (common.Hash, error) {
	return common.Hash{}, nil
}

func (p *allowanceProvider) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (p *allowanceProvider) Close() {}

type providers struct {
	p   provider.Provider
	err error
}

func (s providers) GetProvider(chain.ID, ...provider.Option) (provider.Provider, error) {
	return s.p, s.err
}

func usdcCurrency() *Currency {
	return &Currency{ChainID: chain.Mainnet, Address: usdc, Decimals: 6, Symbol: "USDC"}
}

func ethCurrency() *Currency {
	c := NativeCurrency(chain.Mainnet)
	return &c
}

func swapDraft() SwapDraft {
	return SwapDraft{
		Account:        owner,
		ChainID:        chain.Mainnet,
		Input:          usdcCurrency(),
		Output:         ethCurrency(),
		ExactSide:      transaction.ExactInput,
		ExactAmountRaw: "1000000",
		Quote:          &Quote{Router: router, Calldata: []byte{0xde, 0xad}, AmountInRaw: "1000000", AmountOutRaw: "400000000000000"},
		SlippageBps:    50,
	}
}

func unpackArgs(t *testing.T, method string, data []byte) []any {
	t.Helper()
	m, ok := erc20ABI.Methods[method]
	require.True(t, ok)
	require.Equal(t, m.ID, data[:4])
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return args
}

func TestBuildSwap_InsufficientAllowanceAddsApprove(t *testing.T) {
	t.Parallel()
	p := &allowanceProvider{allowance: big.NewInt(10)}
	got, err := NewBuilder(providers{p: p}).BuildSwap(context.Background(), swapDraft())
	require.NoError(t, err)

	require.NotNil(t, got.ApproveRequest)
	assert.Equal(t, common.HexToAddress(usdc).Hex(), got.ApproveRequest.To)
	args := unpackArgs(t, "approve", got.ApproveRequest.Data)
	assert.Equal(t, common.HexToAddress(router), args[0])
	assert.Equal(t, 0, MaxApproval.Cmp(args[1].(*big.Int)))
	assert.Equal(t, MaxApproval.String(), got.ApproveInfo.ApprovalAmount)
	assert.Equal(t, common.HexToAddress(router).Hex(), got.ApproveInfo.Spender)

	require.Len(t, p.calls, 1)
	callArgs := unpackArgs(t, "allowance", p.calls[0].Data)
	assert.Equal(t, common.HexToAddress(owner), callArgs[0])
	assert.Equal(t, common.HexToAddress(router), callArgs[1])

	assert.Equal(t, common.HexToAddress(router).Hex(), got.SwapRequest.To)
	assert.Nil(t, got.SwapRequest.Nonce)
	info, ok := got.TypeInfo.(transaction.SwapInfo)
	require.True(t, ok)
	assert.Equal(t, "1000000", info.InputCurrencyAmountRaw)
	assert.Equal(t, "398000000000000", info.MinimumOutputAmountRaw)
	assert.Equal(t, "1-"+common.HexToAddress(usdc).Hex(), info.InputCurrencyID)
	assert.Equal(t, "1-"+NativeAddress, info.OutputCurrencyID)
}

func TestBuildSwap_SufficientAllowance(t *testing.T) {
	t.Parallel()
	p := &allowanceProvider{allowance: big.NewInt(1_000_000)}
	got, err := NewBuilder(providers{p: p}).BuildSwap(context.Background(), swapDraft())
	require.NoError(t, err)
	assert.Nil(t, got.ApproveRequest)
	assert.Nil(t, got.ApproveInfo)
}

func TestBuildSwap_ExactOutputExactApproval(t *testing.T) {
	t.Parallel()
	d := swapDraft()
	d.ExactSide = transaction.ExactOutput
	d.ExactAmountRaw = "400000000000000"
	d.ApproveExact = true

	got, err := NewBuilder(providers{p: &allowanceProvider{allowance: big.NewInt(0)}}).BuildSwap(context.Background(), d)
	require.NoError(t, err)

	info := got.TypeInfo.(transaction.SwapInfo)
	assert.Equal(t, transaction.ExactOutput, info.TradeType)
	assert.Equal(t, "1005000", info.MaximumInputAmountRaw)
	assert.Empty(t, info.MinimumOutputAmountRaw)

	args := unpackArgs(t, "approve", got.ApproveRequest.Data)
	assert.Equal(t, "1005000", args[1].(*big.Int).String())
}

func TestBuildSwap_NativeInputSkipsAllowance(t *testing.T) {
	t.Parallel()
	d := swapDraft()
	d.Input, d.Output = ethCurrency(), usdcCurrency()
	d.Quote.Value = "1000000"

	p := &allowanceProvider{}
	got, err := NewBuilder(providers{p: p}).BuildSwap(context.Background(), d)
	require.NoError(t, err)
	assert.Nil(t, got.ApproveRequest)
	assert.Empty(t, p.calls)
	assert.Equal(t, "1000000", got.SwapRequest.Value)
}

func TestBuildSwap_WrapAndUnwrap(t *testing.T) {
	t.Parallel()
	weth := &Currency{ChainID: chain.Mainnet, Address: chain.Mainnet.WrappedNative().Hex(), Decimals: 18}
	b := NewBuilder(providers{err: courierr.ErrUnsupportedChain})

	d := SwapDraft{Account: owner, ChainID: chain.Mainnet, Input: ethCurrency(), Output: weth, ExactAmountRaw: "5"}
	got, err := b.BuildSwap(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, transaction.WrapInfo{CurrencyAmountRaw: "5"}, got.TypeInfo)
	assert.Equal(t, "5", got.SwapRequest.Value)
	assert.Equal(t, wethABI.Methods["deposit"].ID, []byte(got.SwapRequest.Data))

	d.Input, d.Output = weth, ethCurrency()
	got, err = b.BuildSwap(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, transaction.WrapInfo{CurrencyAmountRaw: "5", Unwrapped: true}, got.TypeInfo)
	assert.Empty(t, got.SwapRequest.Value)
	args, err := wethABI.Methods["withdraw"].Inputs.Unpack(got.SwapRequest.Data[4:])
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5), args[0])
}

func TestBuildSwap_Validation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*SwapDraft)
		wantErr error
	}{
		{"no account", func(d *SwapDraft) { d.Account = "" }, courierr.ErrIncompleteForm},
		{"bad account", func(d *SwapDraft) { d.Account = "0x1" }, courierr.ErrInvalidAddress},
		{"no chain", func(d *SwapDraft) { d.ChainID = 0 }, courierr.ErrIncompleteForm},
		{"unsupported chain", func(d *SwapDraft) { d.ChainID = 999 }, courierr.ErrUnsupportedChain},
		{"no input", func(d *SwapDraft) { d.Input = nil }, courierr.ErrIncompleteForm},
		{"no output", func(d *SwapDraft) { d.Output = nil }, courierr.ErrIncompleteForm},
		{"no amount", func(d *SwapDraft) { d.ExactAmountRaw = "" }, courierr.ErrIncompleteForm},
		{"zero amount", func(d *SwapDraft) { d.ExactAmountRaw = "0" }, courierr.ErrInvalidAmount},
		{"decimal amount", func(d *SwapDraft) { d.ExactAmountRaw = "1.5" }, courierr.ErrInvalidAmount},
		{"no quote", func(d *SwapDraft) { d.Quote = nil }, courierr.ErrIncompleteForm},
		{"bad router", func(d *SwapDraft) { d.Quote.Router = "router" }, courierr.ErrInvalidAddress},
		{"slippage", func(d *SwapDraft) { d.SlippageBps = 10_001 }, courierr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := swapDraft()
			tt.mutate(&d)
			p := &allowanceProvider{allowance: big.NewInt(0)}
			_, err := NewBuilder(providers{p: p}).BuildSwap(context.Background(), d)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, courierr.IsValidation(err))
			assert.Empty(t, p.calls, "validation happens before any network call")
		})
	}
}

func TestSlippageMath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expected int64
		bps      uint32
		min, max string
	}{
		{10_000, 0, "10000", "10000"},
		{10_000, 50, "9950", "10050"},
		{999, 30, "996", "1001"},
		{1, 10_000, "0", "2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.min, MinimumOutput(big.NewInt(tt.expected), tt.bps).String())
		assert.Equal(t, tt.max, MaximumInput(big.NewInt(tt.expected), tt.bps).String())
	}
}

func TestBuildTransfer(t *testing.T) {
	t.Parallel()
	b := NewBuilder(nil)

	t.Run("native", func(t *testing.T) {
		got, err := b.BuildTransfer(TransferDraft{Account: owner, ChainID: chain.Mainnet, Recipient: recipient, Currency: ethCurrency(), AmountRaw: "123"})
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(recipient).Hex(), got.Request.To)
		assert.Equal(t, "123", got.Request.Value)
		assert.Empty(t, got.Request.Data)
		assert.Equal(t, transaction.AssetCurrency, got.TypeInfo.AssetType)
	})

	t.Run("erc20 amount round trips", func(t *testing.T) {
		raw := "115792089237316195423570985008687907853269984665640564039457584007913129639935"
		got, err := b.BuildTransfer(TransferDraft{Account: owner, ChainID: chain.Mainnet, Recipient: recipient, Currency: usdcCurrency(), AmountRaw: raw})
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(usdc).Hex(), got.Request.To)
		args := unpackArgs(t, "transfer", got.Request.Data)
		assert.Equal(t, common.HexToAddress(recipient), args[0])
		assert.Equal(t, raw, args[1].(*big.Int).String())
		assert.Equal(t, raw, got.TypeInfo.CurrencyAmountRaw)
	})

	t.Run("erc721", func(t *testing.T) {
		got, err := b.BuildTransfer(TransferDraft{Account: owner, ChainID: chain.Mainnet, Recipient: recipient, AssetType: transaction.AssetERC721, TokenAddress: usdc, TokenID: "0"})
		require.NoError(t, err)
		m := erc721ABI.Methods["safeTransferFrom"]
		assert.Equal(t, m.ID, []byte(got.Request.Data[:4]))
		args, err := m.Inputs.Unpack(got.Request.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress(owner), args[0])
		assert.Equal(t, common.HexToAddress(recipient), args[1])
		assert.Equal(t, "0", got.TypeInfo.TokenID)
	})

	t.Run("erc1155", func(t *testing.T) {
		got, err := b.BuildTransfer(TransferDraft{Account: owner, ChainID: chain.Mainnet, Recipient: recipient, AssetType: transaction.AssetERC1155, TokenAddress: usdc, TokenID: "7", AmountRaw: "3"})
		require.NoError(t, err)
		args, err := erc1155ABI.Methods["safeTransferFrom"].Inputs.Unpack(got.Request.Data[4:])
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(7), args[2])
		assert.Equal(t, big.NewInt(3), args[3])
	})
}

func TestBuildTransfer_Validation(t *testing.T) {
	t.Parallel()
	base := TransferDraft{Account: owner, ChainID: chain.Mainnet, Recipient: recipient, Currency: usdcCurrency(), AmountRaw: "1"}
	tests := []struct {
		name    string
		mutate  func(*TransferDraft)
		wantErr error
	}{
		{"no recipient", func(d *TransferDraft) { d.Recipient = "" }, courierr.ErrIncompleteForm},
		{"bad recipient", func(d *TransferDraft) { d.Recipient = "bob.eth" }, courierr.ErrInvalidAddress},
		{"no currency", func(d *TransferDraft) { d.Currency = nil }, courierr.ErrIncompleteForm},
		{"negative amount", func(d *TransferDraft) { d.AmountRaw = "-1" }, courierr.ErrInvalidAmount},
		{"above uint256", func(d *TransferDraft) { d.AmountRaw = "1" + strings.Repeat("0", 78) }, courierr.ErrInvalidAmount},
		{"no token id", func(d *TransferDraft) { d.AssetType = transaction.AssetERC721; d.TokenAddress = usdc }, courierr.ErrIncompleteForm},
		{"bad asset type", func(d *TransferDraft) { d.AssetType = "stock" }, courierr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := base
			tt.mutate(&d)
			_, err := NewBuilder(nil).BuildTransfer(d)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}
