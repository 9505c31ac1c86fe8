package intent

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const bpsDenominator = 10_000

// Quote is a routed swap from an external quoting service.
type Quote struct {
	Router       string        `json:"router"`
	Calldata     hexutil.Bytes `json:"calldata"`
	Value        string        `json:"value,omitempty"`
	AmountInRaw  string        `json:"amountInRaw"`
	AmountOutRaw string        `json:"amountOutRaw"`
}

// SwapDraft is the editable state of a swap form.
type SwapDraft struct {
	Account        string
	ChainID        chain.ID
	Input          *Currency
	Output         *Currency
	ExactSide      transaction.TradeType
	ExactAmountRaw string
	Quote          *Quote
	SlippageBps    uint32
	ApproveExact   bool
}

// SwapIntent is what a swap draft resolves to. ApproveRequest is nil when
// the router already has enough allowance.
type SwapIntent struct {
	ApproveRequest *transaction.Request
	ApproveInfo    *transaction.ApproveInfo
	SwapRequest    transaction.Request
	TypeInfo       transaction.TypeInfo
}

// ProviderSource resolves chain providers.
type ProviderSource interface {
	GetProvider(id chain.ID, opts ...provider.Option) (provider.Provider, error)
}

// Builder validates drafts and builds requests.
type Builder struct {
	providers ProviderSource
}

// NewBuilder returns a Builder reading allowances through providers.
func NewBuilder(providers ProviderSource) *Builder {
	return &Builder{providers: providers}
}

// BuildSwap validates d and builds the approve (if needed) and swap
// requests. Native/wrapped-native pairs become a wrap or unwrap.
func (b *Builder) BuildSwap(ctx context.Context, d SwapDraft) (*SwapIntent, error) {
	owner, err := requireAddress("account", d.Account)
	if err != nil {
		return nil, err
	}
	if err := requireChain(d.ChainID); err != nil {
		return nil, err
	}
	if d.Input == nil {
		return nil, incomplete("inputCurrency")
	}
	if d.Output == nil {
		return nil, incomplete("outputCurrency")
	}
	if d.ExactAmountRaw == "" {
		return nil, incomplete("amount")
	}
	exact, err := parseAmount(d.ExactAmountRaw)
	if err != nil {
		return nil, err
	}

	if req, info, ok, err := buildWrap(d, owner, exact); ok || err != nil {
		if err != nil {
			return nil, err
		}
		return &SwapIntent{SwapRequest: req, TypeInfo: info}, nil
	}

	if d.Quote == nil {
		return nil, incomplete("quote")
	}
	router, err := requireAddress("router", d.Quote.Router)
	if err != nil {
		return nil, err
	}
	if d.SlippageBps > bpsDenominator {
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "slippageBps"})
	}

	info := transaction.SwapInfo{
		InputCurrencyID:  d.Input.CurrencyID(),
		OutputCurrencyID: d.Output.CurrencyID(),
	}
	var maxIn *big.Int
	switch d.ExactSide {
	case transaction.ExactInput, "":
		out, err := parseQuoteAmount("amountOutRaw", d.Quote.AmountOutRaw)
		if err != nil {
			return nil, err
		}
		info.TradeType = transaction.ExactInput
		info.InputCurrencyAmountRaw = exact.String()
		info.OutputCurrencyAmountRaw = out.String()
		info.MinimumOutputAmountRaw = MinimumOutput(out, d.SlippageBps).String()
		maxIn = exact
	case transaction.ExactOutput:
		in, err := parseQuoteAmount("amountInRaw", d.Quote.AmountInRaw)
		if err != nil {
			return nil, err
		}
		maxIn = MaximumInput(in, d.SlippageBps)
		info.TradeType = transaction.ExactOutput
		info.InputCurrencyAmountRaw = in.String()
		info.OutputCurrencyAmountRaw = exact.String()
		info.MaximumInputAmountRaw = maxIn.String()
	default:
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "exactSide", "value": string(d.ExactSide)})
	}

	intent := &SwapIntent{
		SwapRequest: transaction.Request{
			ChainID: d.ChainID,
			From:    owner.Hex(),
			To:      router.Hex(),
			Data:    append(hexutil.Bytes(nil), d.Quote.Calldata...),
			Value:   d.Quote.Value,
		},
		TypeInfo: info,
	}
	if d.Input.Native {
		return intent, nil
	}

	token, err := requireAddress("inputCurrency", d.Input.Address)
	if err != nil {
		return nil, err
	}
	allowance, err := b.allowance(ctx, d.ChainID, token, owner, router)
	if err != nil {
		return nil, err
	}
	if allowance.Cmp(maxIn) >= 0 {
		return intent, nil
	}

	amount := MaxApproval
	if d.ApproveExact {
		amount = maxIn
	}
	data, err := packApprove(router, amount)
	if err != nil {
		return nil, courierr.Wrap(err, "encoding approve")
	}
	intent.ApproveRequest = &transaction.Request{
		ChainID: d.ChainID,
		From:    owner.Hex(),
		To:      token.Hex(),
		Data:    data,
	}
	intent.ApproveInfo = &transaction.ApproveInfo{
		TokenAddress:   token.Hex(),
		Spender:        router.Hex(),
		ApprovalAmount: amount.String(),
	}
	return intent, nil
}

func (b *Builder) allowance(ctx context.Context, id chain.ID, token, owner, spender common.Address) (*big.Int, error) {
	p, err := b.providers.GetProvider(id)
	if err != nil {
		return nil, err
	}
	data, err := packAllowance(owner, spender)
	if err != nil {
		return nil, courierr.Wrap(err, "encoding allowance")
	}
	out, err := p.Call(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return nil, courierr.Wrap(err, "reading allowance")
	}
	allowance, err := unpackAllowance(out)
	if err != nil {
		return nil, courierr.WithCause(courierr.ErrNetworkError, err)
	}
	return allowance, nil
}

// buildWrap handles native <-> wrapped native. ok is false for any other
// pair.
func buildWrap(d SwapDraft, owner common.Address, amount *big.Int) (transaction.Request, transaction.TypeInfo, bool, error) {
	var (
		data      []byte
		value     string
		unwrapped bool
		err       error
	)
	switch {
	case d.Input.Native && d.Output.IsWrappedNative():
		data, err = packDeposit()
		value = amount.String()
	case d.Input.IsWrappedNative() && d.Output.Native:
		data, err = packWithdraw(amount)
		unwrapped = true
	default:
		return transaction.Request{}, nil, false, nil
	}
	if err != nil {
		return transaction.Request{}, nil, true, courierr.Wrap(err, "encoding wrap")
	}
	req := transaction.Request{
		ChainID: d.ChainID,
		From:    owner.Hex(),
		To:      d.ChainID.WrappedNative().Hex(),
		Data:    data,
		Value:   value,
	}
	return req, transaction.WrapInfo{CurrencyAmountRaw: amount.String(), Unwrapped: unwrapped}, true, nil
}

// MinimumOutput returns expected * (10000 - bps) / 10000.
func MinimumOutput(expected *big.Int, bps uint32) *big.Int {
	if bps > bpsDenominator {
		bps = bpsDenominator
	}
	out := new(big.Int).Mul(expected, big.NewInt(int64(bpsDenominator-bps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// MaximumInput returns expected * (10000 + bps) / 10000.
func MaximumInput(expected *big.Int, bps uint32) *big.Int {
	out := new(big.Int).Mul(expected, big.NewInt(int64(bpsDenominator+bps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

func parseQuoteAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, incomplete("quote." + field)
	}
	return parseAmount(raw)
}

func incomplete(field string) error {
	return courierr.WithDetails(courierr.ErrIncompleteForm, map[string]string{"field": field})
}

func requireAddress(field, value string) (common.Address, error) {
	if value == "" {
		return common.Address{}, incomplete(field)
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, courierr.WithDetails(courierr.ErrInvalidAddress, map[string]string{"field": field, "address": value})
	}
	return common.HexToAddress(value), nil
}

func requireChain(id chain.ID) error {
	if id == 0 {
		return incomplete("chainId")
	}
	if !id.IsSupported() {
		return courierr.WithDetails(courierr.ErrUnsupportedChain, map[string]string{"chainId": id.String()})
	}
	return nil
}
