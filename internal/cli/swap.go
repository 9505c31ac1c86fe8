package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/intent"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	swapAccount      string
	swapQuoteFile    string
	swapIn           string
	swapInDecimals   int32
	swapOut          string
	swapOutDecimals  int32
	swapSide         string
	swapAmount       string
	swapSlippageBps  uint32
	swapApproveExact bool
	swapTxID         string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Approve if needed and submit a routed swap",
	Long: `Submit a swap from a router quote. If the router's allowance on the
input token is too low an approve is sent first, followed by the swap with
the next nonce. A native/wrapped-native pair is sent as a wrap or unwrap
and needs no quote.

The quote file is JSON: {"router", "calldata", "value", "amountInRaw", "amountOutRaw"}.`,
	RunE: runSwap,
}

func runSwap(cmd *cobra.Command, _ []string) error {
	id, err := chainFlag(cmd, "chain")
	if err != nil {
		return err
	}
	in, err := parseCurrency(id, swapIn, swapInDecimals)
	if err != nil {
		return err
	}
	out, err := parseCurrency(id, swapOut, swapOutDecimals)
	if err != nil {
		return err
	}
	side := transaction.TradeType(swapSide)
	exactDecimals := in.Decimals
	switch side {
	case transaction.ExactInput:
	case transaction.ExactOutput:
		exactDecimals = out.Decimals
	default:
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"side": swapSide})
	}
	raw, err := chain.ToRawAmount(swapAmount, exactDecimals)
	if err != nil {
		return err
	}
	quote, err := readQuote(swapQuoteFile)
	if err != nil {
		return err
	}

	svc, err := openService(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if _, err := prepareSigning(svc, swapAccount); err != nil {
		return err
	}
	sub := svc.SubmitSwap(cmd.Context(), app.SwapParams{
		SwapDraft: intent.SwapDraft{
			Account:        swapAccount,
			ChainID:        id,
			Input:          in,
			Output:         out,
			ExactSide:      side,
			ExactAmountRaw: raw.String(),
			Quote:          quote,
			SlippageBps:    swapSlippageBps,
			ApproveExact:   swapApproveExact,
		},
		TxID: swapTxID,
	})
	st, err := awaitTask(cmd.Context(), svc, app.TaskSwap, sub)
	if err != nil {
		return err
	}
	return reportTask(svc, st, sub.TxID, swapAccount)
}

// readQuote loads a quote file. No file means no quote, which only a
// wrap or unwrap accepts.
func readQuote(path string) (*intent.Quote, error) {
	if path == "" {
		return nil, nil //nolint:nilnil // absent quote is valid for wraps
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: user-supplied quote file
	if err != nil {
		return nil, courierr.Wrap(err, "reading quote")
	}
	var q intent.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, courierr.WithSuggestion(
			courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"quote": path}),
			"quote must be a JSON object with router, calldata, amountInRaw and amountOutRaw",
		)
	}
	return &q, nil
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	f := swapCmd.Flags()
	f.StringVar(&swapAccount, "account", "", "swapping account address")
	f.String("chain", "mainnet", "chain name or id")
	f.StringVar(&swapQuoteFile, "quote", "", "router quote JSON file")
	f.StringVar(&swapIn, "in", "native", "input token address or native")
	f.Int32Var(&swapInDecimals, "in-decimals", 18, "input token decimals")
	f.StringVar(&swapOut, "out", "native", "output token address or native")
	f.Int32Var(&swapOutDecimals, "out-decimals", 18, "output token decimals")
	f.StringVar(&swapSide, "side", string(transaction.ExactInput), "exact-input or exact-output")
	f.StringVar(&swapAmount, "amount", "", "amount of the exact side in whole units")
	f.Uint32Var(&swapSlippageBps, "slippage-bps", 0, "slippage tolerance in basis points (default from config)")
	f.BoolVar(&swapApproveExact, "approve-exact", false, "approve only the swap amount instead of the maximum")
	f.StringVar(&swapTxID, "tx-id", "", "transaction id to record (default: random)")
	_ = swapCmd.MarkFlagRequired("account")
	_ = swapCmd.MarkFlagRequired("amount")

	rootCmd.AddCommand(swapCmd)
}
