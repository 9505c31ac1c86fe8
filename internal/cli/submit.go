package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/intent"
	"github.com/mrz1836/courier/internal/saga"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// submissionResult is printed after a swap or send task finishes.
type submissionResult struct {
	Task         string                 `json:"task"`
	Status       saga.Status            `json:"status"`
	TxID         string                 `json:"txId"`
	Error        string                 `json:"error,omitempty"`
	Transactions []*transaction.Details `json:"transactions,omitempty"`
}

// prepareSigning unlocks the keystore when the account signs with a
// stored mnemonic.
func prepareSigning(svc *app.Service, address string) (account.Account, error) {
	a, err := svc.Accounts.Get(address)
	if err != nil {
		return account.Account{}, err
	}
	if a.Kind != account.KindSignerMnemonic {
		return a, nil
	}
	pass, err := unlockPassphrase(false)
	if err != nil {
		return account.Account{}, err
	}
	svc.Keystore.Unlock(pass)
	zero(pass)
	return a, nil
}

// awaitTask waits for the final state of a submission. An interrupt
// cancels the task and still waits for it to report.
func awaitTask(ctx context.Context, svc *app.Service, task string, sub app.Submission) (saga.State, error) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	formatter.Statusf("Submitting %s %s...", task, sub.TxID)
	for {
		select {
		case st, ok := <-sub.States:
			if !ok {
				return saga.State{}, courierr.ErrCancelled
			}
			return st, nil
		case <-sigCtx.Done():
			if err := svc.Cancel(task); err != nil {
				return saga.State{}, err
			}
			sigCtx = context.Background()
		}
	}
}

// reportTask prints the outcome and returns the task error, if any.
func reportTask(svc *app.Service, st saga.State, txID, address string) error {
	res := submissionResult{Task: st.Task, Status: st.Status, TxID: txID}
	if st.Err != nil {
		res.Error = st.Message
	}
	// An approve sent by this run is recorded under its own id.
	since := st.Started.UnixMilli()
	for _, d := range svc.Transactions(address) {
		if d.ID == txID || (d.Type() == transaction.TypeApprove && d.AddedTime >= since) {
			res.Transactions = append(res.Transactions, d)
		}
	}

	if err := formatter.Render(res, func(w io.Writer) error {
		if _, err := fmt.Fprintf(w, "%s %s: %s\n", res.Task, res.TxID, res.Status); err != nil {
			return err
		}
		return renderTransactions(w, res.Transactions)
	}); err != nil {
		return err
	}
	return st.Err
}

// parseCurrency reads "native" or a token address.
func parseCurrency(id chain.ID, s string, decimals int32) (*intent.Currency, error) {
	if s == "" || s == "native" || s == id.NativeSymbol() {
		c := intent.NativeCurrency(id)
		return &c, nil
	}
	if !common.IsHexAddress(s) {
		return nil, courierr.WithDetails(courierr.ErrInvalidAddress, map[string]string{"currency": s})
	}
	if decimals < 0 || decimals > 77 {
		return nil, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "decimals"})
	}
	c := intent.Currency{ChainID: id, Address: common.HexToAddress(s).Hex(), Decimals: decimals}
	return &c, nil
}

func chainFlag(cmd *cobra.Command, name string) (chain.ID, error) {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return 0, err
	}
	return chain.ParseChainID(v)
}
