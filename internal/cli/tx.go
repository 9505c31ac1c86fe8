package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/output"
	"github.com/mrz1836/courier/internal/transaction"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var txAccount string

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txCmd = &cobra.Command{
	Use:   "tx",
	Short: "Inspect recorded transactions",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an account's transactions, newest first",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc, err := openService(app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		if _, err := svc.Accounts.Get(txAccount); err != nil {
			return err
		}
		return printTransactions(svc.Transactions(txAccount))
	},
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var txPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List transactions still waiting for a receipt",
	RunE: func(_ *cobra.Command, _ []string) error {
		svc, err := openService(app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = svc.Close() }()
		return printTransactions(svc.Pending())
	},
}

func printTransactions(txs []*transaction.Details) error {
	if txs == nil {
		txs = []*transaction.Details{}
	}
	return formatter.Render(txs, func(w io.Writer) error {
		if len(txs) == 0 {
			_, err := io.WriteString(w, "No transactions.\n")
			return err
		}
		return renderTransactions(w, txs)
	})
}

func renderTransactions(w io.Writer, txs []*transaction.Details) error {
	if len(txs) == 0 {
		return nil
	}
	tbl := output.NewTable("ID", "CHAIN", "TYPE", "STATUS", "NONCE", "HASH", "ADDED")
	for _, d := range txs {
		nonce := ""
		if n, ok := d.Nonce(); ok {
			nonce = strconv.FormatUint(n, 10)
		}
		tbl.AddRow(d.ID, d.ChainID.Name(), string(d.Type()), string(d.Status), nonce, shortHash(d.Hash),
			time.UnixMilli(d.AddedTime).UTC().Format(time.DateTime))
	}
	return tbl.Render(w)
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:8] + "…" + h[len(h)-4:]
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	txListCmd.Flags().StringVar(&txAccount, "account", "", "account address")
	_ = txListCmd.MarkFlagRequired("account")

	txCmd.AddCommand(txListCmd, txPendingCmd)
	rootCmd.AddCommand(txCmd)
}
