package cli

import (
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/keystore"
	"github.com/mrz1836/courier/internal/output"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	accountName  string
	accountIndex uint32
	accountKind  string
	accountWords int
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage accounts",
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Register a watch-only or hardware account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountAdd,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a mnemonic and register its first account",
	Long: `Generate a new BIP39 mnemonic, store it encrypted in the keystore and
register the account at --index. The phrase is shown once; write it down.`,
	RunE: runAccountNew,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a mnemonic and register an account",
	RunE:  runAccountImport,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	RunE:  runAccountList,
}

func runAccountAdd(cmd *cobra.Command, args []string) error {
	kind := account.Kind(accountKind)
	if kind != account.KindReadonly && kind != account.KindHardware {
		return courierr.WithSuggestion(
			courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"kind": accountKind}),
			"use --kind readonly or --kind hardware",
		)
	}
	svc, err := openService(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	a, err := svc.AddAccount(args[0], kind, accountName)
	if err != nil {
		return err
	}
	return renderAccounts(cmd, []account.Account{a})
}

func runAccountNew(cmd *cobra.Command, _ []string) error {
	if accountWords != 12 && accountWords != 24 {
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"words": strconv.Itoa(accountWords)})
	}
	mnemonic, err := keystore.GenerateMnemonic(accountWords)
	if err != nil {
		return err
	}
	a, err := importAccount(cmd, mnemonic)
	if err != nil {
		return err
	}
	formatter.Statusf("Recovery phrase (shown once):\n\n  %s\n", mnemonic)
	return renderAccounts(cmd, []account.Account{a})
}

func runAccountImport(cmd *cobra.Command, _ []string) error {
	mnemonic, err := promptMnemonicFn()
	if err != nil {
		return err
	}
	if err := keystore.ValidateMnemonic(mnemonic); err != nil {
		return err
	}
	a, err := importAccount(cmd, mnemonic)
	if err != nil {
		return err
	}
	return renderAccounts(cmd, []account.Account{a})
}

func importAccount(cmd *cobra.Command, mnemonic string) (account.Account, error) {
	svc, err := openService(app.Options{})
	if err != nil {
		return account.Account{}, err
	}
	defer func() { _ = svc.Close() }()

	ids, err := svc.Keystore.MnemonicIDs()
	if err != nil {
		return account.Account{}, err
	}
	pass, err := unlockPassphrase(len(ids) == 0)
	if err != nil {
		return account.Account{}, err
	}
	svc.Keystore.Unlock(pass)
	zero(pass)

	return svc.ImportMnemonic(cmd.Context(), mnemonic, accountIndex, accountName)
}

func runAccountList(cmd *cobra.Command, _ []string) error {
	svc, err := openService(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()
	return renderAccounts(cmd, svc.Accounts.List())
}

func renderAccounts(_ *cobra.Command, accounts []account.Account) error {
	return formatter.Render(accounts, func(w io.Writer) error {
		tbl := output.NewTable("ADDRESS", "KIND", "INDEX", "NAME", "BACKED UP", "CREATED")
		for _, a := range accounts {
			index := ""
			if a.Kind == account.KindSignerMnemonic {
				index = strconv.FormatUint(uint64(a.DerivationIndex), 10)
			}
			tbl.AddRow(a.Address, string(a.Kind), index, a.Name, strconv.FormatBool(a.BackedUp), a.CreatedAt.Format(time.DateOnly))
		}
		return tbl.Render(w)
	})
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	accountCmd.PersistentFlags().StringVar(&accountName, "name", "", "display name")
	accountAddCmd.Flags().StringVar(&accountKind, "kind", string(account.KindReadonly), "readonly or hardware")
	accountNewCmd.Flags().IntVar(&accountWords, "words", 24, "mnemonic length: 12 or 24")
	accountNewCmd.Flags().Uint32Var(&accountIndex, "index", 0, "derivation index")
	accountImportCmd.Flags().Uint32Var(&accountIndex, "index", 0, "derivation index")

	accountCmd.AddCommand(accountAddCmd, accountNewCmd, accountImportCmd, accountListCmd)
	rootCmd.AddCommand(accountCmd)
}
