package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrz1836/courier/internal/app"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/intent"
	"github.com/mrz1836/courier/internal/transaction"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	sendAccount  string
	sendTo       string
	sendAmount   string
	sendToken    string
	sendDecimals int32
	sendAsset    string
	sendTokenID  string
	sendTxID     string
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send native currency, an ERC-20 token or an NFT",
	Long: `Send native currency or an ERC-20 token amount, or transfer an
ERC-721/ERC-1155 token, and wait for the broadcast to be recorded.

Example:
  courier send --account 0x... --chain base --to 0x... --amount 0.05
  courier send --account 0x... --chain mainnet --to 0x... --token 0xA0b8... --decimals 6 --amount 25
  courier send --account 0x... --chain polygon --to 0x... --asset erc721 --token 0x... --token-id 42`,
	RunE: runSend,
}

func runSend(cmd *cobra.Command, _ []string) error {
	id, err := chainFlag(cmd, "chain")
	if err != nil {
		return err
	}
	draft := intent.TransferDraft{
		Account:   sendAccount,
		ChainID:   id,
		Recipient: sendTo,
		AssetType: transaction.AssetType(sendAsset),
		TokenID:   sendTokenID,
	}
	switch draft.AssetType {
	case transaction.AssetERC721, transaction.AssetERC1155:
		draft.TokenAddress = sendToken
		draft.AmountRaw = sendAmount
	default:
		cur, err := parseCurrency(id, sendToken, sendDecimals)
		if err != nil {
			return err
		}
		raw, err := chain.ToRawAmount(sendAmount, cur.Decimals)
		if err != nil {
			return err
		}
		draft.Currency = cur
		draft.AmountRaw = raw.String()
	}

	svc, err := openService(app.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if _, err := prepareSigning(svc, sendAccount); err != nil {
		return err
	}
	sub := svc.SubmitTransfer(cmd.Context(), app.TransferParams{TransferDraft: draft, TxID: sendTxID})
	st, err := awaitTask(cmd.Context(), svc, app.TaskTransfer, sub)
	if err != nil {
		return err
	}
	return reportTask(svc, st, sub.TxID, sendAccount)
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendAccount, "account", "", "sending account address")
	f.String("chain", "mainnet", "chain name or id")
	f.StringVar(&sendTo, "to", "", "recipient address")
	f.StringVar(&sendAmount, "amount", "", "amount in whole units (raw units for ERC-1155)")
	f.StringVar(&sendToken, "token", "", "token contract address (default: native currency)")
	f.Int32Var(&sendDecimals, "decimals", 18, "token decimals")
	f.StringVar(&sendAsset, "asset", string(transaction.AssetCurrency), "currency, erc721 or erc1155")
	f.StringVar(&sendTokenID, "token-id", "", "NFT token id")
	f.StringVar(&sendTxID, "tx-id", "", "transaction id to record (default: random)")
	_ = sendCmd.MarkFlagRequired("account")
	_ = sendCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(sendCmd)
}
