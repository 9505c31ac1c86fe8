// Package watcher polls chain providers for receipts of pending
// transactions and finalizes them in the store.
package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/store"
	"github.com/mrz1836/courier/internal/transaction"
)

// DefaultInterval is the poll interval when Options.Interval is zero.
const DefaultInterval = 15 * time.Second

// Store is the part of the transaction store the watcher needs.
type Store interface {
	IncompleteTransactions() []*transaction.Details
	FinalizeTransaction(ctx context.Context, u store.FinalizeUpdate) (bool, error)
}

// ProviderSource resolves chain providers.
type ProviderSource interface {
	GetProvider(id chain.ID, opts ...provider.Option) (provider.Provider, error)
}

// Options configures a Watcher.
type Options struct {
	Interval time.Duration
	Retry    chain.RetryConfig
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Watcher finalizes transactions once their receipts appear.
type Watcher struct {
	store     Store
	providers ProviderSource
	opts      Options
}

// New returns a Watcher.
func New(s Store, providers ProviderSource, opts Options) *Watcher {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = chain.DefaultRetryConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Watcher{store: s, providers: providers, opts: opts}
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.Poll(ctx); err != nil && ctx.Err() == nil {
			w.opts.Logger.Warn().Err(err).Msg("receipt poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll checks every incomplete transaction once and returns how many were
// finalized. Per-transaction failures are logged and skipped; the first
// one is returned.
func (w *Watcher) Poll(ctx context.Context) (int, error) {
	var (
		finalized int
		firstErr  error
	)
	for _, d := range w.store.IncompleteTransactions() {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}
		if d.Hash == "" || d.IsUnsyncedFiatPurchase() {
			continue
		}
		done, err := w.check(ctx, d)
		if err != nil {
			w.opts.Logger.Debug().Err(err).Str("tx_id", d.ID).Uint64("chain_id", uint64(d.ChainID)).Msg("receipt check failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if done {
			finalized++
		}
	}
	return finalized, firstErr
}

func (w *Watcher) check(ctx context.Context, d *transaction.Details) (bool, error) {
	p, err := w.providers.GetProvider(d.ChainID)
	if err != nil {
		return false, err
	}
	hash := common.HexToHash(d.Hash)
	receipt, err := chain.RetryWithConfig(ctx, w.opts.Retry, func(ctx context.Context) (*types.Receipt, error) {
		return p.TransactionReceipt(ctx, hash)
	})
	if errors.Is(err, provider.ErrReceiptNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	status := transaction.StatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = transaction.StatusFailed
	}
	return w.store.FinalizeTransaction(ctx, store.FinalizeUpdate{
		Address: d.From,
		ChainID: d.ChainID,
		ID:      d.ID,
		Status:  status,
		Receipt: toReceipt(receipt, w.opts.Now()),
	})
}

func toReceipt(r *types.Receipt, confirmed time.Time) *transaction.Receipt {
	out := &transaction.Receipt{
		BlockHash:        r.BlockHash.Hex(),
		TransactionIndex: r.TransactionIndex,
		ConfirmedTime:    confirmed.UnixMilli(),
		GasUsed:          r.GasUsed,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		out.EffectiveGasPrice = r.EffectiveGasPrice.String()
	}
	return out
}
