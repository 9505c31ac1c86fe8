// Package app wires courier's components into a single service: one
// provider manager, one signer manager, the transaction store and the
// monitored swap and transfer tasks.
package app

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/chain/eth"
	"github.com/mrz1836/courier/internal/config"
	"github.com/mrz1836/courier/internal/intent"
	"github.com/mrz1836/courier/internal/keystore"
	"github.com/mrz1836/courier/internal/metrics"
	"github.com/mrz1836/courier/internal/notify"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/saga"
	"github.com/mrz1836/courier/internal/signer"
	"github.com/mrz1836/courier/internal/store"
	"github.com/mrz1836/courier/internal/submit"
	"github.com/mrz1836/courier/internal/transaction"
	"github.com/mrz1836/courier/internal/watcher"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Task names.
const (
	TaskSwap     = "swap"
	TaskTransfer = "transfer"
)

// Options overrides parts of the wiring. Zero values use the production
// implementations.
type Options struct {
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
	// Notifier receives events in addition to the log notifier.
	Notifier notify.Notifier
	Hardware keystore.HardwareKeystore
	Creator  provider.Creator
	// Storage replaces the on-disk transaction database.
	Storage storage.Storage
}

// SwapParams is a swap form plus an optional caller-chosen id.
type SwapParams struct {
	intent.SwapDraft
	TxID string
}

// TransferParams is a transfer form plus an optional caller-chosen id.
type TransferParams struct {
	intent.TransferDraft
	TxID string
}

// Submission is a started task. TxID identifies the primary transaction
// in the store once it is broadcast.
type Submission struct {
	TxID   string
	States <-chan saga.State
}

// Service is the wired application.
type Service struct {
	cfg *config.Config
	log zerolog.Logger

	Metrics      *metrics.Metrics
	Accounts     *account.Registry
	Keystore     *keystore.FileKeystore
	Providers    *provider.Manager
	Signers      *signer.Manager
	Store        *store.Store
	Builder      *intent.Builder
	Orchestrator *submit.Orchestrator
	Watcher      *watcher.Watcher

	swaps     *saga.Monitor[SwapParams]
	transfers *saga.Monitor[TransferParams]
}

// New builds a Service from cfg. Paths in cfg are resolved against its
// home directory.
func New(cfg *config.Config, opts Options) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	m := metrics.New(opts.Registerer)

	notifier := notify.Multi{notify.NewLogNotifier(log)}
	if opts.Notifier != nil {
		notifier = append(notifier, opts.Notifier)
	}

	accounts, err := account.OpenRegistry(cfg.ResolvePath("accounts.json"))
	if err != nil {
		return nil, err
	}

	var ksOpts []keystore.Option
	if cfg.Keystore.WorkFactor > 0 {
		ksOpts = append(ksOpts, keystore.WithWorkFactor(cfg.Keystore.WorkFactor))
	}
	ks := keystore.NewFileKeystore(cfg.ResolvePath(cfg.Keystore.Dir), ksOpts...)

	storeOpts := store.Options{Logger: log, Notifier: notifier, Metrics: m}
	var st *store.Store
	if opts.Storage != nil {
		st, err = store.OpenStorage(opts.Storage, storeOpts)
	} else {
		st, err = store.Open(filepath.Clean(cfg.ResolvePath(cfg.Store.Dir)), storeOpts)
	}
	if err != nil {
		return nil, err
	}

	create := opts.Creator
	if create == nil {
		create = eth.NewCreator(eth.Options{
			Limiter: chain.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
			Metrics: m,
			Logger:  log,
		})
	}
	providers := provider.NewManager(create, cfg.ProviderNetworks())
	signers := signer.NewManager(ks, opts.Hardware, log)

	s := &Service{
		cfg:       cfg,
		log:       log,
		Metrics:   m,
		Accounts:  accounts,
		Keystore:  ks,
		Providers: providers,
		Signers:   signers,
		Store:     st,
		Builder:   intent.NewBuilder(providers),
		Orchestrator: submit.New(accounts, signers, providers, st, submit.Options{
			Logger:            log,
			Metrics:           m,
			SerializeAccounts: cfg.Submission.SerializeAccounts,
			PrivateRelaySwaps: cfg.Submission.PrivateRelaySwaps,
		}),
		Watcher: watcher.New(st, providers, watcher.Options{
			Interval: cfg.Watcher.Interval,
			Retry: chain.RetryConfig{
				MaxAttempts: cfg.Watcher.RetryAttempts,
				BaseDelay:   cfg.Watcher.RetryBaseDelay,
				MaxDelay:    30 * time.Second,
			},
			Logger: log,
		}),
	}

	taskOpts := saga.Options{
		Timeout:  cfg.Submission.TaskTimeout,
		Notifier: notifier,
		Logger:   log,
		Metrics:  m,
	}
	s.swaps = saga.New(TaskSwap, s.runSwap, taskOpts)
	s.transfers = saga.New(TaskTransfer, s.runTransfer, taskOpts)
	return s, nil
}

// Config returns the configuration the service was built with.
func (s *Service) Config() *config.Config { return s.cfg }

// SubmitSwap starts the swap task and returns without waiting for it.
func (s *Service) SubmitSwap(ctx context.Context, p SwapParams) Submission {
	if p.TxID == "" {
		p.TxID = uuid.NewString()
	}
	return Submission{TxID: p.TxID, States: s.swaps.Trigger(ctx, p)}
}

// SubmitTransfer starts the transfer task and returns without waiting.
func (s *Service) SubmitTransfer(ctx context.Context, p TransferParams) Submission {
	if p.TxID == "" {
		p.TxID = uuid.NewString()
	}
	return Submission{TxID: p.TxID, States: s.transfers.Trigger(ctx, p)}
}

// Cancel cancels the in-flight run of task.
func (s *Service) Cancel(task string) error {
	switch task {
	case TaskSwap:
		s.swaps.Cancel()
	case TaskTransfer:
		s.transfers.Cancel()
	default:
		return unknownTask(task)
	}
	return nil
}

// TaskState returns the latest state of task.
func (s *Service) TaskState(task string) (saga.State, error) {
	switch task {
	case TaskSwap:
		return s.swaps.State(), nil
	case TaskTransfer:
		return s.transfers.State(), nil
	default:
		return saga.State{}, unknownTask(task)
	}
}

func (s *Service) runSwap(ctx context.Context, p SwapParams) error {
	draft := p.SwapDraft
	if s.cfg.ApproveExact() {
		draft.ApproveExact = true
	}
	if draft.SlippageBps == 0 {
		draft.SlippageBps = s.cfg.Submission.SlippageBps
	}

	in, err := s.Builder.BuildSwap(ctx, draft)
	if err != nil {
		return err
	}
	_, err = s.Orchestrator.ApproveAndSwap(ctx, submit.SwapParams{
		Account:        draft.Account,
		ChainID:        draft.ChainID,
		TxID:           p.TxID,
		ApproveRequest: in.ApproveRequest,
		ApproveInfo:    in.ApproveInfo,
		SwapRequest:    in.SwapRequest,
		TypeInfo:       in.TypeInfo,
	})
	return err
}

func (s *Service) runTransfer(ctx context.Context, p TransferParams) error {
	in, err := s.Builder.BuildTransfer(p.TransferDraft)
	if err != nil {
		return err
	}
	_, err = s.Orchestrator.SendTransaction(ctx, submit.SendParams{
		Account:  p.Account,
		ChainID:  p.ChainID,
		TxID:     p.TxID,
		Request:  in.Request,
		TypeInfo: in.TypeInfo,
	})
	return err
}

// Transactions returns the history of address, newest first.
func (s *Service) Transactions(address string) []*transaction.Details {
	return s.Store.TransactionsForAddress(address)
}

// Pending returns transactions still waiting for a receipt.
func (s *Service) Pending() []*transaction.Details {
	return s.Store.IncompleteTransactions()
}

// Watch finalizes pending transactions until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	return s.Watcher.Run(ctx)
}

// Close releases providers, the store and the unlocked keystore.
func (s *Service) Close() error {
	s.swaps.Reset()
	s.transfers.Reset()
	s.Providers.Close()
	s.Keystore.Lock()
	return s.Store.Close()
}

func unknownTask(task string) error {
	return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"task": task})
}
