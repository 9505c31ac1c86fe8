// Package submit signs and broadcasts transaction sequences for an account
// and records each broadcast transaction.
package submit

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/account"
	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/metrics"
	"github.com/mrz1836/courier/internal/provider"
	"github.com/mrz1836/courier/internal/signer"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Steps of a submission, used in logs and metrics.
const (
	StepValidate         = "validate"
	StepAccount          = "account"
	StepLock             = "lock"
	StepProvider         = "provider"
	StepSigner           = "signer"
	StepNonce            = "nonce"
	StepApproveSign      = "approve_sign"
	StepApproveBroadcast = "approve_broadcast"
	StepApproveRecord    = "approve_record"
	StepPrimarySign      = "primary_sign"
	StepPrimaryBroadcast = "primary_broadcast"
	StepPrimaryRecord    = "primary_record"
)

// AccountSource looks accounts up by address.
type AccountSource interface {
	Get(address string) (account.Account, error)
}

// SignerSource resolves signers.
type SignerSource interface {
	GetSignerForAccount(a account.Account) (signer.Signer, error)
}

// ProviderSource resolves chain providers.
type ProviderSource interface {
	GetProvider(id chain.ID, opts ...provider.Option) (provider.Provider, error)
}

// Recorder persists broadcast transactions.
type Recorder interface {
	AddTransaction(ctx context.Context, d *transaction.Details) error
}

// Options configures an Orchestrator.
type Options struct {
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
	// SerializeAccounts runs at most one flow per account at a time.
	SerializeAccounts bool
	// PrivateRelaySwaps broadcasts swaps through the chain's private RPC.
	PrivateRelaySwaps bool
	NewID             func() string
	Now               func() time.Time
}

// Orchestrator runs approve-then-swap and single-send flows.
type Orchestrator struct {
	accounts  AccountSource
	signers   SignerSource
	providers ProviderSource
	store     Recorder
	opts      Options
	locks     *accountLocks
}

// New returns an Orchestrator.
func New(accounts AccountSource, signers SignerSource, providers ProviderSource, store Recorder, opts Options) *Orchestrator {
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		accounts:  accounts,
		signers:   signers,
		providers: providers,
		store:     store,
		opts:      opts,
		locks:     newAccountLocks(),
	}
}

// SwapParams is one approve-and-swap submission. ApproveRequest and
// ApproveInfo are nil when no approval is needed.
type SwapParams struct {
	Account        string
	ChainID        chain.ID
	TxID           string
	ApproveRequest *transaction.Request
	ApproveInfo    *transaction.ApproveInfo
	SwapRequest    transaction.Request
	TypeInfo       transaction.TypeInfo
}

// SwapResult holds what was recorded. Approve is set whenever an approve
// was broadcast, even if the swap then failed.
type SwapResult struct {
	Approve *transaction.Details
	Swap    *transaction.Details
}

// SendParams is a single-transaction submission.
type SendParams struct {
	Account  string
	ChainID  chain.ID
	TxID     string
	Request  transaction.Request
	TypeInfo transaction.TypeInfo
}

// run carries the per-flow context shared by every step.
type run struct {
	kind     string
	account  account.Account
	chainID  chain.ID
	txID     string
	provider provider.Provider
	signer   signer.Signer
	log      zerolog.Logger
}

// ApproveAndSwap broadcasts the optional approve and then the swap. The
// pending nonce is read once; the swap uses nonce+1 only after an approve.
// Partial progress is kept: a recorded approve is never rolled back.
func (o *Orchestrator) ApproveAndSwap(ctx context.Context, p SwapParams) (res *SwapResult, err error) {
	res = &SwapResult{}
	if p.ApproveRequest != nil {
		approve := p.ApproveRequest.Clone()
		p.ApproveRequest = &approve
	}
	r, release, err := o.begin(ctx, "swap", p.Account, p.ChainID, p.TxID, p.TypeInfo, p.ApproveRequest, &p.SwapRequest)
	if err != nil {
		return res, err
	}
	defer release()
	defer func() { o.opts.Metrics.RecordSubmission(r.kind, err) }()

	var opts []provider.Option
	if o.opts.PrivateRelaySwaps {
		opts = append(opts, provider.WithPrivateRelay())
	}
	if err = o.connect(r, opts...); err != nil {
		return res, err
	}

	nonce, err := r.provider.PendingNonce(ctx, r.account.HexAddress())
	if err != nil {
		return res, o.fail(r, StepNonce, err)
	}
	r.log.Debug().Uint64("nonce", nonce).Msg("nonce resolved")

	primary := p.SwapRequest.Clone()
	if p.ApproveRequest != nil {
		var info transaction.TypeInfo = transaction.ApproveInfo{}
		if p.ApproveInfo != nil {
			info = *p.ApproveInfo
		}
		res.Approve, err = o.submitOne(ctx, r, stepNames{StepApproveSign, StepApproveBroadcast, StepApproveRecord},
			p.ApproveRequest.WithNonce(nonce), info, o.opts.NewID())
		if err != nil {
			return res, err
		}
		primary = primary.WithNonce(nonce + 1)
	}

	res.Swap, err = o.submitOne(ctx, r, stepNames{StepPrimarySign, StepPrimaryBroadcast, StepPrimaryRecord},
		primary, p.TypeInfo, r.txID)
	return res, err
}

// SendTransaction broadcasts one request and records it.
func (o *Orchestrator) SendTransaction(ctx context.Context, p SendParams) (d *transaction.Details, err error) {
	r, release, err := o.begin(ctx, "send", p.Account, p.ChainID, p.TxID, p.TypeInfo, nil, &p.Request)
	if err != nil {
		return nil, err
	}
	defer release()
	defer func() { o.opts.Metrics.RecordSubmission(r.kind, err) }()

	if err = o.connect(r); err != nil {
		return nil, err
	}
	return o.submitOne(ctx, r, stepNames{StepPrimarySign, StepPrimaryBroadcast, StepPrimaryRecord},
		p.Request.Clone(), p.TypeInfo, r.txID)
}

// begin validates everything that needs no network and takes the account
// lock.
func (o *Orchestrator) begin(ctx context.Context, kind, address string, id chain.ID, txID string, info transaction.TypeInfo,
	approve, primary *transaction.Request,
) (*run, func(), error) {
	if txID == "" {
		txID = o.opts.NewID()
	}
	if id == 0 {
		id = primary.ChainID
	}
	r := &run{kind: kind, chainID: id, txID: txID}
	r.log = o.opts.Logger.With().
		Str("flow", kind).
		Str("account", address).
		Uint64("chain_id", uint64(id)).
		Str("tx_id", txID).
		Logger()

	fail := func(step string, err error) (*run, func(), error) {
		o.opts.Metrics.RecordSubmission(kind, err)
		return r, nil, o.fail(r, step, err)
	}

	a, err := o.accounts.Get(address)
	if err != nil {
		return fail(StepAccount, err)
	}
	r.account = a
	if !a.Kind.CanSign() {
		return fail(StepAccount, courierr.WithDetails(courierr.ErrNoSignerAvailable, map[string]string{
			"address": a.Address,
			"reason":  "account is read-only",
		}))
	}

	if info == nil {
		return fail(StepValidate, courierr.WithDetails(courierr.ErrIncompleteTransactionRequest, map[string]string{"field": "typeInfo"}))
	}
	for _, req := range []*transaction.Request{approve, primary} {
		if req == nil {
			continue
		}
		if err := req.Validate(); err != nil {
			return fail(StepValidate, err)
		}
		if req.ChainID != id {
			return fail(StepValidate, courierr.WithDetails(courierr.ErrIncompleteTransactionRequest, map[string]string{
				"field":   "chainId",
				"chainId": req.ChainID.String(),
			}))
		}
		if req.From == "" {
			req.From = a.Address
		}
	}

	release := func() {}
	if o.opts.SerializeAccounts {
		unlock, err := o.locks.acquire(ctx, a.Address)
		if err != nil {
			return fail(StepLock, err)
		}
		release = unlock
	}
	return r, release, nil
}

func (o *Orchestrator) connect(r *run, opts ...provider.Option) error {
	p, err := o.providers.GetProvider(r.chainID, opts...)
	if err != nil {
		return o.fail(r, StepProvider, err)
	}
	s, err := o.signers.GetSignerForAccount(r.account)
	if err != nil {
		return o.fail(r, StepSigner, err)
	}
	r.provider = p
	r.signer = s.Connect(p)
	return nil
}

type stepNames struct {
	sign, broadcast, record string
}

// submitOne signs, broadcasts and records one request.
func (o *Orchestrator) submitOne(ctx context.Context, r *run, steps stepNames, req transaction.Request,
	info transaction.TypeInfo, id string,
) (*transaction.Details, error) {
	tx, err := r.signer.PopulateTransaction(ctx, req)
	if err != nil {
		return nil, o.fail(r, steps.sign, err)
	}
	raw, err := r.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, o.fail(r, steps.sign, err)
	}

	hash, err := r.provider.SendRawTransaction(ctx, raw)
	if err != nil {
		return nil, o.fail(r, steps.broadcast, err)
	}
	o.opts.Metrics.RecordBroadcast(r.chainID.String(), steps.broadcast)
	r.log.Info().Str("step", steps.broadcast).Str("hash", hash.Hex()).Uint64("nonce", tx.Nonce()).Msg("transaction broadcast")

	d := &transaction.Details{
		ID:        id,
		ChainID:   r.chainID,
		From:      r.account.Address,
		Hash:      hash.Hex(),
		AddedTime: o.opts.Now().UnixMilli(),
		Status:    transaction.StatusPending,
		TypeInfo:  info,
		Options:   transaction.Options{Request: populated(req, tx)},
	}
	if err := o.store.AddTransaction(ctx, d); err != nil {
		return d, o.fail(r, steps.record, err)
	}
	return d, nil
}

func (o *Orchestrator) fail(r *run, step string, err error) error {
	r.log.Error().Err(err).Str("step", step).Msg("submission step failed")
	return err
}

// populated returns req with the fields the signer filled in.
func populated(req transaction.Request, tx *types.Transaction) transaction.Request {
	out := req.Clone()
	n := tx.Nonce()
	out.Nonce = &n
	out.GasLimit = tx.Gas()
	out.MaxFeePerGas = (*hexutil.Big)(new(big.Int).Set(tx.GasFeeCap()))
	out.MaxPriorityFeePerGas = (*hexutil.Big)(new(big.Int).Set(tx.GasTipCap()))
	return out
}
