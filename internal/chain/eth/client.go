// Package eth provides the go-ethereum backed chain provider.
package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/metrics"
	"github.com/mrz1836/courier/internal/provider"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

var (
	// ErrRPCURLRequired indicates the RPC URL was not provided.
	ErrRPCURLRequired = &courierr.CourierError{
		Code:     "ETH_RPC_URL_REQUIRED",
		Message:  "RPC URL is required",
		ExitCode: courierr.ExitInput,
	}

	// ErrChainMismatch indicates the endpoint serves a different chain.
	ErrChainMismatch = &courierr.CourierError{
		Code:     "ETH_CHAIN_MISMATCH",
		Message:  "RPC endpoint reports a different chain id",
		ExitCode: courierr.ExitInput,
	}
)

// backend is the subset of *ethclient.Client the provider uses.
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	Close()
}

type dialFunc func(ctx context.Context, rpcURL string) (backend, error)

func dialEthclient(ctx context.Context, rpcURL string) (backend, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Options configures a Client.
type Options struct {
	Limiter *chain.RateLimiter
	Metrics *metrics.Metrics
	Logger  zerolog.Logger
	// DialTimeout bounds the initial connection and chain id check.
	DialTimeout time.Duration
}

// Client is a provider.Provider backed by go-ethereum's ethclient.
// The connection is dialed lazily on first use and verified against the
// expected chain id.
type Client struct {
	id      chain.ID
	rpcURL  string
	opts    Options
	dial    dialFunc
	mu      sync.Mutex
	backend backend
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a provider for chain id served at rpcURL.
func NewClient(id chain.ID, rpcURL string, opts Options) (*Client, error) {
	if rpcURL == "" {
		return nil, ErrRPCURLRequired
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	return &Client{
		id:     id,
		rpcURL: rpcURL,
		opts:   opts,
		dial:   dialEthclient,
	}, nil
}

// NewCreator returns a provider.Creator building Clients that share a rate
// limiter, metrics and logger.
func NewCreator(opts Options) provider.Creator {
	return func(network provider.Network, rpcURL string) (provider.Provider, error) {
		return NewClient(network.ChainID, rpcURL, opts)
	}
}

// ChainID returns the chain this client serves.
func (c *Client) ChainID() chain.ID {
	return c.id
}

// Close closes the underlying connection. The client reconnects on next use.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		c.backend.Close()
		c.backend = nil
	}
}

// connect dials the endpoint if not already connected.
// Failed attempts leave the client unconnected so the next call retries.
func (c *Client) connect(ctx context.Context) (backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend != nil {
		return c.backend, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	b, err := c.dial(dialCtx, c.rpcURL)
	if err != nil {
		return nil, courierr.WithCause(courierr.ErrNetworkError, fmt.Errorf("dialing %s: %w", c.rpcURL, err))
	}

	remote, err := b.ChainID(dialCtx)
	if err != nil {
		b.Close()
		return nil, courierr.WithCause(courierr.ErrNetworkError, fmt.Errorf("getting chain id: %w", err))
	}
	if !remote.IsUint64() || chain.ID(remote.Uint64()) != c.id {
		b.Close()
		return nil, courierr.WithDetails(ErrChainMismatch, map[string]string{
			"expected": c.id.String(),
			"remote":   remote.String(),
		})
	}

	c.opts.Logger.Debug().Str("chain_id", c.id.String()).Str("rpc", c.rpcURL).Msg("provider connected")
	c.backend = b
	return b, nil
}

// do runs one RPC call with rate limiting, connection setup and metrics.
func do[T any](ctx context.Context, c *Client, method string, call func(backend) (T, error)) (T, error) {
	var zero T
	if err := c.opts.Limiter.Wait(ctx, c.rpcURL); err != nil {
		return zero, err
	}
	b, err := c.connect(ctx)
	if err != nil {
		return zero, err
	}

	start := time.Now()
	result, err := call(b)
	c.opts.Metrics.RecordRPC(c.id.String(), method, time.Since(start), err)
	if err != nil {
		c.opts.Logger.Debug().Err(err).Str("chain_id", c.id.String()).Str("method", method).Msg("rpc call failed")
		return zero, err
	}
	return result, nil
}

// networkErr classifies a read error as a retryable network failure.
func networkErr(method string, err error) error {
	return courierr.WithCause(courierr.ErrNetworkError, fmt.Errorf("%s: %w", method, err))
}

// PendingNonce returns the pending transaction count for address.
func (c *Client) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	return do(ctx, c, "eth_getTransactionCount", func(b backend) (uint64, error) {
		n, err := b.PendingNonceAt(ctx, address)
		if err != nil {
			return 0, networkErr("eth_getTransactionCount", err)
		}
		return n, nil
	})
}

// EstimateGas estimates the gas needed by msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return do(ctx, c, "eth_estimateGas", func(b backend) (uint64, error) {
		gas, err := b.EstimateGas(ctx, msg)
		if err != nil {
			if isRPCError(err) {
				// Execution reverted; retrying will not help.
				return 0, courierr.WithCause(courierr.ErrTxRejected, fmt.Errorf("eth_estimateGas: %w", err))
			}
			return 0, networkErr("eth_estimateGas", err)
		}
		return gas, nil
	})
}

// FeeData suggests a priority fee from the node and a fee cap of twice the
// latest base fee plus the tip.
func (c *Client) FeeData(ctx context.Context) (*provider.FeeData, error) {
	return do(ctx, c, "fee_data", func(b backend) (*provider.FeeData, error) {
		tip, err := b.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, networkErr("eth_maxPriorityFeePerGas", err)
		}
		head, err := b.HeaderByNumber(ctx, nil)
		if err != nil {
			return nil, networkErr("eth_getBlockByNumber", err)
		}
		return feeDataFrom(head.BaseFee, tip), nil
	})
}

func feeDataFrom(baseFee, tip *big.Int) *provider.FeeData {
	if baseFee == nil {
		// Pre-London chain: use the tip as a legacy gas price.
		return &provider.FeeData{MaxFeePerGas: new(big.Int).Set(tip), MaxPriorityFeePerGas: new(big.Int).Set(tip)}
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)
	return &provider.FeeData{MaxFeePerGas: feeCap, MaxPriorityFeePerGas: new(big.Int).Set(tip)}
}

// Call executes a read-only contract call at the latest block.
func (c *Client) Call(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return do(ctx, c, "eth_call", func(b backend) ([]byte, error) {
		out, err := b.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, networkErr("eth_call", err)
		}
		return out, nil
	})
}

// SendRawTransaction broadcasts signed transaction bytes and returns the
// transaction hash. Broadcast errors are never retried.
func (c *Client) SendRawTransaction(ctx context.Context, signed []byte) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(signed); err != nil {
		return common.Hash{}, courierr.WithCause(courierr.ErrIncompleteTransactionRequest, fmt.Errorf("decoding signed transaction: %w", err))
	}
	return do(ctx, c, "eth_sendRawTransaction", func(b backend) (common.Hash, error) {
		if err := b.SendTransaction(ctx, tx); err != nil {
			if isRPCError(err) {
				return common.Hash{}, courierr.WithCause(courierr.ErrTxRejected, err)
			}
			// Not ErrNetworkError: a lost response may still have been broadcast.
			return common.Hash{}, courierr.Wrap(err, "eth_sendRawTransaction")
		}
		return tx.Hash(), nil
	})
}

// TransactionReceipt returns the receipt for hash or
// provider.ErrReceiptNotFound while the transaction is pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	return do(ctx, c, "eth_getTransactionReceipt", func(b backend) (*types.Receipt, error) {
		r, err := b.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return nil, provider.ErrReceiptNotFound
		}
		if err != nil {
			return nil, networkErr("eth_getTransactionReceipt", err)
		}
		return r, nil
	})
}

func isRPCError(err error) bool {
	var rpcErr rpc.Error
	return errors.As(err, &rpcErr)
}
