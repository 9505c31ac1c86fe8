// Package store persists transaction details in LevelDB and answers the
// lifecycle queries the wallet needs.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/metrics"
	"github.com/mrz1836/courier/internal/notify"
	"github.com/mrz1836/courier/internal/transaction"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

const keyPrefix = "tx/"

// ApproveSuppressionWindow is how close a swap must follow an approve for
// the approve's notification to be dropped.
const ApproveSuppressionWindow = 3000 * time.Millisecond

// Options configures a Store.
type Options struct {
	Logger   zerolog.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
}

// Store keeps every transaction in memory, backed by LevelDB.
type Store struct {
	db       *leveldb.DB
	log      zerolog.Logger
	notifier notify.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	mu  sync.RWMutex
	txs map[string]*transaction.Details
}

// Open opens or creates the database in dir.
func Open(dir string, opts Options) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, courierr.Wrap(err, "opening transaction store")
	}
	return newStore(db, opts)
}

// OpenStorage opens the database on an arbitrary goleveldb storage.
func OpenStorage(stor storage.Storage, opts Options) (*Store, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, courierr.Wrap(err, "opening transaction store")
	}
	return newStore(db, opts)
}

func newStore(db *leveldb.DB, opts Options) (*Store, error) {
	s := &Store{
		db:       db,
		log:      opts.Logger,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		now:      time.Now,
		txs:      make(map[string]*transaction.Details),
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		var d transaction.Details
		if err := json.Unmarshal(iter.Value(), &d); err != nil {
			s.log.Warn().Err(err).Str("key", string(iter.Key())).Msg("skipping unreadable transaction record")
			continue
		}
		s.txs[string(iter.Key())] = &d
	}
	if err := iter.Error(); err != nil {
		return courierr.Wrap(err, "loading transactions")
	}
	s.log.Debug().Int("count", len(s.txs)).Msg("transaction store loaded")
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(address string, id chain.ID, txID string) string {
	return fmt.Sprintf("%s%s/%d/%s", keyPrefix, strings.ToLower(address), uint64(id), txID)
}

func (s *Store) put(key string, d *transaction.Details) error {
	data, err := json.Marshal(d)
	if err != nil {
		return courierr.Wrap(err, "encoding transaction")
	}
	if err := s.db.Put([]byte(key), data, &opt.WriteOptions{Sync: true}); err != nil {
		return courierr.Wrap(err, "writing transaction")
	}
	return nil
}

// AddTransaction inserts d as Pending. Adding an existing id replaces the
// record. AddedTime defaults to now.
func (s *Store) AddTransaction(ctx context.Context, d *transaction.Details) error {
	if d == nil || d.ID == "" {
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "id"})
	}
	if !common.IsHexAddress(d.From) {
		return courierr.WithDetails(courierr.ErrInvalidAddress, map[string]string{"field": "from", "address": d.From})
	}
	if d.ChainID == 0 {
		return courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"field": "chainId"})
	}

	rec := d.Clone()
	rec.From = common.HexToAddress(rec.From).Hex()
	rec.Status = transaction.StatusPending
	rec.Receipt = nil
	if rec.AddedTime == 0 {
		rec.AddedTime = s.now().UnixMilli()
	}
	key := recordKey(rec.From, rec.ChainID, rec.ID)

	s.mu.Lock()
	if err := s.put(key, rec); err != nil {
		s.mu.Unlock()
		return err
	}
	s.txs[key] = rec
	s.mu.Unlock()

	s.log.Debug().Str("tx_id", rec.ID).Str("type", string(rec.Type())).Uint64("chain_id", uint64(rec.ChainID)).Msg("transaction added")
	if rec.Type() != transaction.TypeApprove {
		s.notifier.Notify(ctx, notify.TransactionEvent(notify.KindAdded, rec))
	}
	return nil
}

// UpdateTransaction replaces a record. Status may only move forward.
func (s *Store) UpdateTransaction(d *transaction.Details) error {
	if d == nil {
		return courierr.ErrInvalidInput
	}
	key := recordKey(d.From, d.ChainID, d.ID)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[key]
	if !ok {
		return notFound(d.From, d.ChainID, d.ID)
	}
	if !cur.Status.CanTransition(d.Status) {
		return courierr.WithDetails(courierr.ErrInvalidStatusTransition, map[string]string{
			"from": string(cur.Status),
			"to":   string(d.Status),
		})
	}

	rec := d.Clone()
	rec.From = cur.From
	rec.AddedTime = cur.AddedTime
	if err := s.put(key, rec); err != nil {
		return err
	}
	s.txs[key] = rec
	return nil
}

// FinalizeUpdate is the outcome of a mined transaction.
type FinalizeUpdate struct {
	Address string
	ChainID chain.ID
	ID      string
	Status  transaction.Status
	Receipt *transaction.Receipt
}

// FinalizeTransaction sets the terminal status and receipt. Finalizing a
// record that is already final is a no-op and returns false; the
// notification fires only on the first call.
func (s *Store) FinalizeTransaction(ctx context.Context, u FinalizeUpdate) (bool, error) {
	if u.Status != transaction.StatusSuccess && u.Status != transaction.StatusFailed {
		return false, courierr.WithDetails(courierr.ErrInvalidInput, map[string]string{"status": string(u.Status)})
	}
	key := recordKey(u.Address, u.ChainID, u.ID)

	s.mu.Lock()
	cur, ok := s.txs[key]
	if !ok {
		s.mu.Unlock()
		return false, notFound(u.Address, u.ChainID, u.ID)
	}
	if cur.Status.IsFinal() {
		s.mu.Unlock()
		return false, nil
	}

	rec := cur.Clone()
	rec.Status = u.Status
	if u.Receipt != nil {
		r := *u.Receipt
		rec.Receipt = &r
	}
	if err := s.put(key, rec); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.txs[key] = rec
	suppress := s.suppressLocked(rec)
	s.mu.Unlock()

	s.metrics.RecordFinalized(string(rec.Status))
	s.log.Info().Str("tx_id", rec.ID).Str("status", string(rec.Status)).Uint64("chain_id", uint64(rec.ChainID)).Msg("transaction finalized")
	if !suppress {
		s.notifier.Notify(ctx, notify.TransactionEvent(notify.KindFinalized, rec))
	}
	return true, nil
}

// Transaction returns a copy of one record.
func (s *Store) Transaction(address string, id chain.ID, txID string) (*transaction.Details, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.txs[recordKey(address, id, txID)]
	if !ok {
		return nil, notFound(address, id, txID)
	}
	return d.Clone(), nil
}

// TransactionsForAddress returns the address's transactions, newest first.
// Records sharing (chain, nonce) collapse to the one added last, and
// unsynced fiat purchases are left out.
func (s *Store) TransactionsForAddress(address string) []*transaction.Details {
	prefix := fmt.Sprintf("%s%s/", keyPrefix, strings.ToLower(address))

	type slot struct {
		chain chain.ID
		nonce uint64
	}
	winners := make(map[slot]*transaction.Details)
	var out []*transaction.Details

	s.mu.RLock()
	for key, d := range s.txs {
		if !strings.HasPrefix(key, prefix) || d.IsUnsyncedFiatPurchase() {
			continue
		}
		nonce, ok := d.Nonce()
		if !ok {
			out = append(out, d.Clone())
			continue
		}
		k := slot{d.ChainID, nonce}
		if prev, seen := winners[k]; !seen || d.AddedTime > prev.AddedTime {
			winners[k] = d
		}
	}
	s.mu.RUnlock()

	for _, d := range winners {
		out = append(out, d.Clone())
	}
	sortNewestFirst(out)
	return out
}

// IncompleteTransactions returns every record with no receipt that has
// not failed, across all accounts and chains, oldest first.
func (s *Store) IncompleteTransactions() []*transaction.Details {
	var out []*transaction.Details
	s.mu.RLock()
	for _, d := range s.txs {
		if d.Receipt == nil && d.Status != transaction.StatusFailed {
			out = append(out, d.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].AddedTime != out[j].AddedTime {
			return out[i].AddedTime < out[j].AddedTime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ShouldSuppressNotification reports whether d is an approve with a swap
// added for the same account and chain within ApproveSuppressionWindow.
func (s *Store) ShouldSuppressNotification(d *transaction.Details) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suppressLocked(d)
}

func (s *Store) suppressLocked(d *transaction.Details) bool {
	if d == nil || d.Type() != transaction.TypeApprove {
		return false
	}
	window := ApproveSuppressionWindow.Milliseconds()
	for _, other := range s.txs {
		if other.Type() != transaction.TypeSwap || other.ChainID != d.ChainID || !strings.EqualFold(other.From, d.From) {
			continue
		}
		diff := other.AddedTime - d.AddedTime
		if diff < 0 {
			diff = -diff
		}
		if diff <= window {
			return true
		}
	}
	return false
}

func sortNewestFirst(txs []*transaction.Details) {
	sort.Slice(txs, func(i, j int) bool {
		if txs[i].AddedTime != txs[j].AddedTime {
			return txs[i].AddedTime > txs[j].AddedTime
		}
		return txs[i].ID < txs[j].ID
	})
}

func notFound(address string, id chain.ID, txID string) error {
	return courierr.WithDetails(courierr.ErrTransactionNotFound, map[string]string{
		"address": address,
		"chainId": id.String(),
		"id":      txID,
	})
}
