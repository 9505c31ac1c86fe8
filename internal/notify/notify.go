// Package notify delivers user-facing transaction and task events.
package notify

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/transaction"
)

// Kind is the event category.
type Kind string

// Event kinds.
const (
	KindAdded      Kind = "added"
	KindFinalized  Kind = "finalized"
	KindTaskFailed Kind = "task_failed"
)

// Event is one notification.
type Event struct {
	Kind     Kind
	Time     time.Time
	TxID     string
	TxType   transaction.Type
	TxStatus transaction.Status
	TxHash   string
	ChainID  chain.ID
	Address  string
	Task     string
	Fields   map[string]string
	Message  string
}

// TransactionEvent builds an event describing d.
func TransactionEvent(kind Kind, d *transaction.Details) Event {
	e := Event{
		Kind:     kind,
		TxID:     d.ID,
		TxType:   d.Type(),
		TxStatus: d.Status,
		TxHash:   d.Hash,
		ChainID:  d.ChainID,
		Address:  d.From,
	}
	if d.TypeInfo != nil {
		e.Fields = d.TypeInfo.Fields()
	}
	return e
}

// Notifier receives events. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, e Event)

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, e Event) { f(ctx, e) }

// Multi fans an event out to every notifier in order.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, e Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, e)
		}
	}
}

// Nop discards events.
var Nop Notifier = Func(func(context.Context, Event) {})

// LogNotifier writes events to a zerolog logger.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier returns a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, e Event) {
	ev := n.log.Info()
	if e.Kind == KindTaskFailed || e.TxStatus == transaction.StatusFailed {
		ev = n.log.Warn()
	}
	ev = ev.Str("event", string(e.Kind))
	if e.Task != "" {
		ev = ev.Str("task", e.Task)
	}
	if e.TxID != "" {
		ev = ev.Str("tx_id", e.TxID).
			Str("type", string(e.TxType)).
			Str("status", string(e.TxStatus)).
			Uint64("chain_id", uint64(e.ChainID)).
			Str("account", e.Address)
	}
	if e.TxHash != "" {
		ev = ev.Str("hash", e.TxHash)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev = ev.Str(k, e.Fields[k])
	}

	msg := e.Message
	if msg == "" {
		msg = "transaction " + string(e.Kind)
	}
	ev.Msg(msg)
}
