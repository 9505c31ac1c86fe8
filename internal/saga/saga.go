// Package saga supervises named units of asynchronous work with a timeout
// and an external cancel signal.
package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/courier/internal/metrics"
	"github.com/mrz1836/courier/internal/notify"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// DefaultTimeout bounds a run when Options.Timeout is zero.
const DefaultTimeout = 90 * time.Second

// Status is a task's lifecycle position.
type Status string

// Task statuses.
const (
	StatusIdle    Status = "idle"
	StatusStarted Status = "started"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// State is a snapshot of a task.
type State struct {
	Task     string
	Run      uint64
	Status   Status
	Err      error
	Message  string
	Started  time.Time
	Finished time.Time
}

// Done reports whether the run has finished.
func (s State) Done() bool {
	return s.Status == StatusSuccess || s.Status == StatusFailure
}

// Func is the supervised work. ctx is cancelled when the run is cancelled
// or times out.
type Func[P any] func(ctx context.Context, params P) error

// Options configures a Monitor.
type Options struct {
	Timeout time.Duration
	// SuppressNotification disables failure notifications for this task.
	SuppressNotification bool
	Notifier             notify.Notifier
	Logger               zerolog.Logger
	Metrics              *metrics.Metrics
}

// Monitor runs a Func and tracks the state of its latest run. Triggering
// while a run is in flight starts a new run; the older run still
// completes on its own channel but no longer updates State.
type Monitor[P any] struct {
	name string
	work Func[P]
	opts Options

	mu     sync.Mutex
	state  State
	run    uint64
	cancel context.CancelCauseFunc
	subs   map[uint64]chan State
	nextID uint64
}

// New returns an idle Monitor.
func New[P any](name string, work Func[P], opts Options) *Monitor[P] {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop
	}
	return &Monitor[P]{
		name:  name,
		work:  work,
		opts:  opts,
		state: State{Task: name, Status: StatusIdle},
		subs:  make(map[uint64]chan State),
	}
}

// Name returns the task name.
func (m *Monitor[P]) Name() string { return m.name }

// State returns the latest run's state.
func (m *Monitor[P]) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe delivers every state change until unsubscribe is called.
// Slow subscribers miss intermediate states.
func (m *Monitor[P]) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 4)
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Trigger starts a run and returns a channel that receives its final
// state and is then closed.
func (m *Monitor[P]) Trigger(ctx context.Context, params P) <-chan State {
	runCtx, cancel := context.WithCancelCause(ctx)

	m.mu.Lock()
	m.run++
	run := m.run
	m.cancel = cancel
	m.setLocked(State{Task: m.name, Run: run, Status: StatusStarted, Started: time.Now()})
	m.mu.Unlock()

	m.opts.Logger.Debug().Str("task", m.name).Uint64("run", run).Msg("task started")

	out := make(chan State, 1)
	go func() {
		defer close(out)
		out <- m.race(runCtx, cancel, run, params)
	}()
	return out
}

// Cancel fails the in-flight run with "Action was cancelled.".
func (m *Monitor[P]) Cancel() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel(courierr.ErrCancelled)
	}
}

// Reset returns the monitor to Idle. An in-flight run is cancelled and
// its result discarded.
func (m *Monitor[P]) Reset() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.run++
	m.setLocked(State{Task: m.name, Run: m.run, Status: StatusIdle})
	m.mu.Unlock()
	if cancel != nil {
		cancel(courierr.ErrCancelled)
	}
}

func (m *Monitor[P]) race(ctx context.Context, cancel context.CancelCauseFunc, run uint64, params P) State {
	started := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task %s panicked: %v", m.name, r)
			}
		}()
		done <- m.work(ctx, params)
	}()

	timer := time.NewTimer(m.opts.Timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
		if err != nil && ctx.Err() != nil {
			err = stopReason(ctx)
		}
	case <-ctx.Done():
		err = stopReason(ctx)
	case <-timer.C:
		err = courierr.ErrTimedOut
	}
	// Work still running after a timeout or cancel sees its context end
	// and is otherwise left to finish detached.
	if errors.Is(err, courierr.ErrTimedOut) {
		cancel(courierr.ErrTimedOut)
	} else {
		cancel(courierr.ErrCancelled)
	}

	final := State{Task: m.name, Run: run, Started: started, Finished: time.Now(), Status: StatusSuccess}
	if err != nil {
		final.Status = StatusFailure
		final.Err = err
		final.Message = err.Error()
	}
	m.finish(ctx, final)
	return final
}

// stopReason maps an ended run context to the task failure it means.
func stopReason(ctx context.Context) error {
	if errors.Is(context.Cause(ctx), context.DeadlineExceeded) {
		return courierr.ErrTimedOut
	}
	return courierr.ErrCancelled
}

func (m *Monitor[P]) finish(ctx context.Context, s State) {
	m.mu.Lock()
	current := s.Run == m.run
	if current {
		m.cancel = nil
		m.setLocked(s)
	}
	m.mu.Unlock()

	m.opts.Metrics.RecordTask(m.name, string(s.Status))

	log := m.opts.Logger.With().Str("task", m.name).Uint64("run", s.Run).Dur("elapsed", s.Finished.Sub(s.Started)).Logger()
	if s.Err == nil {
		log.Debug().Msg("task succeeded")
		return
	}
	log.Warn().Err(s.Err).Bool("current", current).Msg("task failed")

	if !m.shouldNotify(s.Err) {
		return
	}
	m.opts.Notifier.Notify(context.WithoutCancel(ctx), notify.Event{
		Kind:    notify.KindTaskFailed,
		Time:    s.Finished,
		Task:    m.name,
		Message: s.Message,
	})
}

// shouldNotify drops user cancels and input errors; those are shown inline
// by the caller rather than as notifications.
func (m *Monitor[P]) shouldNotify(err error) bool {
	if m.opts.SuppressNotification {
		return false
	}
	if errors.Is(err, courierr.ErrCancelled) || errors.Is(err, context.Canceled) {
		return false
	}
	return !courierr.IsValidation(err)
}

func (m *Monitor[P]) setLocked(s State) {
	m.state = s
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
		}
	}
}
