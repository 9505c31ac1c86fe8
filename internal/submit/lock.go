package submit

import (
	"context"
	"strings"
	"sync"
)

// accountLocks serializes submission flows per account so two flows never
// read the same pending nonce.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sem  chan struct{}
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// acquire blocks until the account is free or ctx ends.
func (a *accountLocks) acquire(ctx context.Context, address string) (release func(), err error) {
	key := strings.ToLower(address)

	a.mu.Lock()
	l, ok := a.locks[key]
	if !ok {
		l = &accountLock{sem: make(chan struct{}, 1)}
		a.locks[key] = l
	}
	l.refs++
	a.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.sem
				a.drop(key, l)
			})
		}, nil
	case <-ctx.Done():
		a.drop(key, l)
		return nil, ctx.Err()
	}
}

func (a *accountLocks) drop(key string, l *accountLock) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(a.locks, key)
	}
}

func (a *accountLocks) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
