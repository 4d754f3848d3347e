package listener

import (
	"context"
	"sync"
)

// mailboxLocks allows one unseen cycle per mailbox key at a time, whether it
// comes from a daemon worker or a batch run.
type mailboxLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newMailboxLocks() *mailboxLocks {
	return &mailboxLocks{locks: make(map[string]chan struct{})}
}

// acquire blocks until key is free or ctx is done. The returned func releases it.
func (l *mailboxLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		l.locks[key] = lock
	}
	l.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
