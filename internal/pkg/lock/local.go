// internal/pkg/lock/local.go
package lock

import (
	"context"
	"sync"
	"time"

	xerrors "propdesk-service/internal/pkg/errors"
)

// LocalLocker is an in-process Locker for single-instance runs without Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]*localLease
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]*localLease), now: time.Now}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expires) {
		return nil, xerrors.ErrLockHeld
	}
	lease := &localLease{owner: l, key: key, expires: now.Add(ttl)}
	l.held[key] = lease
	return lease, nil
}

type localLease struct {
	owner   *LocalLocker
	key     string
	expires time.Time
}

func (r *localLease) Release(ctx context.Context) error {
	r.owner.mu.Lock()
	defer r.owner.mu.Unlock()
	if r.owner.held[r.key] == r {
		delete(r.owner.held, r.key)
	}
	return nil
}
