// internal/pkg/lock/lock.go
package lock

import (
	"context"
	"fmt"
	"time"
)

// Locker hands out short-lived exclusive locks keyed by name. Acquire returns
// xerrors.ErrLockHeld when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// AccountKey is the lock key for billing one account.
func AccountKey(accountID int64) string {
	return fmt.Sprintf("billing:lock:account:%d", accountID)
}
