// Package lease serializes read-modify-write cycles on a topic dataset.
// Without it two concurrent writers to the same topic lose one update.
package lease

import (
	"context"
	"fmt"
)

// Release gives the lease back. It is safe to call more than once.
type Release func()

// Locker hands out exclusive leases by key. Acquire blocks until the lease is
// free, the configured wait elapses (errs.ErrBusy) or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (Release, error)
}

// TopicKey is the lease key for one topic dataset.
func TopicKey(workspaceID, topic string) string {
	return fmt.Sprintf("topic-lease:%s:%s", workspaceID, topic)
}
