package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fuomag9/paperdrive/internal/errs"
)

// Local is an in-process Locker for single-instance deployments.
type Local struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an in-process locker. wait <= 0 waits until ctx is done.
func NewLocal(wait time.Duration) *Local {
	return &Local{wait: wait, slots: map[string]*slot{}}
}

func (l *Local) Acquire(ctx context.Context, key string) (Release, error) {
	s := l.ref(key)

	if l.wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, s)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %s", errs.ErrBusy, key)
		}
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(key, s)
		})
	}, nil
}

func (l *Local) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
