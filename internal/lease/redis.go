package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fuomag9/paperdrive/internal/errs"
	"github.com/fuomag9/paperdrive/internal/logger"
)

// Deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a Locker shared by every instance pointed at the same server.
// Leases expire after ttl so a crashed holder cannot block a topic forever.
type Redis struct {
	rdb  goredis.UniversalClient
	ttl  time.Duration
	wait time.Duration
	poll time.Duration
	log  *logger.Logger
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string, ttl, wait time.Duration, log *logger.Logger) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, ttl, wait, log), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(rdb goredis.UniversalClient, ttl, wait time.Duration, log *logger.Logger) *Redis {
	return &Redis{
		rdb:  rdb,
		ttl:  ttl,
		wait: wait,
		poll: 100 * time.Millisecond,
		log:  log.With("component", "lease"),
	}
}

func (r *Redis) Acquire(ctx context.Context, key string) (Release, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(r.wait)

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: lease %s: %w", errs.ErrRemote, key, err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", errs.ErrBusy, key)
		}

		t := time.NewTimer(r.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, token) })
	}, nil
}

func (r *Redis) release(key, token string) {
	// The caller's ctx may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := releaseScript.Run(ctx, r.rdb, []string{key}, token).Int()
	if err != nil && !errors.Is(err, goredis.Nil) {
		r.log.Warn("Failed to release lease", "key", key, "error", err)
		return
	}
	if n == 0 {
		r.log.Warn("Lease expired before release", "key", key, "ttl", r.ttl)
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}
