package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/telehealth-provisioner/pkg/logging"
)

const minRenewEvery = 10 * time.Millisecond

// Locker serializes ticks across replicas. release is non-nil only when acquired is true.
type Locker interface {
	TryLock(ctx context.Context, ttl time.Duration) (release func(), acquired bool, err error)
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the lease only if this holder still owns it.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker is a single-key SET NX PX lease. While held, the lease is extended every
// third of its TTL until release, so a tick that runs long keeps other replicas out.
type RedisLocker struct {
	client *redis.Client
	key    string
	logger *logging.Logger
	// renewEvery overrides ttl/3.
	renewEvery time.Duration
}

func NewRedisLocker(client *redis.Client, key string) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("provisioning: redis client required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("provisioning: lock key required")
	}
	return &RedisLocker{client: client, key: key, logger: logging.Default().Component("tick_lock")}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, ttl time.Duration) (func(), bool, error) {
	if ttl <= 0 {
		ttl = DefaultInterval
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("provisioning: acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	renewCtx, stopRenew := context.WithCancel(context.WithoutCancel(ctx))
	renewed := make(chan struct{})
	go l.keepAlive(renewCtx, token, ttl, renewed)

	var once sync.Once
	release := func() {
		once.Do(func() {
			stopRenew()
			<-renewed
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{l.key}, token).Err()
		})
	}
	return release, true, nil
}

func (l *RedisLocker) keepAlive(ctx context.Context, token string, ttl time.Duration, done chan<- struct{}) {
	defer close(done)
	every := l.renewEvery
	if every <= 0 {
		every = ttl / 3
	}
	if every < minRenewEvery {
		every = minRenewEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			held, err := renewScript.Run(ctx, l.client, []string{l.key}, token, ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Warn("tick lock renewal failed", "key", l.key, "error", err)
				continue
			}
			if held == 0 {
				l.logger.Warn("tick lock lost before release", "key", l.key)
				return
			}
		}
	}
}
