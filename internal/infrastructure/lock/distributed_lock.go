package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// unlockScript deletes the key only while it still holds our value, so an
// expired holder never releases a lock someone else has since taken.
const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock is a SET NX EX lock on a single Redis key.
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // identifies the holder
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock takes the lock without waiting.
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	return err
}

// NewInjectionLock guards one in-flight injection per account. ttl must
// outlast both upstream calls plus the stabilization delay.
func NewInjectionLock(client *redis.Client, accountID int64, requestID string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("inject:lock:account:%d", accountID)
	return NewDistributedLock(client, key, requestID, ttl)
}
