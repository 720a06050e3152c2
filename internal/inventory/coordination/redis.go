package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix        = "inventory:lock:"
	idempotencyKeyPrefix = "inventory:idempotency:"
	cancelKeyPrefix      = "inventory:bulk-cancel:"
	cancelFlagTTL        = 24 * time.Hour
)

// Deletes KEYS[1] only if it still holds ARGV[1].
var compareAndDeleteScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Redis implements every primitive on a shared Redis instance.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

type redisLock struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLock) Release(ctx context.Context) error {
	return compareAndDeleteScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

func (r *Redis) TryLock(ctx context.Context, name string, ttl time.Duration) (Lock, bool, error) {
	key := lockKeyPrefix + name
	token := uuid.New().String()

	ok, err := r.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLock{client: r.client, key: key, token: token}, true, nil
}

func (r *Redis) Claim(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	k := idempotencyKeyPrefix + key

	ok, err := r.client.SetNX(ctx, k, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, true, nil
	}

	stored, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET
		return r.Claim(ctx, key, value, ttl)
	}
	if err != nil {
		return "", false, err
	}
	return stored, false, nil
}

func (r *Redis) Forget(ctx context.Context, key, value string) error {
	return compareAndDeleteScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, value).Err()
}

func (r *Redis) RequestCancel(ctx context.Context, jobID string) error {
	return r.client.Set(ctx, cancelKeyPrefix+jobID, 1, cancelFlagTTL).Err()
}

func (r *Redis) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	n, err := r.client.Exists(ctx, cancelKeyPrefix+jobID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
