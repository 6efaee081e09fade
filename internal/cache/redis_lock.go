// Package cache holds the Redis backed pieces of the sales service.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"api_sales/internal/sales"
)

// ErrLockLost is returned when releasing a lock that expired and may have
// been taken by someone else.
var ErrLockLost = errors.New("item lock expired before release")

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and checks it answers.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockOptions tunes a RedisLocker.
type LockOptions struct {
	// KeyPrefix is prepended to every item key.
	KeyPrefix string
	// TTL bounds how long a crashed holder keeps the item locked.
	TTL time.Duration
	// Wait is how long Lock keeps trying before ErrLockBusy.
	Wait time.Duration
	// Poll is the delay between attempts.
	Poll time.Duration
}

func (o LockOptions) withDefaults() LockOptions {
	if o.KeyPrefix == "" {
		o.KeyPrefix = "sales:lock:"
	}
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.Wait <= 0 {
		o.Wait = 5 * time.Second
	}
	if o.Poll <= 0 {
		o.Poll = 50 * time.Millisecond
	}
	return o
}

// RedisLocker is a sales.ItemLocker shared by every replica that uses the same
// Redis. A lock is a key set with SET NX PX holding a random token.
type RedisLocker struct {
	client *redis.Client
	opts   LockOptions
}

// NewRedisLocker creates a RedisLocker on client.
func NewRedisLocker(client *redis.Client, opts LockOptions) *RedisLocker {
	return &RedisLocker{client: client, opts: opts.withDefaults()}
}

var _ sales.ItemLocker = (*RedisLocker)(nil)

// Lock takes the lock for key, polling until the configured wait elapses.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	redisKey := l.opts.KeyPrefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(l.opts.Wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire item lock: %w", err)
		}
		if ok {
			return l.unlocker(redisKey, token), nil
		}

		if time.Now().Add(l.opts.Poll).After(deadline) {
			return nil, sales.ErrLockBusy
		}
		select {
		case <-time.After(l.opts.Poll):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *RedisLocker) unlocker(redisKey, token string) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release item lock: %w", err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}
}
