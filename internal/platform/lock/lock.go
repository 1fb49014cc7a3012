// Package lock serializes work on a key, either across processes through
// Redis or within one process.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"medical-voice-agent/internal/platform/logger"
)

var (
	ErrLocked = errors.New("lock: key is held by another owner")
	// ErrLost means the lock expired or was taken over while it was held.
	ErrLost = errors.New("lock: lost before release")
)

// Lease is a held lock. Its context is cancelled once the lock is known to
// be lost; Check asks the backend directly.
type Lease struct {
	ctx     context.Context
	check   func(ctx context.Context) error
	release func()
	once    sync.Once
}

func (l *Lease) Context() context.Context { return l.ctx }

// Check returns ErrLost when the lease no longer owns the key.
func (l *Lease) Check(ctx context.Context) error {
	if l.check == nil {
		return nil
	}
	return l.check(ctx)
}

// Release is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

type RedisOptions struct {
	TTL          time.Duration
	RetryBackoff time.Duration
	MaxRetries   int
	// RefreshEvery defaults to half the TTL.
	RefreshEvery time.Duration
}

type RedisLocker struct {
	client *redislock.Client
	opts   RedisOptions
	log    zerolog.Logger
}

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:       addr,
		Password:   password,
		DB:         db,
		MaxRetries: 6,
	})
}

func NewRedisLocker(client *redis.Client, opts RedisOptions) *RedisLocker {
	if opts.TTL == 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = 100 * time.Millisecond
	}
	if opts.RefreshEvery == 0 {
		opts.RefreshEvery = opts.TTL / 2
	}
	return &RedisLocker{
		client: redislock.New(client),
		opts:   opts,
		log:    logger.NewLogger("lock"),
	}
}

// Obtain waits for the key, retrying with a linear backoff. The lease keeps
// the key alive until Release.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (*Lease, error) {
	strategy := redislock.LimitRetry(redislock.LinearBackoff(l.opts.RetryBackoff), l.opts.MaxRetries)
	lockKey := fmt.Sprintf("lock:%s", key)

	lk, err := l.client.Obtain(ctx, lockKey, l.opts.TTL, &redislock.Options{RetryStrategy: strategy})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain %s: %w", lockKey, err)
	}

	leaseCtx, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	log := l.log.With().Str("key", lockKey).Logger()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(l.opts.RefreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
				err := lk.Refresh(leaseCtx, l.opts.TTL, nil)
				if errors.Is(err, redislock.ErrNotObtained) {
					log.Warn().Msg("lock lost")
					cancel()
					return
				}
				if err != nil {
					log.Error().Err(err).Msg("failed to refresh lock")
				}
			}
		}
	}()

	return &Lease{
		ctx: leaseCtx,
		check: func(ctx context.Context) error {
			ttl, err := lk.TTL(ctx)
			if err != nil {
				return fmt.Errorf("check %s: %w", lockKey, err)
			}
			if ttl <= 0 {
				return fmt.Errorf("%w: %s", ErrLost, key)
			}
			return nil
		},
		release: func() {
			close(stop)
			<-stopped
			cancel()
			if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				log.Error().Err(err).Msg("failed to release lock")
			}
		},
	}, nil
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu   sync.Mutex
	keys map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{keys: map[string]*keyLock{}}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (*Lease, error) {
	l.mu.Lock()
	k := l.keys[key]
	if k == nil {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, k)
		return nil, ctx.Err()
	}

	return &Lease{
		ctx: ctx,
		release: func() {
			<-k.ch
			l.unref(key, k)
		},
	}, nil
}

func (l *LocalLocker) unref(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}
