package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts   = 5
	DefaultLockoutWindow = 5 * time.Minute
)

// LockoutTracker counts failed logins per identifier. Failures count toward a
// lock only within Window of the first one; a success resets the count.
type LockoutTracker interface {
	// Locked reports whether identifier is locked and for how much longer.
	Locked(ctx context.Context, identifier string) (time.Duration, bool, error)
	Fail(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

type attempts struct {
	count       int
	firstFail   time.Time
	lockedUntil time.Time
}

type MemoryLockout struct {
	MaxAttempts int
	Window      time.Duration
	Now         func() time.Time

	mu    sync.Mutex
	state map[string]*attempts
}

func NewMemoryLockout(maxAttempts int, window time.Duration) *MemoryLockout {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &MemoryLockout{
		MaxAttempts: maxAttempts,
		Window:      window,
		Now:         time.Now,
		state:       make(map[string]*attempts),
	}
}

func (m *MemoryLockout) Locked(_ context.Context, id string) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.state[id]
	if !ok || a.lockedUntil.IsZero() {
		return 0, false, nil
	}
	now := m.Now()
	if !now.Before(a.lockedUntil) {
		delete(m.state, id)
		return 0, false, nil
	}
	return a.lockedUntil.Sub(now), true, nil
}

func (m *MemoryLockout) Fail(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	a, ok := m.state[id]
	if !ok || (a.lockedUntil.IsZero() && !now.Before(a.firstFail.Add(m.Window))) {
		a = &attempts{firstFail: now}
		m.state[id] = a
	}
	a.count++
	if a.count >= m.MaxAttempts {
		a.lockedUntil = now.Add(m.Window)
	}
	return nil
}

func (m *MemoryLockout) Reset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, id)
	return nil
}

// RedisLockout keeps the counter in redis so that every instance sees the
// same lock. The key TTL is the remaining lock time.
type RedisLockout struct {
	Client      *redis.Client
	MaxAttempts int
	Window      time.Duration
	Prefix      string
}

func NewRedisLockout(client *redis.Client, maxAttempts int, window time.Duration) *RedisLockout {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultLockoutWindow
	}
	return &RedisLockout{Client: client, MaxAttempts: maxAttempts, Window: window, Prefix: "login_fail:"}
}

func (r *RedisLockout) key(id string) string { return r.Prefix + id }

func (r *RedisLockout) Locked(ctx context.Context, id string) (time.Duration, bool, error) {
	v, err := r.Client.Get(ctx, r.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lockout get: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < r.MaxAttempts {
		return 0, false, nil
	}
	ttl, err := r.Client.TTL(ctx, r.key(id)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("lockout ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = r.Window
	}
	return ttl, true, nil
}

func (r *RedisLockout) Fail(ctx context.Context, id string) error {
	n, err := r.Client.Incr(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("lockout incr: %w", err)
	}
	if n == 1 || n == int64(r.MaxAttempts) {
		if err := r.Client.Expire(ctx, r.key(id), r.Window).Err(); err != nil {
			return fmt.Errorf("lockout expire: %w", err)
		}
	}
	return nil
}

func (r *RedisLockout) Reset(ctx context.Context, id string) error {
	if err := r.Client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("lockout reset: %w", err)
	}
	return nil
}
