package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainErrors "github.com/cassiomorais/posqueue/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// Lua script for safe lock release (only owner can release)
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	// Lua script for lock extension
	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DrainLease makes at most one terminal drain a shared queue at a time. The
// value written is unique per acquisition, so a lease that expired and was
// taken by another terminal is never released or extended by the old owner.
type DrainLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration

	mu    sync.Mutex
	token string
}

// NewDrainLease creates a lease on key. owner is stored in the value to
// show which terminal holds it.
func NewDrainLease(client *redis.Client, key, owner string, ttl time.Duration) *DrainLease {
	return &DrainLease{
		client: client,
		key:    fmt.Sprintf("lease:%s", key),
		owner:  owner,
		ttl:    ttl,
	}
}

// Acquire returns false without error when another owner holds the lease.
func (l *DrainLease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	token := l.owner + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Extend pushes expiry out by the lease TTL.
func (l *DrainLease) Extend(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return domainErrors.ErrLeaseNotHeld
	}

	val, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lease: %w", err)
	}
	if val == 0 {
		l.token = ""
		return domainErrors.ErrLeaseNotHeld
	}
	return nil
}

// Release is a no-op when the lease is not held.
func (l *DrainLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	val, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	if val == 0 {
		return domainErrors.ErrLeaseNotHeld
	}
	return nil
}

// Held reports whether this process believes it holds the lease.
func (l *DrainLease) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.token != ""
}
