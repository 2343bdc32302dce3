package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

const lockPrefix = "redline:lock:"

// Lock implements DistributedLock on Redis SET NX with a TTL. Version appends
// take a per-document lock and the scheduler takes a singleton lock, so the
// value stored under each key is an owner token: only the instance that
// acquired a lock can release or extend it.
type Lock struct {
	client  *redis.Client
	ownerID string
}

// NewLock creates a Redis-backed distributed lock with a fresh owner token.
func NewLock(client *redis.Client) *Lock {
	return &Lock{
		client:  client,
		ownerID: newOwnerID(),
	}
}

// newOwnerID builds an owner token unique to this process instance,
// readable enough to trace a stuck lock back to its holder.
func newOwnerID() string {
	hostname, _ := os.Hostname()
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(buf))
}

// Acquire attempts to take the named lock for ttl. It returns false without
// error when another instance (or an earlier acquire by this one) holds it.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	acquired, err := l.client.SetNX(ctx, lockPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// lockReleaseScript deletes the lock key only when this instance's owner
// token is still stored there, so an expired-and-reacquired lock is never
// released out from under its new holder.
var lockReleaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release gives up the named lock if this instance holds it. Releasing a
// lock that expired or belongs to another instance is a silent no-op.
func (l *Lock) Release(ctx context.Context, name string) error {
	err := lockReleaseScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// lockExtendScript refreshes the TTL only while this instance's owner token
// is still stored under the key.
var lockExtendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend pushes out the TTL of a lock this instance holds. It fails when the
// lock has expired or was taken over by another instance, which tells a
// long-running holder its critical section is no longer protected.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	extended, err := lockExtendScript.Run(ctx, l.client, []string{lockPrefix + name}, l.ownerID, ttl.Milliseconds()).Int64()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to extend lock %s: %w", name, err)
	}
	if extended == 0 {
		return fmt.Errorf("lock %s is not held by this instance", name)
	}
	return nil
}

// Ping reports whether the Redis backend is reachable.
func (l *Lock) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// OwnerID returns this instance's owner token.
func (l *Lock) OwnerID() string {
	return l.ownerID
}
