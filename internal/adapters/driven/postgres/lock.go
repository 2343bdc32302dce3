package postgres

import (
	"context"
	"database/sql"
	"hash/fnv"
	"sync"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*AdvisoryLock)(nil)

// AdvisoryLock implements DistributedLock on PostgreSQL advisory locks,
// for deployments that run without Redis.
//
// Advisory locks are session-scoped, so each acquired lock pins a
// dedicated connection out of the pool until released: unlocking
// through the pool could land on a different session and do nothing.
// Losing the connection releases the lock on the server side, which
// stands in for a TTL; the ttl arguments are otherwise ignored.
type AdvisoryLock struct {
	db *DB

	mu   sync.Mutex
	held map[string]*sql.Conn
}

// NewAdvisoryLock creates an advisory-lock adapter over the shared pool.
func NewAdvisoryLock(db *DB) *AdvisoryLock {
	return &AdvisoryLock{db: db, held: make(map[string]*sql.Conn)}
}

// lockID folds a lock name into the 64-bit key space advisory locks
// use. FNV-1a keeps it stable across processes.
func lockID(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte("redline:lock:" + name))
	return int64(h.Sum64())
}

// Acquire tries to take the named lock without blocking. A lock held
// by anyone, including this process, yields false.
func (l *AdvisoryLock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", lockID(name)).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}

	l.mu.Lock()
	l.held[name] = conn
	l.mu.Unlock()
	return true, nil
}

// Release unlocks the named lock and returns its connection to the
// pool. Releasing a lock this process does not hold is a no-op.
func (l *AdvisoryLock) Release(ctx context.Context, name string) error {
	l.mu.Lock()
	conn, ok := l.held[name]
	delete(l.held, name)
	l.mu.Unlock()
	if !ok {
		return nil
	}

	var released bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", lockID(name)).Scan(&released)
	conn.Close()
	return err
}

// Extend is a no-op: advisory locks have no expiry to push out. They
// hold until released or until their session drops.
func (l *AdvisoryLock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	return nil
}

// Ping reports whether the PostgreSQL backend is reachable.
func (l *AdvisoryLock) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}
