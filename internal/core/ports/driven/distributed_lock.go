package driven

import (
	"context"
	"time"
)

// DistributedLock is a named mutex shared across instances. The apply
// path takes the per-document lock (see DocumentLockName) while it
// appends a version, and the scheduler takes one so only one replica
// dispatches maintenance.
type DistributedLock interface {
	// Acquire tries to take the lock without blocking. false means
	// someone else holds it. Backends with expiry drop the lock after
	// ttl in case the holder dies; backends without expiry may ignore
	// ttl.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release lets the lock go. Releasing a lock that is not held, or
	// that already expired, is not an error.
	Release(ctx context.Context, name string) error

	// Extend pushes a held lock's expiry out by ttl. No-op on backends
	// without expiry.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping reports whether the lock backend is reachable.
	Ping(ctx context.Context) error
}

// DocumentLockName is the lock guarding version appends for one
// document.
func DocumentLockName(documentID string) string {
	return "document:" + documentID
}
