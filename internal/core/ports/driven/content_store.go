package driven

import (
	"context"
	"fmt"
)

// ContentStore holds full version snapshots in object storage (MinIO or
// local filesystem). Rows in the version table carry only checksums and
// patches; the text itself lives here, one object per version.
type ContentStore interface {
	// Put stores content under the given key, overwriting any previous object
	Put(ctx context.Context, key string, content []byte) error

	// Get retrieves the content stored under key.
	// Returns domain.ErrNotFound if no such object exists.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key (no error if already gone)
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object whose key starts with prefix.
	// Returns the number of objects removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// Ping checks if the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases resources held by the store
	Close() error
}

// VersionContentKey returns the object key for a document version snapshot.
func VersionContentKey(documentID string, number int) string {
	return fmt.Sprintf("documents/%s/v%d", documentID, number)
}

// DocumentContentPrefix returns the key prefix covering every snapshot of a
// document, for bulk deletion.
func DocumentContentPrefix(documentID string) string {
	return fmt.Sprintf("documents/%s/", documentID)
}
