package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ContentStore = (*FilesystemStore)(nil)

// FilesystemStore implements ContentStore on a local directory. Object keys
// are slash-separated relative paths under the root; writes are atomic
// (temp file, fsync, rename) so a crash never leaves a half-written
// snapshot behind.
type FilesystemStore struct {
	root string
}

// NewFilesystemStore creates a content store rooted at dir, creating the
// directory if needed.
func NewFilesystemStore(dir string) (*FilesystemStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("content store root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content store root: %w", err)
	}
	return &FilesystemStore{root: dir}, nil
}

// keyPath maps an object key to its path under the root, rejecting keys
// that would escape it.
func (s *FilesystemStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty object key", domain.ErrInvalidInput)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("%w: object key %q escapes the store root", domain.ErrInvalidInput, key)
	}
	return filepath.Join(s.root, clean), nil
}

// Put stores content under key, overwriting any previous object. The write
// lands in a temp file first and is renamed into place after an fsync.
func (s *FilesystemStore) Put(ctx context.Context, key string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp object: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close object: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to commit object: %w", err)
	}
	committed = true
	return nil
}

// Get retrieves the content stored under key.
func (s *FilesystemStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return content, nil
}

// Delete removes the object under key. Deleting a missing object is not
// an error.
func (s *FilesystemStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object whose key starts with prefix and
// returns how many were removed. Emptied directories are pruned
// best-effort afterwards.
func (s *FilesystemStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, fmt.Errorf("%w: empty object prefix", domain.ErrInvalidInput)
	}

	removed := 0
	var dirs []string
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.root {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		if entry.IsDir() {
			if strings.HasPrefix(key+"/", prefix) {
				dirs = append(dirs, path)
			}
			return nil
		}

		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to delete object %s: %w", key, err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	// Deepest first so nested directories empty out before their parents.
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}

	return removed, nil
}

// Ping checks that the root directory is still there.
func (s *FilesystemStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("content store root unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("content store root %s is not a directory", s.root)
	}
	return nil
}

// Close is a no-op for the filesystem store.
func (s *FilesystemStore) Close() error {
	return nil
}
