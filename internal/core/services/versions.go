package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// VersionService couples the version ledger (rows) with the content store
// (snapshots). A version is only real once its row is committed: the
// snapshot object is written first, then the row append advances the
// document head atomically. If the row append loses a race the object is
// removed again, so a failed append leaves no visible trace.
//
// Reads verify the snapshot against the row's recorded checksum; silent
// blob corruption surfaces as ErrChecksumMismatch instead of propagating
// bad content into patches.
type VersionService struct {
	versions driven.VersionStore
	content  driven.ContentStore
	logger   *slog.Logger
}

// VersionServiceConfig holds dependencies for VersionService.
type VersionServiceConfig struct {
	VersionStore driven.VersionStore
	ContentStore driven.ContentStore
	Logger       *slog.Logger
}

// NewVersionService creates a new version service.
func NewVersionService(cfg VersionServiceConfig) *VersionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VersionService{
		versions: cfg.VersionStore,
		content:  cfg.ContentStore,
		logger:   logger,
	}
}

// Append persists snapshot as version number of the document. number must
// be the current head plus one; a concurrent append to the same document
// surfaces as a ValidationError from the version store and nothing is
// kept.
func (s *VersionService) Append(ctx context.Context, documentID string, number int, snapshot domain.Snapshot, patch *domain.Patch, jobID, description string) (*domain.Version, error) {
	data := []byte(snapshot.Content())

	v := &domain.Version{
		DocumentID:     documentID,
		Number:         number,
		Checksum:       domain.SnapshotChecksum(data),
		Description:    description,
		Patch:          patch,
		CreatedByJobID: jobID,
		CreatedAt:      time.Now(),
	}

	key := driven.VersionContentKey(documentID, number)
	if err := s.content.Put(ctx, key, data); err != nil {
		return nil, &domain.StorageError{Op: "put", Err: err}
	}

	if err := s.versions.Append(ctx, v); err != nil {
		// The row is the source of truth; without it the object must go.
		// Exception: on a lost number race the key may already belong to
		// the winning append, so it is left alone and the winner's
		// checksum decides whose bytes are there.
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			if delErr := s.content.Delete(ctx, key); delErr != nil {
				s.logger.Warn("orphaned snapshot object after failed append",
					"document_id", documentID, "version", number, "error", delErr)
			}
		}
		return nil, err
	}

	return v, nil
}

// Snapshot retrieves one version's verified content.
func (s *VersionService) Snapshot(ctx context.Context, documentID string, number int) (*domain.Version, domain.Snapshot, error) {
	v, err := s.versions.Get(ctx, documentID, number)
	if err != nil {
		return nil, domain.Snapshot{}, err
	}

	snap, err := s.load(ctx, v)
	if err != nil {
		return nil, domain.Snapshot{}, err
	}
	return v, snap, nil
}

// Head retrieves the document's latest version and its verified content.
func (s *VersionService) Head(ctx context.Context, documentID string) (*domain.Version, domain.Snapshot, error) {
	v, err := s.versions.Latest(ctx, documentID)
	if err != nil {
		return nil, domain.Snapshot{}, err
	}

	snap, err := s.load(ctx, v)
	if err != nil {
		return nil, domain.Snapshot{}, err
	}
	return v, snap, nil
}

// load fetches and checksum-verifies a version's snapshot object.
func (s *VersionService) load(ctx context.Context, v *domain.Version) (domain.Snapshot, error) {
	key := driven.VersionContentKey(v.DocumentID, v.Number)

	data, err := s.content.Get(ctx, key)
	if err != nil {
		return domain.Snapshot{}, &domain.StorageError{Op: "read", Err: err}
	}

	if sum := domain.SnapshotChecksum(data); sum != v.Checksum {
		return domain.Snapshot{}, fmt.Errorf("%w: document %s version %d (stored %s, computed %s)",
			domain.ErrChecksumMismatch, v.DocumentID, v.Number, v.Checksum, sum)
	}

	return domain.NewSnapshot(string(data)), nil
}
