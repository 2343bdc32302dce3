package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Document represents an editable text document
type Document struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"` // MIME type of the uploaded content
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// LatestVersion is the highest committed version number.
	// Populated by stores that join against the version ledger.
	LatestVersion int `json:"latest_version,omitempty"`
}

// NewDocument creates a document with default values
func NewDocument(name, contentType string) *Document {
	now := time.Now()
	if contentType == "" {
		contentType = "text/plain"
	}
	return &Document{
		ID:          GenerateID(),
		Name:        name,
		ContentType: contentType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Version is one immutable entry in a document's history.
// Version numbers form a gapless increasing sequence starting at 1.
// The content snapshot itself lives in the content store, keyed by
// (DocumentID, Number); Checksum guards it against silent corruption.
type Version struct {
	DocumentID  string `json:"document_id"`
	Number      int    `json:"number"`
	Checksum    string `json:"checksum"`
	Description string `json:"description,omitempty"`

	// Patch is the patch that produced this version.
	// Nil for version 1 (the upload).
	Patch *Patch `json:"patch,omitempty"`

	// CreatedByJobID links back to the job whose apply produced this
	// version. Empty for version 1.
	CreatedByJobID string `json:"created_by_job_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// VersionSummary is the listing view of a version (no patch body).
type VersionSummary struct {
	DocumentID  string    `json:"document_id"`
	Number      int       `json:"number"`
	Checksum    string    `json:"checksum"`
	Description string    `json:"description,omitempty"`
	HasPatch    bool      `json:"has_patch"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary strips the patch body for listings.
func (v *Version) Summary() VersionSummary {
	return VersionSummary{
		DocumentID:  v.DocumentID,
		Number:      v.Number,
		Checksum:    v.Checksum,
		Description: v.Description,
		HasPatch:    v.Patch != nil,
		CreatedAt:   v.CreatedAt,
	}
}

// Snapshot is the immutable in-memory form of one version's content.
// All edits produce a new snapshot via patch application; nothing
// mutates an existing one.
type Snapshot struct {
	content string
}

// NewSnapshot wraps content as an immutable snapshot.
func NewSnapshot(content string) Snapshot {
	return Snapshot{content: content}
}

// Content returns the full text.
func (s Snapshot) Content() string { return s.content }

// Len returns the content length in bytes.
func (s Snapshot) Len() int { return len(s.content) }

// NormalizeContent canonicalizes uploaded text: line endings become LF.
// Applied once at ingestion so every downstream length and offset is
// computed over the same bytes.
func NormalizeContent(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	return strings.ReplaceAll(content, "\r", "\n")
}

// SnapshotChecksum computes the BLAKE2b-256 digest of snapshot bytes,
// hex encoded. Recorded on every version and re-verified on read.
func SnapshotChecksum(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
