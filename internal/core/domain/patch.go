package domain

import "time"

// OpKind identifies a patch operation
type OpKind string

const (
	// OpRetain copies a span of the base content unchanged
	OpRetain OpKind = "retain"
	// OpInsert adds new text at the current position
	OpInsert OpKind = "insert"
	// OpDelete removes a span of the base content
	OpDelete OpKind = "delete"
)

// Operation is one step of a patch, applied left-to-right over the base
// content. Lengths are byte lengths over the UTF-8 snapshot; the builder
// only splits at rune boundaries, so an operation never bisects a code
// point.
type Operation struct {
	Kind OpKind `json:"kind"`

	// Length is the covered span in bytes. For retain and delete it
	// addresses the base content; for insert it equals len(Text).
	Length int `json:"length"`

	// Text is the inserted text for insert operations, and the deleted
	// text captured at build time for delete operations. The captured
	// delete text is what the content-drift check compares against the
	// target version.
	Text string `json:"text,omitempty"`

	// Author and Timestamp attribute insert/delete operations for
	// tracked-change rendering. Unset on retain.
	Author    string     `json:"author,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Retain constructs a retain operation covering n bytes.
func Retain(n int) Operation {
	return Operation{Kind: OpRetain, Length: n}
}

// Insert constructs an insert operation.
func Insert(text, author string, at time.Time) Operation {
	return Operation{Kind: OpInsert, Length: len(text), Text: text, Author: author, Timestamp: &at}
}

// Delete constructs a delete operation capturing the removed text.
func Delete(text, author string, at time.Time) Operation {
	return Operation{Kind: OpDelete, Length: len(text), Text: text, Author: author, Timestamp: &at}
}

// Patch is an ordered sequence of operations transforming one version's
// content into the next. A patch is only meaningful relative to the
// exact version it was built against; applying it to any other version
// requires re-validation and may fail.
type Patch struct {
	// BaseVersion is the version number the operations address.
	BaseVersion int `json:"base_version"`

	Ops []Operation `json:"ops"`

	// Warnings records non-fatal build notes, e.g. an ambiguous target
	// resolved to its first occurrence.
	Warnings []string `json:"warnings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CoveredLen is the number of base-content bytes the patch addresses:
// the sum of retain and delete lengths. A structurally valid patch
// covers the base content exactly.
func (p *Patch) CoveredLen() int {
	total := 0
	for _, op := range p.Ops {
		if op.Kind == OpRetain || op.Kind == OpDelete {
			total += op.Length
		}
	}
	return total
}

// Apply runs the operations over base and returns the resulting
// content. It fails with a ValidationError when the operations do not
// cover base exactly or an operation is malformed.
func (p *Patch) Apply(base string) (string, error) {
	var out []byte
	pos := 0

	for i, op := range p.Ops {
		switch op.Kind {
		case OpRetain:
			if op.Length <= 0 {
				return "", NewValidationError(ValidationLengthMismatch, "op %d: retain length %d", i, op.Length)
			}
			if pos+op.Length > len(base) {
				return "", NewValidationError(ValidationLengthMismatch, "op %d: retain overruns base (%d+%d > %d)", i, pos, op.Length, len(base))
			}
			out = append(out, base[pos:pos+op.Length]...)
			pos += op.Length
		case OpInsert:
			if op.Text == "" {
				return "", NewValidationError(ValidationLengthMismatch, "op %d: empty insert", i)
			}
			out = append(out, op.Text...)
		case OpDelete:
			if op.Length <= 0 {
				return "", NewValidationError(ValidationLengthMismatch, "op %d: delete length %d", i, op.Length)
			}
			if pos+op.Length > len(base) {
				return "", NewValidationError(ValidationLengthMismatch, "op %d: delete overruns base (%d+%d > %d)", i, pos, op.Length, len(base))
			}
			pos += op.Length
		default:
			return "", NewValidationError(ValidationLengthMismatch, "op %d: unknown kind %q", i, op.Kind)
		}
	}

	if pos != len(base) {
		return "", NewValidationError(ValidationLengthMismatch, "operations cover %d of %d bytes", pos, len(base))
	}

	return string(out), nil
}

// PatchStats summarizes a patch for job responses and previews
type PatchStats struct {
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
	CharsAdded   int `json:"chars_added"`
	CharsRemoved int `json:"chars_removed"`
	NetChange    int `json:"net_change"`
}

// Stats counts insert/delete operations and character movement.
func (p *Patch) Stats() PatchStats {
	var s PatchStats
	for _, op := range p.Ops {
		switch op.Kind {
		case OpInsert:
			s.Insertions++
			s.CharsAdded += len(op.Text)
		case OpDelete:
			s.Deletions++
			s.CharsRemoved += op.Length
		}
	}
	s.NetChange = s.CharsAdded - s.CharsRemoved
	return s
}

// IsIdentity reports whether the patch changes nothing (retains only).
func (p *Patch) IsIdentity() bool {
	for _, op := range p.Ops {
		if op.Kind != OpRetain {
			return false
		}
	}
	return true
}
