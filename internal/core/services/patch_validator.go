package services

import (
	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// PatchValidator checks a patch against the version it is about to be
// applied to. Validation runs twice in a job's life: once right after the
// build (against the base version) and again under the document lock just
// before the append (against the current head, which may have moved).
//
// A stale base version is not by itself fatal: if the operations still
// cover the target content exactly and every captured delete span still
// matches, the patch replays cleanly. Only staleness combined with a
// failed check becomes a VersionMismatch.
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator.
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// Validate checks patch against the target version's content.
// targetVersion is the version number the content belongs to.
func (v *PatchValidator) Validate(patch *domain.Patch, targetVersion int, content domain.Snapshot) error {
	if patch == nil {
		return domain.NewValidationError(domain.ValidationLengthMismatch, "no patch to validate")
	}

	err := v.replay(patch, content)
	if err == nil {
		return nil
	}

	if patch.BaseVersion != targetVersion {
		return domain.NewValidationError(domain.ValidationVersionMismatch,
			"patch built against version %d, target is version %d: %v",
			patch.BaseVersion, targetVersion, err)
	}
	return err
}

// replay walks the operations over the target content without producing
// output, checking coverage, operation sanity and delete-span integrity.
func (v *PatchValidator) replay(patch *domain.Patch, content domain.Snapshot) error {
	text := content.Content()

	if got, want := patch.CoveredLen(), content.Len(); got != want {
		return domain.NewValidationError(domain.ValidationLengthMismatch,
			"operations cover %d of %d bytes", got, want)
	}

	pos := 0
	for i, op := range patch.Ops {
		switch op.Kind {
		case domain.OpRetain:
			if op.Length <= 0 {
				return domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: retain length %d", i, op.Length)
			}
			if pos+op.Length > len(text) {
				return domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: retain overruns content (%d+%d > %d)", i, pos, op.Length, len(text))
			}
			pos += op.Length

		case domain.OpInsert:
			if op.Text == "" || op.Length != len(op.Text) {
				return domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: insert length %d does not match its text", i, op.Length)
			}

		case domain.OpDelete:
			if op.Length <= 0 || op.Length != len(op.Text) {
				return domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: delete length %d does not match its captured text", i, op.Length)
			}
			if pos+op.Length > len(text) {
				return domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: delete overruns content (%d+%d > %d)", i, pos, op.Length, len(text))
			}
			if text[pos:pos+op.Length] != op.Text {
				return domain.NewValidationError(domain.ValidationContentDrift,
					"op %d: deleted span at byte %d no longer matches the content", i, pos)
			}
			pos += op.Length

		default:
			return domain.NewValidationError(domain.ValidationLengthMismatch,
				"op %d: unknown kind %q", i, op.Kind)
		}
	}

	return nil
}
