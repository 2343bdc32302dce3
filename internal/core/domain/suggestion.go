package domain

import "fmt"

// Hint is one recognized shape of edit suggestion extracted from the
// collaborator's raw output. The collaborator is an untrusted input
// producer: raw output passes a strict parse-and-validate step before
// anything treats it as structured, and anything unrecognizable is a
// MalformedSuggestion build failure, never a guess.
type Hint interface {
	// Validate checks the hint against the base content length.
	Validate(baseLen int) error
}

// ReplaceHint asks for a span of existing text to be replaced.
// The span is located by searching for Find in the base content.
type ReplaceHint struct {
	// Find is the exact text to locate in the base content.
	Find string `json:"find"`

	// Replace is the text that takes its place. May be empty (pure
	// deletion).
	Replace string `json:"replace"`

	// Note is the collaborator's stated reasoning, recorded on the
	// job's audit trail.
	Note string `json:"note,omitempty"`
}

// Validate checks the hint is actionable.
func (h ReplaceHint) Validate(baseLen int) error {
	if h.Find == "" {
		return NewBuildError(BuildMalformedSuggestion, "replace hint with empty target")
	}
	if h.Find == h.Replace {
		return NewBuildError(BuildMalformedSuggestion, "replace hint is a no-op for %q", truncate(h.Find, 40))
	}
	return nil
}

// SpliceHint addresses the document by byte position instead of by
// matched text: delete DeleteLength bytes at Position, then insert
// Insert there.
type SpliceHint struct {
	Position     int    `json:"position"`
	DeleteLength int    `json:"delete_length,omitempty"`
	Insert       string `json:"insert,omitempty"`
	Note         string `json:"note,omitempty"`
}

// Validate bounds-checks the splice against the base content.
func (h SpliceHint) Validate(baseLen int) error {
	if h.Position < 0 || h.Position > baseLen {
		return NewBuildError(BuildMalformedSuggestion, "splice position %d out of bounds (content is %d bytes)", h.Position, baseLen)
	}
	if h.DeleteLength < 0 {
		return NewBuildError(BuildMalformedSuggestion, "splice delete length %d is negative", h.DeleteLength)
	}
	if h.Position+h.DeleteLength > baseLen {
		return NewBuildError(BuildMalformedSuggestion, "splice overruns content (%d+%d > %d)", h.Position, h.DeleteLength, baseLen)
	}
	if h.DeleteLength == 0 && h.Insert == "" {
		return NewBuildError(BuildMalformedSuggestion, "splice hint is a no-op")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
