package services

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// PatchBuilder turns decoded edit hints into a structural patch against a
// base snapshot. Replace hints are located by exact text search and the
// matched span is diffed against its replacement; splice hints address the
// content by byte position and become delete/insert directly.
//
// All operation lengths are byte lengths over the UTF-8 content. The
// differ works on runes, so emitted operations never split a code point;
// splice positions are rejected if they would.
type PatchBuilder struct {
	dmp      *diffmatchpatch.DiffMatchPatch
	pipeline driven.OperationPipeline
}

// PatchBuilderConfig holds dependencies for PatchBuilder.
type PatchBuilderConfig struct {
	Pipeline driven.OperationPipeline
}

// NewPatchBuilder creates a new patch builder.
func NewPatchBuilder(cfg PatchBuilderConfig) *PatchBuilder {
	return &PatchBuilder{
		dmp:      diffmatchpatch.New(),
		pipeline: cfg.Pipeline,
	}
}

// BuildOptions controls how hints become operations.
type BuildOptions struct {
	// BaseVersion is recorded on the patch for later validation.
	BaseVersion int

	// Granularity selects the diff unit inside replaced spans.
	Granularity domain.DiffGranularity

	// StrictMatch fails the build when a replace target occurs more than
	// once. When false the first occurrence is used and a warning is
	// recorded on the patch.
	StrictMatch bool

	// Author attributes the emitted insert/delete operations.
	Author string
}

// editSpan is one resolved hint: a byte range of the base content and the
// text that replaces it.
type editSpan struct {
	start   int
	end     int
	oldText string
	newText string

	// direct spans (from splices) skip the span diff and become a plain
	// delete/insert pair.
	direct bool
}

// Build resolves hints against base and assembles the patch.
// Hint targets that cannot be located produce a BuildError; the caller
// decides what that does to the owning job.
func (b *PatchBuilder) Build(base domain.Snapshot, hints []domain.Hint, opts BuildOptions) (*domain.Patch, error) {
	content := base.Content()
	now := time.Now()

	var warnings []string

	spans := make([]editSpan, 0, len(hints))
	for i, hint := range hints {
		if err := hint.Validate(base.Len()); err != nil {
			return nil, err
		}

		span, warning, err := b.resolveHint(content, hint, opts)
		if err != nil {
			return nil, err
		}
		if warning != "" {
			warnings = append(warnings, fmt.Sprintf("edit %d: %s", i+1, warning))
		}
		spans = append(spans, span)
	}

	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].start < spans[j].start
	})

	for i := 1; i < len(spans); i++ {
		if spans[i-1].end > spans[i].start {
			return nil, domain.NewBuildError(domain.BuildMalformedSuggestion,
				"edits overlap at bytes %d..%d and %d..%d",
				spans[i-1].start, spans[i-1].end, spans[i].start, spans[i].end)
		}
	}

	if len(hints) == 0 {
		warnings = append(warnings, "collaborator proposed no edits")
	}

	ops := b.assembleOps(content, spans, opts, now)
	if b.pipeline != nil {
		ops = b.pipeline.Run(ops)
	}

	return &domain.Patch{
		BaseVersion: opts.BaseVersion,
		Ops:         ops,
		Warnings:    warnings,
		CreatedAt:   now,
	}, nil
}

// resolveHint locates a hint in the base content and returns its span.
func (b *PatchBuilder) resolveHint(content string, hint domain.Hint, opts BuildOptions) (editSpan, string, error) {
	switch h := hint.(type) {
	case domain.ReplaceHint:
		return b.resolveReplace(content, h, opts)
	case domain.SpliceHint:
		return b.resolveSplice(content, h)
	default:
		return editSpan{}, "", domain.NewBuildError(domain.BuildMalformedSuggestion, "unknown hint type %T", hint)
	}
}

func (b *PatchBuilder) resolveReplace(content string, h domain.ReplaceHint, opts BuildOptions) (editSpan, string, error) {
	idx := strings.Index(content, h.Find)
	if idx < 0 {
		return editSpan{}, "", domain.NewBuildError(domain.BuildNotFound, "target text %q not found", clip(h.Find, 60))
	}

	warning := ""
	if count := strings.Count(content, h.Find); count > 1 {
		if opts.StrictMatch {
			return editSpan{}, "", domain.NewBuildError(domain.BuildAmbiguousMatch,
				"target text %q occurs %d times", clip(h.Find, 60), count)
		}
		warning = fmt.Sprintf("target text %q occurs %d times; using first occurrence", clip(h.Find, 60), count)
	}

	return editSpan{
		start:   idx,
		end:     idx + len(h.Find),
		oldText: h.Find,
		newText: h.Replace,
	}, warning, nil
}

func (b *PatchBuilder) resolveSplice(content string, h domain.SpliceHint) (editSpan, string, error) {
	if !runeBoundary(content, h.Position) || !runeBoundary(content, h.Position+h.DeleteLength) {
		return editSpan{}, "", domain.NewBuildError(domain.BuildMalformedSuggestion,
			"splice at byte %d (+%d) splits a UTF-8 code point", h.Position, h.DeleteLength)
	}

	return editSpan{
		start:   h.Position,
		end:     h.Position + h.DeleteLength,
		oldText: content[h.Position : h.Position+h.DeleteLength],
		newText: h.Insert,
		direct:  true,
	}, "", nil
}

// assembleOps walks the base content left to right, retaining the gaps
// between spans and expanding each span into operations.
func (b *PatchBuilder) assembleOps(content string, spans []editSpan, opts BuildOptions, now time.Time) []domain.Operation {
	var ops []domain.Operation
	pos := 0

	for _, span := range spans {
		if span.start > pos {
			ops = append(ops, domain.Retain(span.start-pos))
		}

		if span.direct {
			if span.oldText != "" {
				ops = append(ops, domain.Delete(span.oldText, opts.Author, now))
			}
			if span.newText != "" {
				ops = append(ops, domain.Insert(span.newText, opts.Author, now))
			}
		} else {
			ops = append(ops, b.diffSpan(span.oldText, span.newText, opts, now)...)
		}

		pos = span.end
	}

	if pos < len(content) {
		ops = append(ops, domain.Retain(len(content)-pos))
	}

	return ops
}

// diffSpan computes the minimal edit script between a matched span and
// its replacement and converts it into operations.
func (b *PatchBuilder) diffSpan(oldText, newText string, opts BuildOptions, now time.Time) []domain.Operation {
	var diffs []diffmatchpatch.Diff
	if opts.Granularity == domain.GranularityWord {
		diffs = b.diffWords(oldText, newText)
	} else {
		diffs = b.dmp.DiffMain(oldText, newText, false)
		diffs = b.dmp.DiffCleanupSemantic(diffs)
	}

	ops := make([]domain.Operation, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			ops = append(ops, domain.Retain(len(d.Text)))
		case diffmatchpatch.DiffInsert:
			ops = append(ops, domain.Insert(d.Text, opts.Author, now))
		case diffmatchpatch.DiffDelete:
			ops = append(ops, domain.Delete(d.Text, opts.Author, now))
		}
	}
	return ops
}

// diffWords diffs at word granularity by mapping each distinct token
// (a run of non-space or a run of whitespace) to a rune and diffing the
// encoded strings, the same trick the differ's line mode uses. Token
// concatenation reproduces the input exactly, so byte offsets survive.
func (b *PatchBuilder) diffWords(oldText, newText string) []diffmatchpatch.Diff {
	index := make(map[string]rune)
	var tokens []string

	encode := func(s string) (string, bool) {
		var sb strings.Builder
		for _, tok := range splitWords(s) {
			r, seen := index[tok]
			if !seen {
				if len(tokens) >= 0xD700 {
					// Token space exhausted; caller falls back to char diff.
					return "", false
				}
				r = rune(len(tokens) + 1)
				index[tok] = r
				tokens = append(tokens, tok)
			}
			sb.WriteRune(r)
		}
		return sb.String(), true
	}

	encodedOld, ok := encode(oldText)
	if !ok {
		return b.dmp.DiffCleanupSemantic(b.dmp.DiffMain(oldText, newText, false))
	}
	encodedNew, ok := encode(newText)
	if !ok {
		return b.dmp.DiffCleanupSemantic(b.dmp.DiffMain(oldText, newText, false))
	}

	encoded := b.dmp.DiffMain(encodedOld, encodedNew, false)

	diffs := make([]diffmatchpatch.Diff, 0, len(encoded))
	for _, d := range encoded {
		var sb strings.Builder
		for _, r := range d.Text {
			sb.WriteString(tokens[int(r)-1])
		}
		diffs = append(diffs, diffmatchpatch.Diff{Type: d.Type, Text: sb.String()})
	}
	return diffs
}

// splitWords tokenizes into alternating runs of non-space and whitespace.
// Concatenating the tokens yields the input unchanged.
func splitWords(s string) []string {
	if s == "" {
		return nil
	}

	var tokens []string
	start := 0
	first, _ := utf8.DecodeRuneInString(s)
	inSpace := unicode.IsSpace(first)

	for i, r := range s {
		isSpace := unicode.IsSpace(r)
		if isSpace != inSpace {
			tokens = append(tokens, s[start:i])
			start = i
			inSpace = isSpace
		}
	}
	tokens = append(tokens, s[start:])
	return tokens
}

// runeBoundary reports whether pos is a valid split point in s.
func runeBoundary(s string, pos int) bool {
	if pos <= 0 || pos >= len(s) {
		return true
	}
	return utf8.RuneStart(s[pos])
}

// clip shortens long hint text for error messages.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
