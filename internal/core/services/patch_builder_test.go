package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/patchops"
	"github.com/sergi/go-diff/diffmatchpatch"
)

func newTestBuilder() *PatchBuilder {
	return NewPatchBuilder(PatchBuilderConfig{Pipeline: patchops.DefaultPipeline()})
}

func mustBuild(t *testing.T, base string, hints []domain.Hint, opts BuildOptions) *domain.Patch {
	t.Helper()

	patch, err := newTestBuilder().Build(domain.NewSnapshot(base), hints, opts)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if got, want := patch.CoveredLen(), len(base); got != want {
		t.Fatalf("patch covers %d of %d bytes", got, want)
	}
	return patch
}

func TestPatchBuilder_SimpleReplace(t *testing.T) {
	base := "The salary is $120,000 per year."
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "$120,000", Replace: "$150,000"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{BaseVersion: 1, Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "The salary is $150,000 per year."; result != want {
		t.Errorf("got %q, want %q", result, want)
	}
	if patch.BaseVersion != 1 {
		t.Errorf("expected base version 1, got %d", patch.BaseVersion)
	}
	if len(patch.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", patch.Warnings)
	}
}

func TestPatchBuilder_MultipleHintsSortedByPosition(t *testing.T) {
	base := "Alice reports to Bob. Bob reports to Carol."
	// Given out of document order.
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "Carol", Replace: "Dave"},
		domain.ReplaceHint{Find: "Alice", Replace: "Eve"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "Eve reports to Bob. Bob reports to Dave."; result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestPatchBuilder_AmbiguousLenientUsesFirst(t *testing.T) {
	base := "red fish, red fish"
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "red", Replace: "blue"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "editor", StrictMatch: false})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "blue fish, red fish"; result != want {
		t.Errorf("got %q, want %q", result, want)
	}
	if len(patch.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", patch.Warnings)
	}
	if !strings.Contains(patch.Warnings[0], "first occurrence") {
		t.Errorf("expected first-occurrence warning, got %q", patch.Warnings[0])
	}
}

func TestPatchBuilder_AmbiguousStrictFails(t *testing.T) {
	base := "red fish, red fish"
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "red", Replace: "blue"},
	}

	_, err := newTestBuilder().Build(domain.NewSnapshot(base), hints, BuildOptions{StrictMatch: true})
	if err == nil {
		t.Fatal("expected ambiguous match error")
	}

	var buildErr *domain.BuildError
	if !errors.As(err, &buildErr) || buildErr.Reason != domain.BuildAmbiguousMatch {
		t.Errorf("expected ambiguous_match, got %v", err)
	}
}

func TestPatchBuilder_TargetNotFound(t *testing.T) {
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "unicorn", Replace: "horse"},
	}

	_, err := newTestBuilder().Build(domain.NewSnapshot("plain text"), hints, BuildOptions{})
	if err == nil {
		t.Fatal("expected not found error")
	}

	var buildErr *domain.BuildError
	if !errors.As(err, &buildErr) || buildErr.Reason != domain.BuildNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestPatchBuilder_OverlappingEditsFail(t *testing.T) {
	base := "the quick brown fox"
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "quick brown", Replace: "slow red"},
		domain.ReplaceHint{Find: "brown fox", Replace: "grey wolf"},
	}

	_, err := newTestBuilder().Build(domain.NewSnapshot(base), hints, BuildOptions{})
	if err == nil {
		t.Fatal("expected overlap error")
	}

	var buildErr *domain.BuildError
	if !errors.As(err, &buildErr) || buildErr.Reason != domain.BuildMalformedSuggestion {
		t.Errorf("expected malformed_suggestion, got %v", err)
	}
}

func TestPatchBuilder_Splice(t *testing.T) {
	base := "hello world"
	hints := []domain.Hint{
		domain.SpliceHint{Position: 5, DeleteLength: 0, Insert: " brave"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "hello brave world"; result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestPatchBuilder_SpliceDeleteAndInsert(t *testing.T) {
	base := "hello world"
	hints := []domain.Hint{
		domain.SpliceHint{Position: 6, DeleteLength: 5, Insert: "there"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "hello there"; result != want {
		t.Errorf("got %q, want %q", result, want)
	}

	// Direct splices carry the captured delete text for drift checks.
	for _, op := range patch.Ops {
		if op.Kind == domain.OpDelete && op.Text != "world" {
			t.Errorf("expected captured delete text %q, got %q", "world", op.Text)
		}
	}
}

func TestPatchBuilder_SpliceInsideCodePointFails(t *testing.T) {
	base := "café menu" // é is two bytes: positions 3 and 4
	hints := []domain.Hint{
		domain.SpliceHint{Position: 4, DeleteLength: 0, Insert: "x"},
	}

	_, err := newTestBuilder().Build(domain.NewSnapshot(base), hints, BuildOptions{})
	if err == nil {
		t.Fatal("expected rune boundary error")
	}

	var buildErr *domain.BuildError
	if !errors.As(err, &buildErr) || buildErr.Reason != domain.BuildMalformedSuggestion {
		t.Errorf("expected malformed_suggestion, got %v", err)
	}
}

func TestPatchBuilder_MultibyteReplace(t *testing.T) {
	base := "Prix: 100€ tout compris" // €
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "100€", Replace: "150€"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "Prix: 150€ tout compris"; result != want {
		t.Errorf("got %q, want %q", result, want)
	}
}

func TestPatchBuilder_WordGranularity(t *testing.T) {
	base := "the quick brown fox jumps"
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "quick brown fox", Replace: "slow brown wolf"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{
		Author:      "editor",
		Granularity: domain.GranularityWord,
	})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "the slow brown wolf jumps"; result != want {
		t.Errorf("got %q, want %q", result, want)
	}

	// Word mode must emit whole-token deletes, never partial-word
	// fragments like the "ick"-for-"ow" splits a char diff produces.
	var sawDelete, sawInsert bool
	for _, op := range patch.Ops {
		if op.Kind == domain.OpDelete && op.Text == "quick" {
			sawDelete = true
		}
		if op.Kind == domain.OpInsert && op.Text == "slow" {
			sawInsert = true
		}
	}
	if !sawDelete || !sawInsert {
		t.Errorf("expected whole-word delete/insert, got %+v", patch.Ops)
	}
}

func TestPatchBuilder_NoHintsYieldsIdentity(t *testing.T) {
	base := "unchanged content"

	patch := mustBuild(t, base, nil, BuildOptions{Author: "editor"})

	if !patch.IsIdentity() {
		t.Errorf("expected identity patch, got %+v", patch.Ops)
	}
	if len(patch.Warnings) != 1 {
		t.Errorf("expected no-edits warning, got %v", patch.Warnings)
	}

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result != base {
		t.Errorf("identity patch changed content: %q", result)
	}
}

func TestPatchBuilder_OperationsAttributed(t *testing.T) {
	base := "old text"
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "old", Replace: "new"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{Author: "ai-editor"})

	for _, op := range patch.Ops {
		switch op.Kind {
		case domain.OpRetain:
			if op.Author != "" {
				t.Errorf("retain should not carry an author, got %q", op.Author)
			}
		default:
			if op.Author != "ai-editor" {
				t.Errorf("expected author ai-editor on %s, got %q", op.Kind, op.Author)
			}
			if op.Timestamp == nil {
				t.Errorf("expected timestamp on %s", op.Kind)
			}
		}
	}
}

// TestPatchBuilder_RoundTripDiff applies a built patch and re-diffs the
// result against the base: the recovered edit script must carry the same
// retain/insert/delete spans the builder emitted. Replacement texts share
// no characters with their targets so the minimal diff is unique.
func TestPatchBuilder_RoundTripDiff(t *testing.T) {
	base := "Rent is due in thirty days. Notice requires sixty days."
	hints := []domain.Hint{
		domain.ReplaceHint{Find: "thirty", Replace: "45"},
		domain.ReplaceHint{Find: "sixty", Replace: "90"},
	}

	patch := mustBuild(t, base, hints, BuildOptions{BaseVersion: 1, Author: "editor"})

	result, err := patch.Apply(base)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if want := "Rent is due in 45 days. Notice requires 90 days."; result != want {
		t.Fatalf("got %q, want %q", result, want)
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(base, result, false))

	recovered := make([]domain.Operation, 0, len(diffs))
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			recovered = append(recovered, domain.Retain(len(d.Text)))
		case diffmatchpatch.DiffInsert:
			recovered = append(recovered, domain.Operation{Kind: domain.OpInsert, Length: len(d.Text), Text: d.Text})
		case diffmatchpatch.DiffDelete:
			recovered = append(recovered, domain.Operation{Kind: domain.OpDelete, Length: len(d.Text), Text: d.Text})
		}
	}

	if len(recovered) != len(patch.Ops) {
		t.Fatalf("re-diff yields %d ops, patch has %d\nre-diff: %+v\npatch:   %+v",
			len(recovered), len(patch.Ops), recovered, patch.Ops)
	}
	for i, op := range patch.Ops {
		got := recovered[i]
		if got.Kind != op.Kind || got.Length != op.Length {
			t.Errorf("op %d: re-diff %s(%d), patch %s(%d)", i, got.Kind, got.Length, op.Kind, op.Length)
		}
		if op.Kind != domain.OpRetain && got.Text != op.Text {
			t.Errorf("op %d: re-diff text %q, patch text %q", i, got.Text, op.Text)
		}
	}
}

func TestSplitWords(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"one", []string{"one"}},
		{"one two", []string{"one", " ", "two"}},
		{"  leading", []string{"  ", "leading"}},
		{"a\n\nb", []string{"a", "\n\n", "b"}},
	}

	for _, tc := range cases {
		got := splitWords(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("splitWords(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		if strings.Join(got, "") != tc.in {
			t.Errorf("splitWords(%q) does not round-trip: %v", tc.in, got)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("splitWords(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}
