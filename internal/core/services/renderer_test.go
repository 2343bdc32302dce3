package services

import (
	"strings"
	"testing"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
)

func rendererPatch() *domain.Patch {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Patch{
		BaseVersion: 1,
		Ops: []domain.Operation{
			domain.Retain(4),
			domain.Delete("quick", "ai-editor", at),
			domain.Insert("slow", "ai-editor", at),
			domain.Retain(4),
		},
		CreatedAt: at,
	}
}

func TestRenderer_HTML(t *testing.T) {
	r := NewTrackedChangeRenderer()

	out, err := r.Render(domain.NewSnapshot("the quick fox"), rendererPatch(), driving.RenderHTML)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	want := `the <del data-author="ai-editor" data-time="2025-06-01T12:00:00Z">quick</del>` +
		`<ins data-author="ai-editor" data-time="2025-06-01T12:00:00Z">slow</ins> fox`
	if out != want {
		t.Errorf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestRenderer_HTMLEscapesContent(t *testing.T) {
	r := NewTrackedChangeRenderer()

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	patch := &domain.Patch{
		BaseVersion: 1,
		Ops: []domain.Operation{
			domain.Retain(3),
			domain.Insert("<b>bold</b>", "a&b", at),
		},
	}

	out, err := r.Render(domain.NewSnapshot("1<2"), patch, driving.RenderHTML)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if strings.Contains(out, "<b>") {
		t.Errorf("inserted markup not escaped: %s", out)
	}
	if !strings.Contains(out, "1&lt;2") {
		t.Errorf("retained text not escaped: %s", out)
	}
	if !strings.Contains(out, `data-author="a&amp;b"`) {
		t.Errorf("author attribute not escaped: %s", out)
	}
}

func TestRenderer_Inline(t *testing.T) {
	r := NewTrackedChangeRenderer()

	out, err := r.Render(domain.NewSnapshot("the quick fox"), rendererPatch(), driving.RenderInline)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if want := "the [-quick][+slow] fox"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRenderer_Clean(t *testing.T) {
	r := NewTrackedChangeRenderer()

	out, err := r.Render(domain.NewSnapshot("the quick fox"), rendererPatch(), driving.RenderClean)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if want := "the slow fox"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRenderer_Deterministic(t *testing.T) {
	r := NewTrackedChangeRenderer()
	base := domain.NewSnapshot("the quick fox")
	patch := rendererPatch()

	first, err := r.Render(base, patch, driving.RenderHTML)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	second, err := r.Render(base, patch, driving.RenderHTML)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	if first != second {
		t.Error("rendering is not deterministic")
	}
}

func TestRenderer_PatchMustCoverBase(t *testing.T) {
	r := NewTrackedChangeRenderer()

	// Patch built for a 13-byte base rendered over a longer one.
	_, err := r.Render(domain.NewSnapshot("the quick fox jumps"), rendererPatch(), driving.RenderInline)
	if err == nil {
		t.Fatal("expected coverage error")
	}
}

func TestRenderer_UnknownFormat(t *testing.T) {
	r := NewTrackedChangeRenderer()

	_, err := r.Render(domain.NewSnapshot("x"), &domain.Patch{Ops: []domain.Operation{domain.Retain(1)}}, "pdf")
	if err == nil {
		t.Fatal("expected unknown format error")
	}
}
