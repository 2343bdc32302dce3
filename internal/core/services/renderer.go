package services

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driving"
)

// TrackedChangeRenderer renders a patch over its base content as an
// annotated view. Rendering is a pure function of (base, patch, format):
// it never mutates stored versions and the same inputs always produce the
// same output, which is what makes the render cache safe.
//
// Formats:
//   - html:   inserts become <ins>, deletes <del>, both carrying
//     data-author and data-time attributes; retained text is escaped.
//     Newlines are preserved for the caller to wrap (e.g. in <pre>).
//   - inline: inserts become [+text], deletes [-text], retains pass
//     through unchanged.
//   - clean:  all changes accepted; equivalent to applying the patch.
type TrackedChangeRenderer struct{}

// NewTrackedChangeRenderer creates a new renderer.
func NewTrackedChangeRenderer() *TrackedChangeRenderer {
	return &TrackedChangeRenderer{}
}

// Render produces the annotated view of patch over base.
func (r *TrackedChangeRenderer) Render(base domain.Snapshot, patch *domain.Patch, format driving.RenderFormat) (string, error) {
	if patch == nil {
		return "", domain.NewValidationError(domain.ValidationLengthMismatch, "no patch to render")
	}

	switch format {
	case driving.RenderHTML:
		return r.walk(base, patch, renderOpHTML)
	case driving.RenderInline:
		return r.walk(base, patch, renderOpInline)
	case driving.RenderClean:
		return patch.Apply(base.Content())
	default:
		return "", fmt.Errorf("%w: unknown render format %q", domain.ErrInvalidInput, format)
	}
}

// opRenderer emits one operation's contribution to the output.
type opRenderer func(sb *strings.Builder, op domain.Operation, retained string)

// walk runs the operations over base, handing each to render.
func (r *TrackedChangeRenderer) walk(base domain.Snapshot, patch *domain.Patch, render opRenderer) (string, error) {
	text := base.Content()
	var sb strings.Builder
	pos := 0

	for i, op := range patch.Ops {
		switch op.Kind {
		case domain.OpRetain:
			if op.Length <= 0 || pos+op.Length > len(text) {
				return "", domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: retain does not fit the base content", i)
			}
			render(&sb, op, text[pos:pos+op.Length])
			pos += op.Length

		case domain.OpInsert:
			render(&sb, op, "")

		case domain.OpDelete:
			if op.Length <= 0 || pos+op.Length > len(text) {
				return "", domain.NewValidationError(domain.ValidationLengthMismatch,
					"op %d: delete does not fit the base content", i)
			}
			render(&sb, op, "")
			pos += op.Length

		default:
			return "", domain.NewValidationError(domain.ValidationLengthMismatch,
				"op %d: unknown kind %q", i, op.Kind)
		}
	}

	if pos != len(text) {
		return "", domain.NewValidationError(domain.ValidationLengthMismatch,
			"operations cover %d of %d bytes", pos, len(text))
	}

	return sb.String(), nil
}

func renderOpHTML(sb *strings.Builder, op domain.Operation, retained string) {
	switch op.Kind {
	case domain.OpRetain:
		sb.WriteString(html.EscapeString(retained))
	case domain.OpInsert:
		sb.WriteString("<ins")
		writeChangeAttrs(sb, op)
		sb.WriteString(">")
		sb.WriteString(html.EscapeString(op.Text))
		sb.WriteString("</ins>")
	case domain.OpDelete:
		sb.WriteString("<del")
		writeChangeAttrs(sb, op)
		sb.WriteString(">")
		sb.WriteString(html.EscapeString(op.Text))
		sb.WriteString("</del>")
	}
}

func writeChangeAttrs(sb *strings.Builder, op domain.Operation) {
	if op.Author != "" {
		sb.WriteString(` data-author="`)
		sb.WriteString(html.EscapeString(op.Author))
		sb.WriteString(`"`)
	}
	if op.Timestamp != nil {
		sb.WriteString(` data-time="`)
		sb.WriteString(op.Timestamp.UTC().Format(time.RFC3339))
		sb.WriteString(`"`)
	}
}

func renderOpInline(sb *strings.Builder, op domain.Operation, retained string) {
	switch op.Kind {
	case domain.OpRetain:
		sb.WriteString(retained)
	case domain.OpInsert:
		sb.WriteString("[+")
		sb.WriteString(op.Text)
		sb.WriteString("]")
	case domain.OpDelete:
		sb.WriteString("[-")
		sb.WriteString(op.Text)
		sb.WriteString("]")
	}
}
