package suggestions

import (
	"encoding/json"
	"strings"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// replaceEntry is the wire form of one find/replace suggestion. The
// canonical field names are original_text/replacement_text; find/replace
// is accepted as a common deviation.
type replaceEntry struct {
	OriginalText    *string `json:"original_text"`
	ReplacementText *string `json:"replacement_text"`
	Find            *string `json:"find"`
	Replace         *string `json:"replace"`
	Reasoning       string  `json:"reasoning"`
	Note            string  `json:"note"`
}

func (e *replaceEntry) toHint() (domain.Hint, bool) {
	note := e.Reasoning
	if note == "" {
		note = e.Note
	}
	switch {
	case e.OriginalText != nil:
		replace := ""
		if e.ReplacementText != nil {
			replace = *e.ReplacementText
		}
		return domain.ReplaceHint{Find: *e.OriginalText, Replace: replace, Note: note}, true
	case e.Find != nil:
		replace := ""
		if e.Replace != nil {
			replace = *e.Replace
		}
		return domain.ReplaceHint{Find: *e.Find, Replace: replace, Note: note}, true
	default:
		return nil, false
	}
}

// spliceEntry is the wire form of one position-addressed suggestion.
type spliceEntry struct {
	Position     *int   `json:"position"`
	DeleteLength int    `json:"delete_length"`
	Insert       string `json:"insert"`
	Note         string `json:"note"`
	Reasoning    string `json:"reasoning"`
}

func (e *spliceEntry) toHint() (domain.Hint, bool) {
	if e.Position == nil {
		return nil, false
	}
	note := e.Note
	if note == "" {
		note = e.Reasoning
	}
	return domain.SpliceHint{
		Position:     *e.Position,
		DeleteLength: e.DeleteLength,
		Insert:       e.Insert,
		Note:         note,
	}, true
}

// EditsObjectDecoder handles the canonical collaborator response: a JSON
// object with an "edits" array of original_text/replacement_text entries.
// This is the shape the collaborator prompt asks for.
type EditsObjectDecoder struct{}

// Verify interface compliance
var _ driven.SuggestionDecoder = (*EditsObjectDecoder)(nil)

func (d *EditsObjectDecoder) Decode(raw string) ([]domain.Hint, bool, error) {
	return decodeEditsObject(raw)
}

func (d *EditsObjectDecoder) Name() string {
	return "edits-object"
}

func (d *EditsObjectDecoder) Priority() int {
	return 100 // Canonical format - tried first
}

// decodeEditsObject parses a {"edits": [...]} object. Shared with the
// fenced decoder, which strips the code fence and retries the canonical
// shapes on the inner text.
func decodeEditsObject(raw string) ([]domain.Hint, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
		return nil, false, nil
	}

	editsRaw, found := envelope["edits"]
	if !found {
		return nil, false, nil
	}

	var entries []replaceEntry
	if err := json.Unmarshal(editsRaw, &entries); err != nil {
		return nil, true, domain.NewBuildError(domain.BuildMalformedSuggestion, "edits is not an array of edit objects: %v", err)
	}

	hints := make([]domain.Hint, 0, len(entries))
	for i, entry := range entries {
		hint, ok := entry.toHint()
		if !ok {
			return nil, true, domain.NewBuildError(domain.BuildMalformedSuggestion, "edit %d has no original_text", i)
		}
		hints = append(hints, hint)
	}
	return hints, true, nil
}

// FencedJSONDecoder handles canonical responses wrapped in a markdown
// code fence, which chat models emit even when asked not to.
type FencedJSONDecoder struct{}

// Verify interface compliance
var _ driven.SuggestionDecoder = (*FencedJSONDecoder)(nil)

func (d *FencedJSONDecoder) Decode(raw string) ([]domain.Hint, bool, error) {
	inner, found := extractFencedBlock(raw)
	if !found {
		return nil, false, nil
	}

	if hints, ok, err := decodeEditsObject(inner); ok {
		return hints, true, err
	}
	if hints, ok, err := decodeReplaceArray(inner); ok {
		return hints, true, err
	}

	// A fence whose body is valid JSON of some other shape is a
	// recognized-but-wrong response; a fence around prose is not ours.
	if json.Valid([]byte(strings.TrimSpace(inner))) {
		return nil, true, domain.NewBuildError(domain.BuildMalformedSuggestion, "fenced JSON is not an edits object or array")
	}
	return nil, false, nil
}

func (d *FencedJSONDecoder) Name() string {
	return "fenced-json"
}

func (d *FencedJSONDecoder) Priority() int {
	return 80
}

// extractFencedBlock returns the body of the first markdown code fence.
func extractFencedBlock(raw string) (string, bool) {
	start := strings.Index(raw, "```")
	if start == -1 {
		return "", false
	}

	body := raw[start+3:]
	// Drop an optional language tag on the opening line.
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(body[:nl])
		if firstLine == "" || isFenceLanguageTag(firstLine) {
			body = body[nl+1:]
		}
	}

	end := strings.Index(body, "```")
	if end == -1 {
		return "", false
	}
	return body[:end], true
}

func isFenceLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// FindReplaceArrayDecoder handles a bare JSON array of find/replace
// entries, a common deviation where the model skips the envelope object.
type FindReplaceArrayDecoder struct{}

// Verify interface compliance
var _ driven.SuggestionDecoder = (*FindReplaceArrayDecoder)(nil)

func (d *FindReplaceArrayDecoder) Decode(raw string) ([]domain.Hint, bool, error) {
	return decodeReplaceArray(raw)
}

func (d *FindReplaceArrayDecoder) Name() string {
	return "find-replace-array"
}

func (d *FindReplaceArrayDecoder) Priority() int {
	return 60
}

func decodeReplaceArray(raw string) ([]domain.Hint, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, false, nil
	}

	var entries []replaceEntry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, false, nil
	}
	if len(entries) == 0 {
		return []domain.Hint{}, true, nil
	}

	// Claim the array only if the first entry carries replace fields;
	// otherwise leave it for the splice decoder.
	if _, ok := entries[0].toHint(); !ok {
		return nil, false, nil
	}

	hints := make([]domain.Hint, 0, len(entries))
	for i, entry := range entries {
		hint, ok := entry.toHint()
		if !ok {
			return nil, true, domain.NewBuildError(domain.BuildMalformedSuggestion, "entry %d has no original_text", i)
		}
		hints = append(hints, hint)
	}
	return hints, true, nil
}

// SpliceDecoder handles position-addressed suggestions: an object with a
// "splices" array, or a bare array of {"position", ...} entries.
type SpliceDecoder struct{}

// Verify interface compliance
var _ driven.SuggestionDecoder = (*SpliceDecoder)(nil)

func (d *SpliceDecoder) Decode(raw string) ([]domain.Hint, bool, error) {
	trimmed := strings.TrimSpace(raw)

	var entriesRaw json.RawMessage
	switch {
	case strings.HasPrefix(trimmed, "{"):
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil {
			return nil, false, nil
		}
		splices, found := envelope["splices"]
		if !found {
			return nil, false, nil
		}
		entriesRaw = splices
	case strings.HasPrefix(trimmed, "["):
		entriesRaw = json.RawMessage(trimmed)
	default:
		return nil, false, nil
	}

	var entries []spliceEntry
	if err := json.Unmarshal(entriesRaw, &entries); err != nil {
		return nil, false, nil
	}
	if len(entries) == 0 {
		return []domain.Hint{}, true, nil
	}
	if _, ok := entries[0].toHint(); !ok {
		return nil, false, nil
	}

	hints := make([]domain.Hint, 0, len(entries))
	for i, entry := range entries {
		hint, ok := entry.toHint()
		if !ok {
			return nil, true, domain.NewBuildError(domain.BuildMalformedSuggestion, "splice %d has no position", i)
		}
		hints = append(hints, hint)
	}
	return hints, true, nil
}

func (d *SpliceDecoder) Name() string {
	return "splice"
}

func (d *SpliceDecoder) Priority() int {
	return 40
}
