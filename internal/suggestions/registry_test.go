package suggestions

import (
	"testing"

	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// Mock decoder for testing
type mockDecoder struct {
	name     string
	priority int
	hints    []domain.Hint
	ok       bool
	err      error
}

func (m *mockDecoder) Decode(raw string) ([]domain.Hint, bool, error) {
	return m.hints, m.ok, m.err
}

func (m *mockDecoder) Name() string {
	return m.name
}

func (m *mockDecoder) Priority() int {
	return m.priority
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("expected non-nil registry")
	}
}

func TestRegistry_Decode_PriorityOrder(t *testing.T) {
	r := NewRegistry()

	low := &mockDecoder{name: "low", priority: 10, ok: true, hints: []domain.Hint{domain.ReplaceHint{Find: "low"}}}
	high := &mockDecoder{name: "high", priority: 90, ok: true, hints: []domain.Hint{domain.ReplaceHint{Find: "high"}}}

	// Register in reverse order
	r.Register(low)
	r.Register(high)

	hints, decoder, ok, err := r.Decode("anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if decoder != "high" {
		t.Errorf("expected high priority decoder, got %s", decoder)
	}
	if len(hints) != 1 {
		t.Fatalf("expected 1 hint, got %d", len(hints))
	}
	if hints[0].(domain.ReplaceHint).Find != "high" {
		t.Errorf("expected hint from high decoder, got %v", hints[0])
	}
}

func TestRegistry_Decode_FallsThroughUnrecognized(t *testing.T) {
	r := NewRegistry()

	r.Register(&mockDecoder{name: "first", priority: 90, ok: false})
	r.Register(&mockDecoder{name: "second", priority: 50, ok: true})

	_, decoder, ok, err := r.Decode("anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if decoder != "second" {
		t.Errorf("expected fall-through to second decoder, got %s", decoder)
	}
}

func TestRegistry_Decode_StopsOnRecognizedError(t *testing.T) {
	r := NewRegistry()

	decodeErr := domain.NewBuildError(domain.BuildMalformedSuggestion, "bad entry")
	r.Register(&mockDecoder{name: "strict", priority: 90, ok: true, err: decodeErr})
	r.Register(&mockDecoder{name: "loose", priority: 50, ok: true})

	_, decoder, ok, err := r.Decode("anything")
	if !ok {
		t.Fatal("expected shape to be recognized")
	}
	if decoder != "strict" {
		t.Errorf("expected strict decoder to claim the input, got %s", decoder)
	}
	if err == nil {
		t.Fatal("expected the recognized decoder's error to propagate")
	}
}

func TestRegistry_Decode_NoMatch(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockDecoder{name: "never", priority: 50, ok: false})

	_, _, ok, err := r.Decode("anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no decoder to match")
	}
}

func TestRegistry_List(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockDecoder{name: "b", priority: 10})
	r.Register(&mockDecoder{name: "a", priority: 90})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("expected 2 decoders, got %d", len(names))
	}
	if names[0] != "a" || names[1] != "b" {
		t.Errorf("expected priority order [a b], got %v", names)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	names := r.List()
	if len(names) != 4 {
		t.Fatalf("expected 4 built-in decoders, got %d", len(names))
	}
	if names[0] != "edits-object" {
		t.Errorf("expected edits-object first, got %s", names[0])
	}
}
