package suggestions

import (
	"sort"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SuggestionRegistry = (*Registry)(nil)

// Registry implements SuggestionRegistry with priority-ordered decoding.
// Decoders are tried from highest priority to lowest; the first one that
// recognizes the raw output wins, even if it then reports the content as
// malformed. Falling through to a looser decoder after a positive match
// would mean guessing at what the collaborator meant.
type Registry struct {
	mu       sync.RWMutex
	decoders []driven.SuggestionDecoder
	sorted   bool
}

// NewRegistry creates a new suggestion decoder registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders: make([]driven.SuggestionDecoder, 0),
	}
}

// Register registers a decoder.
func (r *Registry) Register(decoder driven.SuggestionDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.decoders = append(r.decoders, decoder)
	r.sorted = false
}

// Decode runs the decoders in priority order against raw collaborator
// output. ok is false when no decoder recognized the shape.
func (r *Registry) Decode(raw string) ([]domain.Hint, string, bool, error) {
	for _, d := range r.ordered() {
		hints, ok, err := d.Decode(raw)
		if !ok {
			continue
		}
		return hints, d.Name(), true, err
	}
	return nil, "", false, nil
}

// List returns registered decoder names in priority order.
func (r *Registry) List() []string {
	decoders := r.ordered()
	names := make([]string, len(decoders))
	for i, d := range decoders {
		names[i] = d.Name()
	}
	return names
}

// ordered returns a snapshot of the decoders sorted by priority,
// highest first.
func (r *Registry) ordered() []driven.SuggestionDecoder {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sorted {
		sort.SliceStable(r.decoders, func(i, j int) bool {
			return r.decoders[i].Priority() > r.decoders[j].Priority()
		})
		r.sorted = true
	}

	snapshot := make([]driven.SuggestionDecoder, len(r.decoders))
	copy(snapshot, r.decoders)
	return snapshot
}

// DefaultRegistry creates a registry with the built-in decoders registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&EditsObjectDecoder{})
	r.Register(&FencedJSONDecoder{})
	r.Register(&FindReplaceArrayDecoder{})
	r.Register(&SpliceDecoder{})

	return r
}
