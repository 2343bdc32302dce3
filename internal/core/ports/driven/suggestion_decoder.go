package driven

import (
	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// SuggestionDecoder recognizes one shape of collaborator output and turns
// it into edit hints. Decoders never guess: a decoder either positively
// recognizes the raw text and returns hints, or it declines and the
// registry tries the next one.
type SuggestionDecoder interface {
	// Decode attempts to extract hints from raw collaborator output.
	// ok is false when the decoder does not recognize the shape at all;
	// a recognized shape with invalid content returns ok=true and an error.
	Decode(raw string) (hints []domain.Hint, ok bool, err error)

	// Name returns the decoder name for audit trails and logging.
	Name() string

	// Priority returns the decoder priority (higher = tried first).
	// Priority ranges:
	//   90-100: Canonical formats the collaborator is prompted to emit
	//   50-89:  Common deviations (fenced blocks, wrapper objects)
	//   10-49:  Loose formats (bare arrays, alternate field names)
	//   1-9:    Last-resort formats
	Priority() int
}

// SuggestionRegistry holds the decoders and runs them in priority order.
type SuggestionRegistry interface {
	// Decode runs the decoders in priority order and returns the hints
	// from the first one that recognizes the raw output, along with that
	// decoder's name. ok is false when no decoder recognized it.
	Decode(raw string) (hints []domain.Hint, decoder string, ok bool, err error)

	// Register registers a decoder.
	Register(decoder SuggestionDecoder)

	// List returns registered decoder names in priority order.
	List() []string
}
