package driven

import (
	"github.com/custodia-labs/redline-core/internal/core/domain"
)

// OperationProcessor rewrites a patch's operation sequence without
// changing what the patch does. Processors form a pipeline that runs
// after the builder emits raw operations: drop empties, order deletes
// before inserts, coalesce runs.
type OperationProcessor interface {
	// Process rewrites the operation sequence. The output must apply to
	// the same base content with the same result as the input.
	Process(ops []domain.Operation) []domain.Operation

	// Name identifies the processor in logs and listings.
	Name() string

	// Order positions the processor in the chain; lower runs earlier.
	Order() int
}

// OperationPipeline chains operation processors in order.
type OperationPipeline interface {
	// Run applies all processors in order to the operation sequence.
	Run(ops []domain.Operation) []domain.Operation

	// Add registers a processor; the chain re-sorts by Order() before
	// the next Run.
	Add(processor OperationProcessor)

	// List returns processor names in pipeline order.
	List() []string
}
