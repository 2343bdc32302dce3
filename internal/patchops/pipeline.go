package patchops

import (
	"sort"
	"sync"

	"github.com/custodia-labs/redline-core/internal/core/domain"
	"github.com/custodia-labs/redline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OperationPipeline = (*Pipeline)(nil)

// Pipeline implements OperationPipeline.
// It chains operation processors in order over a patch's op sequence.
// Every processor preserves the patch's effect: applying the output to
// the base content yields the same text as applying the input.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.OperationProcessor
	sorted     bool
}

// NewPipeline creates a new operation pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.OperationProcessor, 0),
	}
}

// Add registers a processor. The chain re-sorts by Order() on the
// next Run.
func (p *Pipeline) Add(processor driven.OperationProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Run applies all processors in order to the operation sequence.
func (p *Pipeline) Run(ops []domain.Operation) []domain.Operation {
	p.mu.Lock()
	if !p.sorted {
		sort.SliceStable(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	processors := make([]driven.OperationProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.Unlock()

	for _, proc := range processors {
		ops = proc.Process(ops)
	}
	return ops
}

// List returns processor names in pipeline order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline assembles the standard chain: drop no-ops, reorder
// deletes ahead of inserts, then coalesce.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Add(NewDropEmpty())
	p.Add(NewDeleteBeforeInsert())
	p.Add(NewCoalescer())
	return p
}

// DropEmpty removes operations that do nothing: zero-length retains and
// deletes, and empty inserts. Runs first so later processors see only
// meaningful operations.
type DropEmpty struct{}

// Verify interface compliance
var _ driven.OperationProcessor = (*DropEmpty)(nil)

// NewDropEmpty creates the empty-operation filter.
func NewDropEmpty() *DropEmpty {
	return &DropEmpty{}
}

// Process filters out no-op operations.
func (d *DropEmpty) Process(ops []domain.Operation) []domain.Operation {
	result := make([]domain.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Length <= 0 && op.Text == "" {
			continue
		}
		result = append(result, op)
	}
	return result
}

// Name identifies this processor in pipeline listings.
func (d *DropEmpty) Name() string {
	return "drop-empty"
}

// Order returns 0 - runs first.
func (d *DropEmpty) Order() int {
	return 0
}

// DeleteBeforeInsert reorders each adjacent run of insert/delete
// operations so the deletes come first. Tracked-changes rendering reads
// better when removed text precedes its replacement, and the swap is
// effect-preserving because neither op consumes what the other produces.
type DeleteBeforeInsert struct{}

// Verify interface compliance
var _ driven.OperationProcessor = (*DeleteBeforeInsert)(nil)

// NewDeleteBeforeInsert creates the delete-first reorderer.
func NewDeleteBeforeInsert() *DeleteBeforeInsert {
	return &DeleteBeforeInsert{}
}

// Process reorders deletes before inserts within each non-retain run.
func (d *DeleteBeforeInsert) Process(ops []domain.Operation) []domain.Operation {
	result := make([]domain.Operation, 0, len(ops))
	var inserts []domain.Operation

	flush := func() {
		result = append(result, inserts...)
		inserts = inserts[:0]
	}

	for _, op := range ops {
		switch op.Kind {
		case domain.OpInsert:
			inserts = append(inserts, op)
		case domain.OpDelete:
			result = append(result, op)
		default:
			flush()
			result = append(result, op)
		}
	}
	flush()

	return result
}

// Name identifies this processor in pipeline listings.
func (d *DeleteBeforeInsert) Name() string {
	return "delete-before-insert"
}

// Order returns 10 - runs after drop-empty.
func (d *DeleteBeforeInsert) Order() int {
	return 10
}

// Coalescer merges adjacent operations of the same kind. Retains always
// merge; inserts and deletes merge only when the author matches, since
// attribution is per operation.
type Coalescer struct{}

// Verify interface compliance
var _ driven.OperationProcessor = (*Coalescer)(nil)

// NewCoalescer creates the adjacent-operation merger.
func NewCoalescer() *Coalescer {
	return &Coalescer{}
}

// Process merges adjacent compatible operations.
func (c *Coalescer) Process(ops []domain.Operation) []domain.Operation {
	if len(ops) <= 1 {
		return ops
	}

	result := make([]domain.Operation, 0, len(ops))
	for _, op := range ops {
		if len(result) > 0 {
			last := &result[len(result)-1]
			if mergeable(*last, op) {
				last.Length += op.Length
				last.Text += op.Text
				continue
			}
		}
		result = append(result, op)
	}
	return result
}

func mergeable(a, b domain.Operation) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == domain.OpRetain {
		return true
	}
	return a.Author == b.Author
}

// Name identifies this processor in pipeline listings.
func (c *Coalescer) Name() string {
	return "coalescer"
}

// Order returns 20 - runs last.
func (c *Coalescer) Order() int {
	return 20
}
