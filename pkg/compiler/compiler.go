package compiler

import (
	"fmt"

	"github.com/latticeml/lattice/pkg/asset"
	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/task"
)

// Mode selects which modal view of a segment is linearized.
type Mode string

const (
	// ModeTrain compiles the training view: trainers become the roots and
	// everything not feeding a trainer is pruned.
	ModeTrain Mode = "train"
	// ModeApply compiles the application view rooted at the apply publisher.
	ModeApply Mode = "apply"
	// ModeEval compiles the training view together with the train publisher,
	// so metric chains hanging off the train path materialize alongside the
	// trainers.
	ModeEval Mode = "eval"
)

// Compiler linearizes segments into symbol sequences, instantiating actors
// through its task registry.
type Compiler struct {
	registry *task.Registry
}

// New returns a compiler backed by the given actor registry.
func New(registry *task.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Generate compiles the requested modal view of the segment into an ordered
// symbol sequence. Stateful workers are bound to handles from the state
// accessor; a nil accessor compiles without state, which is only useful for
// rendering. Two calls over the same segment produce identical sequences.
func (c *Compiler) Generate(segment *flow.Segment, mode Mode, state asset.State) ([]Symbol, error) {
	roots, err := roots(segment, mode)
	if err != nil {
		return nil, err
	}
	t := &traversal{
		registry: c.registry,
		state:    state,
		index:    make(map[flow.Node]int),
		active:   make(map[flow.Node]bool),
		trainers: make(map[string]flow.Node),
	}
	if mode == ModeTrain || mode == ModeEval {
		for _, trainer := range trainers(segment) {
			if worker, ok := trainer.(*flow.Worker); ok {
				t.trainers[worker.StateKey()] = trainer
			}
		}
	}
	for _, root := range roots {
		if _, err := t.node(root); err != nil {
			return nil, err
		}
	}
	return t.symbols, nil
}

// roots picks the sink nodes the backward traversal starts from. In apply
// mode that is the apply publisher. In train mode it is every train entry
// discovered downstream of the train and label heads; a segment with no
// train entries (nothing to fit) falls back to the train and label
// publishers so the pipeline still materializes.
func roots(segment *flow.Segment, mode Mode) ([]flow.Node, error) {
	switch mode {
	case ModeApply:
		return []flow.Node{segment.Apply().Tail()}, nil
	case ModeTrain:
		if trainers := trainers(segment); len(trainers) > 0 {
			return trainers, nil
		}
		return []flow.Node{segment.Train().Tail(), segment.Label().Tail()}, nil
	case ModeEval:
		// Trainers first, so their symbols precede the holdout applications
		// sharing their state slots in the emitted order.
		return append(trainers(segment), segment.Train().Tail()), nil
	default:
		return nil, fmt.Errorf("compiler: unknown mode %q", mode)
	}
}

// trainers walks forward from the train and label heads collecting train
// entries in deterministic encounter order.
func trainers(segment *flow.Segment) []flow.Node {
	var found []flow.Node
	seen := make(map[flow.Node]bool)
	var visit func(n flow.Node)
	visit = func(n flow.Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		if worker, ok := n.(*flow.Worker); ok && worker.IsTrainer() {
			found = append(found, n)
		}
		for i := 0; i < n.SzOut(); i++ {
			out, err := n.Output(i)
			if err != nil {
				continue
			}
			for _, subscriber := range out.Subscribers() {
				visit(subscriber.Owner())
			}
		}
	}
	visit(segment.Train().Head())
	visit(segment.Label().Head())
	return found
}

// traversal is one Generate run: a memoized post-order walk backward from
// the roots, emitting each node exactly once after all of its producers.
// In the training modes it also knows the train entry of every state group,
// so applications of fitted state can be ordered behind their commit.
type traversal struct {
	registry *task.Registry
	state    asset.State
	symbols  []Symbol
	index    map[flow.Node]int
	active   map[flow.Node]bool
	trainers map[string]flow.Node
}

// node returns the symbol position of n, emitting it first if necessary.
// Futures are transparent: they resolve to their bound producer and never
// emit a symbol of their own.
func (t *traversal) node(n flow.Node) (int, error) {
	if future, ok := n.(*flow.Future); ok {
		out, err := future.Output(0)
		if err != nil {
			return 0, err
		}
		producer, err := flow.ResolveProducer(out)
		if err != nil {
			return 0, err
		}
		return t.node(producer.Owner())
	}
	if position, ok := t.index[n]; ok {
		return position, nil
	}
	if t.active[n] {
		return 0, fmt.Errorf("%w: through %s", flow.ErrCycle, n)
	}
	t.active[n] = true
	defer delete(t.active, n)

	arguments := make([]Argument, 0, n.SzIn())
	for i := 0; i < n.SzIn(); i++ {
		in, err := n.Input(i)
		if err != nil {
			return 0, err
		}
		source := in.Source()
		if source == nil {
			return 0, fmt.Errorf("%w: input %d of %s has no producer", flow.ErrArity, i, n)
		}
		producer, err := flow.ResolveProducer(source)
		if err != nil {
			return 0, err
		}
		position, err := t.node(producer.Owner())
		if err != nil {
			return 0, err
		}
		arguments = append(arguments, Reference(position, producer.Index()))
	}

	worker, ok := n.(*flow.Worker)
	if !ok {
		return 0, fmt.Errorf("compiler: cannot lower node %s", n)
	}

	// A stateful application reads the slot its group's train entry commits,
	// a dependency no data edge captures. Emitting the trainer first and
	// recording an ordering reference keeps every schedule honoring argument
	// references from observing unfitted state.
	var after []int
	if worker.Spec().Stateful && !worker.IsTrainer() {
		if trainer, ok := t.trainers[worker.StateKey()]; ok {
			position, err := t.node(trainer)
			if err != nil {
				return 0, err
			}
			after = append(after, position)
		}
	}

	instruction, err := t.instruction(worker)
	if err != nil {
		return 0, err
	}
	position := len(t.symbols)
	t.symbols = append(t.symbols, Symbol{Instruction: instruction, Arguments: arguments, After: after})
	t.index[n] = position
	return position, nil
}

func (t *traversal) instruction(worker *flow.Worker) (Instruction, error) {
	spec := worker.Spec()
	var handle asset.Handle
	if spec.Stateful && t.state != nil {
		var err error
		handle, err = t.state.Get(worker.StateKey())
		if err != nil {
			return nil, fmt.Errorf("compiler: state for %s: %w", worker, err)
		}
	}
	if worker.IsTrainer() {
		return &Train{spec: spec, registry: t.registry, state: handle}, nil
	}
	return &Apply{spec: spec, registry: t.registry, state: handle}, nil
}
