// Package compiler lowers a composed segment into an ordered, dependency
// respecting sequence of symbols bound to persisted actor state. The linear
// order is always a valid topological order of the symbol DAG; every
// structural defect (cycles, unresolved placeholders, arity mismatches) is
// reported here, never at execution time.
package compiler

import (
	"context"
	"fmt"

	"github.com/latticeml/lattice/pkg/asset"
	"github.com/latticeml/lattice/pkg/task"
)

// ArgumentKind distinguishes literal arguments from references to earlier
// symbols.
type ArgumentKind int

const (
	// ArgumentReference points at an output of an earlier symbol.
	ArgumentReference ArgumentKind = iota
	// ArgumentLiteral carries an inline value.
	ArgumentLiteral
)

// Argument is one input of a symbol: either a literal value or a positional
// reference to an earlier symbol's output port. References never point
// forward.
type Argument struct {
	Kind     ArgumentKind
	Position int
	Port     int
	Value    any
}

// Reference builds an argument referring to the given output port of the
// symbol at position.
func Reference(position, port int) Argument {
	return Argument{Kind: ArgumentReference, Position: position, Port: port}
}

// Literal builds an inline argument.
func Literal(value any) Argument {
	return Argument{Kind: ArgumentLiteral, Value: value}
}

// Symbol is one compiled instruction plus its resolved arguments. After
// lists positions of symbols that must complete before this one without
// feeding it data: the compiler emits such an edge from a stateful
// application to the train entry of its group, so no schedule can read a
// state slot ahead of the commit that fills it.
type Symbol struct {
	Instruction Instruction
	Arguments   []Argument
	After       []int
}

// Instruction is the executable unit of a symbol. Invoke receives one value
// per argument and returns one value per output port.
type Instruction interface {
	fmt.Stringer
	Invoke(ctx context.Context, args []any) ([]any, error)
}

// Apply is the application entry of a worker: it instantiates the actor,
// restores persisted state for stateful specs and produces the actor's
// outputs.
type Apply struct {
	spec     task.Spec
	registry *task.Registry
	state    asset.Handle
}

// Spec returns the actor specification this instruction executes.
func (a *Apply) Spec() task.Spec { return a.spec }

// State returns the bound persisted-state handle, nil for stateless specs.
func (a *Apply) State() asset.Handle { return a.state }

// String implements fmt.Stringer.
func (a *Apply) String() string { return a.spec.String() }

// Invoke implements Instruction.
func (a *Apply) Invoke(ctx context.Context, args []any) ([]any, error) {
	if len(args) != a.spec.SzIn {
		return nil, fmt.Errorf("instruction %s expects %d arguments, got %d", a, a.spec.SzIn, len(args))
	}
	actor, err := a.registry.New(a.spec)
	if err != nil {
		return nil, err
	}
	if a.state != nil {
		a.state.Lock()
		snapshot, err := a.state.Load()
		a.state.Unlock()
		if err != nil {
			return nil, fmt.Errorf("instruction %s: loading state: %w", a, err)
		}
		stateful, ok := actor.(task.Stateful)
		if !ok {
			return nil, fmt.Errorf("instruction %s: actor does not implement task.Stateful", a)
		}
		if err := stateful.SetState(snapshot); err != nil {
			return nil, fmt.Errorf("instruction %s: restoring state: %w", a, err)
		}
	}
	outputs, err := actor.Apply(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("instruction %s: %w", a, err)
	}
	if len(outputs) != a.spec.SzOut {
		return nil, fmt.Errorf("instruction %s produced %d outputs, want %d", a, len(outputs), a.spec.SzOut)
	}
	return outputs, nil
}

// Train is the training entry of a worker: it restores persisted state, fits
// the actor on the features/labels pair and commits the new state snapshot.
// The commit is all-or-nothing: a failed training never persists.
type Train struct {
	spec     task.Spec
	registry *task.Registry
	state    asset.Handle
}

// Spec returns the actor specification this instruction trains.
func (t *Train) Spec() task.Spec { return t.spec }

// State returns the bound persisted-state handle, nil when compiled without
// an accessor.
func (t *Train) State() asset.Handle { return t.state }

// String implements fmt.Stringer.
func (t *Train) String() string { return t.spec.String() + "#train" }

// Invoke implements Instruction.
func (t *Train) Invoke(ctx context.Context, args []any) ([]any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("instruction %s expects features and labels, got %d arguments", t, len(args))
	}
	actor, err := t.registry.New(t.spec)
	if err != nil {
		return nil, err
	}
	trainable, ok := actor.(task.Trainable)
	if !ok {
		return nil, fmt.Errorf("instruction %s: actor does not implement task.Trainable", t)
	}
	stateful, ok := actor.(task.Stateful)
	if !ok {
		return nil, fmt.Errorf("instruction %s: actor does not implement task.Stateful", t)
	}
	if t.state != nil {
		t.state.Lock()
		defer t.state.Unlock()
		snapshot, err := t.state.Load()
		if err != nil {
			return nil, fmt.Errorf("instruction %s: loading state: %w", t, err)
		}
		if err := stateful.SetState(snapshot); err != nil {
			return nil, fmt.Errorf("instruction %s: restoring state: %w", t, err)
		}
	}
	if err := trainable.Train(ctx, args[0], args[1]); err != nil {
		return nil, fmt.Errorf("instruction %s: %w", t, err)
	}
	if t.state != nil {
		snapshot, err := stateful.State()
		if err != nil {
			return nil, fmt.Errorf("instruction %s: snapshotting state: %w", t, err)
		}
		if err := t.state.Save(snapshot); err != nil {
			return nil, fmt.Errorf("instruction %s: committing state: %w", t, err)
		}
	}
	return nil, nil
}
