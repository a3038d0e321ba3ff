// Package operator implements the polymorphic composition protocol by which
// pipeline authors chain processing units into a growing segment, plus the
// generic single-actor operator family.
package operator

import (
	"fmt"

	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/task"
)

// Composable is anything that can be expanded into a fresh segment. Every
// Expand call must build a new graph: composables are recipes, not graphs.
type Composable interface {
	Expand() (*flow.Segment, error)
}

// Operator composes itself onto the segment produced by the left side.
// Compose must be pure with respect to the caller: the only shared mutable
// state it may introduce is an explicit worker state slot.
type Operator interface {
	Compose(left Composable) (*flow.Segment, error)
}

// origin is the neutral element of composition: a segment of three unbound
// placeholder paths waiting to be attached to a source.
type origin struct{}

// Origin returns the empty left side an operator chain starts from.
func Origin() Composable { return origin{} }

func (origin) Expand() (*flow.Segment, error) {
	return flow.NewSegment(
		flow.NewPath(flow.NewFuture()),
		flow.NewPath(flow.NewFuture()),
		flow.NewPath(flow.NewFuture()),
	)
}

// chain is the left-associative composition of a composable with an
// operator; A >> B >> C is Chain(A, B, C).
type chain struct {
	left Composable
	op   Operator
}

func (c chain) Expand() (*flow.Segment, error) {
	return c.op.Compose(c.left)
}

// Chain composes the given operators onto the left side in order. The result
// is itself composable, so chains nest associatively: composing A then
// (B >> C) equals composing (A >> B) then C.
func Chain(left Composable, ops ...Operator) Composable {
	for _, op := range ops {
		left = chain{left: left, op: op}
	}
	return left
}

// Pipeline lifts an operator sequence rooted at Origin into a composable.
func Pipeline(ops ...Operator) Composable {
	return Chain(Origin(), ops...)
}

// source expands into a segment whose train and apply paths are fed by the
// per-mode extraction workers. With a single spec the two entries are
// state-identical forks of one worker; a mode-split source gets an
// independent worker per mode. The label path stays a placeholder: labels
// only exist once a Labeler splits them off the training data.
type source struct {
	train task.Spec
	apply *task.Spec
}

// Source returns a composable extraction stage evaluating the given actor
// spec in both modes. The spec must take no input and produce a single
// output.
func Source(spec task.Spec) Composable {
	return source{train: spec}
}

// SplitSource returns an extraction stage with distinct train and apply
// queries, for feeds whose training data carries columns (typically the
// label) that the application stream does not.
func SplitSource(train, apply task.Spec) Composable {
	return source{train: train, apply: &apply}
}

func (s source) Expand() (*flow.Segment, error) {
	train, err := sourceWorker(s.train)
	if err != nil {
		return nil, err
	}
	var apply *flow.Worker
	if s.apply == nil {
		apply = train.Fork()
	} else if apply, err = sourceWorker(*s.apply); err != nil {
		return nil, err
	}
	return flow.NewSegment(
		flow.NewPath(train),
		flow.NewPath(apply),
		flow.NewPath(flow.NewFuture()),
	)
}

func sourceWorker(spec task.Spec) (*flow.Worker, error) {
	if spec.SzIn != 0 || spec.SzOut != 1 {
		return nil, fmt.Errorf("%w: source actor must have shape (0, 1), got (%d, %d)",
			flow.ErrInvalidOperator, spec.SzIn, spec.SzOut)
	}
	return flow.NewWorker(spec)
}
