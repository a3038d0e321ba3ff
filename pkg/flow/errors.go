package flow

import "errors"

// Composition and compilation errors. All are raised synchronously while
// building or compiling a graph; none may surface during execution.
var (
	// ErrArity reports a port index or argument count outside a node's
	// declared shape.
	ErrArity = errors.New("arity mismatch")

	// ErrAlreadyBound reports a second subscription on an input port.
	ErrAlreadyBound = errors.New("input port already bound")

	// ErrUnresolvedFuture reports a placeholder node with an unbound input
	// reached during compilation.
	ErrUnresolvedFuture = errors.New("unresolved future")

	// ErrCycle reports a dependency cycle discovered during traversal.
	ErrCycle = errors.New("graph cycle detected")

	// ErrInvalidOperator reports structural misuse of an operator, such as a
	// consumer wrapping a stateless actor.
	ErrInvalidOperator = errors.New("invalid operator")

	// ErrLabelLeakage reports an apply path reaching nodes that are only
	// reachable through the label path.
	ErrLabelLeakage = errors.New("label leakage into apply path")
)
