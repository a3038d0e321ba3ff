package flow

import "fmt"

// Future is a placeholder vertex used to wire a path before its ultimate
// producer is known. It carries no computation: once its single input is
// bound, traversal passes straight through it; an unbound future reached by
// the compiler is a hard error.
type Future struct {
	ports
}

// NewFuture creates an unbound placeholder with one input and one output.
func NewFuture() *Future {
	f := &Future{}
	p, err := newPorts(f, 1, 1)
	if err != nil {
		panic(err)
	}
	f.ports = p
	return f
}

// SzIn implements Node.
func (f *Future) SzIn() int { return 1 }

// SzOut implements Node.
func (f *Future) SzOut() int { return 1 }

// Input implements Node.
func (f *Future) Input(index int) (*Input, error) { return f.input(f, index) }

// Output implements Node.
func (f *Future) Output(index int) (*Output, error) { return f.output(f, index) }

// Resolved reports whether the placeholder has been bound to a producer.
func (f *Future) Resolved() bool { return f.in[0].Bound() }

// String implements fmt.Stringer.
func (f *Future) String() string {
	if f.Resolved() {
		return fmt.Sprintf("future(%s)", f.in[0].source.owner)
	}
	return "future(unbound)"
}
