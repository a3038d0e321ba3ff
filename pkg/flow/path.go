package flow

import "fmt"

// Path is a single-mode view over the graph with one designated publisher
// (the tail's first output) and a head insertion point at which the path can
// be prefixed or subscribed. Paths are persistent: Extend and Copy return new
// views and never change the receiver.
type Path struct {
	head Node
	tail Node
}

// NewPath returns a path consisting of the single given node.
func NewPath(node Node) *Path {
	return &Path{head: node, tail: node}
}

// Head returns the path entry node.
func (p *Path) Head() Node { return p.head }

// Tail returns the path terminal node.
func (p *Path) Tail() Node { return p.tail }

// Publisher returns the path's externally visible result port.
func (p *Path) Publisher() (*Output, error) {
	out, err := p.tail.Output(0)
	if err != nil {
		return nil, fmt.Errorf("path of %s has no publisher: %w", p.tail, err)
	}
	return out, nil
}

// Subscribe binds the path head's first input to the given publisher,
// attaching this path downstream of another producer.
func (p *Path) Subscribe(publisher *Output) error {
	in, err := p.head.Input(0)
	if err != nil {
		return err
	}
	return in.Subscribe(publisher)
}

// Extend returns a new path with head spliced in front of this path's entry
// and tail spliced after its publisher. Either side may be nil. A tail whose
// head input is already bound (as produced by operators that pre-wire their
// placeholders) is appended without re-subscribing.
func (p *Path) Extend(head, tail *Path) (*Path, error) {
	next := &Path{head: p.head, tail: p.tail}
	if head != nil {
		publisher, err := head.Publisher()
		if err != nil {
			return nil, err
		}
		in, err := next.head.Input(0)
		if err != nil {
			return nil, err
		}
		if err := in.Subscribe(publisher); err != nil {
			return nil, err
		}
		next.head = head.head
	}
	if tail != nil {
		in, err := tail.head.Input(0)
		if err != nil {
			return nil, err
		}
		if !in.Bound() {
			publisher, err := next.Publisher()
			if err != nil {
				return nil, err
			}
			if err := in.Subscribe(publisher); err != nil {
				return nil, err
			}
		}
		next.tail = tail.tail
	}
	return next, nil
}

// members collects the nodes belonging to this path: the backward closure of
// the tail bounded by the head. Inputs bound outside the closure mark the
// path's external upstream and are not followed.
func (p *Path) members() map[Node]bool {
	set := make(map[Node]bool)
	var visit func(n Node)
	visit = func(n Node) {
		if set[n] {
			return
		}
		set[n] = true
		if n == p.head {
			return
		}
		for _, in := range inputsOf(n) {
			if in.source != nil {
				visit(in.source.owner)
			}
		}
	}
	visit(p.tail)
	return set
}

// Copy returns a structurally equal duplicate of the path usable at a second
// consumption point. Workers are re-forked so the copy shares their state
// identity; the copied head's external bindings are dropped so the duplicate
// can be subscribed to a different upstream without violating the original
// ports' single-producer rule. Non-head members keep their side inputs bound
// to the original external producers.
func (p *Path) Copy() (*Path, error) {
	set := p.members()
	clones := make(map[Node]Node, len(set))
	for n := range set {
		switch v := n.(type) {
		case *Worker:
			if v.IsTrainer() {
				return nil, fmt.Errorf("%w: copying a train entry", ErrInvalidOperator)
			}
			clones[n] = v.Fork()
		case *Future:
			clones[n] = NewFuture()
		default:
			return nil, fmt.Errorf("%w: cannot copy node %s", ErrInvalidOperator, n)
		}
	}
	for n, clone := range clones {
		for i, in := range inputsOf(n) {
			if in.source == nil {
				continue
			}
			var source *Output
			if upstream, ok := clones[in.source.owner]; ok {
				var err error
				source, err = upstream.Output(in.source.index)
				if err != nil {
					return nil, err
				}
			} else if n != p.head {
				source = in.source
			} else {
				continue
			}
			target, err := clone.Input(i)
			if err != nil {
				return nil, err
			}
			if err := target.Subscribe(source); err != nil {
				return nil, err
			}
		}
	}
	return &Path{head: clones[p.head], tail: clones[p.tail]}, nil
}

func inputsOf(n Node) []*Input {
	inputs := make([]*Input, 0, n.SzIn())
	for i := 0; i < n.SzIn(); i++ {
		in, err := n.Input(i)
		if err != nil {
			// Indices below SzIn are in range by construction.
			panic(err)
		}
		inputs = append(inputs, in)
	}
	return inputs
}
