package flow

import "fmt"

// Node is a graph vertex with fixed input/output arity. Ports are addressed
// by index; arity never changes after construction.
type Node interface {
	SzIn() int
	SzOut() int
	// Input returns the input port at the given index.
	Input(index int) (*Input, error)
	// Output returns the output port at the given index.
	Output(index int) (*Output, error)

	fmt.Stringer
}

// Input is a directed connection point consuming at most one publisher.
type Input struct {
	owner  Node
	index  int
	source *Output
}

// Owner returns the node this port belongs to.
func (p *Input) Owner() Node { return p.owner }

// Index returns the port position on its owner.
func (p *Input) Index() int { return p.index }

// Source returns the bound publisher, or nil when unbound.
func (p *Input) Source() *Output { return p.source }

// Bound reports whether the port has a publisher.
func (p *Input) Bound() bool { return p.source != nil }

// Subscribe binds this input to the given output. An input accepts exactly
// one publisher; binding twice or closing a self-loop is an error.
func (p *Input) Subscribe(publisher *Output) error {
	if publisher == nil {
		return fmt.Errorf("%w: nil publisher for input %d of %s", ErrArity, p.index, p.owner)
	}
	if p.source != nil {
		return fmt.Errorf("%w: input %d of %s", ErrAlreadyBound, p.index, p.owner)
	}
	if publisher.owner == p.owner {
		return fmt.Errorf("%w: self-loop on %s", ErrCycle, p.owner)
	}
	p.source = publisher
	publisher.subscribers = append(publisher.subscribers, p)
	return nil
}

// Output is a directed connection point publishing to any number of inputs.
type Output struct {
	owner       Node
	index       int
	subscribers []*Input
}

// Owner returns the node this port belongs to.
func (p *Output) Owner() Node { return p.owner }

// Index returns the port position on its owner.
func (p *Output) Index() int { return p.index }

// Subscribers returns the inputs currently bound to this output.
func (p *Output) Subscribers() []*Input { return p.subscribers }

// ports holds the indexed port slices shared by all node kinds.
type ports struct {
	in  []*Input
	out []*Output
}

func newPorts(owner Node, szin, szout int) (ports, error) {
	if szin < 0 || szout < 0 {
		return ports{}, fmt.Errorf("%w: negative arity (%d, %d)", ErrArity, szin, szout)
	}
	p := ports{
		in:  make([]*Input, szin),
		out: make([]*Output, szout),
	}
	for i := range p.in {
		p.in[i] = &Input{owner: owner, index: i}
	}
	for i := range p.out {
		p.out[i] = &Output{owner: owner, index: i}
	}
	return p, nil
}

func (p *ports) input(owner Node, index int) (*Input, error) {
	if index < 0 || index >= len(p.in) {
		return nil, fmt.Errorf("%w: input %d of %s (szin=%d)", ErrArity, index, owner, len(p.in))
	}
	return p.in[index], nil
}

func (p *ports) output(owner Node, index int) (*Output, error) {
	if index < 0 || index >= len(p.out) {
		return nil, fmt.Errorf("%w: output %d of %s (szout=%d)", ErrArity, index, owner, len(p.out))
	}
	return p.out[index], nil
}

// wired reports whether any port of the node participates in a subscription.
func (p *ports) wired() bool {
	for _, in := range p.in {
		if in.Bound() {
			return true
		}
	}
	for _, out := range p.out {
		if len(out.subscribers) > 0 {
			return true
		}
	}
	return false
}

// ResolveProducer follows bound futures from the given output down to the
// real producing output. It fails with ErrUnresolvedFuture when the chain
// ends in an unbound placeholder.
func ResolveProducer(out *Output) (*Output, error) {
	seen := make(map[*Future]bool)
	for {
		future, ok := out.owner.(*Future)
		if !ok {
			return out, nil
		}
		if seen[future] {
			return nil, fmt.Errorf("%w: placeholder chain through %s", ErrCycle, future)
		}
		seen[future] = true
		source := future.ports.in[0].source
		if source == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedFuture, future)
		}
		out = source
	}
}
