package flow

import "fmt"

// Composition chains expanded segments behind a common source segment: each
// successive segment's modal heads are subscribed to its predecessor's
// publishers. The result exposes the merged segment for compilation and the
// stateful worker groups requiring persisted-state slots.
type Composition struct {
	segment *Segment
	shared  []*Group
}

// NewComposition assembles the given segments in order. The first segment
// typically carries the source extraction; at least one segment is required.
func NewComposition(segments ...*Segment) (*Composition, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty composition", ErrInvalidOperator)
	}
	for i := 1; i < len(segments); i++ {
		prev, next := segments[i-1], segments[i]
		if err := connect(prev.train, next.train); err != nil {
			return nil, err
		}
		if err := connect(prev.apply, next.apply); err != nil {
			return nil, err
		}
		if err := connect(prev.label, next.label); err != nil {
			return nil, err
		}
	}
	first, last := segments[0], segments[len(segments)-1]
	segment, err := NewSegment(
		&Path{head: first.train.head, tail: last.train.tail},
		&Path{head: first.apply.head, tail: last.apply.tail},
		&Path{head: first.label.head, tail: last.label.tail},
	)
	if err != nil {
		return nil, err
	}
	return &Composition{segment: segment, shared: sharedGroups(segment)}, nil
}

// connect binds the next path's head to the previous path's publisher unless
// an operator wired it already.
func connect(prev, next *Path) error {
	in, err := next.head.Input(0)
	if err != nil {
		return err
	}
	if in.Bound() {
		return nil
	}
	publisher, err := prev.Publisher()
	if err != nil {
		return err
	}
	return in.Subscribe(publisher)
}

// Segment returns the merged train/apply/label view of the whole chain.
func (c *Composition) Segment() *Segment { return c.segment }

// Shared returns the stateful worker groups of the composition in
// deterministic discovery order. Each group needs exactly one persisted
// state slot regardless of how many forks it has.
func (c *Composition) Shared() []*Group { return c.shared }

// sharedGroups walks the whole reachable graph (both directions, so train
// entries hanging off publishers are found) and collects stateful groups.
func sharedGroups(segment *Segment) []*Group {
	seen := make(map[Node]bool)
	keys := make(map[string]bool)
	var groups []*Group

	var visit func(n Node)
	visit = func(n Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		if w, ok := n.(*Worker); ok && w.Spec().Stateful && !keys[w.StateKey()] {
			keys[w.StateKey()] = true
			groups = append(groups, w.Group())
		}
		for _, in := range inputsOf(n) {
			if in.source != nil {
				visit(in.source.owner)
			}
		}
		for i := 0; i < n.SzOut(); i++ {
			out, err := n.Output(i)
			if err != nil {
				panic(err)
			}
			for _, sub := range out.Subscribers() {
				visit(sub.Owner())
			}
		}
	}
	for _, root := range []Node{
		segment.train.head, segment.train.tail,
		segment.apply.head, segment.apply.tail,
		segment.label.head, segment.label.tail,
	} {
		visit(root)
	}
	return groups
}
