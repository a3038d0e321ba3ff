package flow

import "fmt"

// Segment is the train/apply/label triple of paths representing the
// accumulated contribution of all operators composed so far. Every
// constructor re-verifies that the apply path cannot observe label-exclusive
// nodes, so application never depends on label data.
type Segment struct {
	train *Path
	apply *Path
	label *Path
}

// NewSegment builds a verified segment from the three modal paths.
func NewSegment(train, apply, label *Path) (*Segment, error) {
	if train == nil || apply == nil || label == nil {
		return nil, fmt.Errorf("%w: segment requires train, apply and label paths", ErrInvalidOperator)
	}
	s := &Segment{train: train, apply: apply, label: label}
	if err := s.verify(); err != nil {
		return nil, err
	}
	return s, nil
}

// Train returns the training path.
func (s *Segment) Train() *Path { return s.train }

// Apply returns the application path.
func (s *Segment) Apply() *Path { return s.apply }

// Label returns the label path.
func (s *Segment) Label() *Path { return s.label }

// Use returns a new segment substituting the given paths, keeping the
// existing ones where nil is passed. This is how a multi-path operator
// rewires only the modes it affects.
func (s *Segment) Use(train, apply, label *Path) (*Segment, error) {
	if train == nil {
		train = s.train
	}
	if apply == nil {
		apply = s.apply
	}
	if label == nil {
		label = s.label
	}
	return NewSegment(train, apply, label)
}

// Extend extends the train and apply paths symmetrically with the given
// tails, keeping a path unchanged where nil is passed.
func (s *Segment) Extend(train, apply *Path) (*Segment, error) {
	trainPath := s.train
	applyPath := s.apply
	var err error
	if train != nil {
		if trainPath, err = s.train.Extend(nil, train); err != nil {
			return nil, err
		}
	}
	if apply != nil {
		if applyPath, err = s.apply.Extend(nil, apply); err != nil {
			return nil, err
		}
	}
	return NewSegment(trainPath, applyPath, s.label)
}

// verify enforces the no-leakage invariant: the apply path must not reference
// any node reachable only through the label path.
func (s *Segment) verify() error {
	apply := ancestors(s.apply.Tail())
	train := ancestors(s.train.Tail())
	for n := range ancestors(s.label.Tail()) {
		if train[n] {
			continue
		}
		if apply[n] {
			return fmt.Errorf("%w: %s is label-exclusive but reachable from apply", ErrLabelLeakage, n)
		}
	}
	return nil
}

// ancestors returns the backward closure of the given node, including the
// node itself. Unbound inputs terminate the walk; they are reported later by
// the compiler, not here.
func ancestors(node Node) map[Node]bool {
	set := make(map[Node]bool)
	var visit func(n Node)
	visit = func(n Node) {
		if set[n] {
			return
		}
		set[n] = true
		for _, in := range inputsOf(n) {
			if in.source != nil {
				visit(in.source.owner)
			}
		}
	}
	visit(node)
	return set
}
