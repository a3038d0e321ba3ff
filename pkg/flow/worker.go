package flow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/latticeml/lattice/pkg/task"
)

// Group ties together all forks of one worker. Forks are independent wiring
// endpoints but indistinguishable state holders: the group key is the stable
// state identity under which the persisted slot is addressed, so two handles
// constructed independently are recognized as equivalent by key equality
// alone.
type Group struct {
	spec    task.Spec
	key     string
	forks   []*Worker
	trainer *Worker
}

// Spec returns the actor specification shared by the group.
func (g *Group) Spec() task.Spec { return g.spec }

// Key returns the stable state-identity key of the group.
func (g *Group) Key() string { return g.key }

// Forks returns all worker handles of the group.
func (g *Group) Forks() []*Worker { return g.forks }

// Worker is a concrete node executing one actor specification. A worker
// handle is either an apply entry (ports shaped by the spec) or, after
// Train, the single train entry of its group (two inputs, no output).
type Worker struct {
	ports
	group   *Group
	trainer bool
}

// NewWorker creates the first fork of a new worker group.
func NewWorker(spec task.Spec) (*Worker, error) {
	group := &Group{spec: spec, key: uuid.NewString()}
	return group.fork(spec.SzIn, spec.SzOut, false)
}

func (g *Group) fork(szin, szout int, trainer bool) (*Worker, error) {
	w := &Worker{group: g, trainer: trainer}
	p, err := newPorts(w, szin, szout)
	if err != nil {
		return nil, err
	}
	w.ports = p
	g.forks = append(g.forks, w)
	return w, nil
}

// Fork returns a new wiring-independent handle sharing this worker's state
// identity. A model trained through one fork is the model applied through
// any other fork of the same group.
func (w *Worker) Fork() *Worker {
	fork, err := w.group.fork(w.group.spec.SzIn, w.group.spec.SzOut, false)
	if err != nil {
		// The group spec was validated when the first fork was built.
		panic(err)
	}
	return fork
}

// SzIn implements Node.
func (w *Worker) SzIn() int { return len(w.in) }

// SzOut implements Node.
func (w *Worker) SzOut() int { return len(w.out) }

// Input implements Node.
func (w *Worker) Input(index int) (*Input, error) { return w.input(w, index) }

// Output implements Node.
func (w *Worker) Output(index int) (*Output, error) { return w.output(w, index) }

// Spec returns the actor specification of this worker.
func (w *Worker) Spec() task.Spec { return w.group.spec }

// Group returns the fork group of this worker.
func (w *Worker) Group() *Group { return w.group }

// StateKey returns the persisted-state identity shared by all forks.
func (w *Worker) StateKey() string { return w.group.key }

// IsTrainer reports whether this handle is the train entry of its group.
func (w *Worker) IsTrainer() bool { return w.trainer }

// Train turns this fork into the train entry of its group, consuming the
// given features and labels publishers. Training requires a stateful actor,
// an unwired handle, and at most one trainer per group.
func (w *Worker) Train(features, labels *Output) error {
	if !w.group.spec.Stateful {
		return fmt.Errorf("%w: train entry on stateless %s", ErrInvalidOperator, w.group.spec)
	}
	if w.group.trainer != nil {
		return fmt.Errorf("%w: %s already has a train entry", ErrInvalidOperator, w.group.spec)
	}
	if w.wired() {
		return fmt.Errorf("%w: train entry on already wired %s", ErrInvalidOperator, w)
	}
	p, err := newPorts(w, 2, 0)
	if err != nil {
		return err
	}
	w.ports = p
	w.trainer = true
	if err := w.in[0].Subscribe(features); err != nil {
		return err
	}
	if err := w.in[1].Subscribe(labels); err != nil {
		return err
	}
	w.group.trainer = w
	return nil
}

// String implements fmt.Stringer.
func (w *Worker) String() string {
	if w.trainer {
		return fmt.Sprintf("%s#train", w.group.spec)
	}
	return w.group.spec.String()
}
