package operator

import (
	"fmt"

	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/task"
)

// Mapper is the basic transformation operator: one input and one output port
// in each mode. Stateful mappers additionally get a train entry subscribed
// to the incoming train and label publishers; stateless mappers skip the
// training wiring entirely.
type Mapper struct {
	Spec task.Spec
}

// NewMapper wraps the given actor spec in a mapper operator.
func NewMapper(spec task.Spec) Mapper { return Mapper{Spec: spec} }

// Compose implements Operator.
func (m Mapper) Compose(left Composable) (*flow.Segment, error) {
	if err := checkShape(m.Spec, 1, 1); err != nil {
		return nil, err
	}
	segment, err := left.Expand()
	if err != nil {
		return nil, err
	}
	applier, err := flow.NewWorker(m.Spec)
	if err != nil {
		return nil, err
	}
	if m.Spec.Stateful {
		trainer := applier.Fork()
		features, labels, err := modalPublishers(segment)
		if err != nil {
			return nil, err
		}
		if err := trainer.Train(features, labels); err != nil {
			return nil, err
		}
	}
	return segment.Extend(flow.NewPath(applier.Fork()), flow.NewPath(applier))
}

// Consumer wraps a trainable actor that only participates in the training
// mode: it consumes the train and label publishers and leaves the apply path
// untouched. A consumer without trainable state is meaningless.
type Consumer struct {
	Spec task.Spec
}

// NewConsumer wraps the given actor spec in a consumer operator.
func NewConsumer(spec task.Spec) Consumer { return Consumer{Spec: spec} }

// Compose implements Operator.
func (c Consumer) Compose(left Composable) (*flow.Segment, error) {
	if !c.Spec.Stateful {
		return nil, fmt.Errorf("%w: stateless actor %s as consumer", flow.ErrInvalidOperator, c.Spec)
	}
	if err := checkShape(c.Spec, 1, 1); err != nil {
		return nil, err
	}
	segment, err := left.Expand()
	if err != nil {
		return nil, err
	}
	trainer, err := flow.NewWorker(c.Spec)
	if err != nil {
		return nil, err
	}
	features, labels, err := modalPublishers(segment)
	if err != nil {
		return nil, err
	}
	if err := trainer.Train(features, labels); err != nil {
		return nil, err
	}
	return segment.Use(nil, nil, nil)
}

// Labeler splits a raw training dataset into features and a label target.
// The wrapped actor must have shape (1, 2): output 0 passes the training
// features through, output 1 carries the extracted label.
type Labeler struct {
	Spec task.Spec
}

// NewLabeler wraps the given actor spec in a labeler operator.
func NewLabeler(spec task.Spec) Labeler { return Labeler{Spec: spec} }

// Compose implements Operator.
func (l Labeler) Compose(left Composable) (*flow.Segment, error) {
	if err := checkShape(l.Spec, 1, 2); err != nil {
		return nil, err
	}
	segment, err := left.Expand()
	if err != nil {
		return nil, err
	}
	splitter, err := flow.NewWorker(l.Spec)
	if err != nil {
		return nil, err
	}
	train := flow.NewFuture()
	label := flow.NewFuture()
	if err := subscribeAt(train, splitter, 0); err != nil {
		return nil, err
	}
	if err := subscribeAt(label, splitter, 1); err != nil {
		return nil, err
	}
	publisher, err := segment.Train().Publisher()
	if err != nil {
		return nil, err
	}
	if err := flow.NewPath(splitter).Subscribe(publisher); err != nil {
		return nil, err
	}
	trainPath, err := segment.Train().Extend(nil, flow.NewPath(train))
	if err != nil {
		return nil, err
	}
	labelPath, err := segment.Train().Extend(nil, flow.NewPath(label))
	if err != nil {
		return nil, err
	}
	return segment.Use(trainPath, nil, labelPath)
}

func subscribeAt(future *flow.Future, producer flow.Node, port int) error {
	in, err := future.Input(0)
	if err != nil {
		return err
	}
	out, err := producer.Output(port)
	if err != nil {
		return err
	}
	return in.Subscribe(out)
}

func modalPublishers(segment *flow.Segment) (features, labels *flow.Output, err error) {
	if features, err = segment.Train().Publisher(); err != nil {
		return nil, nil, err
	}
	if labels, err = segment.Label().Publisher(); err != nil {
		return nil, nil, err
	}
	return features, labels, nil
}

func checkShape(spec task.Spec, szin, szout int) error {
	if spec.SzIn != szin || spec.SzOut != szout {
		return fmt.Errorf("%w: actor %s must have shape (%d, %d), got (%d, %d)",
			flow.ErrInvalidOperator, spec, szin, szout, spec.SzIn, spec.SzOut)
	}
	return nil
}
