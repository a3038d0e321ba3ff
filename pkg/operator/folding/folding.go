// Package folding implements ensembling and scoring operators built on an
// external cross-validation partition: the incoming data is split into a
// fixed, deterministic number of folds and the base pipelines are trained,
// stacked or scored per fold.
package folding

import (
	"fmt"

	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/operator"
	"github.com/latticeml/lattice/pkg/task"
	"github.com/latticeml/lattice/pkg/task/std"
)

// Specs selects the aggregation actors used by a folding operator. Every
// field takes the fan-in and returns the actor spec aggregating it.
type Specs struct {
	// Splitter yields the fold splitter: shape (1, 2*folds), output 2f the
	// training split and 2f+1 the validation split of fold f.
	Splitter func(folds int) task.Spec
	// Stacker concatenates the per-fold holdout predictions of one base.
	Stacker func(folds int) task.Spec
	// Merger aggregates the per-fold models' predictions of one base in
	// apply mode. Mean aggregation is the default; callers needing other
	// aggregation supply a different merge actor.
	Merger func(folds int) task.Spec
	// Combiner joins the per-base results into the operator output.
	Combiner func(bases int) task.Spec
}

// DefaultSpecs returns the standard aggregation stack: round-robin split,
// row concat stacking, unweighted mean merging, column concat combining.
func DefaultSpecs() Specs {
	return Specs{
		Splitter: std.Split,
		Stacker:  std.ConcatRows,
		Merger:   std.MeanMerge,
		Combiner: std.ConcatCols,
	}
}

// FullStacker is stacked ensembling with all per-fold models kept for
// serving: in train mode every base is trained once per fold on that fold's
// training split and evaluated on its holdout; in apply mode all fold models
// run on the live stream and their predictions are merged. Aggregation
// follows the order bases were supplied, never map iteration.
type FullStacker struct {
	bases []operator.Composable
	folds int
	specs Specs
}

// NewFullStacker builds the ensembler for the given base pipelines and fold
// count with the default aggregation specs.
func NewFullStacker(folds int, bases ...operator.Composable) *FullStacker {
	return &FullStacker{bases: bases, folds: folds, specs: DefaultSpecs()}
}

// WithSpecs overrides the aggregation actors.
func (s *FullStacker) WithSpecs(specs Specs) *FullStacker {
	s.specs = specs
	return s
}

// Compose implements operator.Operator.
func (s *FullStacker) Compose(left operator.Composable) (*flow.Segment, error) {
	if len(s.bases) == 0 {
		return nil, fmt.Errorf("%w: stacker without bases", flow.ErrInvalidOperator)
	}
	if s.folds < 2 {
		return nil, fmt.Errorf("%w: stacker requires at least 2 folds, got %d", flow.ErrInvalidOperator, s.folds)
	}

	head, err := left.Expand()
	if err != nil {
		return nil, err
	}
	features, err := splitterFor(s.specs.Splitter(s.folds), head.Train())
	if err != nil {
		return nil, err
	}
	labels, err := splitterFor(s.specs.Splitter(s.folds), head.Label())
	if err != nil {
		return nil, err
	}

	trained, err := flow.NewWorker(s.specs.Combiner(len(s.bases)))
	if err != nil {
		return nil, err
	}
	applied := trained.Fork()

	stackers := make([]*flow.Worker, len(s.bases))
	mergers := make([]*flow.Worker, len(s.bases))
	for i := range s.bases {
		if stackers[i], err = flow.NewWorker(s.specs.Stacker(s.folds)); err != nil {
			return nil, err
		}
		if mergers[i], err = flow.NewWorker(s.specs.Merger(s.folds)); err != nil {
			return nil, err
		}
		if err := connectPort(trained, i, stackers[i], 0); err != nil {
			return nil, err
		}
		if err := connectPort(applied, i, mergers[i], 0); err != nil {
			return nil, err
		}
	}

	for fold := 0; fold < s.folds; fold++ {
		if err := s.fold(head, fold, features, labels, stackers, mergers); err != nil {
			return nil, err
		}
	}

	trainPath, err := head.Train().Extend(nil, flow.NewPath(trained))
	if err != nil {
		return nil, err
	}
	applyPath, err := head.Apply().Extend(nil, flow.NewPath(applied))
	if err != nil {
		return nil, err
	}
	return head.Use(trainPath, applyPath, nil)
}

// fold wires one cross-validation fold: every base gets an exclusive
// expansion trained on the fold's training split and stacked on its holdout,
// while the fold models also serve the live apply stream through the
// mergers. Bases must be future-headed recipes so each fold can attach its
// own upstream.
func (s *FullStacker) fold(head *flow.Segment, fold int,
	features, labels *flow.Worker, stackers, mergers []*flow.Worker) error {
	headApply, err := head.Apply().Publisher()
	if err != nil {
		return err
	}
	for i, base := range s.bases {
		basetrack, err := base.Expand()
		if err != nil {
			return err
		}
		if err := subscribePath(basetrack.Train(), features, 2*fold); err != nil {
			return err
		}
		if err := subscribePath(basetrack.Label(), labels, 2*fold); err != nil {
			return err
		}
		if err := basetrack.Apply().Subscribe(headApply); err != nil {
			return err
		}
		applyPub, err := basetrack.Apply().Publisher()
		if err != nil {
			return err
		}
		if err := subscribeInput(mergers[i], fold, applyPub); err != nil {
			return err
		}
		baseapply, err := basetrack.Apply().Copy()
		if err != nil {
			return err
		}
		if err := subscribePath(baseapply, features, 2*fold+1); err != nil {
			return err
		}
		stackPub, err := baseapply.Publisher()
		if err != nil {
			return err
		}
		if err := subscribeInput(stackers[i], fold, stackPub); err != nil {
			return err
		}
	}
	return nil
}

// CrossValidation scores a pipeline by k-fold crossvalidation: per fold the
// pipeline is trained on the training split and applied to the holdout, the
// metric compares holdout predictions with the held-out labels, and the
// per-fold scores are merged into a single figure published on the train
// path. The apply path passes through untouched; scoring has no serving
// semantics.
type CrossValidation struct {
	pipeline operator.Composable
	metric   task.Spec
	folds    int
	specs    Specs
}

// NewCrossValidation builds the scoring operator for the given pipeline
// recipe, fold count and metric actor of shape (2, 1).
func NewCrossValidation(folds int, pipeline operator.Composable, metric task.Spec) *CrossValidation {
	return &CrossValidation{pipeline: pipeline, metric: metric, folds: folds, specs: DefaultSpecs()}
}

// WithSpecs overrides the aggregation actors.
func (c *CrossValidation) WithSpecs(specs Specs) *CrossValidation {
	c.specs = specs
	return c
}

// Compose implements operator.Operator.
func (c *CrossValidation) Compose(left operator.Composable) (*flow.Segment, error) {
	if c.pipeline == nil {
		return nil, fmt.Errorf("%w: crossvalidation without a pipeline", flow.ErrInvalidOperator)
	}
	if c.folds < 2 {
		return nil, fmt.Errorf("%w: crossvalidation requires at least 2 folds, got %d", flow.ErrInvalidOperator, c.folds)
	}
	if c.metric.SzIn != 2 || c.metric.SzOut != 1 {
		return nil, fmt.Errorf("%w: metric %s must have shape (2, 1), got (%d, %d)",
			flow.ErrInvalidOperator, c.metric, c.metric.SzIn, c.metric.SzOut)
	}

	head, err := left.Expand()
	if err != nil {
		return nil, err
	}
	features, err := splitterFor(c.specs.Splitter(c.folds), head.Train())
	if err != nil {
		return nil, err
	}
	labels, err := splitterFor(c.specs.Splitter(c.folds), head.Label())
	if err != nil {
		return nil, err
	}
	merger, err := flow.NewWorker(c.specs.Merger(c.folds))
	if err != nil {
		return nil, err
	}

	for fold := 0; fold < c.folds; fold++ {
		track, err := c.pipeline.Expand()
		if err != nil {
			return nil, err
		}
		if err := subscribePath(track.Train(), features, 2*fold); err != nil {
			return nil, err
		}
		if err := subscribePath(track.Label(), labels, 2*fold); err != nil {
			return nil, err
		}
		if err := subscribePath(track.Apply(), features, 2*fold+1); err != nil {
			return nil, err
		}
		metric, err := flow.NewWorker(c.metric)
		if err != nil {
			return nil, err
		}
		prediction, err := track.Apply().Publisher()
		if err != nil {
			return nil, err
		}
		if err := subscribeInput(metric, 0, prediction); err != nil {
			return nil, err
		}
		truth, err := labels.Output(2*fold + 1)
		if err != nil {
			return nil, err
		}
		if err := subscribeInput(metric, 1, truth); err != nil {
			return nil, err
		}
		if err := connectPort(merger, fold, metric, 0); err != nil {
			return nil, err
		}
	}

	trainPath, err := head.Train().Extend(nil, flow.NewPath(merger))
	if err != nil {
		return nil, err
	}
	return head.Use(trainPath, nil, nil)
}

func splitterFor(spec task.Spec, upstream *flow.Path) (*flow.Worker, error) {
	splitter, err := flow.NewWorker(spec)
	if err != nil {
		return nil, err
	}
	publisher, err := upstream.Publisher()
	if err != nil {
		return nil, err
	}
	if err := flow.NewPath(splitter).Subscribe(publisher); err != nil {
		return nil, err
	}
	return splitter, nil
}

func subscribePath(path *flow.Path, producer *flow.Worker, port int) error {
	out, err := producer.Output(port)
	if err != nil {
		return err
	}
	return path.Subscribe(out)
}

func subscribeInput(consumer *flow.Worker, port int, publisher *flow.Output) error {
	in, err := consumer.Input(port)
	if err != nil {
		return err
	}
	return in.Subscribe(publisher)
}

func connectPort(consumer *flow.Worker, in int, producer *flow.Worker, out int) error {
	publisher, err := producer.Output(out)
	if err != nil {
		return err
	}
	return subscribeInput(consumer, in, publisher)
}
