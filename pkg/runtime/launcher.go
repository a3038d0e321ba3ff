package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/latticeml/lattice/pkg/asset"
	"github.com/latticeml/lattice/pkg/compiler"
	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/task"
)

// Launcher binds a composed pipeline to a state directory and a runner and
// exposes the lifecycle actions. Each action compiles the relevant modal view
// on demand, so one launcher serves training and application interleaved.
type Launcher struct {
	composition *flow.Composition
	compiler    *compiler.Compiler
	directory   asset.Directory
	runner      Runner
	logger      *slog.Logger
	metrics     *Metrics
}

// NewLauncher assembles a launcher over the given composition.
func NewLauncher(composition *flow.Composition, registry *task.Registry,
	directory asset.Directory, runner Runner, opts Options) *Launcher {
	return &Launcher{
		composition: composition,
		compiler:    compiler.New(registry),
		directory:   directory,
		runner:      runner,
		logger:      opts.logger(),
		metrics:     opts.Metrics,
	}
}

// state allocates the persisted-state accessor covering every stateful group
// of the composition.
func (l *Launcher) state() (asset.State, error) {
	groups := l.composition.Shared()
	keys := make([]string, len(groups))
	for i, group := range groups {
		keys[i] = group.Key()
	}
	return l.directory.State(keys)
}

// Train compiles and runs the training view, committing a new state
// generation for every stateful group.
func (l *Launcher) Train(ctx context.Context) error {
	state, err := l.state()
	if err != nil {
		return err
	}
	symbols, err := l.compiler.Generate(l.composition.Segment(), compiler.ModeTrain, state)
	if err != nil {
		return err
	}
	l.logger.Info("training pipeline", "runner", l.runner.Name(), "symbols", len(symbols))
	if _, err := l.runner.Run(ctx, symbols); err != nil {
		return err
	}
	if l.metrics != nil {
		for _, group := range l.composition.Shared() {
			l.metrics.RecordStateCommit(group.Key())
		}
	}
	l.logger.Info("training finished", "states", len(l.composition.Shared()))
	return nil
}

// Apply compiles and runs the application view and returns the value of the
// apply publisher.
func (l *Launcher) Apply(ctx context.Context) (any, error) {
	state, err := l.state()
	if err != nil {
		return nil, err
	}
	segment := l.composition.Segment()
	symbols, err := l.compiler.Generate(segment, compiler.ModeApply, state)
	if err != nil {
		return nil, err
	}
	l.logger.Info("applying pipeline", "runner", l.runner.Name(), "symbols", len(symbols))
	values, err := l.runner.Run(ctx, symbols)
	if err != nil {
		return nil, err
	}
	publisher, err := segment.Apply().Publisher()
	if err != nil {
		return nil, err
	}
	producer, err := flow.ResolveProducer(publisher)
	if err != nil {
		return nil, err
	}
	// The apply root is compiled last, so its producer holds the final slot.
	outputs := values[len(values)-1]
	if producer.Index() >= len(outputs) {
		return nil, fmt.Errorf("%w: publisher port %d missing from final symbol", ErrExecution, producer.Index())
	}
	return outputs[producer.Index()], nil
}

// Eval trains and scores the pipeline against an ephemeral state directory
// and returns the value of the train publisher; the train path must
// terminate at the score publisher, as a crossvalidation operator arranges.
// Scoring never touches the serving state generations.
func (l *Launcher) Eval(ctx context.Context) (any, error) {
	scratch := asset.NewMemory()
	groups := l.composition.Shared()
	keys := make([]string, len(groups))
	for i, group := range groups {
		keys[i] = group.Key()
	}
	state, err := scratch.State(keys)
	if err != nil {
		return nil, err
	}
	segment := l.composition.Segment()
	symbols, err := l.compiler.Generate(segment, compiler.ModeEval, state)
	if err != nil {
		return nil, err
	}
	l.logger.Info("evaluating pipeline", "runner", l.runner.Name(), "symbols", len(symbols))
	values, err := l.runner.Run(ctx, symbols)
	if err != nil {
		return nil, err
	}
	publisher, err := segment.Train().Publisher()
	if err != nil {
		return nil, err
	}
	producer, err := flow.ResolveProducer(publisher)
	if err != nil {
		return nil, err
	}
	// The train publisher is the last root, so its producer holds the final
	// slot.
	outputs := values[len(values)-1]
	if producer.Index() >= len(outputs) {
		return nil, fmt.Errorf("%w: publisher port %d missing from final symbol", ErrExecution, producer.Index())
	}
	return outputs[producer.Index()], nil
}

// Render compiles the requested modal view without state and returns its
// Graphviz rendition.
func (l *Launcher) Render(mode compiler.Mode) (string, error) {
	symbols, err := l.compiler.Generate(l.composition.Segment(), mode, nil)
	if err != nil {
		return "", err
	}
	return Dot(string(mode), symbols), nil
}
