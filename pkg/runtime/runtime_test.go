package runtime

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeml/lattice/pkg/asset"
	"github.com/latticeml/lattice/pkg/compiler"
	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/operator"
	"github.com/latticeml/lattice/pkg/operator/folding"
	"github.com/latticeml/lattice/pkg/task"
	"github.com/latticeml/lattice/pkg/task/std"
)

func housing() task.Table {
	return task.Table{
		Columns: []string{"area", "price"},
		Rows:    [][]float64{{64, 310}, {87, 415}, {52, 265}, {120, 620}},
	}
}

// livestream is the apply-mode feed: the same rows without the label column.
func livestream() task.Table {
	data := housing()
	rows := make([][]float64, data.Len())
	for i, row := range data.Rows {
		rows[i] = row[:1]
	}
	return task.Table{Columns: data.Columns[:1], Rows: rows}
}

func priceMean() float64 {
	var sum float64
	data := housing()
	for _, row := range data.Rows {
		sum += row[1]
	}
	return sum / float64(data.Len())
}

func testRegistry(t *testing.T) *task.Registry {
	t.Helper()
	r := task.NewRegistry()
	require.NoError(t, std.Register(r))
	return r
}

func regression(t *testing.T) *flow.Composition {
	t.Helper()
	segment, err := operator.Chain(
		operator.SplitSource(std.Static(housing()), std.Static(livestream())),
		operator.NewLabeler(std.Label("price")),
		operator.NewMapper(std.Center()),
		operator.NewMapper(std.MeanModel()),
	).Expand()
	require.NoError(t, err)
	composition, err := flow.NewComposition(segment)
	require.NoError(t, err)
	return composition
}

func TestLauncherTrainThenApply(t *testing.T) {
	composition := regression(t)
	directory := asset.NewMemory()
	opts := Options{Metrics: NewMetrics()}
	launcher := NewLauncher(composition, testRegistry(t), directory, NewSequential(opts), opts)

	require.NoError(t, launcher.Train(context.Background()))

	result, err := launcher.Apply(context.Background())
	require.NoError(t, err)
	predictions, err := task.AsTable(result)
	require.NoError(t, err)
	require.Equal(t, housing().Len(), predictions.Len())
	for _, row := range predictions.Rows {
		assert.InDelta(t, priceMean(), row[0], 1e-9)
	}
}

func TestApplyBeforeTrainingFails(t *testing.T) {
	composition := regression(t)
	launcher := NewLauncher(composition, testRegistry(t), asset.NewMemory(), NewSequential(Options{}), Options{})

	_, err := launcher.Apply(context.Background())
	assert.ErrorIs(t, err, ErrExecution)
}

func TestPoolSharesStateWithSequential(t *testing.T) {
	composition := regression(t)
	registry := testRegistry(t)
	directory := asset.NewMemory()

	trainer := NewLauncher(composition, registry, directory, NewSequential(Options{}), Options{})
	require.NoError(t, trainer.Train(context.Background()))

	// A pooled launcher over the same composition and directory serves the
	// model the sequential launcher trained.
	server := NewLauncher(composition, registry, directory, NewPool(4, Options{}), Options{})
	result, err := server.Apply(context.Background())
	require.NoError(t, err)
	predictions, err := task.AsTable(result)
	require.NoError(t, err)
	require.Equal(t, housing().Len(), predictions.Len())
	for _, row := range predictions.Rows {
		assert.InDelta(t, priceMean(), row[0], 1e-9)
	}
}

// step is a no-output instruction appending its name to a shared journal,
// optionally after a delay.
type step struct {
	name  string
	delay time.Duration
	mu    *sync.Mutex
	log   *[]string
}

func (s step) String() string { return s.name }

func (s step) Invoke(context.Context, []any) ([]any, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.log = append(*s.log, s.name)
	return nil, nil
}

func TestPoolHonorsOrderingReferences(t *testing.T) {
	// Two symbols with no data edge: the second carries only an ordering
	// reference to the first, which is slowed down so a scheduler ignoring
	// the reference would run them inverted.
	var (
		mu  sync.Mutex
		log []string
	)
	symbols := []compiler.Symbol{
		{Instruction: step{name: "fit", delay: 50 * time.Millisecond, mu: &mu, log: &log}},
		{Instruction: step{name: "serve", mu: &mu, log: &log}, After: []int{0}},
	}

	_, err := NewPool(2, Options{}).Run(context.Background(), symbols)
	require.NoError(t, err)
	assert.Equal(t, []string{"fit", "serve"}, log)
}

func TestPoolTrainingMatchesSequential(t *testing.T) {
	// Both stateful stages must be committed before anything reads their
	// slots, whatever the pool schedules; serving the two trained
	// directories must give identical predictions.
	composition := regression(t)
	registry := testRegistry(t)
	seqDir, poolDir := asset.NewMemory(), asset.NewMemory()

	require.NoError(t, NewLauncher(composition, registry, seqDir, NewSequential(Options{}), Options{}).Train(context.Background()))
	require.NoError(t, NewLauncher(composition, registry, poolDir, NewPool(4, Options{}), Options{}).Train(context.Background()))

	baseline, err := NewLauncher(composition, registry, seqDir, NewSequential(Options{}), Options{}).Apply(context.Background())
	require.NoError(t, err)
	pooled, err := NewLauncher(composition, registry, poolDir, NewSequential(Options{}), Options{}).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, baseline, pooled)
}

func TestPoolPropagatesFailure(t *testing.T) {
	composition := regression(t)
	launcher := NewLauncher(composition, testRegistry(t), asset.NewMemory(), NewPool(3, Options{}), Options{})

	_, err := launcher.Apply(context.Background())
	assert.ErrorIs(t, err, ErrExecution)
}

func TestSequentialHonorsCancellation(t *testing.T) {
	composition := regression(t)
	launcher := NewLauncher(composition, testRegistry(t), asset.NewMemory(), NewSequential(Options{}), Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, launcher.Train(ctx), ErrExecution)
}

func TestStackedEnsembleLifecycle(t *testing.T) {
	segment, err := operator.Chain(
		operator.SplitSource(std.Static(housing()), std.Static(livestream())),
		operator.NewLabeler(std.Label("price")),
		folding.NewFullStacker(2,
			operator.Pipeline(operator.NewMapper(std.MeanModel())),
		),
	).Expand()
	require.NoError(t, err)
	composition, err := flow.NewComposition(segment)
	require.NoError(t, err)

	registry := testRegistry(t)
	directory := asset.NewMemory()
	launcher := NewLauncher(composition, registry, directory, NewSequential(Options{}), Options{})

	require.NoError(t, launcher.Train(context.Background()))
	result, err := launcher.Apply(context.Background())
	require.NoError(t, err)
	predictions, err := task.AsTable(result)
	require.NoError(t, err)
	require.Equal(t, housing().Len(), predictions.Len())

	// Merged fold means stay inside the label range.
	low, high := 265.0, 620.0
	for _, row := range predictions.Rows {
		require.Len(t, row, 1)
		assert.GreaterOrEqual(t, row[0], low)
		assert.LessOrEqual(t, row[0], high)
	}
}

func TestCrossValidationScore(t *testing.T) {
	segment, err := operator.Chain(
		operator.SplitSource(std.Static(housing()), std.Static(livestream())),
		operator.NewLabeler(std.Label("price")),
		folding.NewCrossValidation(2,
			operator.Pipeline(operator.NewMapper(std.Center()), operator.NewMapper(std.MeanModel())),
			std.MSE(),
		),
	).Expand()
	require.NoError(t, err)
	composition, err := flow.NewComposition(segment)
	require.NoError(t, err)

	directory := asset.NewMemory()
	launcher := NewLauncher(composition, testRegistry(t), directory, NewSequential(Options{}), Options{})

	result, err := launcher.Eval(context.Background())
	require.NoError(t, err)
	score, err := task.AsTable(result)
	require.NoError(t, err)
	require.Equal(t, []string{"mse"}, score.Columns)
	require.Equal(t, 1, score.Len())

	// Round-robin folds over the four rows: fold 0 holds out rows 0 and 2
	// against the mean of rows 1 and 3, fold 1 the other way around.
	assert.InDelta(t, 58406.25, score.Rows[0][0], 1e-9)

	// Scoring runs against scratch state, so the launcher still has no
	// trained generation to serve.
	_, err = launcher.Apply(context.Background())
	assert.ErrorIs(t, err, ErrExecution)
}

func TestFSBackedLifecycle(t *testing.T) {
	composition := regression(t)
	registry := testRegistry(t)
	directory, err := asset.NewFS(t.TempDir())
	require.NoError(t, err)

	launcher := NewLauncher(composition, registry, directory, NewSequential(Options{}), Options{})
	require.NoError(t, launcher.Train(context.Background()))

	result, err := launcher.Apply(context.Background())
	require.NoError(t, err)
	predictions, err := task.AsTable(result)
	require.NoError(t, err)
	assert.Equal(t, housing().Len(), predictions.Len())
}

func TestRenderModes(t *testing.T) {
	composition := regression(t)
	launcher := NewLauncher(composition, testRegistry(t), asset.NewMemory(), NewSequential(Options{}), Options{})

	train, err := launcher.Render(compiler.ModeTrain)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(train, "digraph"))
	assert.Contains(t, train, "#train")
	assert.Contains(t, train, "shape=box")

	apply, err := launcher.Render(compiler.ModeApply)
	require.NoError(t, err)
	assert.Contains(t, apply, "shape=ellipse")
	assert.NotContains(t, apply, "#train")
}

func TestResolveRejectsForwardReference(t *testing.T) {
	symbols := []compiler.Symbol{
		{Arguments: []compiler.Argument{compiler.Reference(0, 0)}},
	}
	_, err := resolve(symbols, 0, make([][]any, 1))
	assert.ErrorIs(t, err, ErrExecution)
}
