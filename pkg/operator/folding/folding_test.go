package folding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeml/lattice/pkg/flow"
	"github.com/latticeml/lattice/pkg/operator"
	"github.com/latticeml/lattice/pkg/task"
	"github.com/latticeml/lattice/pkg/task/std"
)

func pipeline(folds, bases int) operator.Composable {
	dataset := task.Table{
		Columns: []string{"x", "y"},
		Rows:    [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}},
	}
	models := make([]operator.Composable, bases)
	for i := range models {
		models[i] = operator.Pipeline(operator.NewMapper(std.MeanModel()))
	}
	return operator.Chain(
		operator.Source(std.Static(dataset)),
		operator.NewLabeler(std.Label("y")),
		NewFullStacker(folds, models...),
	)
}

func TestStackerValidation(t *testing.T) {
	_, err := NewFullStacker(2).Compose(operator.Origin())
	assert.ErrorIs(t, err, flow.ErrInvalidOperator)

	base := operator.Pipeline(operator.NewMapper(std.MeanModel()))
	_, err = NewFullStacker(1, base).Compose(operator.Origin())
	assert.ErrorIs(t, err, flow.ErrInvalidOperator)
}

func TestStackerAllocatesPerFoldModels(t *testing.T) {
	for _, tc := range []struct {
		folds, bases int
	}{
		{2, 1},
		{3, 2},
	} {
		segment, err := pipeline(tc.folds, tc.bases).Expand()
		require.NoError(t, err)
		composition, err := flow.NewComposition(segment)
		require.NoError(t, err)

		// One model instance per base and fold; nothing else holds state.
		shared := composition.Shared()
		assert.Len(t, shared, tc.folds*tc.bases)
		for _, group := range shared {
			var trainers int
			for _, fork := range group.Forks() {
				if fork.IsTrainer() {
					trainers++
				}
			}
			assert.Equal(t, 1, trainers, "every fold model trains exactly once")
		}
	}
}

func TestStackerExpandIsRepeatable(t *testing.T) {
	recipe := pipeline(2, 1)
	first, err := recipe.Expand()
	require.NoError(t, err)
	second, err := recipe.Expand()
	require.NoError(t, err)

	// Expansions are independent graphs with independent state identities.
	firstComp, err := flow.NewComposition(first)
	require.NoError(t, err)
	secondComp, err := flow.NewComposition(second)
	require.NoError(t, err)
	require.Len(t, firstComp.Shared(), 2)
	require.Len(t, secondComp.Shared(), 2)
	for _, a := range firstComp.Shared() {
		for _, b := range secondComp.Shared() {
			assert.NotEqual(t, a.Key(), b.Key())
		}
	}
}

func scoring(folds int) operator.Composable {
	dataset := task.Table{
		Columns: []string{"x", "y"},
		Rows:    [][]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}},
	}
	return operator.Chain(
		operator.Source(std.Static(dataset)),
		operator.NewLabeler(std.Label("y")),
		NewCrossValidation(folds, operator.Pipeline(operator.NewMapper(std.MeanModel())), std.MSE()),
	)
}

func TestCrossValidationValidation(t *testing.T) {
	model := operator.Pipeline(operator.NewMapper(std.MeanModel()))

	_, err := NewCrossValidation(2, nil, std.MSE()).Compose(operator.Origin())
	assert.ErrorIs(t, err, flow.ErrInvalidOperator)

	_, err = NewCrossValidation(1, model, std.MSE()).Compose(operator.Origin())
	assert.ErrorIs(t, err, flow.ErrInvalidOperator)

	_, err = NewCrossValidation(2, model, std.Identity()).Compose(operator.Origin())
	assert.ErrorIs(t, err, flow.ErrInvalidOperator)
}

func TestCrossValidationWiring(t *testing.T) {
	segment, err := scoring(2).Expand()
	require.NoError(t, err)

	// The train tail merges one metric figure per fold.
	merger, ok := segment.Train().Tail().(*flow.Worker)
	require.True(t, ok)
	assert.Equal(t, std.MeanMergeName, merger.Spec().Actor)
	require.Equal(t, 2, merger.SzIn())
	for i := 0; i < merger.SzIn(); i++ {
		in, err := merger.Input(i)
		require.NoError(t, err)
		require.NotNil(t, in.Source())
		metric := in.Source().Owner().(*flow.Worker)
		assert.Equal(t, std.MSEName, metric.Spec().Actor)
	}

	// Scoring never touches the serving side.
	extraction, ok := segment.Apply().Tail().(*flow.Worker)
	require.True(t, ok)
	assert.Equal(t, std.StaticName, extraction.Spec().Actor)

	composition, err := flow.NewComposition(segment)
	require.NoError(t, err)
	assert.Len(t, composition.Shared(), 2, "one model instance per fold")
}

func TestStackerApplyMergesFolds(t *testing.T) {
	segment, err := pipeline(2, 1).Expand()
	require.NoError(t, err)

	// The apply tail is the per-base combiner fed by one merger per base.
	combiner, ok := segment.Apply().Tail().(*flow.Worker)
	require.True(t, ok)
	assert.Equal(t, std.ConcatColsName, combiner.Spec().Actor)

	in, err := combiner.Input(0)
	require.NoError(t, err)
	require.NotNil(t, in.Source())
	merger := in.Source().Owner().(*flow.Worker)
	assert.Equal(t, std.MeanMergeName, merger.Spec().Actor)
	assert.Equal(t, 2, merger.SzIn(), "one merged prediction per fold")
}
