package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkSharesStateIdentity(t *testing.T) {
	w, err := NewWorker(statefulSpec(1, 1))
	require.NoError(t, err)
	fork := w.Fork()

	assert.NotSame(t, w, fork)
	assert.Equal(t, w.StateKey(), fork.StateKey())
	assert.Same(t, w.Group(), fork.Group())
	assert.Len(t, w.Group().Forks(), 2)

	other, err := NewWorker(statefulSpec(1, 1))
	require.NoError(t, err)
	assert.NotEqual(t, w.StateKey(), other.StateKey())
}

func TestTrainRequiresStatefulActor(t *testing.T) {
	producer, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	out, err := producer.Output(0)
	require.NoError(t, err)

	w, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)
	assert.ErrorIs(t, w.Train(out, out), ErrInvalidOperator)
}

func TestTrainReshapesPorts(t *testing.T) {
	features, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	labels, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	featuresOut, err := features.Output(0)
	require.NoError(t, err)
	labelsOut, err := labels.Output(0)
	require.NoError(t, err)

	w, err := NewWorker(statefulSpec(1, 1))
	require.NoError(t, err)
	trainer := w.Fork()
	require.NoError(t, trainer.Train(featuresOut, labelsOut))

	assert.True(t, trainer.IsTrainer())
	assert.Equal(t, 2, trainer.SzIn())
	assert.Equal(t, 0, trainer.SzOut())
	assert.Equal(t, w.StateKey(), trainer.StateKey())

	// Only one train entry per group.
	another := w.Fork()
	assert.ErrorIs(t, another.Train(featuresOut, labelsOut), ErrInvalidOperator)
}

func TestTrainOnWiredForkRejected(t *testing.T) {
	producer, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	out, err := producer.Output(0)
	require.NoError(t, err)

	w, err := NewWorker(statefulSpec(1, 1))
	require.NoError(t, err)
	in, err := w.Input(0)
	require.NoError(t, err)
	require.NoError(t, in.Subscribe(out))

	assert.ErrorIs(t, w.Train(out, out), ErrInvalidOperator)
}
