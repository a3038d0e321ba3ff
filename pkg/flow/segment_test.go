package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// labeledSource builds the minimal three-path segment: a source worker
// feeding a (1, 2) splitter whose ports carry features and labels.
func labeledSource(t *testing.T) (*Segment, *Worker, *Worker) {
	t.Helper()
	source, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	splitter, err := NewWorker(testSpec(1, 2))
	require.NoError(t, err)

	sourceOut, err := source.Output(0)
	require.NoError(t, err)
	splitterIn, err := splitter.Input(0)
	require.NoError(t, err)
	require.NoError(t, splitterIn.Subscribe(sourceOut))

	features := NewFuture()
	labels := NewFuture()
	for port, future := range map[int]*Future{0: features, 1: labels} {
		out, err := splitter.Output(port)
		require.NoError(t, err)
		in, err := future.Input(0)
		require.NoError(t, err)
		require.NoError(t, in.Subscribe(out))
	}

	apply := source.Fork()
	segment, err := NewSegment(
		&Path{head: source, tail: features},
		NewPath(apply),
		&Path{head: source, tail: labels},
	)
	require.NoError(t, err)
	return segment, source, splitter
}

func TestSegmentRequiresAllPaths(t *testing.T) {
	source, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	path := NewPath(source)
	_, err = NewSegment(path, nil, path)
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestLabelLeakageDetected(t *testing.T) {
	segment, _, splitter := labeledSource(t)

	// An apply-side consumer of the label port leaks training-only data.
	leak, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)
	labelOut, err := splitter.Output(1)
	require.NoError(t, err)
	leakIn, err := leak.Input(0)
	require.NoError(t, err)
	require.NoError(t, leakIn.Subscribe(labelOut))

	_, err = segment.Use(nil, NewPath(leak), nil)
	assert.ErrorIs(t, err, ErrLabelLeakage)
}

func TestSharedNodesAreNotLeakage(t *testing.T) {
	// The source feeds both modes; reachable from train keeps it legal.
	segment, source, _ := labeledSource(t)
	consumer, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)
	sourceOut, err := source.Output(0)
	require.NoError(t, err)
	in, err := consumer.Input(0)
	require.NoError(t, err)
	require.NoError(t, in.Subscribe(sourceOut))

	_, err = segment.Use(nil, NewPath(consumer), nil)
	assert.NoError(t, err)
}

func TestUseKeepsNilPaths(t *testing.T) {
	segment, _, _ := labeledSource(t)
	next, err := segment.Use(nil, nil, nil)
	require.NoError(t, err)
	assert.Same(t, segment.Train(), next.Train())
	assert.Same(t, segment.Apply(), next.Apply())
	assert.Same(t, segment.Label(), next.Label())
}

func TestCompositionConnectsAndCollectsState(t *testing.T) {
	segment, _, _ := labeledSource(t)

	// Second stage: a stateful mapper with a train entry, as an operator
	// would wire it.
	applier, err := NewWorker(statefulSpec(1, 1))
	require.NoError(t, err)
	trainApplier := applier.Fork()
	trainer := applier.Fork()

	features, err := segment.Train().Publisher()
	require.NoError(t, err)
	labels, err := segment.Label().Publisher()
	require.NoError(t, err)
	require.NoError(t, trainer.Train(features, labels))

	extended, err := segment.Extend(NewPath(trainApplier), NewPath(applier))
	require.NoError(t, err)

	composition, err := NewComposition(extended)
	require.NoError(t, err)
	shared := composition.Shared()
	require.Len(t, shared, 1, "three forks, one state slot")
	assert.Equal(t, applier.StateKey(), shared[0].Key())
}

func TestEmptyCompositionRejected(t *testing.T) {
	_, err := NewComposition()
	assert.ErrorIs(t, err, ErrInvalidOperator)
}
