package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeml/lattice/pkg/task"
)

func testSpec(szin, szout int) task.Spec {
	return task.Spec{Actor: "test.actor", SzIn: szin, SzOut: szout}
}

func statefulSpec(szin, szout int) task.Spec {
	return task.Spec{Actor: "test.model", SzIn: szin, SzOut: szout, Stateful: true}
}

func TestPortIndexOutOfRange(t *testing.T) {
	w, err := NewWorker(testSpec(1, 2))
	require.NoError(t, err)

	_, err = w.Input(1)
	assert.ErrorIs(t, err, ErrArity)
	_, err = w.Input(-1)
	assert.ErrorIs(t, err, ErrArity)
	_, err = w.Output(2)
	assert.ErrorIs(t, err, ErrArity)

	in, err := w.Input(0)
	require.NoError(t, err)
	assert.Equal(t, 0, in.Index())
	out, err := w.Output(1)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Index())
}

func TestNegativeArityRejected(t *testing.T) {
	_, err := NewWorker(testSpec(-1, 1))
	assert.ErrorIs(t, err, ErrArity)
}

func TestSingleProducerPerInput(t *testing.T) {
	producer, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	other, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	consumer, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)

	in, err := consumer.Input(0)
	require.NoError(t, err)
	out, err := producer.Output(0)
	require.NoError(t, err)
	require.NoError(t, in.Subscribe(out))

	otherOut, err := other.Output(0)
	require.NoError(t, err)
	assert.ErrorIs(t, in.Subscribe(otherOut), ErrAlreadyBound)

	// Fan-out stays legal: a second consumer on the same output.
	second, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)
	secondIn, err := second.Input(0)
	require.NoError(t, err)
	require.NoError(t, secondIn.Subscribe(out))
	assert.Len(t, out.Subscribers(), 2)
}

func TestSelfLoopRejected(t *testing.T) {
	w, err := NewWorker(testSpec(1, 1))
	require.NoError(t, err)
	in, err := w.Input(0)
	require.NoError(t, err)
	out, err := w.Output(0)
	require.NoError(t, err)
	assert.ErrorIs(t, in.Subscribe(out), ErrCycle)
}

func TestResolveProducerFollowsFutures(t *testing.T) {
	producer, err := NewWorker(testSpec(0, 1))
	require.NoError(t, err)
	inner := NewFuture()
	outer := NewFuture()

	producerOut, err := producer.Output(0)
	require.NoError(t, err)
	innerIn, err := inner.Input(0)
	require.NoError(t, err)
	require.NoError(t, innerIn.Subscribe(producerOut))
	innerOut, err := inner.Output(0)
	require.NoError(t, err)
	outerIn, err := outer.Input(0)
	require.NoError(t, err)
	require.NoError(t, outerIn.Subscribe(innerOut))

	outerOut, err := outer.Output(0)
	require.NoError(t, err)
	resolved, err := ResolveProducer(outerOut)
	require.NoError(t, err)
	assert.Same(t, producerOut, resolved)
}

func TestResolveProducerUnbound(t *testing.T) {
	future := NewFuture()
	out, err := future.Output(0)
	require.NoError(t, err)
	_, err = ResolveProducer(out)
	assert.ErrorIs(t, err, ErrUnresolvedFuture)
}
