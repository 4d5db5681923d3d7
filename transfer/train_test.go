// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainEpochs(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	ds := syntheticStream(t, backend, 10, 4)
	trainer := newTrainer(backend, ctx, newOptimizer(0.001))

	var sinkEpochs []int
	curve, err := TrainEpochs(trainer, ds, 3, func(epoch int, m EpochMetrics) {
		sinkEpochs = append(sinkEpochs, epoch)
	})
	require.NoError(t, err)

	// One result per epoch, in epoch order, no early stopping.
	require.Len(t, curve, 3)
	assert.Equal(t, []int{0, 1, 2}, sinkEpochs)
	for i, m := range curve {
		assert.GreaterOrEqual(t, m.Loss, 0.0, "epoch %d: cross-entropy loss is non-negative", i)
		assert.GreaterOrEqual(t, m.Accuracy, 0.0, "epoch %d", i)
		assert.LessOrEqual(t, m.Accuracy, 100.0, "epoch %d", i)
	}
}

func TestTrainEpochsZeroEpochs(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	ds := syntheticStream(t, backend, 4, 2)
	trainer := newTrainer(backend, ctx, newOptimizer(0.001))

	curve, err := TrainEpochs(trainer, ds, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, curve)
}

func TestEvaluate(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	trainDS := syntheticStream(t, backend, 10, 5)
	evalDS := syntheticStream(t, backend, 10, 4)
	trainer := newTrainer(backend, ctx, newOptimizer(0.001))
	_, err := TrainEpochs(trainer, trainDS, 1, nil)
	require.NoError(t, err)

	first, err := Evaluate(trainer, evalDS)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, first, 0.0)
	assert.LessOrEqual(t, first, 100.0)

	// Evaluation does not update the model: repeating it over the same
	// fixed-order stream gives the same accuracy.
	second, err := Evaluate(trainer, evalDS)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
