// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContext builds a seeded 5-class model context.
func newTestContext() *context.Context {
	ctx := context.New()
	ctx.SetParam(ParamNumClasses, 5)
	ctx.RngStateFromSeed(42)
	return ctx
}

// syntheticStream builds a small in-memory stream of random 28x28x1 images
// with labels cycling over the 5 classes, in fixed order.
func syntheticStream(t *testing.T, backend backends.Backend, n, batchSize int) *datasets.InMemoryDataset {
	rng := rand.New(rand.NewSource(7))
	pixels := make([]float32, n*28*28)
	for i := range pixels {
		pixels[i] = rng.Float32()*2 - 1
	}
	labels := make([]int32, n)
	for i := range labels {
		labels[i] = int32(i % 5)
	}
	ds, err := datasets.InMemoryFromData(backend, "synthetic",
		[]any{tensors.FromFlatDataAndDimensions(pixels, n, 28, 28, 1)},
		[]any{tensors.FromFlatDataAndDimensions(labels, n, 1)})
	require.NoError(t, err)
	return ds.BatchSize(batchSize, false)
}

func TestClassifierGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, images *Node) *Node {
		return ClassifierGraph(ctx, nil, []*Node{images})[0]
	})

	images := make([]float32, 3*28*28)
	scores := exec.MustExec(tensors.FromFlatDataAndDimensions(images, 3, 28, 28, 1))[0]
	assert.Equal(t, []int{3, 5}, scores.Shape().Dimensions)

	// Each row holds log-probabilities: their exponentials sum to 1.
	flat := tensors.MustCopyFlatData[float32](scores)
	for row := 0; row < 3; row++ {
		var sum float64
		for class := 0; class < 5; class++ {
			sum += math.Exp(float64(flat[row*5+class]))
		}
		assert.InDelta(t, 1.0, sum, 1e-4)
	}
}

// convWeights snapshots every convolution-stage variable as its flat data.
func convWeights(t *testing.T, ctx *context.Context) map[string][]float32 {
	snap := make(map[string][]float32)
	for _, scope := range []string{"/model/conv1", "/model/conv2"} {
		ctx.InAbsPath(scope).EnumerateVariablesInScope(func(v *context.Variable) {
			snap[v.ScopeAndName()] = tensors.MustCopyFlatData[float32](v.MustValue())
		})
	}
	require.NotEmpty(t, snap)
	return snap
}

// TestFreezeFeaturesAndResetHead checks the fine-tuning contract: after
// freezing, further training leaves the convolution weights bit-identical,
// and after resetting the head a fresh trainable output layer is built.
func TestFreezeFeaturesAndResetHead(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := newTestContext()
	ds := syntheticStream(t, backend, 10, 5)

	firstOpt := newOptimizer(0.001)
	trainer := newTrainer(backend, ctx, firstOpt)
	_, err := TrainEpochs(trainer, ds, 1, nil)
	require.NoError(t, err)

	frozen := convWeights(t, ctx)

	FreezeFeatures(ctx)
	require.NoError(t, ResetHead(ctx))
	require.NoError(t, firstOpt.Clear(ctx))
	require.NoError(t, optimizers.DeleteGlobalStep(ctx))

	// Head is gone until the next graph build.
	var headVars int
	ctx.InAbsPath("/model/fc").EnumerateVariablesInScope(func(v *context.Variable) { headVars++ })
	assert.Zero(t, headVars)

	trainer = newTrainer(backend, ctx, newOptimizer(0.001))
	_, err = TrainEpochs(trainer, ds, 2, nil)
	require.NoError(t, err)

	assert.Equal(t, frozen, convWeights(t, ctx))
	ctx.InAbsPath("/model/fc").EnumerateVariablesInScope(func(v *context.Variable) {
		headVars++
		assert.True(t, v.Trainable, "head variable %s must be trainable", v.ScopeAndName())
	})
	assert.NotZero(t, headVars)
}
