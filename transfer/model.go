// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/nn"
)

// ParamNumClasses is the context hyperparameter with the number of output
// classes of the classifier (5 in this study).
const ParamNumClasses = "num_classes"

// Model variable scopes. The two convolution stages are the transferable
// feature extractor; the fully-connected head is what gets replaced when
// fine-tuning.
const (
	scopeModel = "model"
	scopeConv1 = "conv1"
	scopeConv2 = "conv2"
	scopeHead  = "fc"
)

// ClassifierGraph builds the study's fixed CNN: two convolution+max-pool
// stages feeding a single fully-connected layer. It returns the log-softmax
// class scores, shaped `[batch_size, num_classes]`.
//
// inputs: one tensor shaped `[batch_size, 28, 28, 1]`.
func ClassifierGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	ctx = ctx.In(scopeModel)
	numClasses := context.GetParamOr(ctx, ParamNumClasses, 5)
	images := inputs[0]
	batchSize := images.Shape().Dimensions[0]

	images = layers.Convolution(ctx.In(scopeConv1), images).Channels(32).KernelSize(3).PadSame().Done()
	images = activations.Relu(images)
	images = MaxPool(images).Window(2).Done()
	images.AssertDims(batchSize, 14, 14, 32)

	images = layers.Convolution(ctx.In(scopeConv2), images).Channels(64).KernelSize(3).PadSame().Done()
	images = activations.Relu(images)
	images = MaxPool(images).Window(2).Done()
	images.AssertDims(batchSize, 7, 7, 64)

	embeddings := Reshape(images, batchSize, -1)
	logits := layers.DenseWithBias(ctx.In(scopeHead), embeddings, numClasses)
	// Log-probabilities, not raw logits. The sparse cross-entropy loss is
	// indifferent (log-softmax is shift-invariant and idempotent), but the
	// model's contract is log-softmax scores.
	return []*Node{nn.LogSoftmax(logits, -1)}
}

// FreezeFeatures marks the parameters of both convolution stages as
// non-trainable. Already-frozen variables stay frozen.
func FreezeFeatures(ctx *context.Context) {
	for _, scope := range []string{scopeConv1, scopeConv2} {
		featureCtx := ctx.InAbsPath(context.ScopeSeparator + scopeModel).In(scope)
		featureCtx.EnumerateVariablesInScope(func(v *context.Variable) {
			v.SetTrainable(false)
		})
	}
}

// ResetHead discards the fully-connected output layer's parameters. The
// next graph build re-initializes a fresh head (sized by ParamNumClasses),
// which is how fine-tuning gets a new output layer on top of the kept
// convolution weights.
func ResetHead(ctx *context.Context) error {
	headCtx := ctx.InAbsPath(context.ScopeSeparator + scopeModel).In(scopeHead)
	return headCtx.DeleteVariablesInScope()
}
