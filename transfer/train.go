// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"io"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/pkg/errors"
)

// accuracyShortName identifies the accuracy metric among the trainer's
// train/eval metrics.
const accuracyShortName = "#acc"

// EpochMetrics are the scalars emitted after each training pass: the mean
// per-batch loss and the accuracy, as a percentage, over the whole epoch.
type EpochMetrics struct {
	Loss     float64
	Accuracy float64
}

// newOptimizer returns the study's optimizer: plain Adam with a fixed
// learning rate. Its moments live in the context, so a fine-tuning phase
// that wants fresh state must Clear the previous instance first.
func newOptimizer(learningRate float64) optimizers.Interface {
	return optimizers.Adam().LearningRate(learningRate).Done()
}

// newTrainer assembles a train.Trainer for the classifier over the given
// context. The optimizer updates only the parameters trainable at graph
// build time, which is how the frozen/trainable partition is enforced.
func newTrainer(backend backends.Backend, ctx *context.Context, optimizer optimizers.Interface) *train.Trainer {
	return train.NewTrainer(backend, ctx,
		ClassifierGraph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizer,
		[]metrics.Interface{metrics.NewSparseCategoricalAccuracy("Epoch Accuracy", accuracyShortName)},
		[]metrics.Interface{metrics.NewSparseCategoricalAccuracy("Mean Accuracy", accuracyShortName)})
}

// TrainEpochs runs exactly epochs passes over the stream, one TrainStep per
// batch, and returns one EpochMetrics per epoch, in epoch order. There is
// no early stopping and no divergence check.
//
// If sink is non-nil it is called after each epoch with the zero-based
// epoch index and its metrics.
func TrainEpochs(trainer *train.Trainer, ds train.Dataset, epochs int,
	sink func(epoch int, m EpochMetrics)) ([]EpochMetrics, error) {
	accIdx, err := metricIndex(trainer.TrainMetrics(), accuracyShortName)
	if err != nil {
		return nil, err
	}

	all := make([]EpochMetrics, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		if err := trainer.ResetTrainMetrics(); err != nil {
			return nil, errors.WithMessagef(err, "epoch %d: failed to reset train metrics", epoch)
		}
		var lossSum, accuracy float64
		var steps int
		for {
			spec, inputs, labels, err := ds.Yield()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, errors.WithMessagef(err, "epoch %d: failed reading from dataset %q", epoch, ds.Name())
			}
			metricsT, err := trainer.TrainStep(spec, inputs, labels)
			if err != nil {
				return nil, errors.WithMessagef(err, "epoch %d: TrainStep failed on dataset %q", epoch, ds.Name())
			}
			lossSum += metricScalar(metricsT[0])
			accuracy = metricScalar(metricsT[accIdx])
			steps++
		}
		ds.Reset()
		if steps == 0 {
			return nil, errors.Errorf("epoch %d: dataset %q yielded no batches", epoch, ds.Name())
		}
		m := EpochMetrics{
			Loss:     lossSum / float64(steps),
			Accuracy: 100 * accuracy,
		}
		all = append(all, m)
		if sink != nil {
			sink(epoch, m)
		}
	}
	return all, nil
}

// Evaluate runs the model over the stream in inference mode (no gradients,
// no parameter updates) and returns the accuracy percentage, in [0, 100].
// It is deterministic for a fixed model and stream order.
func Evaluate(trainer *train.Trainer, ds train.Dataset) (float64, error) {
	accIdx, err := metricIndex(trainer.EvalMetrics(), accuracyShortName)
	if err != nil {
		return 0, err
	}
	values, err := trainer.Eval(ds)
	if err != nil {
		return 0, errors.WithMessagef(err, "failed evaluating dataset %q", ds.Name())
	}
	ds.Reset()
	return 100 * metricScalar(values[accIdx]), nil
}

// metricIndex finds a metric by its short name, the same pairing-by-index
// the trainer uses for the values it returns.
func metricIndex(list []metrics.Interface, shortName string) (int, error) {
	for i, m := range list {
		if m.ShortName() == shortName {
			return i, nil
		}
	}
	return 0, errors.Errorf("no metric with short name %q configured", shortName)
}

// metricScalar converts a scalar metric tensor to float64.
func metricScalar(t *tensors.Tensor) float64 {
	switch v := t.Value().(type) {
	case float32:
		return float64(v)
	case float64:
		return v
	default:
		panic(errors.Errorf("metric value %v (%s) is not a float scalar", v, t.Shape()))
	}
}
