// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package mnist

import (
	"math/rand"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/pkg/errors"
)

// NewStream builds a batched train.Dataset over the selected positions of a
// RawSet, with labels remapped through lm.
//
// Images are yielded as `[batch_size, 28, 28, 1]` float32 tensors normalized
// to [-1, 1] (mean 0.5, std 0.5, as the study's preprocessing), labels as
// `[batch_size, 1]` int32 dense class indices.
//
// If rng is non-nil the stream is reshuffled between epochs; otherwise it
// yields batches in selection order, which keeps evaluation deterministic.
// The incomplete final batch is kept.
//
// The whole subset is validated and staged in memory up front: an unmapped
// label or an empty selection is a construction error, not a mid-training
// failure.
func NewStream(backend backends.Backend, name string, set *RawSet,
	positions []int, lm *LabelMap, batchSize int, rng *rand.Rand) (*datasets.InMemoryDataset, error) {
	if len(positions) == 0 {
		return nil, errors.Errorf("stream %q: empty subset selection", name)
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("stream %q: invalid batch size %d", name, batchSize)
	}
	classes, err := Project(set, positions, lm)
	if err != nil {
		return nil, errors.WithMessagef(err, "stream %q", name)
	}

	pixels := make([]float32, 0, len(positions)*Height*Width)
	labels := make([]int32, len(positions))
	for i, pos := range positions {
		for _, v := range set.Images[pos] {
			pixels = append(pixels, float32(v)/127.5-1)
		}
		labels[i] = int32(classes[i])
	}
	imagesT := tensors.FromFlatDataAndDimensions(pixels, len(positions), Height, Width, 1)
	labelsT := tensors.FromFlatDataAndDimensions(labels, len(positions), 1)

	ds, err := datasets.InMemoryFromData(backend, name, []any{imagesT}, []any{labelsT})
	if err != nil {
		return nil, errors.WithMessagef(err, "stream %q", name)
	}
	ds.BatchSize(batchSize, false)
	if rng != nil {
		ds.WithRand(rng).Shuffle()
	}
	return ds, nil
}
