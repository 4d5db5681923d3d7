// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package mnist

import (
	"github.com/pkg/errors"
)

// ErrUnmappedLabel is reported when a subset contains a label its LabelMap
// does not cover. It is detected when the subset is projected, before any
// training starts.
var ErrUnmappedLabel = errors.New("label not covered by label map")

// LabelMap is an exhaustive table from original digit labels to dense
// zero-based class indices. It is validated at construction and read-only
// afterward.
type LabelMap struct {
	classOf [NumClasses]int8 // -1 for labels not in the map.
	labels  []Label
}

// NewLabelMap builds a LabelMap that assigns class index i to labels[i].
// Duplicate or out-of-range labels are construction errors.
func NewLabelMap(labels ...Label) (*LabelMap, error) {
	lm := &LabelMap{labels: labels}
	for i := range lm.classOf {
		lm.classOf[i] = -1
	}
	for i, l := range labels {
		if l < 0 || l >= NumClasses {
			return nil, errors.Errorf("label %d out of range [0, %d)", l, NumClasses)
		}
		if lm.classOf[l] >= 0 {
			return nil, errors.Errorf("label %d appears twice in label map", l)
		}
		lm.classOf[l] = int8(i)
	}
	return lm, nil
}

// EvenLabels maps the even digits {0,2,4,6,8} to classes 0..4.
// This is the "large" pretraining label set.
func EvenLabels() *LabelMap {
	lm, _ := NewLabelMap(0, 2, 4, 6, 8)
	return lm
}

// OddLabels maps the odd digits {1,3,5,7,9} to classes 0..4.
// This is the scarce fine-tuning and held-out test label set.
func OddLabels() *LabelMap {
	lm, _ := NewLabelMap(1, 3, 5, 7, 9)
	return lm
}

// Class returns the dense class index for an original label, or
// ErrUnmappedLabel if the label is not in the map.
func (lm *LabelMap) Class(l Label) (int8, error) {
	if l < 0 || l >= NumClasses || lm.classOf[l] < 0 {
		return 0, errors.WithMessagef(ErrUnmappedLabel, "label %d", l)
	}
	return lm.classOf[l], nil
}

// Labels returns the original labels covered by the map, in class order.
func (lm *LabelMap) Labels() []Label { return lm.labels }

// NumClasses returns the number of dense classes the map produces.
func (lm *LabelMap) NumClasses() int { return len(lm.labels) }

// SelectByLabel returns the positions in set whose label is in the accept
// set, in first-encountered (dataset) order.
//
// If perLabelCap > 0, at most perLabelCap positions are kept per label.
// The capped selection deliberately takes the first perLabelCap examples in
// dataset order rather than a random sample: the study depends on this
// deterministic policy for reproducibility.
func SelectByLabel(set *RawSet, accept *LabelMap, perLabelCap int) []int {
	var taken [NumClasses]int
	positions := make([]int, 0, set.Len())
	for i, l := range set.Labels {
		if _, err := accept.Class(l); err != nil {
			continue
		}
		if perLabelCap > 0 {
			if taken[l] >= perLabelCap {
				continue
			}
			taken[l]++
		}
		positions = append(positions, i)
	}
	return positions
}

// Project remaps the labels of the selected positions through lm, in order.
// It fails with ErrUnmappedLabel if any selected example carries a label the
// map does not cover, so a bad subset is caught before training starts.
func Project(set *RawSet, positions []int, lm *LabelMap) ([]int8, error) {
	classes := make([]int8, len(positions))
	for i, pos := range positions {
		if pos < 0 || pos >= set.Len() {
			return nil, errors.Errorf("position %d out of range for %q set of size %d", pos, set.Split, set.Len())
		}
		class, err := lm.Class(set.Labels[pos])
		if err != nil {
			return nil, errors.WithMessagef(err, "example %d of %q set", pos, set.Split)
		}
		classes[i] = class
	}
	return classes, nil
}
