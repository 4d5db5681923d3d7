// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package mnist

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelMaps(t *testing.T) {
	evens := EvenLabels()
	odds := OddLabels()
	require.Equal(t, 5, evens.NumClasses())
	require.Equal(t, 5, odds.NumClasses())

	wantEven := map[Label]int8{0: 0, 2: 1, 4: 2, 6: 3, 8: 4}
	for l, want := range wantEven {
		got, err := evens.Class(l)
		require.NoError(t, err)
		assert.Equal(t, want, got, "even label %d", l)
	}
	wantOdd := map[Label]int8{1: 0, 3: 1, 5: 2, 7: 3, 9: 4}
	for l, want := range wantOdd {
		got, err := odds.Class(l)
		require.NoError(t, err)
		assert.Equal(t, want, got, "odd label %d", l)
	}

	// Odd labels are not covered by the even map, and vice-versa.
	for _, l := range odds.Labels() {
		_, err := evens.Class(l)
		assert.True(t, errors.Is(err, ErrUnmappedLabel), "label %d should be unmapped", l)
	}
	for _, l := range evens.Labels() {
		_, err := odds.Class(l)
		assert.True(t, errors.Is(err, ErrUnmappedLabel), "label %d should be unmapped", l)
	}
}

func TestNewLabelMapValidation(t *testing.T) {
	_, err := NewLabelMap(1, 3, 3)
	require.Error(t, err, "duplicate label must fail at construction")
	_, err = NewLabelMap(10)
	require.Error(t, err, "out-of-range label must fail at construction")
	_, err = NewLabelMap(-1)
	require.Error(t, err, "negative label must fail at construction")
}

// fakeSet builds a RawSet with the given label sequence and blank images.
func fakeSet(labels ...Label) *RawSet {
	return &RawSet{
		Split:  Train,
		Images: make([]Image, len(labels)),
		Labels: labels,
	}
}

func TestSelectByLabel(t *testing.T) {
	set := fakeSet(1, 0, 3, 1, 1, 5, 3, 2, 9, 1, 7)

	odds := OddLabels()
	all := SelectByLabel(set, odds, 0)
	assert.Equal(t, []int{0, 2, 3, 4, 5, 6, 8, 9, 10}, all, "uncapped selection keeps dataset order")

	capped := SelectByLabel(set, odds, 2)
	// First two of label 1 (positions 0, 3), both of label 3 (2, 6), and the
	// single 5, 9 and 7.
	assert.Equal(t, []int{0, 2, 3, 5, 6, 8, 10}, capped)

	perLabel := map[Label]int{}
	for _, pos := range capped {
		perLabel[set.Labels[pos]]++
	}
	for l, n := range perLabel {
		assert.LessOrEqual(t, n, 2, "label %d exceeds per-label cap", l)
	}
	assert.ElementsMatch(t, []Label{1, 3, 5, 7, 9}, keys(perLabel),
		"every requested label with examples must be present")
}

func keys(m map[Label]int) []Label {
	ks := make([]Label, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	return ks
}

func TestProject(t *testing.T) {
	set := fakeSet(1, 3, 5, 7, 9)
	classes, err := Project(set, []int{0, 1, 2, 3, 4}, OddLabels())
	require.NoError(t, err)
	assert.Equal(t, []int8{0, 1, 2, 3, 4}, classes)

	// Reordered and repeated positions follow the given order.
	classes, err = Project(set, []int{4, 4, 0}, OddLabels())
	require.NoError(t, err)
	assert.Equal(t, []int8{4, 4, 0}, classes)

	// An even label under the odd map fails fast, with the named error kind.
	_, err = Project(fakeSet(1, 2, 3), []int{0, 1, 2}, OddLabels())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnmappedLabel))

	_, err = Project(set, []int{5}, OddLabels())
	require.Error(t, err, "out-of-range position must fail")
}
