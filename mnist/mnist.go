// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

// Package mnist loads the MNIST database of handwritten digits and carves
// out the label-remapped subsets used by the transfer-learning study.
//
// The dataset files are the standard IDX format, downloaded if absent. A
// split is loaded once into an immutable RawSet; subset selection, label
// remapping and batching are layered on top (see SelectByLabel, LabelMap
// and NewStream).
package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/color"
	"net/url"
	"os"
	"path"

	"github.com/gomlx/gomlx/examples/downloader"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
)

const (
	downloadURL = "https://storage.googleapis.com/cvdf-datasets/mnist"

	// Width and Height of every MNIST image, in pixels.
	Width  = 28
	Height = 28

	// NumClasses of the full 10-digit dataset.
	NumClasses = 10

	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

// Label is a digit label, from 0 to 9.
type Label = int8

// Image is a raw MNIST image: one byte per pixel, 0 is background (black)
// and 255 is the digit color (white). It implements image.Image.
type Image [Width * Height]byte

var _ image.Image = Image{}

// ColorModel implements image.Image.
func (img Image) ColorModel() color.Model { return color.GrayModel }

// Bounds implements image.Image.
func (img Image) Bounds() image.Rectangle {
	return image.Rect(0, 0, Width, Height)
}

// At implements image.Image.
func (img Image) At(x, y int) color.Color {
	return color.Gray{Y: img[y*Width+x]}
}

// Split names one of the two fixed MNIST partitions.
type Split string

const (
	Train Split = "train"
	Test  Split = "test"
)

var splitFiles = map[Split][2]string{
	Train: {"train-images-idx3-ubyte.gz", "train-labels-idx1-ubyte.gz"},
	Test:  {"t10k-images-idx3-ubyte.gz", "t10k-labels-idx1-ubyte.gz"},
}

// RawSet is one fully loaded MNIST partition. It is built once by Load and
// never mutated afterward.
type RawSet struct {
	Split  Split
	Images []Image
	Labels []Label
}

// Len returns the number of examples in the set.
func (s *RawSet) Len() int { return len(s.Images) }

// Download fetches the four MNIST IDX files into baseDir, if they are not
// there already.
func Download(baseDir string) error {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	if err := os.MkdirAll(baseDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create data directory %q", baseDir)
	}
	for _, files := range splitFiles {
		for _, file := range files {
			fileURL, _ := url.JoinPath(downloadURL, file)
			if err := downloader.DownloadIfMissing(fileURL, path.Join(baseDir, file), ""); err != nil {
				return errors.WithMessagef(err, "failed to download %q", file)
			}
		}
	}
	return nil
}

// Load parses one MNIST split from baseDir into a RawSet.
// It expects the files downloaded by Download.
func Load(baseDir string, split Split) (*RawSet, error) {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	files, ok := splitFiles[split]
	if !ok {
		return nil, errors.Errorf("unknown MNIST split %q", split)
	}
	images, err := loadImages(path.Join(baseDir, files[0]))
	if err != nil {
		return nil, err
	}
	labels, err := loadLabels(path.Join(baseDir, files[1]))
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, errors.Errorf("MNIST split %q: %d images but %d labels", split, len(images), len(labels))
	}
	return &RawSet{Split: split, Images: images, Labels: labels}, nil
}

func openIDX(filename string) (*os.File, *gzip.Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open %q", filename)
	}
	r, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, errors.Wrapf(err, "%q is not gzip-compressed", filename)
	}
	return f, r, nil
}

func loadImages(filename string) ([]Image, error) {
	f, r, err := openIDX(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
		_ = f.Close()
	}()

	var header struct {
		Magic, NumImages, Height, Width int32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(err, "failed to read IDX image header from %q", filename)
	}
	if header.Magic != imageMagic || header.Width != Width || header.Height != Height {
		return nil, errors.Errorf("%q: invalid IDX image header (magic=%#x, %dx%d)",
			filename, header.Magic, header.Width, header.Height)
	}
	images := make([]Image, header.NumImages)
	for i := range images {
		if err := binary.Read(r, binary.BigEndian, &images[i]); err != nil {
			return nil, errors.Wrapf(err, "%q: failed to read image %d of %d", filename, i, header.NumImages)
		}
	}
	return images, nil
}

func loadLabels(filename string) ([]Label, error) {
	f, r, err := openIDX(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = r.Close()
		_ = f.Close()
	}()

	var header struct {
		Magic, NumLabels int32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrapf(err, "failed to read IDX label header from %q", filename)
	}
	if header.Magic != labelMagic {
		return nil, errors.Errorf("%q: invalid IDX label header (magic=%#x)", filename, header.Magic)
	}
	labels := make([]Label, header.NumLabels)
	if err := binary.Read(r, binary.BigEndian, labels); err != nil {
		return nil, errors.Wrapf(err, "%q: failed to read %d labels", filename, header.NumLabels)
	}
	return labels, nil
}
