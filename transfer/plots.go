// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

// SVG plots of the training curves and of the aggregate comparison, drawn
// with margaid. One diagram per metric type (accuracy and loss do not share
// a Y-axis).

import (
	"fmt"
	"os"
	"path/filepath"

	mg "github.com/erkkah/margaid"
	"github.com/pkg/errors"
)

const (
	plotWidth  = 800
	plotHeight = 400
)

// plotLine is one named curve: values[i] plotted at x = startX + i.
type plotLine struct {
	name   string
	startX int
	values []float64
}

// writeLinePlot renders the given curves to an SVG file.
func writeLinePlot(filePath, title, xLabel, yLabel string, lines []plotLine) error {
	allSeries := make([]*mg.Series, 0, len(lines))
	allPoints := mg.NewSeries()
	for _, line := range lines {
		s := mg.NewSeries(mg.Titled(line.name))
		for i, y := range line.values {
			v := mg.MakeValue(float64(line.startX+i), y)
			s.Add(v)
			allPoints.Add(v)
		}
		allSeries = append(allSeries, s)
	}

	diagram := mg.New(plotWidth, plotHeight,
		mg.WithAutorange(mg.XAxis, allSeries...),
		mg.WithAutorange(mg.YAxis, allSeries...),
		mg.WithInset(70),
		mg.WithPadding(2),
		mg.WithColorScheme(90),
		mg.WithBackgroundColor("#f8f8f8"),
	)
	for _, s := range allSeries {
		diagram.Line(s, mg.UsingAxes(mg.XAxis, mg.YAxis), mg.UsingMarker("square"), mg.UsingStrokeWidth(2))
	}
	diagram.Axis(allPoints, mg.XAxis, diagram.ValueTicker('f', 0, 10), false, xLabel)
	diagram.Axis(allPoints, mg.YAxis, diagram.ValueTicker('f', 2, 10), true, yLabel)
	diagram.Frame()
	diagram.Title(title)
	if len(lines) > 1 || (len(lines) == 1 && lines[0].name != "") {
		diagram.Legend(mg.BottomLeft)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create plot file %q", filePath)
	}
	if err := diagram.Render(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to render plot %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close plot file %q", filePath)
}

// plotRunCurves writes the per-run accuracy and loss curve images.
func plotRunCurves(imageDir string, kind Kind, run int, curve []EpochMetrics) error {
	if err := os.MkdirAll(imageDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create image directory %q", imageDir)
	}
	accuracies := make([]float64, len(curve))
	lossValues := make([]float64, len(curve))
	for i, m := range curve {
		accuracies[i] = m.Accuracy
		lossValues[i] = m.Loss
	}
	runName := fmt.Sprintf("Run %d", run)
	err := writeLinePlot(
		filepath.Join(imageDir, fmt.Sprintf("%s_run_%d_accuracy.svg", kind, run)),
		fmt.Sprintf("%s - Accuracy", kind.Title()), "Epoch", "Accuracy (%)",
		[]plotLine{{name: runName, startX: 1, values: accuracies}})
	if err != nil {
		return err
	}
	return writeLinePlot(
		filepath.Join(imageDir, fmt.Sprintf("%s_run_%d_loss.svg", kind, run)),
		fmt.Sprintf("%s - Loss", kind.Title()), "Epoch", "Loss",
		[]plotLine{{name: runName, startX: 1, values: lossValues}})
}

// WriteSummaryPlots renders the two aggregate comparison images: test
// accuracy per run, and mean training loss per run, each with one curve per
// experiment variant.
func WriteSummaryPlots(imageDir string, nonTransfer, transfer *Result) error {
	if err := os.MkdirAll(imageDir, 0777); err != nil {
		return errors.Wrapf(err, "failed to create image directory %q", imageDir)
	}
	err := writeLinePlot(
		filepath.Join(imageDir, "accuracy_per_run.svg"),
		"Test Accuracy per Run", "Run", "Accuracy (%)",
		[]plotLine{
			{name: NonTransfer.Title(), startX: 1, values: nonTransfer.Accuracies},
			{name: Transfer.Title(), startX: 1, values: transfer.Accuracies},
		})
	if err != nil {
		return err
	}
	return writeLinePlot(
		filepath.Join(imageDir, "mean_loss_per_run.svg"),
		"Mean Training Loss per Run", "Run", "Loss",
		[]plotLine{
			{name: NonTransfer.Title(), startX: 1, values: nonTransfer.MeanLossPerRun()},
			{name: Transfer.Title(), startX: 1, values: transfer.MeanLossPerRun()},
		})
}
