// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

// Package transfer implements a small study comparing transfer learning
// against training from scratch on MNIST digit subsets.
//
// A fixed CNN is pre-trained to classify the even digits on the full
// training split, its convolution stages are frozen, its fully-connected
// head is replaced, and the result is fine-tuned on a few examples of each
// odd digit. The baseline trains the same architecture on the same few odd
// examples from scratch. Both variants are repeated over several
// independent runs and evaluated on a held-out odd-digit test subset.
package transfer

import (
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/numpy"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/mlstudies/mnist-transfer/mnist"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// Kind identifies one of the two experiment variants. Its string value is
// the file name prefix used for logs and images.
type Kind string

const (
	// NonTransfer trains the classifier on the small odd-digit subset from
	// scratch.
	NonTransfer Kind = "non_transfer"

	// Transfer pre-trains on even digits, freezes the convolution stages,
	// replaces the head and fine-tunes on the small odd-digit subset.
	Transfer Kind = "transfer"
)

// Title returns the variant name used in log lines and plot titles.
func (k Kind) Title() string {
	if k == Transfer {
		return "Transfer"
	}
	return "Non-Transfer"
}

// Config collects every knob of the study. Defaults (see DefaultConfig)
// reproduce the reference setup: 10 runs of 10 epochs each, with 20
// fine-tuning examples and 200 test examples per odd digit.
type Config struct {
	// DataDir is where the MNIST files are downloaded and cached.
	DataDir string

	// LogDir receives the per-run log files and the serialized results.
	LogDir string

	// ImageDir receives the rendered SVG plots.
	ImageDir string

	NumRuns   int
	NumEpochs int

	PretrainBatchSize int
	FinetuneBatchSize int
	EvalBatchSize     int

	// TrainPerLabel caps the fine-tuning subset to this many examples of
	// each odd digit. TestPerLabel does the same for the test subset.
	TrainPerLabel int
	TestPerLabel  int

	LearningRate float64
	NumClasses   int

	// Seed makes runs reproducible: run r is seeded with Seed+r. Zero
	// leaves the default (randomized) initialization.
	Seed int64
}

// DefaultConfig returns the study's reference configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:           "data",
		LogDir:            "logs",
		ImageDir:          "images",
		NumRuns:           10,
		NumEpochs:         10,
		PretrainBatchSize: 128,
		FinetuneBatchSize: 2,
		EvalBatchSize:     32,
		TrainPerLabel:     20,
		TestPerLabel:      200,
		LearningRate:      0.001,
		NumClasses:        5,
	}
}

// Result aggregates one variant's outcomes over all runs.
type Result struct {
	Kind Kind

	// Accuracies has the final test accuracy (percent) of each run.
	Accuracies []float64

	// Losses has, per run, the mean training loss of each epoch. For the
	// Transfer variant these are the fine-tuning epochs.
	Losses [][]float64
}

// MeanLossPerRun reduces each run's loss curve to its mean.
func (r *Result) MeanLossPerRun() []float64 {
	means := make([]float64, len(r.Losses))
	for i, curve := range r.Losses {
		var sum float64
		for _, l := range curve {
			sum += l
		}
		if len(curve) > 0 {
			means[i] = sum / float64(len(curve))
		}
	}
	return means
}

// Experiment holds the backend, configuration and the data streams shared
// by every run. Streams are built once; each run gets a fresh model
// context.
type Experiment struct {
	backend backends.Backend
	config  Config

	pretrain *datasets.InMemoryDataset // even digits, full training split
	finetune *datasets.InMemoryDataset // odd digits, TrainPerLabel each
	test     *datasets.InMemoryDataset // odd digits, TestPerLabel each
}

// NewExperiment downloads MNIST if needed, loads both splits and stages the
// three data streams of the study.
func NewExperiment(backend backends.Backend, config Config) (*Experiment, error) {
	if err := mnist.Download(config.DataDir); err != nil {
		return nil, err
	}
	trainSet, err := mnist.Load(config.DataDir, mnist.Train)
	if err != nil {
		return nil, err
	}
	testSet, err := mnist.Load(config.DataDir, mnist.Test)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(config.Seed)) // Seed==0 is as good as any here.
	even, odd := mnist.EvenLabels(), mnist.OddLabels()

	e := &Experiment{backend: backend, config: config}
	e.pretrain, err = mnist.NewStream(backend, "pretrain", trainSet,
		mnist.SelectByLabel(trainSet, even, 0), even, config.PretrainBatchSize, rng)
	if err != nil {
		return nil, err
	}
	e.finetune, err = mnist.NewStream(backend, "finetune", trainSet,
		mnist.SelectByLabel(trainSet, odd, config.TrainPerLabel), odd, config.FinetuneBatchSize, rng)
	if err != nil {
		return nil, err
	}
	// Fixed order, no shuffling: evaluation must be deterministic.
	e.test, err = mnist.NewStream(backend, "test", testSet,
		mnist.SelectByLabel(testSet, odd, config.TestPerLabel), odd, config.EvalBatchSize, nil)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// newRunContext builds a fresh model context for one run. Runs never share
// parameters or optimizer state.
func (e *Experiment) newRunContext(run int) *context.Context {
	ctx := context.New()
	ctx.SetParam(ParamNumClasses, e.config.NumClasses)
	if e.config.Seed != 0 {
		ctx.RngStateFromSeed(e.config.Seed + int64(run))
	}
	return ctx
}

// Run executes all runs of one variant and returns the aggregated result.
// Each run writes its own log file and its accuracy/loss curve images.
func (e *Experiment) Run(kind Kind) (*Result, error) {
	cfg := e.config
	result := &Result{
		Kind:       kind,
		Accuracies: make([]float64, 0, cfg.NumRuns),
		Losses:     make([][]float64, 0, cfg.NumRuns),
	}
	bar := progressbar.Default(int64(cfg.NumRuns), fmt.Sprintf("%s runs", kind.Title()))
	for run := 1; run <= cfg.NumRuns; run++ {
		accuracy, curve, err := e.runOnce(kind, run)
		if err != nil {
			return nil, errors.WithMessagef(err, "%s run %d", kind, run)
		}
		losses := make([]float64, len(curve))
		for i, m := range curve {
			losses[i] = m.Loss
		}
		result.Accuracies = append(result.Accuracies, accuracy)
		result.Losses = append(result.Losses, losses)
		if err := plotRunCurves(cfg.ImageDir, kind, run, curve); err != nil {
			return nil, err
		}
		_ = bar.Add(1)
		klog.V(1).Infof("%s run %d/%d: test accuracy %.2f%%", kind.Title(), run, cfg.NumRuns, accuracy)
	}
	_ = bar.Finish()
	return result, nil
}

// runOnce trains and evaluates a single run, returning the final test
// accuracy and the training curve (fine-tuning curve for Transfer).
func (e *Experiment) runOnce(kind Kind, run int) (float64, []EpochMetrics, error) {
	cfg := e.config
	log, err := newRunLog(cfg.LogDir, kind, run)
	if err != nil {
		return 0, nil, err
	}
	defer log.Close()
	log.Printf("Run %d/%d", run, cfg.NumRuns)

	ctx := e.newRunContext(run)
	epochSink := func(epoch int, m EpochMetrics) {
		log.Printf("Epoch [%d/%d], Loss: %.4f, Accuracy: %.2f%%", epoch+1, cfg.NumEpochs, m.Loss, m.Accuracy)
	}

	if kind == Transfer {
		log.Printf("Starting pre-training on even digits")
		pretrainOpt := newOptimizer(cfg.LearningRate)
		pretrainer := newTrainer(e.backend, ctx, pretrainOpt)
		if _, err := TrainEpochs(pretrainer, e.pretrain, cfg.NumEpochs, epochSink); err != nil {
			return 0, nil, errors.WithMessage(err, "pre-training")
		}

		// Keep the convolution features, drop everything phase-specific:
		// the head is re-initialized and the fine-tuning optimizer starts
		// with no Adam moments and a zero global step.
		FreezeFeatures(ctx)
		if err := ResetHead(ctx); err != nil {
			return 0, nil, errors.WithMessage(err, "failed to reset classifier head")
		}
		if err := pretrainOpt.Clear(ctx); err != nil {
			return 0, nil, errors.WithMessage(err, "failed to clear optimizer state")
		}
		if err := optimizers.DeleteGlobalStep(ctx); err != nil {
			return 0, nil, errors.WithMessage(err, "failed to reset global step")
		}
		log.Printf("Starting fine-tuning on odd digits")
	} else {
		log.Printf("Starting training on odd digits")
	}

	trainer := newTrainer(e.backend, ctx, newOptimizer(cfg.LearningRate))
	curve, err := TrainEpochs(trainer, e.finetune, cfg.NumEpochs, epochSink)
	if err != nil {
		return 0, nil, errors.WithMessage(err, "training on odd digits")
	}
	accuracy, err := Evaluate(trainer, e.test)
	if err != nil {
		return 0, nil, err
	}
	log.Printf("%s Test Accuracy: %.2f%%", kind.Title(), accuracy)
	return accuracy, curve, nil
}

// RunStudy runs both variants, non-transfer first, and writes the summary
// comparison plots.
func (e *Experiment) RunStudy() (nonTransfer, transfer *Result, err error) {
	nonTransfer, err = e.Run(NonTransfer)
	if err != nil {
		return nil, nil, err
	}
	transfer, err = e.Run(Transfer)
	if err != nil {
		return nil, nil, err
	}
	if err = WriteSummaryPlots(e.config.ImageDir, nonTransfer, transfer); err != nil {
		return nil, nil, err
	}
	return nonTransfer, transfer, nil
}

// SaveResults serializes both variants' outcomes to `.npy` files under
// logDir: per-run test accuracies as a vector and per-run loss curves as a
// `[num_runs, num_epochs]` matrix, for each variant.
func SaveResults(logDir string, nonTransfer, transfer *Result) error {
	for _, r := range []*Result{nonTransfer, transfer} {
		accT := tensors.FromValue(r.Accuracies)
		if err := numpy.ToNpyFile(accT, filepath.Join(logDir, fmt.Sprintf("%s_accuracies.npy", r.Kind))); err != nil {
			return errors.WithMessagef(err, "failed to save %s accuracies", r.Kind)
		}
		lossT := tensors.FromValue(r.Losses)
		if err := numpy.ToNpyFile(lossT, filepath.Join(logDir, fmt.Sprintf("%s_losses.npy", r.Kind))); err != nil {
			return errors.WithMessagef(err, "failed to save %s losses", r.Kind)
		}
	}
	return nil
}
