// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

// Demo runs the full transfer-learning study on MNIST: it trains both
// variants (training from scratch and transfer learning), writes per-run
// logs and plots, and serializes the aggregated results as `.npy` files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/janpfeifer/must"
	"github.com/mlstudies/mnist-transfer/mnist"
	"github.com/mlstudies/mnist-transfer/transfer"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir  = flag.String("data", "data", "Directory to cache the downloaded MNIST files.")
	flagLogDir   = flag.String("logs", "logs", "Directory for per-run logs and serialized results.")
	flagImageDir = flag.String("images", "images", "Directory for the rendered SVG plots.")
	flagRuns     = flag.Int("runs", 10, "Number of independent runs per variant.")
	flagEpochs   = flag.Int("epochs", 10, "Training epochs per phase.")
	flagSeed     = flag.Int64("seed", 0, "Base random seed; run r uses seed+r. 0 means randomized.")
	flagDownload = flag.Bool("download", false, "Only download the dataset and exit.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	config := transfer.DefaultConfig()
	config.DataDir = *flagDataDir
	config.LogDir = *flagLogDir
	config.ImageDir = *flagImageDir
	config.NumRuns = *flagRuns
	config.NumEpochs = *flagEpochs
	config.Seed = *flagSeed

	if *flagDownload {
		must.M(mnist.Download(config.DataDir))
		fmt.Printf("MNIST files ready under %s/\n", config.DataDir)
		return
	}

	err := exceptions.TryCatch[error](func() {
		backend := backends.MustNew()
		experiment := must.M1(transfer.NewExperiment(backend, config))
		nonTransfer, transferred := must.M2(experiment.RunStudy())
		must.M(transfer.SaveResults(config.LogDir, nonTransfer, transferred))

		fmt.Println()
		report(nonTransfer)
		report(transferred)
	})
	if err != nil {
		klog.Errorf("study failed: %+v", err)
		os.Exit(1)
	}
}

func report(r *transfer.Result) {
	var sum float64
	for _, a := range r.Accuracies {
		sum += a
	}
	mean := sum / float64(len(r.Accuracies))
	fmt.Printf("%s: mean test accuracy %.2f%% over %d runs\n", r.Kind.Title(), mean, len(r.Accuracies))
}
