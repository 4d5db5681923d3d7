// Copyright 2026 The MNIST-Transfer Authors. SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// runLog is the per-run log file under the logs directory, one per
// experiment run, named `<kind>_run_<n>.log`. Every line carries a
// timestamp prefix.
type runLog struct {
	f *os.File
}

func newRunLog(dir string, kind Kind, run int) (*runLog, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, errors.Wrapf(err, "failed to create log directory %q", dir)
	}
	name := filepath.Join(dir, fmt.Sprintf("%s_run_%d.log", kind, run))
	f, err := os.Create(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create run log %q", name)
	}
	return &runLog{f: f}, nil
}

// Printf appends one timestamped line to the run log.
func (l *runLog) Printf(format string, args ...any) {
	fmt.Fprintf(l.f, "%s - %s\n", time.Now().Format("2006-01-02 15:04:05,000"), fmt.Sprintf(format, args...))
}

func (l *runLog) Close() error {
	return l.f.Close()
}
