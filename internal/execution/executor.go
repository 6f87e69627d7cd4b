package execution

import (
	"context"
	"time"
)

// Executor runs test packages and returns one PackageRun per directory, in input order
type Executor interface {
	Execute(ctx context.Context, dirs []string) ([]PackageRun, time.Duration, error)
}

// PackageRunner runs the tests of a single package
type PackageRunner interface {
	Run(ctx context.Context, dir string, workerID int) PackageRun
}

// ProgressReporter receives progress updates while packages run
type ProgressReporter interface {
	Update(completed, passed, failed int)
	Finish()
}
