package execution

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"autograde/internal/config"
	"autograde/internal/parser"
)

// WorkerPool runs test packages in parallel. Results are buffered and
// returned in package order, so the caller can replay them sequentially.
type WorkerPool struct {
	config    *config.Config
	runner    PackageRunner
	scheduler Scheduler
	progress  ProgressReporter
	parser    *parser.GoTestParser
}

// NewWorkerPool creates a new WorkerPool
func NewWorkerPool(cfg *config.Config, runner PackageRunner, scheduler Scheduler, goTestParser *parser.GoTestParser) *WorkerPool {
	return &WorkerPool{
		config:    cfg,
		runner:    runner,
		scheduler: scheduler,
		parser:    goTestParser,
	}
}

// SetProgress sets the progress reporter for the worker pool
func (wp *WorkerPool) SetProgress(progress ProgressReporter) {
	wp.progress = progress
}

// Execute runs every package and returns the runs in the order of dirs.
// A cancelled context stops running processes and returns the context error.
func (wp *WorkerPool) Execute(ctx context.Context, dirs []string) ([]PackageRun, time.Duration, error) {
	if len(dirs) == 0 {
		return nil, 0, nil
	}

	index := make(map[string]int, len(dirs))
	for i, dir := range dirs {
		if _, dup := index[dir]; dup {
			return nil, 0, errors.Errorf("package %s listed twice", dir)
		}
		index[dir] = i
	}

	runs := make([]PackageRun, len(dirs))
	lanes := wp.scheduler.Schedule(dirs, wp.config.Processors)

	var mu sync.Mutex
	var completed, passedCases, failedCases int
	startTime := time.Now()

	var wg sync.WaitGroup
	for i, lane := range lanes {
		wg.Add(1)
		go func(workerID int, lane []string) {
			defer wg.Done()
			for _, dir := range lane {
				if ctx.Err() != nil {
					return
				}
				run := wp.runner.Run(ctx, dir, workerID)

				mu.Lock()
				runs[index[dir]] = run
				completed++
				if wp.parser != nil {
					p, f := wp.parser.ParseTestCounts(run.Events)
					passedCases += p
					failedCases += f
				}
				if wp.progress != nil {
					wp.progress.Update(completed, passedCases, failedCases)
				}
				mu.Unlock()
			}
		}(i+1, lane)
	}
	wg.Wait()

	if wp.progress != nil {
		wp.progress.Finish()
	}
	if err := ctx.Err(); err != nil {
		return nil, time.Since(startTime), errors.Wrap(err, "test execution interrupted")
	}
	for _, run := range runs {
		if run.Err != nil {
			return nil, time.Since(startTime), run.Err
		}
	}
	return runs, time.Since(startTime), nil
}
