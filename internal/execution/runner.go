package execution

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"autograde/internal/config"
	"autograde/internal/parser"
)

// PackageRun is the buffered outcome of one go test invocation
type PackageRun struct {
	Dir      string
	Events   []parser.Event
	Stderr   string
	ExitCode int
	Duration time.Duration
	// Err is set when go test could not be run at all, as opposed to tests failing
	Err error
}

// ImportPath returns the package import path reported by go test, if any
func (r PackageRun) ImportPath() string {
	for _, ev := range r.Events {
		if ev.Package != "" {
			return ev.Package
		}
	}
	return ""
}

// Runner executes go test -json for a single package directory
type Runner struct {
	config *config.Config
	parser parser.Parser
}

// NewRunner creates a new Runner
func NewRunner(cfg *config.Config, p parser.Parser) *Runner {
	return &Runner{config: cfg, parser: p}
}

// Args returns the go command arguments used for every package
func (r *Runner) Args() []string {
	return []string{"test", "-json", "-count=1", fmt.Sprintf("-timeout=%s", r.config.Timeout), "."}
}

// Run executes go test for the package in dir
func (r *Runner) Run(ctx context.Context, dir string, workerID int) PackageRun {
	cmd := exec.CommandContext(ctx, r.config.GoBinary, r.Args()...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), fmt.Sprintf("AUTOGRADE_WORKER=%d", workerID))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	run := PackageRun{
		Dir:      dir,
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			run.Err = errors.Wrapf(ctx.Err(), "go test in %s interrupted", dir)
		case errors.As(err, &exitErr):
			// Failing tests and build errors exit non-zero; the events tell the rest.
			run.ExitCode = exitErr.ExitCode()
		default:
			run.Err = errors.Wrapf(err, "failed to run %s test in %s", r.config.GoBinary, dir)
		}
	}

	events, perr := r.parser.Parse(&stdout)
	run.Events = events
	if perr != nil && run.Err == nil {
		run.Err = errors.Wrapf(perr, "parse go test output in %s", dir)
	}

	log.WithFields(log.Fields{
		"dir":      dir,
		"worker":   workerID,
		"exit":     run.ExitCode,
		"events":   len(run.Events),
		"duration": run.Duration,
	}).Debug("Package finished")
	return run
}
