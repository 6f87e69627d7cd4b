package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"autograde/internal/collector"
	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/execution"
	"autograde/internal/report"
	"autograde/internal/resolver"
	"autograde/internal/storage"
	"autograde/internal/ui"
)

// RunCommand handles the run command
type RunCommand struct {
	config         *config.Config
	scanner        *discovery.Scanner
	filter         *discovery.Filter
	testCaseParser *discovery.Parser
	executor       *execution.WorkerPool
	storage        storage.Storage
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	testCaseParser *discovery.Parser,
	executor *execution.WorkerPool,
	st storage.Storage,
) *RunCommand {
	return &RunCommand{
		config:         cfg,
		scanner:        scanner,
		filter:         filter,
		testCaseParser: testCaseParser,
		executor:       executor,
		storage:        st,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	registry, err := loadRegistry(rc.config, true)
	if err != nil {
		return err
	}

	// Discover test packages
	dirs, err := rc.scanner.Scan(rc.config.GetTestPath())
	if err != nil {
		return err
	}
	dirs = rc.filter.FilterByName(dirs, rc.config.Flags.NameFilter)

	if rc.config.Flags.OnlyFailed {
		dirs, err = rc.failedPackages(dirs)
		if err != nil {
			return err
		}
	}

	if len(dirs) == 0 {
		color.Yellow("No test packages to execute")
		return nil
	}

	reportStorage, partial := rc.reportStorage()
	if partial {
		log.WithField("report", reportStorage.Path()).Warn("Partial run: report kept apart from the full one and not recorded in the gradebook")
	}

	serializer := report.NewSerializer()
	dispatcher := execution.NewDispatcher(registry, rc.testCaseParser, rc.config.Buffer)
	opts := []collector.Option{
		collector.WithOutputCapture(dispatcher),
		collector.WithSerializer(serializer),
		collector.WithReportSink(reportStorage),
	}

	if rc.config.Gradebook.Enabled && !partial {
		gradebook, err := storage.OpenGradebook(ctx, rc.config)
		if err != nil {
			return fmt.Errorf("open gradebook: %w", err)
		}
		defer gradebook.Close()

		submission := rc.config.GetSubmission()
		opts = append(opts, collector.WithReportSink(collector.ReportSinkFunc(func(rep report.Report) error {
			runID, err := gradebook.Record(ctx, submission, rep)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"run": runID, "submission": submission}).Info("Run recorded in gradebook")
			return nil
		})))
	}

	grades := collector.New(resolver.New(registry), opts...)

	// Create and set progress bar
	progressBar := ui.NewProgressBar(len(dirs))
	rc.executor.SetProgress(progressBar)

	serializer.Start()
	runs, duration, err := rc.executor.Execute(ctx, dirs)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"packages": len(runs), "duration": duration}).Debug("Test packages finished")

	if err := dispatcher.Dispatch(runs, grades); err != nil {
		return err
	}

	rep := grades.Report()
	formatter := ui.NewFormatter(rc.config, rc.testCaseParser, registry)
	formatter.PrintReport(rep)
	color.HiBlack("\nReport written to %s", reportStorage.Path())

	if !grades.WasSuccessful() {
		if rc.config.Flags.OpenViewer {
			if err := ui.NewReportViewer(registry).View(rep); err != nil {
				return err
			}
		}
		return ErrTestsFailed
	}
	return nil
}

// reportStorage picks where the report goes. Runs narrowed by --filter or
// --failed grade only part of the submission, so they do not replace the full report.
func (rc *RunCommand) reportStorage() (*storage.JSONStorage, bool) {
	if rc.config.IsPartialRun() {
		return storage.NewJSONFileStorage(rc.config.GetPartialOutputPath()), true
	}
	return storage.NewJSONStorage(rc.config), false
}

// failedPackages keeps the packages that define a group which lost points in
// the last report
func (rc *RunCommand) failedPackages(dirs []string) ([]string, error) {
	last, err := rc.storage.Load()
	if err != nil {
		return nil, fmt.Errorf("load last report: %w", err)
	}

	groups := make(map[string]struct{})
	for key := range ui.FailedTests(last) {
		group, _, _ := strings.Cut(key, "/")
		groups[group] = struct{}{}
	}

	var kept []string
	for _, dir := range dirs {
		if _, ok := groups[execution.PackageName(dir)]; ok {
			kept = append(kept, dir)
			continue
		}
		names, err := rc.testCaseParser.FindTestCases(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, ok := groups[name]; ok {
				kept = append(kept, dir)
				break
			}
		}
	}
	return kept, nil
}
