package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"autograde/internal/annotation"
	"autograde/internal/cli"
	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/execution"
	"autograde/internal/logging"
	"autograde/internal/parser"
	"autograde/internal/storage"
)

// ErrTestsFailed is returned by run when any test failed or errored, graded or not
var ErrTestsFailed = errors.New("tests failed")

// Commands holds all CLI commands
type Commands struct {
	Run       *RunCommand
	List      *ListCommand
	Check     *CheckCommand
	View      *ViewCommand
	Gradebook *GradebookCommand
}

// NewCommands creates all commands with dependencies
func NewCommands(cfg *config.Config) *Commands {
	// Initialize dependencies
	scanner := discovery.NewScanner(cfg.PathsToIgnore)
	filter := discovery.NewFilter()
	testCaseParser := discovery.NewParser()
	goTestParser := parser.NewGoTestParser()
	runner := execution.NewRunner(cfg, goTestParser)
	scheduler := execution.NewRoundRobinScheduler()
	executor := execution.NewWorkerPool(cfg, runner, scheduler, goTestParser)
	jsonStorage := storage.NewJSONStorage(cfg)

	return &Commands{
		Run:       NewRunCommand(cfg, scanner, filter, testCaseParser, executor, jsonStorage),
		List:      NewListCommand(cfg, scanner, filter, testCaseParser, jsonStorage),
		Check:     NewCheckCommand(cfg, scanner, testCaseParser),
		View:      NewViewCommand(cfg, jsonStorage),
		Gradebook: NewGradebookCommand(cfg),
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	rootCmd.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "Config file (default: autograde.{yaml,toml,json} in the working directory)")
	rootCmd.PersistentFlags().StringVarP(&flags.ManifestPath, "manifest", "M", "", "Score manifest (YAML or TOML), relative to the project")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")

	// Load config, then let flags override it
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return err
		}
		*cfg = *loaded
		cfg.ApplyFlags(flags.ToConfigFlags())
		return logging.Setup(cfg.LogLevel)
	}

	// Run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the test packages and grade them",
		Long:  "Discover Go test packages, run them in parallel with go test -json and grade the outcomes against the score manifest",
		RunE:  c.Run.Execute,
	}
	runCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of packages to test in parallel (default 4)")
	runCmd.Flags().StringVarP(&flags.TestPath, "test-path", "t", "", "Path to the folder where test detection should start")
	runCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter packages by directory name (supports wildcards, e.g. 'seq*')")
	runCmd.Flags().DurationVar(&flags.Timeout, "timeout", 0, "Timeout passed to go test for each package")
	runCmd.Flags().BoolVar(&flags.NoBuffer, "no-buffer", false, "Do not capture test output into the report")
	runCmd.Flags().BoolVar(&flags.OnlyFailed, "failed", false, "Run only packages whose tests lost points in the last report")
	runCmd.Flags().BoolVar(&flags.Gradebook, "gradebook", false, "Also record the run in the gradebook database")
	runCmd.Flags().StringVar(&flags.Submission, "submission", "", "Submission label stored in the gradebook (default: project directory name)")
	runCmd.Flags().BoolVar(&flags.OpenViewer, "open-viewer", false, "Open the report viewer when tests lost points")
	rootCmd.AddCommand(runCmd)

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered test packages",
		Long:  "Scan and list all Go test packages without executing them",
		RunE:  c.List.Execute,
	}
	listCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter packages by directory name (supports wildcards, e.g. 'seq*')")
	listCmd.Flags().StringVarP(&flags.TestPath, "test-path", "t", "", "Path to the folder where test detection should start")
	listCmd.Flags().BoolVarP(&flags.TestCases, "test-cases", "c", false, "List tests and their declared scores instead of packages")
	rootCmd.AddCommand(listCmd)

	// Check command
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the score manifest",
		Long:  "Load the score manifest, print its groups and warn about groups no test package defines",
		RunE:  c.Check.Execute,
	}
	checkCmd.Flags().StringVarP(&flags.TestPath, "test-path", "t", "", "Path to the folder where test detection should start")
	rootCmd.AddCommand(checkCmd)

	// View command
	var summaryOnly bool
	viewCmd := &cobra.Command{
		Use:   "view [report.json]",
		Short: "View the last grade report interactively",
		Long:  "Display a grade report (default: the last run's report file) in an interactive viewer",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.View.Execute(args, summaryOnly)
		},
	}
	viewCmd.Flags().BoolVar(&summaryOnly, "summary", false, "Print the summary tree instead of opening the viewer")
	rootCmd.AddCommand(viewCmd)

	// Gradebook commands
	gradebookCmd := &cobra.Command{
		Use:   "gradebook",
		Short: "Inspect grading runs stored in the gradebook database",
	}
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		RunE:  c.Gradebook.Runs,
	}
	runsCmd.Flags().StringVar(&flags.Submission, "submission", "", "Only list runs of this submission")
	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the report of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Gradebook.Show(cmd, args[0], asJSON)
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	gradebookCmd.AddCommand(runsCmd, showCmd)
	rootCmd.AddCommand(gradebookCmd)
}

// loadRegistry loads the score manifest. A missing manifest yields an empty
// registry unless required is set.
func loadRegistry(cfg *config.Config, required bool) (*annotation.Registry, error) {
	path := cfg.GetManifestPath()
	if _, err := os.Stat(path); err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return annotation.NewRegistry(), nil
		}
		return nil, fmt.Errorf("score manifest %s: %w", path, err)
	}
	registry, err := annotation.LoadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("load score manifest: %w", err)
	}
	return registry, nil
}
