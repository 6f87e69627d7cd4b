package commands

import (
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/storage"
	"autograde/internal/ui"
)

// ListCommand handles the list command
type ListCommand struct {
	config         *config.Config
	scanner        *discovery.Scanner
	filter         *discovery.Filter
	testCaseParser *discovery.Parser
	storage        storage.Storage
}

// NewListCommand creates a new ListCommand
func NewListCommand(
	cfg *config.Config,
	scanner *discovery.Scanner,
	filter *discovery.Filter,
	testCaseParser *discovery.Parser,
	st storage.Storage,
) *ListCommand {
	return &ListCommand{
		config:         cfg,
		scanner:        scanner,
		filter:         filter,
		testCaseParser: testCaseParser,
		storage:        st,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	dirs, err := lc.scanner.Scan(lc.config.GetTestPath())
	if err != nil {
		return err
	}

	// Filter packages
	dirs = lc.filter.FilterByName(dirs, lc.config.Flags.NameFilter)

	if len(dirs) == 0 {
		color.Yellow("No test packages found")
		return nil
	}

	registry, err := loadRegistry(lc.config, false)
	if err != nil {
		return err
	}

	// Mark tests that lost points last time, if there was a last time
	var failed map[string]struct{}
	if last, err := lc.storage.Load(); err == nil {
		failed = ui.FailedTests(last)
	} else {
		log.WithError(err).Debug("No previous report to mark failures from")
	}

	formatter := ui.NewFormatter(lc.config, lc.testCaseParser, registry)
	return formatter.PrintTestList(dirs, lc.config.Flags.TestCases, failed)
}
