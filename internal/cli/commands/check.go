package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autograde/internal/annotation"
	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/execution"
	"autograde/internal/ui"
)

// CheckCommand validates the score manifest against the test packages
type CheckCommand struct {
	config         *config.Config
	scanner        *discovery.Scanner
	testCaseParser *discovery.Parser
}

// NewCheckCommand creates a new CheckCommand
func NewCheckCommand(cfg *config.Config, scanner *discovery.Scanner, testCaseParser *discovery.Parser) *CheckCommand {
	return &CheckCommand{
		config:         cfg,
		scanner:        scanner,
		testCaseParser: testCaseParser,
	}
}

// Execute runs the command
func (cc *CheckCommand) Execute(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry(cc.config, true)
	if err != nil {
		return err
	}

	formatter := ui.NewFormatter(cc.config, cc.testCaseParser, registry)
	formatter.PrintManifest()

	dirs, err := cc.scanner.Scan(cc.config.GetTestPath())
	if err != nil {
		return err
	}
	missing, err := cc.undefinedGroups(dirs, registry.Groups())
	if err != nil {
		return err
	}

	fmt.Println()
	if len(missing) == 0 {
		color.Green("✓ Every declared group is defined by a test package")
		return nil
	}
	for _, name := range missing {
		color.Yellow("⚠ Group %s is not a test function or package name; its tests will never report", name)
	}
	return nil
}

// undefinedGroups returns the declared groups that match neither a top-level
// test function nor a package directory name
func (cc *CheckCommand) undefinedGroups(dirs []string, groups []annotation.GroupSpec) ([]string, error) {
	defined := make(map[string]struct{})
	for _, dir := range dirs {
		defined[execution.PackageName(dir)] = struct{}{}
		names, err := cc.testCaseParser.FindTestCases(dir)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			defined[name] = struct{}{}
		}
	}

	var missing []string
	for _, g := range groups {
		if _, ok := defined[g.Name]; !ok {
			missing = append(missing, g.Name)
		}
	}
	return missing, nil
}
