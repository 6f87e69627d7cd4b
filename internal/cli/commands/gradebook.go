package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"autograde/internal/config"
	"autograde/internal/storage"
	"autograde/internal/ui"
)

// GradebookCommand reads grading runs back from the gradebook database
type GradebookCommand struct {
	config *config.Config
}

// NewGradebookCommand creates a new GradebookCommand
func NewGradebookCommand(cfg *config.Config) *GradebookCommand {
	return &GradebookCommand{config: cfg}
}

func (gc *GradebookCommand) open(cmd *cobra.Command) (context.Context, *storage.Gradebook, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	gradebook, err := storage.OpenGradebook(ctx, gc.config)
	if err != nil {
		return nil, nil, fmt.Errorf("open gradebook: %w", err)
	}
	return ctx, gradebook, nil
}

// Runs lists the recorded runs, optionally of one submission
func (gc *GradebookCommand) Runs(cmd *cobra.Command, args []string) error {
	ctx, gradebook, err := gc.open(cmd)
	if err != nil {
		return err
	}
	defer gradebook.Close()

	runs, err := gradebook.Runs(ctx, gc.config.Gradebook.Submission)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		color.Yellow("No runs recorded")
		return nil
	}
	ui.NewFormatter(gc.config, nil, nil).PrintRuns(runs)
	return nil
}

// Show prints the report of one run
func (gc *GradebookCommand) Show(cmd *cobra.Command, runID string, asJSON bool) error {
	ctx, gradebook, err := gc.open(cmd)
	if err != nil {
		return err
	}
	defer gradebook.Close()

	rep, err := gradebook.Report(ctx, runID)
	if err != nil {
		return err
	}

	if asJSON {
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	registry, err := loadRegistry(gc.config, false)
	if err != nil {
		return err
	}
	ui.NewFormatter(gc.config, nil, registry).PrintReport(rep)
	return nil
}
