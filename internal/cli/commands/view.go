package commands

import (
	"autograde/internal/config"
	"autograde/internal/report"
	"autograde/internal/storage"
	"autograde/internal/ui"
)

// ViewCommand handles the view command
type ViewCommand struct {
	config  *config.Config
	storage storage.Storage
}

// NewViewCommand creates a new ViewCommand
func NewViewCommand(cfg *config.Config, st storage.Storage) *ViewCommand {
	return &ViewCommand{
		config:  cfg,
		storage: st,
	}
}

// Execute shows the report at args[0], or the last run's report
func (vc *ViewCommand) Execute(args []string, summaryOnly bool) error {
	load := vc.storage.Load
	if len(args) > 0 {
		load = func() (*report.Report, error) { return storage.LoadFile(args[0]) }
	}
	rep, err := load()
	if err != nil {
		return err
	}

	// The manifest only adds tags and visibility here
	registry, err := loadRegistry(vc.config, false)
	if err != nil {
		return err
	}

	if summaryOnly {
		ui.NewFormatter(vc.config, nil, registry).PrintReport(rep)
		return nil
	}
	return ui.NewReportViewer(registry).View(rep)
}
