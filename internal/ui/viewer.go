package ui

import "autograde/internal/report"

// Viewer displays a grade report in an interactive TUI
type Viewer interface {
	View(rep *report.Report) error
}
