package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"autograde/internal/annotation"
	"autograde/internal/report"
)

var _ Viewer = (*ReportViewer)(nil)

// ReportViewer displays a grade report in an interactive TUI
type ReportViewer struct {
	registry *annotation.Registry
}

// NewReportViewer creates a new ReportViewer. The registry adds tags and
// visibility to the details pane and may be nil.
func NewReportViewer(registry *annotation.Registry) *ReportViewer {
	if registry == nil {
		registry = annotation.NewRegistry()
	}
	return &ReportViewer{registry: registry}
}

type viewerItem struct {
	group report.GroupRecord
	test  report.TestRecord
}

// flattenReport lists every test of rep, optionally only those that lost points
func flattenReport(rep *report.Report, failedOnly bool) []viewerItem {
	var items []viewerItem
	for _, g := range rep.TestGroups {
		for _, t := range g.Tests {
			if failedOnly && t.Passed() {
				continue
			}
			items = append(items, viewerItem{group: g, test: t})
		}
	}
	return items
}

// View displays the report's tests in an interactive TUI
func (rv *ReportViewer) View(rep *report.Report) error {
	if len(flattenReport(rep, false)) == 0 {
		color.Yellow("No graded tests in report")
		return nil
	}

	failedOnly := false
	var items []viewerItem

	// Create the application
	app := tview.NewApplication()

	// Create list for tests (left side)
	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)

	// Set list colors for better visibility
	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan).
		SetSecondaryTextColor(tview.Styles.SecondaryTextColor)

	// Create stats header view (shows group and test info)
	statsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetWordWrap(false)

	// Create text view for test details (right side)
	detailsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetWordWrap(true)

	// Create a container with right padding for the details view
	detailsContainer := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(detailsView, 0, 1, false).
		AddItem(tview.NewBox(), 2, 0, false)

	// Create right side layout: stats on top, details below
	rightSide := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(statsView, 3, 0, false).
		AddItem(detailsContainer, 0, 1, false)

	// Create simple flex layout: list on left (1/3), details on right (2/3)
	flex := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(rightSide, 0, 2, false)

	headerView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	updateHeader := func() {
		filter := "all tests"
		if failedOnly {
			filter = "failed only"
		}
		headerView.SetText(fmt.Sprintf(" Grade %d/%d (%s, %d shown) | Use ↑↓ to navigate, [yellow]F[white] to toggle failed only, → to view details, ← to go back, Ctrl+C to exit ",
			rep.Score, rep.MaxScore, filter, len(items)))
	}

	updateDetails := func() {
		index := list.GetCurrentItem()
		if index < 0 || index >= len(items) {
			statsView.SetText("")
			detailsView.SetText("[green]Nothing to show[white]")
			return
		}
		statsView.SetText(formatTestStats(items[index]))
		detailsView.SetText(rv.formatTestDetails(items[index]))
		detailsView.ScrollToBeginning()
	}

	rebuild := func() {
		items = flattenReport(rep, failedOnly)
		list.Clear()
		for i, item := range items {
			list.AddItem(listItemText(item, i), "", 0, nil)
		}
		updateHeader()
		updateDetails()
	}

	// Set up keyboard handlers for list
	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyUp, tcell.KeyDown:
			return event
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detailsView)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'f' || event.Rune() == 'F' {
				failedOnly = !failedOnly
				rebuild()
				return nil
			}
		}
		return event
	})

	// Set up keyboard handlers for details view
	detailsView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	// Update details when list selection changes
	list.SetChangedFunc(func(index int, mainText string, secondaryText string, shortcut rune) {
		updateDetails()
	})

	rebuild()

	// Create main layout with title
	mainLayout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(headerView, 1, 0, false).
		AddItem(tview.NewBox(), 1, 0, false).
		AddItem(flex, 0, 1, true)

	// Run the application
	if err := app.SetRoot(mainLayout, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	return nil
}

// listItemText formats a list row using tview color tags
func listItemText(item viewerItem, index int) string {
	mark := "[green]✓"
	if !item.test.Passed() {
		mark = "[red]✗"
	}
	return fmt.Sprintf("%s [yellow]%d.[white] %s/%s", mark, index+1, item.group.Name, item.test.Name)
}

// formatTestStats formats the stats header for a test
func formatTestStats(item viewerItem) string {
	return fmt.Sprintf("[cyan]group:[white] [yellow]%s[white] %d/%d  [cyan]test:[white] [yellow]%s[white] %d/%d\n",
		item.group.Name, item.group.Score, item.group.MaxScore,
		item.test.Name, item.test.Score, item.test.MaxScore)
}

// formatTestDetails formats a test for display using tview color tags ([red], [cyan], etc.)
func (rv *ReportViewer) formatTestDetails(item viewerItem) string {
	var builder strings.Builder
	t := item.test

	if t.Passed() {
		fmt.Fprintf(&builder, "[green]✓ Test: %s[white]\n\n", t.Name)
	} else {
		fmt.Fprintf(&builder, "[red]✗ Test: %s[white]\n\n", t.Name)
	}

	switch {
	case t.MaxScore < 0 && t.Score < 0:
		fmt.Fprintf(&builder, "[yellow]Penalty applied:[white] %d\n", t.Score)
	case t.MaxScore < 0:
		fmt.Fprintf(&builder, "[yellow]Penalty avoided:[white] %d\n", t.MaxScore)
	default:
		fmt.Fprintf(&builder, "[yellow]Points:[white] %d of %d\n", t.Score, t.MaxScore)
	}

	if spec, ok := rv.registry.Test(item.group.Name, t.Name); ok {
		if spec.Visibility == annotation.VisibilityHidden {
			fmt.Fprintf(&builder, "[yellow]Visibility:[white] hidden\n")
		}
		if len(spec.Tags) > 0 {
			fmt.Fprintf(&builder, "[yellow]Tags:[white] %s\n", strings.Join(spec.Tags, ", "))
		}
	}
	builder.WriteString("\n")

	if t.Output == nil {
		builder.WriteString("[gray]Output was not captured[white]\n")
	} else if *t.Output == "" {
		builder.WriteString("[gray]No output[white]\n")
	} else {
		fmt.Fprintf(&builder, "[yellow]Output:[white]\n%s\n", tview.Escape(*t.Output))
	}
	return builder.String()
}
