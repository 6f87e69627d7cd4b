package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"

	"autograde/internal/annotation"
	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/report"
	"autograde/internal/storage"
)

// Formatter formats and displays output
type Formatter struct {
	config   *config.Config
	parser   *discovery.Parser
	registry *annotation.Registry
	out      io.Writer
}

// NewFormatter creates a new Formatter
func NewFormatter(cfg *config.Config, parser *discovery.Parser, registry *annotation.Registry) *Formatter {
	if registry == nil {
		registry = annotation.NewRegistry()
	}
	return &Formatter{
		config:   cfg,
		parser:   parser,
		registry: registry,
		out:      color.Output,
	}
}

// SetOutput redirects everything the formatter prints
func (f *Formatter) SetOutput(w io.Writer) {
	f.out = w
}

func (f *Formatter) println(s string) {
	fmt.Fprintln(f.out, s)
}

// PrintReport displays the grade summary table followed by the group tree.
// Hidden tests count toward the scores but are not listed.
func (f *Formatter) PrintReport(rep *report.Report) {
	f.println("")
	f.println(color.CyanString("╔═══════════════════════════════════════════════════════════════╗"))
	f.println(color.CyanString("║                         Grade Report                          ║"))
	f.println(color.CyanString("╚═══════════════════════════════════════════════════════════════╝"))
	f.println("")

	total, failed := 0, 0
	for _, g := range rep.TestGroups {
		for _, t := range g.Tests {
			total++
			if !t.Passed() {
				failed++
			}
		}
	}

	duration := "n/a"
	if d, ok := rep.Duration(); ok {
		duration = fmt.Sprintf("%.2fs", d.Seconds())
	}

	f.println("┌─────────────────────────────────┬─────────────────────────────┐")
	f.row("Score", color.GreenString("%-27s", fmt.Sprintf("%d / %d", rep.Score, rep.MaxScore)))
	f.println("├─────────────────────────────────┼─────────────────────────────┤")
	f.row("Percent", color.WhiteString("%-27s", percent(rep.Score, rep.MaxScore)))
	f.println("├─────────────────────────────────┼─────────────────────────────┤")
	f.row("Test Groups", color.WhiteString("%-27d", len(rep.TestGroups)))
	f.println("├─────────────────────────────────┼─────────────────────────────┤")
	f.row("Graded Tests", color.WhiteString("%-27d", total))
	f.println("├─────────────────────────────────┼─────────────────────────────┤")
	f.row("Failed Tests", color.RedString("%-27d", failed))
	f.println("├─────────────────────────────────┼─────────────────────────────┤")
	f.row("Duration", color.WhiteString("%-27s", duration))
	f.println("└─────────────────────────────────┴─────────────────────────────┘")
	f.println("")

	for i, g := range rep.TestGroups {
		f.printGroup(g, i == len(rep.TestGroups)-1)
	}

	f.println("")
	if failed == 0 {
		f.println(color.GreenString("✓ All graded tests passed!"))
	} else {
		f.println(color.RedString("✗ %d graded test(s) lost points", failed))
	}
}

func (f *Formatter) row(label, value string) {
	fmt.Fprintf(f.out, "│ %-31s │ %s │\n", label, value)
}

func (f *Formatter) printGroup(g report.GroupRecord, isLast bool) {
	connector, childPrefix := "├── ", "│   "
	if isLast {
		connector, childPrefix = "└── ", "    "
	}

	mode := "additive"
	if f.registry.GroupMaxScore(g.Name) != nil {
		mode = "subtractive"
	}
	f.println(fmt.Sprintf("%s%s %s %s", connector,
		color.CyanString(g.Name),
		scoreString(g.Score, g.MaxScore),
		color.HiBlackString("(%s)", mode)))

	visible, hidden := f.orderedTests(g)
	for j, t := range visible {
		prefix := childPrefix + "├── "
		if j == len(visible)-1 && hidden == 0 {
			prefix = childPrefix + "└── "
		}

		mark := color.GreenString("✓")
		if !t.Passed() {
			mark = color.RedString("✗")
		}
		line := fmt.Sprintf("%s%s %s %s", prefix, mark, color.YellowString(t.Name), color.HiBlackString("[%d/%d]", t.Score, t.MaxScore))
		if spec, ok := f.registry.Test(g.Name, t.Name); ok && len(spec.Tags) > 0 {
			line += " " + color.HiBlackString("#%s", strings.Join(spec.Tags, " #"))
		}
		f.println(line)
	}
	if hidden > 0 {
		f.println(fmt.Sprintf("%s└── %s", childPrefix, color.HiBlackString("%d hidden test(s)", hidden)))
	}
}

// orderedTests returns the visible tests sorted by declared sort key (tests
// without a key keep report order, after keyed ones) and the hidden count.
func (f *Formatter) orderedTests(g report.GroupRecord) ([]report.TestRecord, int) {
	type keyed struct {
		test report.TestRecord
		key  string
	}
	var visible []keyed
	hidden := 0
	for _, t := range g.Tests {
		spec, ok := f.registry.Test(g.Name, t.Name)
		if ok && spec.Visibility == annotation.VisibilityHidden {
			hidden++
			continue
		}
		visible = append(visible, keyed{test: t, key: spec.SortKey})
	}

	sort.SliceStable(visible, func(i, j int) bool {
		a, b := visible[i].key, visible[j].key
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	tests := make([]report.TestRecord, len(visible))
	for i, k := range visible {
		tests[i] = k.test
	}
	return tests, hidden
}

func scoreString(score, maxScore int) string {
	s := fmt.Sprintf("%d/%d", score, maxScore)
	switch {
	case score >= maxScore:
		return color.GreenString("%s", s)
	case score == 0:
		return color.RedString("%s", s)
	default:
		return color.YellowString("%s", s)
	}
}

func percent(score, maxScore int) string {
	if maxScore == 0 {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", float64(score)*100/float64(maxScore))
}

// CountTestCases returns the total number of top-level tests across the given packages.
func (f *Formatter) CountTestCases(dirs []string) (int, error) {
	var total int
	for _, dir := range dirs {
		cases, err := f.parser.FindTestCases(dir)
		if err != nil {
			return 0, err
		}
		total += len(cases)
	}
	return total, nil
}

// PrintTestList prints the test packages, optionally with their tests and declared scores.
// failedTests is optional; tests listed there ("Group/method") are marked with [F] from the last run.
func (f *Formatter) PrintTestList(dirs []string, showTestCases bool, failedTests map[string]struct{}) error {
	if !showTestCases {
		f.println(color.GreenString("Found %d test package(s):\n", len(dirs)))
		for i, dir := range dirs {
			if i == len(dirs)-1 {
				f.println(color.CyanString("└── %s", f.relPath(dir)))
			} else {
				f.println(color.CyanString("├── %s", f.relPath(dir)))
			}
		}
		return nil
	}

	f.println(color.GreenString("Found %d test package(s) with tests:\n", len(dirs)))
	for i, dir := range dirs {
		testCases, err := f.parser.FindTestCases(dir)
		if err != nil {
			f.println(color.RedString("Error reading test package %s: %v", dir, err))
			continue
		}
		testCases = discovery.NewFilter().FilterTests(testCases, f.config.Flags.NameFilter)

		isLastPkg := i == len(dirs)-1
		branch, indent := "├── ", "│   "
		if isLastPkg {
			branch, indent = "└── ", "    "
		}
		f.println(color.CyanString("%s%s", branch, f.relPath(dir)))

		if len(testCases) == 0 {
			f.println(indent + "└── " + color.RedString("(no tests found)"))
		}
		for j, name := range testCases {
			isLastCase := j == len(testCases)-1
			caseBranch, caseIndent := "├── ", "│   "
			if isLastCase {
				caseBranch, caseIndent = "└── ", "    "
			}

			label := color.YellowString(name)
			if maxScore := f.registry.GroupMaxScore(name); maxScore != nil {
				label += color.HiBlackString(" (max %d)", *maxScore)
			}
			f.println(indent + caseBranch + label)

			specs := f.registry.Tests(name)
			for k, spec := range specs {
				specBranch := "├── "
				if k == len(specs)-1 {
					specBranch = "└── "
				}
				f.println(indent + caseIndent + specBranch + f.specLabel(spec, failedTests))
			}
		}

		// Add spacing between packages (except for the last one)
		if !isLastPkg {
			f.println("")
		}
	}
	return nil
}

func (f *Formatter) specLabel(spec annotation.TestSpec, failedTests map[string]struct{}) string {
	label := spec.Name
	if spec.Score == nil {
		label += color.HiBlackString(" (ungraded)")
	} else {
		label += color.HiBlackString(" (%+d)", *spec.Score)
	}
	if spec.Visibility == annotation.VisibilityHidden {
		label += color.HiBlackString(" hidden")
	}
	if _, ok := failedTests[spec.Group+"/"+spec.Name]; ok {
		label += " " + color.RedString("[F]")
	}
	return label
}

func (f *Formatter) relPath(dir string) string {
	if rel, err := filepath.Rel(f.config.ProjectPath, dir); err == nil {
		return rel
	}
	return dir
}

// PrintManifest prints every declared group and test, for the check command
func (f *Formatter) PrintManifest() {
	groups := f.registry.Groups()
	f.println(color.GreenString("Manifest declares %d group(s):\n", len(groups)))
	for i, g := range groups {
		branch, indent := "├── ", "│   "
		if i == len(groups)-1 {
			branch, indent = "└── ", "    "
		}
		label := color.CyanString(g.Name)
		if g.MaxScore != nil {
			label += color.HiBlackString(" (subtractive, max %d)", *g.MaxScore)
		} else {
			label += color.HiBlackString(" (additive)")
		}
		f.println(branch + label)
		for j, spec := range g.Tests {
			specBranch := "├── "
			if j == len(g.Tests)-1 {
				specBranch = "└── "
			}
			f.println(indent + specBranch + f.specLabel(spec, nil))
		}
	}
}

// FailedTests returns "Group/method" keys for every test that lost points in rep
func FailedTests(rep *report.Report) map[string]struct{} {
	failed := make(map[string]struct{})
	if rep == nil {
		return failed
	}
	for _, g := range rep.TestGroups {
		for _, t := range g.Tests {
			if !t.Passed() {
				failed[g.Name+"/"+t.Name] = struct{}{}
			}
		}
	}
	return failed
}

// PrintRuns prints the gradebook run history
func (f *Formatter) PrintRuns(runs []storage.RunSummary) {
	f.println(color.GreenString("%d recorded run(s):\n", len(runs)))
	for _, run := range runs {
		duration := "n/a"
		if run.ExecutionTime != nil {
			duration = fmt.Sprintf("%.2fs", *run.ExecutionTime)
		}
		f.println(fmt.Sprintf("%s  %s  %-20s %s %s",
			color.YellowString(run.ID),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Submission,
			scoreString(run.Score, run.MaxScore),
			color.HiBlackString("(%s)", duration)))
	}
}
