package execution

import (
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"autograde/internal/annotation"
	"autograde/internal/engine"
	"autograde/internal/parser"
)

// TestFinder lists the top-level test functions of a package directory
type TestFinder interface {
	FindTestCases(dir string) ([]string, error)
}

// Dispatcher replays buffered package runs into a ResultSink, one event at a
// time. It also serves as the sink's OutputCapture: while a callback runs,
// CapturedOutput returns the output of the test being reported.
type Dispatcher struct {
	registry *annotation.Registry
	finder   TestFinder
	buffer   bool

	current string
}

// PackageName is the group that top-level tests of the package in dir report
// under when they are not group runners: the directory's base name.
func PackageName(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Base(dir)
}

// NewDispatcher creates a Dispatcher. With buffer off, CapturedOutput reports nothing.
func NewDispatcher(registry *annotation.Registry, finder TestFinder, buffer bool) *Dispatcher {
	if registry == nil {
		registry = annotation.NewRegistry()
	}
	return &Dispatcher{registry: registry, finder: finder, buffer: buffer}
}

// CapturedOutput returns the output of the test currently being reported
func (d *Dispatcher) CapturedOutput() (string, bool) {
	if !d.buffer {
		return "", false
	}
	return d.current, true
}

// Dispatch delivers every outcome of runs to sink, then finishes the run.
// The first sink error aborts dispatch.
func (d *Dispatcher) Dispatch(runs []PackageRun, sink engine.ResultSink) error {
	sink.StartRun()
	for _, run := range runs {
		if run.Err != nil {
			return run.Err
		}
		if err := d.dispatchPackage(run, sink); err != nil {
			return err
		}
	}
	d.current = ""
	return sink.OnRunFinished()
}

type outcome struct {
	test   string
	action string
}

// packageState holds one package's events regrouped per test
type packageState struct {
	name     string
	outputs  map[string]*strings.Builder
	stdout   strings.Builder
	stderr   strings.Builder
	outcomes []outcome
	started  []string
	children map[string]bool
	failed   bool
}

func newPackageState(run PackageRun) *packageState {
	st := &packageState{
		outputs:  make(map[string]*strings.Builder),
		children: make(map[string]bool),
	}
	st.name = PackageName(run.Dir)
	st.stderr.WriteString(run.Stderr)

	for _, ev := range run.Events {
		switch {
		case ev.Action == parser.ActionBuildOutput:
			st.stderr.WriteString(ev.Output)
		case ev.Action == parser.ActionBuildFail:
			st.failed = true
		case ev.Action == parser.ActionOutput && ev.Test != "":
			b, ok := st.outputs[ev.Test]
			if !ok {
				b = &strings.Builder{}
				st.outputs[ev.Test] = b
			}
			b.WriteString(stripFraming(ev.Output))
		case ev.Action == parser.ActionOutput:
			st.stdout.WriteString(stripSummary(ev.Output))
		case ev.Action == parser.ActionRun && ev.Test != "":
			st.started = append(st.started, ev.Test)
		case ev.IsTestOutcome():
			st.outcomes = append(st.outcomes, outcome{test: ev.Test, action: ev.Action})
			if i := strings.IndexByte(ev.Test, '/'); i >= 0 {
				st.children[ev.Test[:i]] = true
			}
		case ev.Action == parser.ActionFail:
			st.failed = true
		}
	}
	if run.ExitCode != 0 && len(st.outcomes) == 0 {
		st.failed = true
	}
	return st
}

func (st *packageState) output(test string) string {
	if b, ok := st.outputs[test]; ok {
		return b.String()
	}
	return ""
}

func (d *Dispatcher) dispatchPackage(run PackageRun, sink engine.ResultSink) error {
	st := newPackageState(run)
	entry := log.WithFields(log.Fields{"package": st.name, "dir": run.Dir, "import_path": run.ImportPath()})

	if len(st.outcomes) == 0 {
		if !st.failed {
			entry.Debug("Package reported no tests")
			return nil
		}
		// A timeout can end the binary before any test reports
		if _, crashed := st.crash(); !crashed {
			return d.packageFailure(run, st, sink, entry)
		}
	}

	// Methods of each group that have reported or been charged
	reported := make(reportedSet)
	for _, o := range st.outcomes {
		group, method, isSub := strings.Cut(o.test, "/")
		switch {
		case isSub:
			reported.mark(group, method)
		case !d.isGroupRunner(st, group):
			reported.mark(st.name, o.test)
		}
	}

	var aborted []string
	for _, o := range st.outcomes {
		group, method, isSub := strings.Cut(o.test, "/")

		if !isSub && d.isGroupRunner(st, group) {
			// Group runner: only its own failure matters
			if o.action != parser.ActionFail {
				continue
			}
			if d.anyChildFailed(st, group) {
				aborted = append(aborted, group)
				continue
			}
			if err := d.groupFailure(st, group, reported, sink, entry); err != nil {
				return err
			}
			continue
		}

		if !isSub {
			group, method = st.name, o.test
		}
		tc := engine.Case{Package: st.name, Group: group, Method: method}
		if err := d.report(tc, o.action, st.output(o.test), sink); err != nil {
			return err
		}
	}

	// A crash ends the test binary, so declared tests after it never report
	if crash, ok := st.crash(); ok {
		for _, group := range d.packageGroups(run.Dir, st) {
			desc := fmt.Sprintf("crashed (%s.%s)", st.name, group)
			if err := d.chargePending(st, group, desc, crash, reported, sink, entry); err != nil {
				return err
			}
		}
		return nil
	}

	// A runner that stopped after a failing subtest never started the rest
	for _, group := range aborted {
		desc := fmt.Sprintf("group aborted (%s.%s)", st.name, group)
		if err := d.chargePending(st, group, desc, st.output(group), reported, sink, entry); err != nil {
			return err
		}
	}

	if st.failed && !st.anyTestFailed() {
		entry.Warn("Package failed after its tests reported; not graded")
	}
	return nil
}

// reportedSet records, per group, the methods that already have an outcome
type reportedSet map[string]map[string]bool

func (r reportedSet) mark(group, method string) {
	if r[group] == nil {
		r[group] = make(map[string]bool)
	}
	r[group][method] = true
}

func (d *Dispatcher) isGroupRunner(st *packageState, name string) bool {
	return st.children[name] || d.registry.HasGroup(name)
}

// crash returns the output of the panic or timeout that ended the test
// binary, if there was one
func (st *packageState) crash() (string, bool) {
	for _, o := range st.outcomes {
		if o.action != parser.ActionFail {
			continue
		}
		if out := st.output(o.test); isCrash(out) {
			return out, true
		}
	}
	pkgOutput := engine.JoinOutput(st.stdout.String(), st.stderr.String())
	if isCrash(pkgOutput) {
		return pkgOutput, true
	}
	return "", false
}

// packageGroups lists the groups a package may grade: groups that started or
// reported, then declared groups defined in dir, then the package group.
func (d *Dispatcher) packageGroups(dir string, st *packageState) []string {
	seen := make(map[string]bool)
	var groups []string
	add := func(name string) {
		if !seen[name] && d.registry.HasGroup(name) {
			seen[name] = true
			groups = append(groups, name)
		}
	}

	names := append([]string(nil), st.started...)
	for _, o := range st.outcomes {
		names = append(names, o.test)
	}
	for _, name := range names {
		group, _, isSub := strings.Cut(name, "/")
		if isSub || d.isGroupRunner(st, group) {
			add(group)
		}
	}
	if d.finder != nil {
		defined, err := d.finder.FindTestCases(dir)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Could not list package tests")
		}
		for _, name := range defined {
			add(name)
		}
	}
	add(st.name)
	return groups
}

// chargePending reports every declared test of group without an outcome as
// an error attributed through an ErrorHolder
func (d *Dispatcher) chargePending(st *packageState, group, desc, output string, reported reportedSet, sink engine.ResultSink, entry *log.Entry) error {
	for {
		pending, ok := d.firstPending(group, reported[group])
		if !ok {
			return nil
		}
		reported.mark(group, pending)

		holder := &engine.ErrorHolder{
			Description: desc,
			RealTest:    engine.Case{Package: st.name, Group: group, Method: pending},
		}
		entry.WithFields(log.Fields{"group": group, "test": pending}).Info("Test never ran")
		d.current = output
		if err := sink.OnTestError(holder, engine.Failure{Message: output}); err != nil {
			return err
		}
	}
}

func (st *packageState) anyTestFailed() bool {
	for _, o := range st.outcomes {
		if o.action == parser.ActionFail {
			return true
		}
	}
	return false
}

func (d *Dispatcher) report(tc engine.Subject, action, output string, sink engine.ResultSink) error {
	d.current = output
	switch action {
	case parser.ActionPass:
		return sink.OnTestSuccess(tc)
	case parser.ActionFail:
		info := engine.Failure{Message: output}
		if isCrash(output) {
			return sink.OnTestError(tc, info)
		}
		return sink.OnTestFailure(tc, info)
	default:
		// Skipped tests are not graded
		return nil
	}
}

func (d *Dispatcher) anyChildFailed(st *packageState, group string) bool {
	prefix := group + "/"
	for _, o := range st.outcomes {
		if o.action == parser.ActionFail && strings.HasPrefix(o.test, prefix) {
			return true
		}
	}
	return false
}

// groupFailure handles a group runner that failed outside any of its subtests.
// Before or between subtests it is a setup failure charged to the next pending
// test; after the last declared test it is a teardown failure and is not graded.
func (d *Dispatcher) groupFailure(st *packageState, group string, reported reportedSet, sink engine.ResultSink, entry *log.Entry) error {
	output := st.output(group)
	pending, ok := d.firstPending(group, reported[group])
	if !ok {
		entry.WithField("group", group).Warn("Group failed after all declared tests reported; not graded")
		return nil
	}
	reported.mark(group, pending)

	holder := &engine.ErrorHolder{
		Description: fmt.Sprintf("group setup (%s.%s)", st.name, group),
		RealTest:    engine.Case{Package: st.name, Group: group, Method: pending},
	}
	entry.WithFields(log.Fields{"group": group, "test": pending}).Info("Group setup failed")
	d.current = output
	return sink.OnTestError(holder, engine.Failure{Message: output})
}

// packageFailure handles a package that failed before any test reported,
// e.g. a build error or a failing TestMain.
func (d *Dispatcher) packageFailure(run PackageRun, st *packageState, sink engine.ResultSink, entry *log.Entry) error {
	output := engine.JoinOutput(st.stdout.String(), st.stderr.String())

	group, pending, ok := d.firstPendingInPackage(run.Dir, st.name)
	if !ok {
		entry.Warn("Package failed but declares no graded group; not graded")
		return nil
	}

	holder := &engine.ErrorHolder{
		Description: fmt.Sprintf("package setup (%s)", st.name),
		RealTest:    engine.Case{Package: st.name, Group: group, Method: pending},
	}
	entry.WithFields(log.Fields{"group": group, "test": pending}).Info("Package setup failed")
	d.current = output
	return sink.OnTestError(holder, engine.Failure{Message: output})
}

func (d *Dispatcher) firstPending(group string, reported map[string]bool) (string, bool) {
	for _, spec := range d.registry.Tests(group) {
		if !reported[spec.Name] {
			return spec.Name, true
		}
	}
	return "", false
}

// firstPendingInPackage picks the first declared test of the first declared
// group whose runner is defined in dir, falling back to the package group.
func (d *Dispatcher) firstPendingInPackage(dir, pkgName string) (string, string, bool) {
	if d.finder != nil {
		names, err := d.finder.FindTestCases(dir)
		if err != nil {
			log.WithError(err).WithField("dir", dir).Warn("Could not list package tests")
		}
		for _, name := range names {
			if !d.registry.HasGroup(name) {
				continue
			}
			if pending, ok := d.firstPending(name, nil); ok {
				return name, pending, true
			}
		}
	}
	if pending, ok := d.firstPending(pkgName, nil); ok {
		return pkgName, pending, true
	}
	return "", "", false
}

func isCrash(output string) bool {
	return strings.Contains(output, "panic: ") || strings.Contains(output, "test timed out after")
}

// stripFraming drops the "=== RUN" and "--- FAIL" lines go test adds around test output
func stripFraming(output string) string {
	trimmed := strings.TrimLeft(output, " \t")
	if strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- ") {
		return ""
	}
	return output
}

// stripSummary drops the package result lines from package-level output
func stripSummary(output string) string {
	line := strings.TrimRight(output, "\n")
	switch {
	case line == "PASS", line == "FAIL", line == "testing: warning: no tests to run":
		return ""
	case strings.HasPrefix(line, "ok  \t"), strings.HasPrefix(line, "FAIL\t"), strings.HasPrefix(line, "?   \t"):
		return ""
	}
	return output
}
