// Package engine defines what the grading core expects from a test execution engine:
// identifiable test cases, synthetic fixture-failure records, lifecycle callbacks,
// and optional captured output.
package engine

import "strings"

// Subject is anything the execution engine reports an outcome for
type Subject interface {
	ID() string
}

// TestCase identifies a single test method inside a test group
type TestCase interface {
	Subject
	GroupName() string
	MethodName() string
}

// Case is the standard TestCase implementation
type Case struct {
	Package string
	Group   string
	Method  string
}

// ID returns "package.Group/Method"
func (c Case) ID() string {
	id := c.Group + "/" + c.Method
	if c.Package != "" {
		id = c.Package + "." + id
	}
	return id
}

// GroupName returns the unqualified group name
func (c Case) GroupName() string { return c.Group }

// MethodName returns the test method name
func (c Case) MethodName() string { return c.Method }

// ErrorHolder stands in for a failure that happened in group or package fixture
// code, before any test method ran. RealTest is the test case that was about to
// run when the fixture failed; the engine integration must fill it in.
type ErrorHolder struct {
	Description string
	RealTest    TestCase
}

// ID returns the fixture description, e.g. "setUpClass (pkg.TestZip)"
func (e *ErrorHolder) ID() string { return e.Description }

// Failure carries the details of a failed or errored test
type Failure struct {
	Message string
}

// ResultSink receives lifecycle events, one at a time, in execution order.
// Any returned error aborts the run.
type ResultSink interface {
	StartRun()
	OnTestSuccess(test Subject) error
	OnTestFailure(test Subject, info Failure) error
	OnTestError(test Subject, info Failure) error
	OnRunFinished() error
}

// OutputCapture gives access to the output buffered for the test being reported.
// ok is false when buffering is disabled.
type OutputCapture interface {
	CapturedOutput() (output string, ok bool)
}

// JoinOutput concatenates stdout and stderr, inserting a newline between them
// only when stdout is non-empty and does not already end in one.
func JoinOutput(stdout, stderr string) string {
	if stderr == "" {
		return stdout
	}
	if stdout != "" && !strings.HasSuffix(stdout, "\n") {
		stdout += "\n"
	}
	return stdout + stderr
}
