package execution

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autograde/internal/annotation"
	"autograde/internal/collector"
	"autograde/internal/engine"
	"autograde/internal/parser"
	"autograde/internal/resolver"
)

const pkg = "example.com/hw/seqlib"

type call struct {
	kind     string
	id       string
	realTest string
	output   string
	captured bool
}

type recordingSink struct {
	capture  engine.OutputCapture
	calls    []call
	started  bool
	finished bool
	failOn   string
}

func (s *recordingSink) StartRun() { s.started = true }

func (s *recordingSink) record(kind string, test engine.Subject) error {
	c := call{kind: kind, id: test.ID()}
	if h, ok := test.(*engine.ErrorHolder); ok && h.RealTest != nil {
		c.realTest = h.RealTest.ID()
	}
	if s.capture != nil {
		c.output, c.captured = s.capture.CapturedOutput()
	}
	s.calls = append(s.calls, c)
	if s.failOn != "" && c.id == s.failOn {
		return errors.New("sink rejected " + c.id)
	}
	return nil
}

func (s *recordingSink) OnTestSuccess(test engine.Subject) error {
	return s.record("success", test)
}

func (s *recordingSink) OnTestFailure(test engine.Subject, _ engine.Failure) error {
	return s.record("failure", test)
}

func (s *recordingSink) OnTestError(test engine.Subject, _ engine.Failure) error {
	return s.record("error", test)
}

func (s *recordingSink) OnRunFinished() error {
	s.finished = true
	return nil
}

type staticFinder map[string][]string

func (f staticFinder) FindTestCases(dir string) ([]string, error) {
	return f[dir], nil
}

func ev(action, test, output string) parser.Event {
	return parser.Event{Action: action, Package: pkg, Test: test, Output: output}
}

func zipRegistry(t *testing.T) *annotation.Registry {
	t.Helper()
	reg := annotation.NewRegistry()
	require.NoError(t, reg.DeclareTest("TestZip", "empty", annotation.WithScore(-5)))
	require.NoError(t, reg.DeclareTest("TestZip", "simple", annotation.WithScore(-40)))
	require.NoError(t, reg.DeclareGroupMax("TestZip", 40))
	return reg
}

func dispatch(t *testing.T, d *Dispatcher, runs ...PackageRun) *recordingSink {
	t.Helper()
	sink := &recordingSink{capture: d}
	require.NoError(t, d.Dispatch(runs, sink))
	assert.True(t, sink.started)
	assert.True(t, sink.finished)
	return sink
}

func TestDispatcher_SubtestsAndTopLevelTests(t *testing.T) {
	d := NewDispatcher(zipRegistry(t), nil, true)
	run := PackageRun{Dir: "/hw/seqlib", ExitCode: 1, Events: []parser.Event{
		ev(parser.ActionStart, "", ""),
		ev(parser.ActionRun, "TestZip", ""),
		ev(parser.ActionOutput, "TestZip", "=== RUN   TestZip\n"),
		ev(parser.ActionRun, "TestZip/empty", ""),
		ev(parser.ActionOutput, "TestZip/empty", "=== RUN   TestZip/empty\n"),
		ev(parser.ActionOutput, "TestZip/empty", "    zip_test.go:12: got [1], want []\n"),
		ev(parser.ActionOutput, "TestZip/empty", "    --- FAIL: TestZip/empty (0.00s)\n"),
		ev(parser.ActionFail, "TestZip/empty", ""),
		ev(parser.ActionRun, "TestZip/simple", ""),
		ev(parser.ActionPass, "TestZip/simple", ""),
		ev(parser.ActionFail, "TestZip", ""),
		ev(parser.ActionRun, "TestHelper", ""),
		ev(parser.ActionOutput, "TestHelper", "helper says hi\n"),
		ev(parser.ActionPass, "TestHelper", ""),
		ev(parser.ActionRun, "TestSlow", ""),
		ev(parser.ActionSkip, "TestSlow", ""),
		ev(parser.ActionOutput, "", "FAIL\n"),
		ev(parser.ActionFail, "", ""),
	}}

	sink := dispatch(t, d, run)

	require.Len(t, sink.calls, 3)
	assert.Equal(t, call{kind: "failure", id: "seqlib.TestZip/empty", output: "    zip_test.go:12: got [1], want []\n", captured: true}, sink.calls[0])
	assert.Equal(t, call{kind: "success", id: "seqlib.TestZip/simple", output: "", captured: true}, sink.calls[1])
	assert.Equal(t, call{kind: "success", id: "seqlib.seqlib/TestHelper", output: "helper says hi\n", captured: true}, sink.calls[2])
}

// panicStream is what go test -json prints when the first subtest of group
// panics: the binary dies, so only the failing parents follow.
func panicStream(pkgPath, group, first string) []parser.Event {
	e := func(action, test, output string) parser.Event {
		return parser.Event{Action: action, Package: pkgPath, Test: test, Output: output}
	}
	sub := group + "/" + first
	return []parser.Event{
		e(parser.ActionStart, "", ""),
		e(parser.ActionRun, group, ""),
		e(parser.ActionOutput, group, "=== RUN   "+group+"\n"),
		e(parser.ActionRun, sub, ""),
		e(parser.ActionOutput, sub, "=== RUN   "+sub+"\n"),
		e(parser.ActionOutput, sub, "    --- FAIL: "+sub+" (0.00s)\n"),
		e(parser.ActionOutput, sub, "panic: runtime error: index out of range [1] with length 1 [recovered]\n"),
		e(parser.ActionOutput, sub, "goroutine 7 [running]:\n"),
		e(parser.ActionFail, sub, ""),
		e(parser.ActionOutput, group, "--- FAIL: "+group+" (0.00s)\n"),
		e(parser.ActionFail, group, ""),
		e(parser.ActionOutput, "", "FAIL\t"+pkgPath+"\t0.004s\n"),
		e(parser.ActionFail, "", ""),
	}
}

func TestDispatcher_Crash(t *testing.T) {
	const crash = "panic: runtime error: index out of range [1] with length 1 [recovered]\ngoroutine 7 [running]:\n"

	t.Run("panic charges the tests that never ran", func(t *testing.T) {
		d := NewDispatcher(zipRegistry(t), nil, true)
		sink := dispatch(t, d, PackageRun{Dir: "/hw/seqlib", ExitCode: 2, Events: panicStream(pkg, "TestZip", "empty")})

		assert.Equal(t, []call{
			{kind: "error", id: "seqlib.TestZip/empty", output: crash, captured: true},
			{kind: "error", id: "crashed (seqlib.TestZip)", realTest: "seqlib.TestZip/simple", output: crash, captured: true},
		}, sink.calls)
	})

	t.Run("timeout before any test reports", func(t *testing.T) {
		d := NewDispatcher(zipRegistry(t), nil, true)
		run := PackageRun{Dir: "/hw/seqlib", ExitCode: 1, Events: []parser.Event{
			ev(parser.ActionRun, "TestZip", ""),
			ev(parser.ActionRun, "TestZip/empty", ""),
			ev(parser.ActionOutput, "TestZip/empty", "=== RUN   TestZip/empty\n"),
			ev(parser.ActionOutput, "", "panic: test timed out after 5s\n"),
			ev(parser.ActionOutput, "", "\trunning tests:\n"),
			ev(parser.ActionOutput, "", "FAIL\texample.com/hw/seqlib\t5.012s\n"),
			ev(parser.ActionFail, "", ""),
		}}

		sink := dispatch(t, d, run)
		const timeout = "panic: test timed out after 5s\n\trunning tests:\n"
		assert.Equal(t, []call{
			{kind: "error", id: "crashed (seqlib.TestZip)", realTest: "seqlib.TestZip/empty", output: timeout, captured: true},
			{kind: "error", id: "crashed (seqlib.TestZip)", realTest: "seqlib.TestZip/simple", output: timeout, captured: true},
		}, sink.calls)
	})

	t.Run("groups defined later in the package are charged too", func(t *testing.T) {
		reg := zipRegistry(t)
		require.NoError(t, reg.DeclareTest("TestSum", "small", annotation.WithScore(10)))
		finder := staticFinder{"/hw/seqlib": {"TestZip", "TestSum"}}
		d := NewDispatcher(reg, finder, true)

		sink := dispatch(t, d, PackageRun{Dir: "/hw/seqlib", ExitCode: 2, Events: panicStream(pkg, "TestZip", "empty")})
		require.Len(t, sink.calls, 3)
		assert.Equal(t, "seqlib.TestSum/small", sink.calls[2].realTest)
		assert.Equal(t, "crashed (seqlib.TestSum)", sink.calls[2].id)
	})
}

func TestDispatcher_GroupAbortedAfterFailure(t *testing.T) {
	d := NewDispatcher(zipRegistry(t), nil, true)
	run := PackageRun{Dir: "/hw/seqlib", ExitCode: 1, Events: []parser.Event{
		ev(parser.ActionRun, "TestZip/empty", ""),
		ev(parser.ActionFail, "TestZip/empty", ""),
		ev(parser.ActionOutput, "TestZip", "    zip_test.go:30: stopping after first failure\n"),
		ev(parser.ActionFail, "TestZip", ""),
		ev(parser.ActionFail, "", ""),
	}}

	sink := dispatch(t, d, run)
	assert.Equal(t, []call{
		{kind: "failure", id: "seqlib.TestZip/empty", captured: true},
		{
			kind:     "error",
			id:       "group aborted (seqlib.TestZip)",
			realTest: "seqlib.TestZip/simple",
			output:   "    zip_test.go:30: stopping after first failure\n",
			captured: true,
		},
	}, sink.calls)
}

func TestDispatcher_CrashGrades(t *testing.T) {
	reg := zipRegistry(t)
	require.NoError(t, reg.DeclareTest("TestAdd", "a", annotation.WithScore(10)))
	require.NoError(t, reg.DeclareTest("TestAdd", "b", annotation.WithScore(20)))

	d := NewDispatcher(reg, nil, true)
	c := collector.New(resolver.New(reg), collector.WithOutputCapture(d))

	const mathPkg = "example.com/hw/mathlib"
	runs := []PackageRun{
		{Dir: "/hw/mathlib", ExitCode: 2, Events: panicStream(mathPkg, "TestAdd", "a")},
		{Dir: "/hw/seqlib", ExitCode: 2, Events: panicStream(pkg, "TestZip", "empty")},
	}
	require.NoError(t, d.Dispatch(runs, c))

	rep := c.Report()
	require.NotNil(t, rep)
	require.Len(t, rep.TestGroups, 2)

	add := rep.TestGroups[0]
	assert.Equal(t, "TestAdd", add.Name)
	assert.Equal(t, 0, add.Score)
	assert.Equal(t, 30, add.MaxScore)
	assert.Len(t, add.Tests, 2)

	zip := rep.TestGroups[1]
	assert.Equal(t, "TestZip", zip.Name)
	assert.Equal(t, 0, zip.Score)
	assert.Equal(t, 40, zip.MaxScore)
	require.Len(t, zip.Tests, 2)
	assert.Equal(t, -40, zip.Tests[1].Score)

	assert.Equal(t, 4, c.Errors())
	assert.Equal(t, 0, rep.Score)
	assert.Equal(t, 70, rep.MaxScore)
}

func TestDispatcher_GroupSetupFailure(t *testing.T) {
	tests := []struct {
		name     string
		events   []parser.Event
		expected []call
	}{
		{
			name: "before any subtest",
			events: []parser.Event{
				ev(parser.ActionRun, "TestZip", ""),
				ev(parser.ActionOutput, "TestZip", "    zip_test.go:9: fixture: open testdata/zip.json: no such file\n"),
				ev(parser.ActionFail, "TestZip", ""),
				ev(parser.ActionFail, "", ""),
			},
			expected: []call{{
				kind:     "error",
				id:       "group setup (seqlib.TestZip)",
				realTest: "seqlib.TestZip/empty",
				output:   "    zip_test.go:9: fixture: open testdata/zip.json: no such file\n",
				captured: true,
			}},
		},
		{
			name: "between subtests",
			events: []parser.Event{
				ev(parser.ActionRun, "TestZip", ""),
				ev(parser.ActionRun, "TestZip/empty", ""),
				ev(parser.ActionPass, "TestZip/empty", ""),
				ev(parser.ActionOutput, "TestZip", "    zip_test.go:20: reset failed\n"),
				ev(parser.ActionFail, "TestZip", ""),
				ev(parser.ActionFail, "", ""),
			},
			expected: []call{
				{kind: "success", id: "seqlib.TestZip/empty", captured: true},
				{
					kind:     "error",
					id:       "group setup (seqlib.TestZip)",
					realTest: "seqlib.TestZip/simple",
					output:   "    zip_test.go:20: reset failed\n",
					captured: true,
				},
			},
		},
		{
			name: "after the last subtest is teardown and not graded",
			events: []parser.Event{
				ev(parser.ActionRun, "TestZip", ""),
				ev(parser.ActionRun, "TestZip/empty", ""),
				ev(parser.ActionPass, "TestZip/empty", ""),
				ev(parser.ActionRun, "TestZip/simple", ""),
				ev(parser.ActionPass, "TestZip/simple", ""),
				ev(parser.ActionFail, "TestZip", ""),
				ev(parser.ActionFail, "", ""),
			},
			expected: []call{
				{kind: "success", id: "seqlib.TestZip/empty", captured: true},
				{kind: "success", id: "seqlib.TestZip/simple", captured: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(zipRegistry(t), nil, true)
			sink := dispatch(t, d, PackageRun{Dir: "/hw/seqlib", ExitCode: 1, Events: tt.events})
			assert.Equal(t, tt.expected, sink.calls)
		})
	}
}

func TestDispatcher_PackageFailure(t *testing.T) {
	buildFailure := PackageRun{
		Dir:      "/hw/seqlib",
		ExitCode: 1,
		Stderr:   "# example.com/hw/seqlib\n./zip.go:7:2: undefined: sliceOf\n",
		Events: []parser.Event{
			ev(parser.ActionOutput, "", "FAIL\texample.com/hw/seqlib [build failed]\n"),
			ev(parser.ActionFail, "", ""),
		},
	}

	t.Run("attributed to the first declared group in the package", func(t *testing.T) {
		finder := staticFinder{"/hw/seqlib": {"TestHelper", "TestZip"}}
		d := NewDispatcher(zipRegistry(t), finder, true)

		sink := dispatch(t, d, buildFailure)
		require.Len(t, sink.calls, 1)
		assert.Equal(t, "error", sink.calls[0].kind)
		assert.Equal(t, "package setup (seqlib)", sink.calls[0].id)
		assert.Equal(t, "seqlib.TestZip/empty", sink.calls[0].realTest)
		assert.Equal(t, buildFailure.Stderr, sink.calls[0].output)
	})

	t.Run("build output events count as stderr", func(t *testing.T) {
		finder := staticFinder{"/hw/seqlib": {"TestZip"}}
		d := NewDispatcher(zipRegistry(t), finder, true)
		run := PackageRun{Dir: "/hw/seqlib", ExitCode: 1, Events: []parser.Event{
			{Action: parser.ActionBuildOutput, ImportPath: pkg + ".test", Output: "./zip.go:7:2: undefined: sliceOf\n"},
			{Action: parser.ActionBuildFail, ImportPath: pkg + ".test"},
			{Action: parser.ActionOutput, Package: pkg, Output: "setup log\n"},
			{Action: parser.ActionFail, Package: pkg, FailedBuild: pkg + ".test"},
		}}

		sink := dispatch(t, d, run)
		require.Len(t, sink.calls, 1)
		assert.Equal(t, "setup log\n./zip.go:7:2: undefined: sliceOf\n", sink.calls[0].output)
	})

	t.Run("no declared group is not graded", func(t *testing.T) {
		d := NewDispatcher(annotation.NewRegistry(), staticFinder{}, true)
		sink := dispatch(t, d, buildFailure)
		assert.Empty(t, sink.calls)
	})

	t.Run("package group fallback", func(t *testing.T) {
		reg := annotation.NewRegistry()
		require.NoError(t, reg.DeclareTest("seqlib", "TestHelper", annotation.WithScore(5)))
		d := NewDispatcher(reg, staticFinder{}, true)

		sink := dispatch(t, d, buildFailure)
		require.Len(t, sink.calls, 1)
		assert.Equal(t, "seqlib.seqlib/TestHelper", sink.calls[0].realTest)
	})
}

func TestDispatcher_BufferOff(t *testing.T) {
	d := NewDispatcher(zipRegistry(t), nil, false)
	run := PackageRun{Dir: "/hw/seqlib", Events: []parser.Event{
		ev(parser.ActionOutput, "TestZip/empty", "log line\n"),
		ev(parser.ActionPass, "TestZip/empty", ""),
	}}

	sink := dispatch(t, d, run)
	require.Len(t, sink.calls, 1)
	assert.False(t, sink.calls[0].captured)
	assert.Empty(t, sink.calls[0].output)
}

func TestDispatcher_Errors(t *testing.T) {
	t.Run("run error aborts", func(t *testing.T) {
		d := NewDispatcher(nil, nil, true)
		sink := &recordingSink{}
		err := d.Dispatch([]PackageRun{{Dir: "/hw/seqlib", Err: errors.New("go: not found")}}, sink)
		assert.Error(t, err)
		assert.False(t, sink.finished)
	})

	t.Run("sink error aborts", func(t *testing.T) {
		d := NewDispatcher(zipRegistry(t), nil, true)
		sink := &recordingSink{failOn: "seqlib.TestZip/empty"}
		err := d.Dispatch([]PackageRun{{Dir: "/hw/seqlib", Events: []parser.Event{
			ev(parser.ActionPass, "TestZip/empty", ""),
			ev(parser.ActionPass, "TestZip/simple", ""),
		}}}, sink)
		assert.Error(t, err)
		assert.Len(t, sink.calls, 1)
		assert.False(t, sink.finished)
	})
}

func TestDispatcher_WithCollector(t *testing.T) {
	reg := zipRegistry(t)
	require.NoError(t, reg.DeclareTest("TestSum", "small", annotation.WithScore(10)))
	require.NoError(t, reg.DeclareTest("TestSum", "large", annotation.WithScore(20)))

	d := NewDispatcher(reg, nil, true)
	c := collector.New(resolver.New(reg), collector.WithOutputCapture(d))

	runs := []PackageRun{{Dir: "/hw/seqlib", ExitCode: 1, Events: []parser.Event{
		ev(parser.ActionRun, "TestSum/small", ""),
		ev(parser.ActionPass, "TestSum/small", ""),
		ev(parser.ActionOutput, "TestSum/large", "    sum_test.go:30: got 3, want 4\n"),
		ev(parser.ActionFail, "TestSum/large", ""),
		ev(parser.ActionFail, "TestSum", ""),
		ev(parser.ActionOutput, "TestZip", "    zip_test.go:9: fixture broken\n"),
		ev(parser.ActionFail, "TestZip", ""),
		ev(parser.ActionFail, "", ""),
	}}}
	require.NoError(t, d.Dispatch(runs, c))

	rep := c.Report()
	require.NotNil(t, rep)
	require.Len(t, rep.TestGroups, 2)

	sum := rep.TestGroups[0]
	assert.Equal(t, "TestSum", sum.Name)
	assert.Equal(t, 10, sum.Score)
	assert.Equal(t, 30, sum.MaxScore)
	require.NotNil(t, sum.Tests[1].Output)
	assert.Equal(t, "    sum_test.go:30: got 3, want 4\n", *sum.Tests[1].Output)

	zip := rep.TestGroups[1]
	assert.Equal(t, "TestZip", zip.Name)
	require.Len(t, zip.Tests, 1)
	assert.Equal(t, "empty", zip.Tests[0].Name)
	assert.Equal(t, -5, zip.Tests[0].Score)
	assert.Equal(t, 35, zip.Score)

	assert.Equal(t, 1, c.Failures())
	assert.Equal(t, 1, c.Errors())
}

func TestPackageName(t *testing.T) {
	assert.Equal(t, "mathlib", PackageName("/work/submission/mathlib"))
	assert.Equal(t, "mathlib", PackageName("/work/submission/mathlib/"))
	assert.Equal(t, "submission", PackageName("/work/submission/mathlib/.."))
}
