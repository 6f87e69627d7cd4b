// Package collector turns test lifecycle events into a graded result tree.
package collector

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"autograde/internal/domain"
	"autograde/internal/engine"
	"autograde/internal/report"
	"autograde/internal/resolver"
)

// ReportSink receives the finished report, e.g. to persist it
type ReportSink interface {
	Save(rep report.Report) error
}

// ReportSinkFunc adapts a function to ReportSink
type ReportSinkFunc func(rep report.Report) error

// Save calls f(rep)
func (f ReportSinkFunc) Save(rep report.Report) error { return f(rep) }

// Option configures a Collector
type Option func(*Collector)

// WithOutputCapture stores captured output on every recorded test
func WithOutputCapture(capture engine.OutputCapture) Option {
	return func(c *Collector) { c.capture = capture }
}

// WithSerializer replaces the default wall-clock serializer
func WithSerializer(serializer *report.Serializer) Option {
	return func(c *Collector) { c.serializer = serializer }
}

// WithReportSink adds a destination for the finished report
func WithReportSink(sink ReportSink) Option {
	return func(c *Collector) { c.sinks = append(c.sinks, sink) }
}

// Collector implements engine.ResultSink. It is not safe for concurrent use;
// events must be delivered one at a time.
type Collector struct {
	resolver   *resolver.Resolver
	results    *domain.Results
	capture    engine.OutputCapture
	serializer *report.Serializer
	sinks      []ReportSink

	report   *report.Report
	failures int
	errors   int
}

// New creates a Collector that resolves declarations through r
func New(r *resolver.Resolver, opts ...Option) *Collector {
	c := &Collector{
		resolver:   r,
		results:    domain.NewResults(),
		serializer: report.NewSerializer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeError
)

func (o outcome) String() string {
	switch o {
	case outcomeFailure:
		return "failure"
	case outcomeError:
		return "error"
	default:
		return "success"
	}
}

// StartRun starts the run clock unless the caller already started it
func (c *Collector) StartRun() {
	if !c.serializer.Started() {
		c.serializer.Start()
	}
}

// OnTestSuccess records a passing test
func (c *Collector) OnTestSuccess(test engine.Subject) error {
	return c.record(test, outcomeSuccess)
}

// OnTestFailure records a test whose assertion failed
func (c *Collector) OnTestFailure(test engine.Subject, info engine.Failure) error {
	c.failures++
	return c.record(test, outcomeFailure)
}

// OnTestError records a test that crashed or whose fixture failed
func (c *Collector) OnTestError(test engine.Subject, info engine.Failure) error {
	c.errors++
	return c.record(test, outcomeError)
}

// OnRunFinished finalizes the report and hands it to every sink
func (c *Collector) OnRunFinished() error {
	rep, err := c.serializer.Finalize(c.results)
	if err != nil {
		return err
	}
	c.report = &rep

	log.WithFields(log.Fields{
		"score":     rep.Score,
		"max_score": rep.MaxScore,
		"groups":    len(rep.TestGroups),
	}).Info("Grading finished")

	for _, sink := range c.sinks {
		if err := sink.Save(rep); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
	}
	return nil
}

func (c *Collector) record(test engine.Subject, o outcome) error {
	groupName, groupMax, err := c.resolver.ResolveGroup(test)
	if err != nil {
		return err
	}
	testName, declared, err := c.resolver.ResolveTest(test)
	if err != nil {
		return err
	}

	entry := log.WithFields(log.Fields{
		"group":   groupName,
		"test":    testName,
		"outcome": o,
	})
	if declared == nil {
		entry.Debug("Ignoring ungraded test")
		return nil
	}

	group, err := c.results.EnsureGroup(groupName, groupMax)
	if err != nil {
		return err
	}

	score := 0
	switch {
	case o == outcomeSuccess && !group.IsSubtractive():
		score = *declared
	case o != outcomeSuccess && group.IsSubtractive():
		score = *declared
	}

	t := domain.Test{Name: testName, Score: score, MaxScore: *declared}
	if c.capture != nil {
		if output, ok := c.capture.CapturedOutput(); ok {
			t.Output = &output
		}
	}
	if err := group.AddTest(t); err != nil {
		return err
	}

	entry.WithField("score", score).Debug("Recorded test")
	return nil
}

// Results returns the result tree built so far
func (c *Collector) Results() *domain.Results {
	return c.results
}

// Report returns the finalized report, or nil before the run finished
func (c *Collector) Report() *report.Report {
	return c.report
}

// Failures returns the number of failed tests, graded or not
func (c *Collector) Failures() int { return c.failures }

// Errors returns the number of errored tests, graded or not
func (c *Collector) Errors() int { return c.errors }

// WasSuccessful reports whether every test passed
func (c *Collector) WasSuccessful() bool {
	return c.failures == 0 && c.errors == 0
}
