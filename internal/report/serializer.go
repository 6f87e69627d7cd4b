package report

import (
	"fmt"
	"time"

	"autograde/internal/domain"
)

// Serializer times a grading run and turns the final results into a Report
type Serializer struct {
	now     func() time.Time
	started time.Time
}

// NewSerializer creates a Serializer using the wall clock
func NewSerializer() *Serializer {
	return &Serializer{now: time.Now}
}

// NewSerializerWithClock creates a Serializer with an injected clock, for tests
func NewSerializerWithClock(now func() time.Time) *Serializer {
	return &Serializer{now: now}
}

// Start records the start timestamp. Call it right before execution begins.
func (s *Serializer) Start() {
	s.started = s.now()
}

// Started reports whether Start has been called
func (s *Serializer) Started() bool {
	return !s.started.IsZero()
}

// Finalize stamps the execution time onto results and returns the report.
func (s *Serializer) Finalize(results *domain.Results) (Report, error) {
	if !s.Started() {
		return Report{}, fmt.Errorf("finalize report: run was never started")
	}
	if err := results.SetExecutionTime(s.now().Sub(s.started)); err != nil {
		return Report{}, fmt.Errorf("finalize report: %w", err)
	}
	return FromResults(results), nil
}
