package report

import (
	"time"

	"autograde/internal/domain"
)

// Report is the serialized grade tree written at the end of a run
type Report struct {
	Score         int           `json:"score"`
	MaxScore      int           `json:"max_score"`
	ExecutionTime *float64      `json:"execution_time,omitempty"` // seconds
	TestGroups    []GroupRecord `json:"test_groups"`
}

// GroupRecord is one test group in the report
type GroupRecord struct {
	Name     string       `json:"name"`
	Score    int          `json:"score"`
	MaxScore int          `json:"max_score"`
	Tests    []TestRecord `json:"tests"`
}

// TestRecord is one graded test in the report
type TestRecord struct {
	Name     string  `json:"name"`
	Score    int     `json:"score"`
	MaxScore int     `json:"max_score"`
	Output   *string `json:"output,omitempty"`
}

// Passed reports whether the test earned everything it could.
// A penalty test passed when nothing was deducted.
func (t TestRecord) Passed() bool {
	if t.MaxScore < 0 {
		return t.Score == 0
	}
	return t.Score == t.MaxScore
}

// Duration returns the execution time, if the report was finalized
func (r Report) Duration() (time.Duration, bool) {
	if r.ExecutionTime == nil {
		return 0, false
	}
	return time.Duration(*r.ExecutionTime * float64(time.Second)), true
}

// FromResults projects the result tree into a Report without validating it.
func FromResults(results *domain.Results) Report {
	rep := Report{
		Score:      results.Score(),
		MaxScore:   results.MaxScore(),
		TestGroups: make([]GroupRecord, 0),
	}
	if d, ok := results.ExecutionTime(); ok {
		seconds := d.Seconds()
		rep.ExecutionTime = &seconds
	}

	for _, g := range results.Groups() {
		group := GroupRecord{
			Name:     g.Name,
			Score:    g.Score(),
			MaxScore: g.MaxScore(),
			Tests:    make([]TestRecord, 0),
		}
		for _, t := range g.Tests() {
			group.Tests = append(group.Tests, TestRecord{
				Name:     t.Name,
				Score:    t.Score,
				MaxScore: t.MaxScore,
				Output:   t.Output,
			})
		}
		rep.TestGroups = append(rep.TestGroups, group)
	}
	return rep
}
