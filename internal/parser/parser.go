package parser

import (
	"io"
	"time"
)

// Event actions emitted by go test -json (see go doc test2json)
const (
	ActionStart       = "start"
	ActionRun         = "run"
	ActionPause       = "pause"
	ActionCont        = "cont"
	ActionPass        = "pass"
	ActionBench       = "bench"
	ActionFail        = "fail"
	ActionOutput      = "output"
	ActionSkip        = "skip"
	ActionBuildOutput = "build-output"
	ActionBuildFail   = "build-fail"
)

// Event is one line of go test -json output
type Event struct {
	Time        time.Time `json:",omitempty"`
	Action      string
	Package     string  `json:",omitempty"`
	ImportPath  string  `json:",omitempty"`
	Test        string  `json:",omitempty"`
	Elapsed     float64 `json:",omitempty"` // seconds
	Output      string  `json:",omitempty"`
	FailedBuild string  `json:",omitempty"`
}

// IsTestOutcome reports whether the event ends a test
func (e Event) IsTestOutcome() bool {
	return e.Test != "" && (e.Action == ActionPass || e.Action == ActionFail || e.Action == ActionSkip)
}

// Parser decodes a test event stream
type Parser interface {
	Parse(r io.Reader) ([]Event, error)
}
