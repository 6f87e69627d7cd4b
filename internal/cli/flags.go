package cli

import (
	"time"

	"autograde/internal/config"
)

// Flags holds command-line flags
type Flags struct {
	ConfigFile   string
	Processors   int
	TestPath     string
	NameFilter   string
	ManifestPath string
	NoBuffer     bool
	Timeout      time.Duration
	LogLevel     string
	Gradebook    bool
	Submission   string
	TestCases    bool
	OnlyFailed   bool
	OpenViewer   bool
}

// ToConfigFlags converts CLI flags to config flags
func (f *Flags) ToConfigFlags() config.Flags {
	return config.Flags{
		Processors:   f.Processors,
		TestPath:     f.TestPath,
		NameFilter:   f.NameFilter,
		ManifestPath: f.ManifestPath,
		NoBuffer:     f.NoBuffer,
		Timeout:      f.Timeout,
		LogLevel:     f.LogLevel,
		Gradebook:    f.Gradebook,
		Submission:   f.Submission,
		TestCases:    f.TestCases,
		OnlyFailed:   f.OnlyFailed,
		OpenViewer:   f.OpenViewer,
	}
}
