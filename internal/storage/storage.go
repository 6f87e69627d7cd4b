package storage

import (
	"autograde/internal/config"
	"autograde/internal/report"
)

// Storage persists and loads the grade report (e.g. for the report viewer).
type Storage interface {
	Save(rep report.Report) error
	Load() (*report.Report, error)
}

// JSONStorage stores the report in a JSON file under the configured output path.
type JSONStorage struct {
	cfg  *config.Config
	path string
}

// NewJSONStorage returns a Storage that reads/writes the config's output JSON path.
func NewJSONStorage(cfg *config.Config) *JSONStorage {
	return &JSONStorage{cfg: cfg}
}

// NewJSONFileStorage returns a Storage bound to one file instead of the config's output path.
func NewJSONFileStorage(path string) *JSONStorage {
	return &JSONStorage{path: path}
}

// Path returns the file the report is written to
func (s *JSONStorage) Path() string {
	if s.path != "" {
		return s.path
	}
	return s.cfg.GetOutputPath()
}
