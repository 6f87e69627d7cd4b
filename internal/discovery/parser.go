package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// A Go test function: Test, or Test followed by a non-lowercase rune, taking *testing.T
var testFuncPattern = regexp.MustCompile(`(?m)^func\s+(Test(?:[^a-z\s(]\w*)?)\s*\(\s*\w+\s+\*testing\.T\s*\)`)

// Parser extracts top-level test functions from a package directory
type Parser struct{}

// NewParser creates a new Parser
func NewParser() *Parser {
	return &Parser{}
}

// FindTestCases returns the top-level test functions declared in the *_test.go
// files of dir, in file name order and then source order.
func (p *Parser) FindTestCases(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading package %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && isTestFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]bool) // Use map to avoid duplicates
	var testCases []string
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("error reading file %s: %w", name, err)
		}
		for _, match := range testFuncPattern.FindAllStringSubmatch(string(content), -1) {
			if !seen[match[1]] {
				seen[match[1]] = true
				testCases = append(testCases, match[1])
			}
		}
	}
	return testCases, nil
}
