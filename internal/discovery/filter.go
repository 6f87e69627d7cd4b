package discovery

import (
	"path/filepath"
	"strings"
)

// Filter narrows packages and test names by a wildcard pattern
type Filter struct{}

// NewFilter creates a new Filter
func NewFilter() *Filter {
	return &Filter{}
}

// FilterByName keeps the package directories whose base name matches pattern.
// Supports patterns like "seq*" or "*lib*"; a pattern without wildcards matches
// as a substring.
func (f *Filter) FilterByName(dirs []string, pattern string) []string {
	if pattern == "" {
		return dirs
	}

	var filtered []string
	for _, dir := range dirs {
		if Match(filepath.Base(dir), pattern) {
			filtered = append(filtered, dir)
		}
	}
	return filtered
}

// FilterTests keeps the test names matching pattern
func (f *Filter) FilterTests(names []string, pattern string) []string {
	if pattern == "" {
		return names
	}

	var filtered []string
	for _, name := range names {
		if Match(name, pattern) {
			filtered = append(filtered, name)
		}
	}
	return filtered
}

// Match reports whether name matches pattern
func Match(name, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.Contains(name, pattern)
	}

	if matched, err := filepath.Match(pattern, name); err == nil && matched {
		return true
	}

	// "*Zip*" style: every literal part must appear, in order
	if !strings.Contains(pattern, "*") {
		return false
	}
	rest := name
	literal := false
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			continue
		}
		literal = true
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return literal
}
