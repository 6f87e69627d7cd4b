package annotation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a manifest file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Manifest is the on-disk form of a set of score declarations.
type Manifest struct {
	Groups []ManifestGroup `yaml:"groups" toml:"groups"`
}

// ManifestGroup declares one test group
type ManifestGroup struct {
	Name     string         `yaml:"name" toml:"name"`
	MaxScore *int           `yaml:"max_score,omitempty" toml:"max_score,omitempty"`
	Tests    []ManifestTest `yaml:"tests" toml:"tests"`
}

// ManifestTest declares one test method
type ManifestTest struct {
	Name       string   `yaml:"name" toml:"name"`
	Score      *int     `yaml:"score,omitempty" toml:"score,omitempty"`
	SortBy     string   `yaml:"sort_by,omitempty" toml:"sort_by,omitempty"`
	Visibility string   `yaml:"visibility,omitempty" toml:"visibility,omitempty"`
	Tags       []string `yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// FormatFromPath picks the manifest format from the file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unsupported manifest extension for %s (expected .yaml, .yml or .toml)", path)
}

// LoadManifest reads a manifest file and builds a validated Registry from it
func LoadManifest(path string) (*Registry, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, format)
}

// ParseManifest decodes manifest data and builds a validated Registry from it
func ParseManifest(data []byte, format Format) (*Registry, error) {
	var m Manifest
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse yaml manifest: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse toml manifest: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}
	return m.Registry()
}

// Registry declares every test and group of the manifest.
// Tests go first and the group maximum last, so a positive score in a
// subtractive group is caught the same way whatever the file order.
func (m *Manifest) Registry() (*Registry, error) {
	reg := NewRegistry()
	for _, g := range m.Groups {
		for _, t := range g.Tests {
			var opts []TestOption
			if t.Score != nil {
				opts = append(opts, WithScore(*t.Score))
			}
			if t.SortBy != "" {
				opts = append(opts, WithSortKey(t.SortBy))
			}
			if t.Visibility != "" {
				opts = append(opts, WithVisibility(Visibility(t.Visibility)))
			}
			if len(t.Tags) > 0 {
				opts = append(opts, WithTags(t.Tags...))
			}
			if err := reg.DeclareTest(g.Name, t.Name, opts...); err != nil {
				return nil, err
			}
		}
		if g.MaxScore != nil {
			if err := reg.DeclareGroupMax(g.Name, *g.MaxScore); err != nil {
				return nil, err
			}
		} else if len(g.Tests) == 0 {
			reg.entry(g.Name)
		}
	}
	return reg, nil
}
