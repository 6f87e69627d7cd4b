package annotation

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"autograde/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_DeclareTest(t *testing.T) {
	reg := NewRegistry()

	require.NoError(t, reg.DeclareTest("TestZip", "empty", WithScore(-5), WithSortKey("01")))
	require.NoError(t, reg.DeclareTest("TestZip", "helper"))
	require.NoError(t, reg.DeclareTest("TestZip", "empty", WithTags("basic", "edge"), WithVisibility(VisibilityHidden)))

	spec, ok := reg.Test("TestZip", "empty")
	require.True(t, ok)
	require.NotNil(t, spec.Score)
	assert.Equal(t, -5, *spec.Score)
	assert.Equal(t, "01", spec.SortKey)
	assert.Equal(t, VisibilityHidden, spec.Visibility)
	assert.Equal(t, []string{"basic", "edge"}, spec.Tags)

	assert.Nil(t, reg.TestScore("TestZip", "helper"), "undecorated test is ungraded")
	assert.Nil(t, reg.TestScore("TestZip", "missing"))
	assert.Nil(t, reg.GroupMaxScore("TestZip"))

	var names []string
	for _, s := range reg.Tests("TestZip") {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"empty", "helper"}, names, "redeclaration keeps the original position")
}

func TestRegistry_DeclareGroupMax(t *testing.T) {
	t.Run("non-positive scores accepted", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.DeclareTest("TestZip", "empty", WithScore(-5)))
		require.NoError(t, reg.DeclareTest("TestZip", "zero", WithScore(0)))
		require.NoError(t, reg.DeclareGroupMax("TestZip", 40))

		maxScore := reg.GroupMaxScore("TestZip")
		require.NotNil(t, maxScore)
		assert.Equal(t, 40, *maxScore)
	})

	t.Run("positive score already declared", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.DeclareTest("TestZip", "bonus", WithScore(5)))

		err := reg.DeclareGroupMax("TestZip", 40)
		var valErr *domain.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.Equal(t, "bonus", valErr.Test)
		assert.Nil(t, reg.GroupMaxScore("TestZip"), "rejected declaration must not be applied")
	})

	t.Run("positive score declared afterwards", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.DeclareGroupMax("TestZip", 40))

		err := reg.DeclareTest("TestZip", "bonus", WithScore(5))
		var valErr *domain.ValidationError
		require.True(t, errors.As(err, &valErr))
		assert.Nil(t, reg.TestScore("TestZip", "bonus"))
	})

	t.Run("conflicting redeclaration", func(t *testing.T) {
		reg := NewRegistry()
		require.NoError(t, reg.DeclareGroupMax("TestZip", 40))
		require.NoError(t, reg.DeclareGroupMax("TestZip", 40))

		err := reg.DeclareGroupMax("TestZip", 60)
		var valErr *domain.ValidationError
		assert.True(t, errors.As(err, &valErr))
	})
}

func TestRegistry_InvalidVisibility(t *testing.T) {
	reg := NewRegistry()
	err := reg.DeclareTest("TestZip", "empty", WithVisibility("secret"))

	var valErr *domain.ValidationError
	require.True(t, errors.As(err, &valErr))
	_, ok := reg.Test("TestZip", "empty")
	assert.False(t, ok)
}

func TestRegistry_Groups(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.DeclareTest("TestZip", "empty", WithScore(-5)))
	require.NoError(t, reg.DeclareGroupMax("TestZip", 40))
	require.NoError(t, reg.DeclareTest("TestSum", "simple", WithScore(10)))

	groups := reg.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "TestZip", groups[0].Name)
	assert.Equal(t, 40, *groups[0].MaxScore)
	assert.Equal(t, "TestSum", groups[1].Name)
	assert.Nil(t, groups[1].MaxScore)
	assert.True(t, reg.HasGroup("TestSum"))
	assert.False(t, reg.HasGroup("TestOther"))
}

const yamlManifest = `
groups:
  - name: TestZip
    max_score: 40
    tests:
      - name: empty
        score: -5
        sort_by: "01"
        tags: [basic]
      - name: simple
        score: -40
        visibility: hidden
  - name: TestSum
    tests:
      - name: small
        score: 10
      - name: helper
`

const tomlManifest = `
[[groups]]
name = "TestZip"
max_score = 40

[[groups.tests]]
name = "empty"
score = -5
sort_by = "01"
tags = ["basic"]

[[groups.tests]]
name = "simple"
score = -40
visibility = "hidden"

[[groups]]
name = "TestSum"

[[groups.tests]]
name = "small"
score = 10

[[groups.tests]]
name = "helper"
`

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{name: "yaml", data: yamlManifest, format: FormatYAML},
		{name: "toml", data: tomlManifest, format: FormatTOML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := ParseManifest([]byte(tt.data), tt.format)
			require.NoError(t, err)

			require.NotNil(t, reg.GroupMaxScore("TestZip"))
			assert.Equal(t, 40, *reg.GroupMaxScore("TestZip"))
			assert.Equal(t, -5, *reg.TestScore("TestZip", "empty"))

			simple, ok := reg.Test("TestZip", "simple")
			require.True(t, ok)
			assert.Equal(t, VisibilityHidden, simple.Visibility)

			assert.Nil(t, reg.GroupMaxScore("TestSum"))
			assert.Equal(t, 10, *reg.TestScore("TestSum", "small"))
			assert.Nil(t, reg.TestScore("TestSum", "helper"))
		})
	}
}

func TestParseManifest_PositiveScoreInSubtractiveGroup(t *testing.T) {
	data := `
groups:
  - name: TestZip
    max_score: 40
    tests:
      - name: bonus
        score: 5
`
	_, err := ParseManifest([]byte(data), FormatYAML)
	var valErr *domain.ValidationError
	assert.True(t, errors.As(err, &valErr))
}

func TestLoadManifest(t *testing.T) {
	tmpDir := t.TempDir()

	yamlPath := filepath.Join(tmpDir, "autograde.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlManifest), 0644))
	reg, err := LoadManifest(yamlPath)
	require.NoError(t, err)
	assert.True(t, reg.HasGroup("TestZip"))

	t.Run("unknown extension", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(tmpDir, "autograde.json"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadManifest(filepath.Join(tmpDir, "missing.yaml"))
		assert.Error(t, err)
	})
}
