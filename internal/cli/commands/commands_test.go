package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autograde/internal/cli"
	"autograde/internal/config"
	"autograde/internal/discovery"
	"autograde/internal/execution"
	"autograde/internal/report"
	"autograde/internal/storage"
)

const manifest = `groups:
  - name: TestZip
    max_score: 40
    tests:
      - name: simple
        score: -40
  - name: TestMissing
    tests:
      - name: one
        score: 5
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func testProject(t *testing.T) (*config.Config, []string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "grading.yaml"), manifest)
	writeFile(t, filepath.Join(dir, "seqlib", "zip_test.go"), "package seqlib\n\nimport \"testing\"\n\nfunc TestZip(t *testing.T) {}\n")
	writeFile(t, filepath.Join(dir, "mathlib", "sum_test.go"), "package mathlib\n\nimport \"testing\"\n\nfunc TestSum(t *testing.T) {}\n")

	cfg := config.New()
	cfg.ProjectPath = dir
	return cfg, []string{filepath.Join(dir, "mathlib"), filepath.Join(dir, "seqlib")}
}

func TestLoadRegistry(t *testing.T) {
	cfg, _ := testProject(t)

	registry, err := loadRegistry(cfg, true)
	require.NoError(t, err)
	assert.True(t, registry.HasGroup("TestZip"))

	cfg.ManifestPath = "missing.yaml"
	_, err = loadRegistry(cfg, true)
	assert.Error(t, err)

	registry, err = loadRegistry(cfg, false)
	require.NoError(t, err)
	assert.Empty(t, registry.Groups())
}

func TestCheckCommand_UndefinedGroups(t *testing.T) {
	cfg, dirs := testProject(t)
	registry, err := loadRegistry(cfg, true)
	require.NoError(t, err)

	cc := NewCheckCommand(cfg, discovery.NewScanner(cfg.PathsToIgnore), discovery.NewParser())
	missing, err := cc.undefinedGroups(dirs, registry.Groups())
	require.NoError(t, err)
	assert.Equal(t, []string{"TestMissing"}, missing)
}

func TestRunCommand_FailedPackages(t *testing.T) {
	cfg, dirs := testProject(t)
	st := storage.NewJSONStorage(cfg)

	rc := NewRunCommand(cfg, nil, nil, discovery.NewParser(), nil, st)

	_, err := rc.failedPackages(dirs)
	assert.Error(t, err, "no previous report")

	require.NoError(t, st.Save(report.Report{
		Score:    0,
		MaxScore: 40,
		TestGroups: []report.GroupRecord{
			{Name: "TestZip", Score: 0, MaxScore: 40, Tests: []report.TestRecord{
				{Name: "simple", Score: -40, MaxScore: -40},
			}},
			{Name: "mathlib", Score: 0, MaxScore: 0, Tests: []report.TestRecord{
				{Name: "TestSum", Score: 0, MaxScore: 0},
			}},
		},
	}))

	kept, err := rc.failedPackages(dirs)
	require.NoError(t, err)
	assert.Equal(t, []string{dirs[1]}, kept)
}

func TestFlags_ToConfigFlags(t *testing.T) {
	flags := cli.Flags{Processors: 3, NameFilter: "seq*", Gradebook: true, Submission: "alice", TestCases: true}
	cf := flags.ToConfigFlags()
	assert.Equal(t, 3, cf.Processors)
	assert.Equal(t, "seq*", cf.NameFilter)
	assert.True(t, cf.Gradebook)
	assert.Equal(t, "alice", cf.Submission)
	assert.True(t, cf.TestCases)
}

func TestRunCommand_ReportStorage(t *testing.T) {
	cfg, _ := testProject(t)
	rc := NewRunCommand(cfg, nil, nil, discovery.NewParser(), nil, storage.NewJSONStorage(cfg))

	st, partial := rc.reportStorage()
	assert.False(t, partial)
	assert.Equal(t, cfg.GetOutputPath(), st.Path())

	cfg.ApplyFlags(config.Flags{OnlyFailed: true})
	st, partial = rc.reportStorage()
	assert.True(t, partial)
	assert.Equal(t, cfg.GetPartialOutputPath(), st.Path())
	assert.NotEqual(t, cfg.GetOutputPath(), st.Path())
}

func TestPackageNameMatchesFailedSelection(t *testing.T) {
	cfg, dirs := testProject(t)
	st := storage.NewJSONStorage(cfg)
	rc := NewRunCommand(cfg, nil, nil, discovery.NewParser(), nil, st)

	// top-level tests that are not group runners report under the package group
	group := execution.PackageName(dirs[0])
	require.NoError(t, st.Save(report.Report{
		TestGroups: []report.GroupRecord{
			{Name: group, Score: 0, MaxScore: 5, Tests: []report.TestRecord{
				{Name: "TestSum", Score: 0, MaxScore: 5},
			}},
		},
	}))

	kept, err := rc.failedPackages(dirs)
	require.NoError(t, err)
	assert.Equal(t, []string{dirs[0]}, kept)
}
