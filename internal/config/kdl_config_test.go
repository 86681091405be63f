package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKDL_Defaults(t *testing.T) {
	cfg, err := parseKDL("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 1, cfg.Version)
	assert.Empty(t, cfg.Project.Root)
	assert.Equal(t, int64(DefaultMaxClassSize), cfg.Scan.MaxClassSize)
	assert.Contains(t, cfg.Scan.Exclude, "**/module-info.class")
	assert.Equal(t, DefaultMaxVisits, cfg.Performance.MaxVisits)
	assert.Equal(t, DefaultDistance, cfg.Query.DefaultDistance)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestParseKDL_AllSections(t *testing.T) {
	content := `
version 1
project {
    root "src"
    name "demo"
}
scan {
    include "com/acme/**"
    exclude {
        "**/generated/**"
    }
    max_class_size "2MB"
    follow_symlinks true
    skip_tests true
    line_numbers true
}
performance {
    workers 3
    query_timeout_ms 250
    max_visits -1
    watch_debounce_ms 50
}
query {
    default_distance 8
    include_anonymous true
}
output {
    format "json"
    indent 4
}
`
	cfg, err := parseKDL(content)
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.Project.Root)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, []string{"com/acme/**"}, cfg.Scan.Include)
	assert.Equal(t, []string{"**/generated/**"}, cfg.Scan.Exclude, "exclude block replaces defaults")
	assert.Equal(t, int64(2*1024*1024), cfg.Scan.MaxClassSize)
	assert.True(t, cfg.Scan.FollowSymlinks)
	assert.True(t, cfg.Scan.SkipTests)
	assert.True(t, cfg.Scan.LineNumbers)
	assert.Equal(t, Performance{Workers: 3, QueryTimeoutMs: 250, MaxVisits: -1, WatchDebounceMs: 50}, cfg.Performance)
	assert.Equal(t, Query{DefaultDistance: 8, IncludeAnonymous: true}, cfg.Query)
	assert.Equal(t, Output{Format: "json", Indent: 4}, cfg.Output)
}

func TestParseKDL_TopLevelPatterns(t *testing.T) {
	cfg, err := parseKDL(`
include "a/**" "b/**"
exclude "**/Test*.class"
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/**", "b/**"}, cfg.Scan.Include)
	assert.Equal(t, []string{"**/Test*.class"}, cfg.Scan.Exclude)
}

func TestParseKDL_Errors(t *testing.T) {
	_, err := parseKDL(`
scan {
    max_class_size "lots"
}
`)
	assert.Error(t, err)

	_, err = parseKDL(`project {`)
	assert.Error(t, err)
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"512B", 512},
		{"4KB", 4096},
		{"10mb", 10 * 1024 * 1024},
		{"1GB", 1024 * 1024 * 1024},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseSize("MB")
	assert.Error(t, err)
}

func TestLoadKDL_MissingFile(t *testing.T) {
	cfg, err := LoadKDL(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadKDL_ResolvesRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("project {\n    root \"classes\"\n}\n"), 0644))

	cfg, err := LoadKDL(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "classes"), cfg.Project.Root)

	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, ConfigFileName), []byte("project {\n    name \"x\"\n}\n"), 0644))
	cfg, err = LoadKDL(other)
	require.NoError(t, err)
	assert.Equal(t, other, cfg.Project.Root)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.kdl")
	require.NoError(t, os.WriteFile(path, []byte("output {\n    format \"json\"\n}\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Project.Root)
	assert.Equal(t, "json", cfg.Output.Format)

	_, err = LoadFile(filepath.Join(dir, "missing.kdl"))
	assert.Error(t, err)
}

func TestMergeConfigs(t *testing.T) {
	base := &Config{Scan: Scan{
		Include: []string{"com/**"},
		Exclude: []string{"**/a/**", "**/b/**"},
	}}
	project := &Config{
		Project: Project{Name: "p"},
		Scan:    Scan{Exclude: []string{"**/b/**", "**/c/**"}},
	}

	merged := mergeConfigs(base, project)
	assert.Equal(t, []string{"**/a/**", "**/b/**", "**/c/**"}, merged.Scan.Exclude)
	assert.Equal(t, []string{"com/**"}, merged.Scan.Include, "base inclusions apply when project has none")
	assert.Equal(t, "p", merged.Project.Name)

	project.Scan.Include = []string{"org/**"}
	assert.Equal(t, []string{"org/**"}, mergeConfigs(base, project).Scan.Include)
}

func TestLoadWithRoot(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, os.WriteFile(filepath.Join(home, ConfigFileName), []byte(`
exclude {
    "**/shaded/**"
}
performance {
    workers 2
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, ConfigFileName), []byte(`
project {
    name "demo"
}
scan {
    exclude "**/gen/**"
    skip_tests true
}
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(project, "pom.xml"), []byte("<project/>"), 0644))

	cfg, err := LoadWithRoot("", project)
	require.NoError(t, err)
	assert.Equal(t, "demo", cfg.Project.Name)
	assert.Equal(t, project, cfg.Project.Root)
	assert.Contains(t, cfg.Scan.Exclude, "**/shaded/**")
	assert.Contains(t, cfg.Scan.Exclude, "**/gen/**")
	assert.Contains(t, cfg.Scan.Exclude, "**/target/test-classes/**")
}

func TestLoadWithRoot_NoFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	project := t.TempDir()

	cfg, err := LoadWithRoot("", project)
	require.NoError(t, err)
	assert.Equal(t, project, cfg.Project.Root)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestBuildOutputDetector(t *testing.T) {
	dir := t.TempDir()
	d := NewBuildOutputDetector(dir)
	assert.Empty(t, d.BuildTools())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.gradle.kts"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build.sbt"), nil, 0644))
	assert.Equal(t, []string{"gradle", "sbt"}, d.BuildTools())
	assert.Equal(t, []string{
		"**/build/classes/*/test/**",
		"**/build/classes/*/testFixtures/**",
		"**/target/scala-*/test-classes/**",
	}, d.TestOutputPatterns())
}
