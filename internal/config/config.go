package config

import (
	"os"
	"runtime"
)

const (
	// ConfigFileName is looked up in the home directory and the project root
	ConfigFileName = ".bcq.kdl"

	DefaultMaxClassSize    = 16 * 1024 * 1024
	DefaultQueryTimeoutMs  = 5000
	DefaultMaxVisits       = 1_000_000
	DefaultWatchDebounceMs = 300
	DefaultDistance        = 10
)

type Config struct {
	Version     int
	Project     Project
	Scan        Scan
	Performance Performance
	Query       Query
	Output      Output
}

type Project struct {
	Root string
	Name string
}

type Scan struct {
	Include        []string // doublestar globs; empty means every class
	Exclude        []string
	MaxClassSize   int64 // class files and archive entries above this are skipped
	FollowSymlinks bool
	SkipTests      bool // exclude Maven/Gradle test output directories
	LineNumbers    bool // decode LineNumberTable into line markers
}

type Performance struct {
	Workers         int // 0 = auto-detect (NumCPU-1)
	QueryTimeoutMs  int // 0 disables the deadline
	MaxVisits       int // node visits per query; negative is unlimited
	WatchDebounceMs int
}

type Query struct {
	DefaultDistance  int  // hop bound for query nodes without dist=
	IncludeAnonymous bool // keep positional captures in rendered results
}

type Output struct {
	Format string // "text", "json" or "compact"
	Indent int
}

// Default returns the configuration used when no .bcq.kdl is present
func Default() *Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return &Config{
		Version: 1,
		Project: Project{Root: cwd},
		Scan: Scan{
			Include:      []string{},
			MaxClassSize: DefaultMaxClassSize,
			Exclude: []string{
				"**/.git/**",
				"**/node_modules/**",
				"**/META-INF/versions/**",
				"**/module-info.class",
			},
		},
		Performance: Performance{
			Workers:         max(1, runtime.NumCPU()-1),
			QueryTimeoutMs:  DefaultQueryTimeoutMs,
			MaxVisits:       DefaultMaxVisits,
			WatchDebounceMs: DefaultWatchDebounceMs,
		},
		Query: Query{
			DefaultDistance: DefaultDistance,
		},
		Output: Output{
			Format: "text",
			Indent: 2,
		},
	}
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

// LoadWithRoot merges ~/.bcq.kdl with the project's .bcq.kdl under rootDir.
// Project settings win; exclusions from both files are kept.
func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	} else if path != "" {
		searchDir = path
	}

	var baseConfig *Config
	if homeDir, err := os.UserHomeDir(); err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	projectConfig, err := LoadKDL(searchDir)
	if err != nil {
		return nil, err
	}

	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = searchDir
		cfg = baseConfig
	default:
		cfg = Default()
		cfg.Project.Root = searchDir
	}

	if cfg.Scan.SkipTests {
		cfg.EnrichExclusionsWithTestOutputs()
	}
	return cfg, nil
}

// mergeConfigs overlays project on base. Exclusions are unioned, and base
// inclusions apply only when the project names none.
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Scan.Exclude) > 0 {
		merged.Scan.Exclude = DeduplicatePatterns(append(append([]string{}, base.Scan.Exclude...), project.Scan.Exclude...))
	}
	if len(project.Scan.Include) == 0 && len(base.Scan.Include) > 0 {
		merged.Scan.Include = base.Scan.Include
	}
	return &merged
}

// EnrichExclusionsWithTestOutputs excludes the test class directories of
// Maven and Gradle builds found under the project root
func (c *Config) EnrichExclusionsWithTestOutputs() {
	if c.Project.Root == "" {
		return
	}
	detected := NewBuildOutputDetector(c.Project.Root).TestOutputPatterns()
	if len(detected) > 0 {
		c.Scan.Exclude = DeduplicatePatterns(append(c.Scan.Exclude, detected...))
	}
}
