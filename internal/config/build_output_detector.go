// Build output detection from JVM build files
// Finds where Maven, Gradle, sbt and IntelliJ put compiled test classes
package config

import (
	"os"
	"path/filepath"
)

// BuildOutputDetector finds JVM build output directories under a project root
type BuildOutputDetector struct {
	projectRoot string
}

// NewBuildOutputDetector creates a detector rooted at projectRoot
func NewBuildOutputDetector(projectRoot string) *BuildOutputDetector {
	return &BuildOutputDetector{projectRoot: projectRoot}
}

func (d *BuildOutputDetector) exists(names ...string) bool {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(d.projectRoot, name)); err == nil {
			return true
		}
	}
	return false
}

// BuildTools names the build systems whose marker files are present
func (d *BuildOutputDetector) BuildTools() []string {
	var tools []string
	if d.exists("pom.xml") {
		tools = append(tools, "maven")
	}
	if d.exists("build.gradle", "build.gradle.kts", "settings.gradle", "settings.gradle.kts") {
		tools = append(tools, "gradle")
	}
	if d.exists("build.sbt") {
		tools = append(tools, "sbt")
	}
	if d.exists(".idea") {
		tools = append(tools, "intellij")
	}
	return tools
}

// TestOutputPatterns returns exclusion globs for compiled test classes
func (d *BuildOutputDetector) TestOutputPatterns() []string {
	var patterns []string
	for _, tool := range d.BuildTools() {
		switch tool {
		case "maven":
			patterns = append(patterns, "**/target/test-classes/**")
		case "gradle":
			patterns = append(patterns, "**/build/classes/*/test/**", "**/build/classes/*/testFixtures/**")
		case "sbt":
			patterns = append(patterns, "**/target/scala-*/test-classes/**")
		case "intellij":
			patterns = append(patterns, "**/out/test/**")
		}
	}
	return patterns
}

// DeduplicatePatterns removes duplicate patterns, keeping first occurrence order
func DeduplicatePatterns(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		if !seen[pattern] {
			seen[pattern] = true
			result = append(result, pattern)
		}
	}

	return result
}
