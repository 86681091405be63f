// Package pathutil converts the absolute paths the scanner records into
// paths relative to the project root for display.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/standardbeagle/bcq/internal/scan"
)

// ToRelative converts an absolute path to relative based on a root directory.
// Paths outside the root, already relative paths and empty inputs are
// returned unchanged. Archive entry sources such as /p/lib/a.jar!demo/A.class
// keep their entry suffix.
//
// Examples:
//   - ToRelative("/p/classes/demo/A.class", "/p") → "classes/demo/A.class"
//   - ToRelative("/p/lib/a.jar!demo/A.class", "/p") → "lib/a.jar!demo/A.class"
//   - ToRelative("/other/B.class", "/p") → "/other/B.class"
func ToRelative(absPath, rootDir string) string {
	if absPath == "" || rootDir == "" {
		return absPath
	}
	if !filepath.IsAbs(absPath) {
		return absPath
	}

	file, entry := absPath, ""
	if i := strings.Index(absPath, "!"); i >= 0 {
		file, entry = absPath[:i], absPath[i:]
	}

	file = filepath.Clean(file)
	rootDir = filepath.Clean(rootDir)

	relPath, err := filepath.Rel(rootDir, file)
	if err != nil {
		// e.g. different drives on Windows
		return absPath
	}

	// outside the root the absolute path is clearer
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return absPath
	}

	return relPath + entry
}

// ToRelativeReport returns a copy of rep whose failure sources are relative
// to rootDir. The original report is not modified.
func ToRelativeReport(rep *scan.Report, rootDir string) *scan.Report {
	if rep == nil {
		return nil
	}
	converted := *rep
	if len(rep.Failed) == 0 {
		return &converted
	}

	converted.Failed = make([]scan.Failure, len(rep.Failed))
	copy(converted.Failed, rep.Failed)
	for i := range converted.Failed {
		converted.Failed[i].Source = ToRelative(converted.Failed[i].Source, rootDir)
	}
	return &converted
}
