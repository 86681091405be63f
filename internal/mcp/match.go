package mcp

import (
	"github.com/standardbeagle/bcq/internal/matcher"
)

// MatchResult is one candidate tested by the match tool
type MatchResult struct {
	Candidate string `json:"candidate"`
	Matched   bool   `json:"matched"`
}

// MatchAll tests every candidate against pattern. The pattern is compiled
// once; a broken regular expression is an error rather than a miss.
func MatchAll(pattern string, candidates []string) ([]MatchResult, error) {
	m, err := matcher.Compile(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]MatchResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, MatchResult{Candidate: c, Matched: m.Match(c)})
	}
	return out, nil
}
