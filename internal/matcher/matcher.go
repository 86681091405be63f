// Package matcher implements the small pattern language used for names and
// descriptors in queries.
//
// A pattern whose second character is '>' selects an operator with its first
// character and applies it to the rest of the pattern:
//
//	*>foo   contains "foo"
//	$>foo   ends with "foo"
//	!>foo   is not "foo"
//	^>foo   starts with "foo"
//	~>fo+   matches the regular expression fo+ in full
//	->foo   does not contain "foo"
//
// Anything else is compared literally against the whole candidate.
package matcher

import (
	"strings"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
)

// Operator is the comparison selected by a pattern prefix
type Operator byte

const (
	Equals      Operator = 0
	Contains    Operator = '*'
	EndsWith    Operator = '$'
	NotEquals   Operator = '!'
	StartsWith  Operator = '^'
	Regex       Operator = '~'
	NotContains Operator = '-'
)

// ModeMarker is the second character that turns a pattern into an operator form
const ModeMarker = '>'

func (o Operator) String() string {
	switch o {
	case Contains:
		return "contains"
	case EndsWith:
		return "ends-with"
	case NotEquals:
		return "not-equals"
	case StartsWith:
		return "starts-with"
	case Regex:
		return "regex"
	case NotContains:
		return "not-contains"
	}
	return "equals"
}

// Matcher is a compiled pattern
type Matcher struct {
	pattern string
	op      Operator
	operand string
	cache   *Cache
}

// Compile parses pattern. A regular expression operand is compiled here, so a
// broken expression is reported now rather than on first use.
func Compile(pattern string) (*Matcher, error) {
	return compileWith(pattern, defaultCache)
}

// MustCompile is Compile that panics on error
func MustCompile(pattern string) *Matcher {
	m, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func compileWith(pattern string, cache *Cache) (*Matcher, error) {
	m := &Matcher{pattern: pattern, op: Equals, operand: pattern, cache: cache}
	if len(pattern) >= 2 && pattern[1] == ModeMarker {
		switch op := Operator(pattern[0]); op {
		case Contains, EndsWith, NotEquals, StartsWith, Regex, NotContains:
			m.op = op
			m.operand = pattern[2:]
		}
	}
	if m.op == Regex {
		if _, err := cache.Get(m.operand); err != nil {
			return nil, bcqerrors.NewInvalidPatternError(pattern, err)
		}
	}
	return m, nil
}

// Pattern returns the source pattern
func (m *Matcher) Pattern() string { return m.pattern }

// Operator returns the selected comparison
func (m *Matcher) Operator() Operator { return m.op }

// Match reports whether candidate satisfies the pattern
func (m *Matcher) Match(candidate string) bool {
	switch m.op {
	case Contains:
		return strings.Contains(candidate, m.operand)
	case EndsWith:
		return strings.HasSuffix(candidate, m.operand)
	case NotEquals:
		return candidate != m.operand
	case StartsWith:
		return strings.HasPrefix(candidate, m.operand)
	case Regex:
		re, err := m.cache.Get(m.operand)
		return err == nil && re.MatchString(candidate)
	case NotContains:
		return !strings.Contains(candidate, m.operand)
	}
	return candidate == m.pattern
}

func (m *Matcher) String() string {
	return m.pattern
}

// Matches compiles pattern and tests candidate. An invalid pattern matches
// nothing; use Compile to see the error.
func Matches(pattern, candidate string) bool {
	m, err := Compile(pattern)
	if err != nil {
		return false
	}
	return m.Match(candidate)
}
