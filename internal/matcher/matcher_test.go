package matcher

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
)

// TestMatches tests every operator form.
func TestMatches(t *testing.T) {
	tests := []struct {
		pattern   string
		candidate string
		want      bool
	}{
		{"*>foo", "xxfooyy", true},
		{"*>foo", "xxfoyy", false},
		{"$>foo", "barfoo", true},
		{"$>foo", "foobar", false},
		{"^>foo", "foobar", true},
		{"^>foo", "barfoo", false},
		{"!>foo", "bar", true},
		{"!>foo", "foo", false},
		{"->foo", "barbaz", true},
		{"->foo", "foobaz", false},
		{"~>fo+", "foo", true},
		{"~>fo+", "xfoo", false},
		{"~>fo+", "foox", false},
		{"~>a|b", "b", true},
		{"plainstring", "plainstring", true},
		{"plainstring", "other", false},
		{"x", "x", true},
		{"", "", true},
		{">", ">", true},
		{"?>foo", "?>foo", true},
		{"?>foo", "foo", false},
		{"*>", "anything", true},
		{"^>init", "<init>", false},
		{"*>init", "<init>", true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.pattern, tt.candidate), func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.candidate))
		})
	}
}

// TestCompileInvalidRegex tests that a broken expression fails at construction.
func TestCompileInvalidRegex(t *testing.T) {
	m, err := Compile("~>(unclosed")
	assert.Nil(t, m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bcqerrors.ErrInvalidPattern))
	assert.Contains(t, err.Error(), "(unclosed")

	assert.False(t, Matches("~>(unclosed", "(unclosed"))
	assert.Panics(t, func() { MustCompile("~>[") })
}

// TestCompileOperator tests operator selection.
func TestCompileOperator(t *testing.T) {
	assert.Equal(t, Contains, MustCompile("*>a").Operator())
	assert.Equal(t, Regex, MustCompile("~>a").Operator())
	assert.Equal(t, Equals, MustCompile("a>b").Operator())
	assert.Equal(t, "starts-with", MustCompile("^>x").Operator().String())
	assert.Equal(t, "^>x", MustCompile("^>x").Pattern())
}

// TestCacheLRU tests eviction and hit accounting.
func TestCacheLRU(t *testing.T) {
	c := NewCache(2)

	_, err := c.Get("a+")
	require.NoError(t, err)
	_, err = c.Get("b+")
	require.NoError(t, err)
	_, err = c.Get("a+")
	require.NoError(t, err)
	_, err = c.Get("c+")
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)

	// b+ was least recently used and is gone
	_, _ = c.Get("b+")
	assert.Equal(t, int64(4), c.Stats().Misses)

	_, err = c.Get("(")
	assert.Error(t, err)
	_, err = c.Get("(")
	assert.Error(t, err, "cached failures stay failures")
}

// TestMatcherConcurrent tests shared use across goroutines.
func TestMatcherConcurrent(t *testing.T) {
	m := MustCompile("~>get[A-Z].*")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.True(t, m.Match("getName"))
				assert.False(t, m.Match("setName"))
			}
		}()
	}
	wg.Wait()
}
