package debug

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := mcpMode.Load()
	originalOutput := debugOutput
	originalFile := debugFile
	return func() {
		EnableDebug = originalDebug
		mcpMode.Store(originalMode)
		debugOutput = originalOutput
		debugFile = originalFile
	}
}

// TestIsDebugEnabled tests the build flag and env override.
func TestIsDebugEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	SetMCPMode(false)
	assert.False(t, IsDebugEnabled())

	EnableDebug = "true"
	assert.True(t, IsDebugEnabled())

	EnableDebug = "invalid"
	assert.False(t, IsDebugEnabled())

	t.Setenv("DEBUG", "1")
	assert.True(t, IsDebugEnabled())

	SetMCPMode(true)
	assert.False(t, IsDebugEnabled())
}

// TestLog tests component-tagged output.
func TestLog(t *testing.T) {
	defer saveAndRestoreState()()

	var buf bytes.Buffer
	SetDebugOutput(&buf)
	EnableDebug = "true"
	SetMCPMode(false)

	Log("TEST", "Hello %s", "World")
	LogBuild("built %d roots\n", 3)
	LogQuery("visited %d\n", 7)
	LogScan("scan done\n")

	output := buf.String()
	assert.Contains(t, output, "[DEBUG:TEST] Hello World")
	assert.Contains(t, output, "[DEBUG:BUILD] built 3 roots")
	assert.Contains(t, output, "[DEBUG:QUERY] visited 7")
	assert.Contains(t, output, "[DEBUG:SCAN] scan done")
}

// TestLog_Disabled tests that nothing is written when disabled or in MCP mode.
func TestLog_Disabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetDebugOutput(&buf)

	EnableDebug = "false"
	Printf("hidden")
	Log("X", "hidden")

	EnableDebug = "true"
	SetMCPMode(true)
	LogMCP("hidden")

	assert.Empty(t, buf.String())
}

// TestLog_NoWriter tests that logging without a writer is a no-op.
func TestLog_NoWriter(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "true"
	SetMCPMode(false)
	SetDebugOutput(nil)

	assert.NotPanics(t, func() {
		Printf("nothing %d", 1)
		Log("X", "nothing")
	})
}

// TestMCPModeConcurrent toggles MCP mode while other goroutines log.
func TestMCPModeConcurrent(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "true"
	SetDebugOutput(io.Discard)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func(on bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				SetMCPMode(on)
			}
		}(i%2 == 0)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = IsDebugEnabled()
				LogScan("tick %d\n", j)
			}
		}()
	}
	wg.Wait()

	SetMCPMode(true)
	assert.False(t, IsDebugEnabled())
}

// TestInitDebugLogFile tests file-backed debug output.
func TestInitDebugLogFile(t *testing.T) {
	defer saveAndRestoreState()()
	EnableDebug = "true"
	SetMCPMode(false)

	path, err := InitDebugLogFile()
	require.NoError(t, err)
	defer os.Remove(path)

	assert.True(t, strings.HasSuffix(path, ".log"))
	Log("FILE", "written")
	require.NoError(t, CloseDebugLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG:FILE] written")

	// closing twice is harmless
	assert.NoError(t, CloseDebugLog())
}
