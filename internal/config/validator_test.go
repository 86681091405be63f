package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
)

func TestValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{Project: Project{Root: "/test/root"}}

	require.NoError(t, NewValidator().ValidateAndSetDefaults(cfg))

	assert.GreaterOrEqual(t, cfg.Performance.Workers, 1)
	assert.Equal(t, DefaultMaxVisits, cfg.Performance.MaxVisits)
	assert.Equal(t, DefaultWatchDebounceMs, cfg.Performance.WatchDebounceMs)
	assert.Equal(t, DefaultDistance, cfg.Query.DefaultDistance)
	assert.Equal(t, int64(DefaultMaxClassSize), cfg.Scan.MaxClassSize)
	assert.Equal(t, "text", cfg.Output.Format)
}

func TestValidateDefaultConfig(t *testing.T) {
	assert.NoError(t, ValidateConfig(Default()))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		section string
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }, "project"},
		{"negative class size", func(c *Config) { c.Scan.MaxClassSize = -1 }, "scan"},
		{"bad glob", func(c *Config) { c.Scan.Exclude = []string{"[unclosed"} }, "scan"},
		{"negative workers", func(c *Config) { c.Performance.Workers = -2 }, "performance"},
		{"negative timeout", func(c *Config) { c.Performance.QueryTimeoutMs = -1 }, "performance"},
		{"negative distance", func(c *Config) { c.Query.DefaultDistance = -1 }, "query"},
		{"unknown format", func(c *Config) { c.Output.Format = "xml" }, "output"},
		{"huge indent", func(c *Config) { c.Output.Indent = 99 }, "output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)
			var ce *bcqerrors.ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.section, ce.Field)
		})
	}
}

func TestNegativeMaxVisitsIsUnlimited(t *testing.T) {
	cfg := Default()
	cfg.Performance.MaxVisits = -1
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, -1, cfg.Performance.MaxVisits)
}
