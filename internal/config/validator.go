package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/bmatcuk/doublestar/v4"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// The returned error is a *errors.ConfigError naming the failing section.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return bcqerrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateScanConfig(&cfg.Scan); err != nil {
		return bcqerrors.NewConfigError("scan", "", err)
	}

	if err := v.validatePerformanceConfig(&cfg.Performance); err != nil {
		return bcqerrors.NewConfigError("performance", "", err)
	}

	if err := v.validateQueryConfig(&cfg.Query); err != nil {
		return bcqerrors.NewConfigError("query", "", err)
	}

	if err := v.validateOutputConfig(&cfg.Output); err != nil {
		return bcqerrors.NewConfigError("output", cfg.Output.Format, err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

func (v *Validator) validateScanConfig(scan *Scan) error {
	if scan.MaxClassSize < 0 {
		return fmt.Errorf("MaxClassSize cannot be negative, got %d", scan.MaxClassSize)
	}
	for _, patterns := range [][]string{scan.Include, scan.Exclude} {
		for _, p := range patterns {
			if !doublestar.ValidatePattern(p) {
				return fmt.Errorf("invalid glob pattern %q", p)
			}
		}
	}
	return nil
}

func (v *Validator) validatePerformanceConfig(perf *Performance) error {
	// Workers: 0 means auto-detect (set by smart defaults)
	if perf.Workers < 0 {
		return fmt.Errorf("Workers cannot be negative, got %d", perf.Workers)
	}
	if perf.QueryTimeoutMs < 0 {
		return fmt.Errorf("QueryTimeoutMs cannot be negative, got %d", perf.QueryTimeoutMs)
	}
	if perf.WatchDebounceMs < 0 {
		return fmt.Errorf("WatchDebounceMs cannot be negative, got %d", perf.WatchDebounceMs)
	}
	return nil
}

func (v *Validator) validateQueryConfig(q *Query) error {
	if q.DefaultDistance < 0 {
		return fmt.Errorf("DefaultDistance cannot be negative, got %d", q.DefaultDistance)
	}
	return nil
}

func (v *Validator) validateOutputConfig(out *Output) error {
	switch out.Format {
	case "", "text", "json", "compact":
	default:
		return fmt.Errorf("unknown output format %q, want text, json or compact", out.Format)
	}
	if out.Indent < 0 || out.Indent > 16 {
		return fmt.Errorf("Indent must be between 0 and 16, got %d", out.Indent)
	}
	return nil
}

// setSmartDefaults fills zero values based on system capabilities
func (v *Validator) setSmartDefaults(cfg *Config) {
	// cores-1 leaves headroom for the system, minimum of 1
	if cfg.Performance.Workers == 0 {
		cfg.Performance.Workers = max(1, runtime.NumCPU()-1)
	}
	if cfg.Performance.MaxVisits == 0 {
		cfg.Performance.MaxVisits = DefaultMaxVisits
	}
	if cfg.Performance.WatchDebounceMs == 0 {
		cfg.Performance.WatchDebounceMs = DefaultWatchDebounceMs
	}
	if cfg.Query.DefaultDistance == 0 {
		cfg.Query.DefaultDistance = DefaultDistance
	}
	if cfg.Scan.MaxClassSize == 0 {
		cfg.Scan.MaxClassSize = DefaultMaxClassSize
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
