package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bcq/internal/config"
)

func configInitCommand(c *cli.Context) error {
	output := c.String("output")
	if !c.Bool("force") {
		if _, err := os.Stat(output); err == nil {
			return cli.Exit(fmt.Sprintf("configuration file %s already exists (use --force to overwrite)", output), 1)
		}
	}

	cfg := config.Default()
	cfg.Project.Root = "."
	if err := os.WriteFile(output, []byte(configToKDL(cfg)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Configuration file created: %s\n", output)
	fmt.Fprintf(c.App.Writer, "\nCommon customizations:\n")
	fmt.Fprintf(c.App.Writer, "  - Limit the scan to your packages: include { \"com/acme/**\" }\n")
	fmt.Fprintf(c.App.Writer, "  - Skip test classes of Maven and Gradle builds: skip_tests true\n")
	fmt.Fprintf(c.App.Writer, "  - Raise the query budget: performance { max_visits 5000000 }\n")
	return nil
}

func configShowCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, configToKDL(cfg))
	return nil
}

func configValidateCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Configuration validation failed: %v", err), 1)
	}

	var warnings []string
	if cfg.Performance.Workers > runtime.NumCPU()*2 {
		warnings = append(warnings, fmt.Sprintf("workers (%d) is more than twice the CPU count", cfg.Performance.Workers))
	}
	if cfg.Performance.MaxVisits < 0 && cfg.Performance.QueryTimeoutMs == 0 {
		warnings = append(warnings, "queries have neither a visit budget nor a timeout")
	}
	if cfg.Query.DefaultDistance > 100 {
		warnings = append(warnings, "default_distance above 100 makes near searches expensive")
	}
	if _, err := os.Stat(cfg.Project.Root); err != nil {
		warnings = append(warnings, fmt.Sprintf("project root %s does not exist", cfg.Project.Root))
	}

	fmt.Fprintf(c.App.Writer, "Configuration is valid\n")
	fmt.Fprintf(c.App.Writer, "Root: %s\n", cfg.Project.Root)
	fmt.Fprintf(c.App.Writer, "Settings: %d workers, %d max visits, %dms timeout, distance %d\n",
		cfg.Performance.Workers, cfg.Performance.MaxVisits, cfg.Performance.QueryTimeoutMs, cfg.Query.DefaultDistance)
	if len(warnings) > 0 {
		fmt.Fprintf(c.App.Writer, "\nWarnings:\n")
		for _, warning := range warnings {
			fmt.Fprintf(c.App.Writer, "  - %s\n", warning)
		}
	}
	return nil
}

// configToKDL renders cfg in the layout LoadKDL reads
func configToKDL(cfg *config.Config) string {
	return fmt.Sprintf(`// bcq configuration

version %d

project {
    root %q
    name %q
}

scan {
    %s
    %s
    max_class_size %d
    follow_symlinks %t
    skip_tests %t
    line_numbers %t
}

performance {
    workers %d
    query_timeout_ms %d
    max_visits %d
    watch_debounce_ms %d
}

query {
    default_distance %d
    include_anonymous %t
}

output {
    format %q
    indent %d
}
`,
		cfg.Version,
		cfg.Project.Root,
		cfg.Project.Name,
		formatKDLStringArray("include", cfg.Scan.Include),
		formatKDLStringArray("exclude", cfg.Scan.Exclude),
		cfg.Scan.MaxClassSize,
		cfg.Scan.FollowSymlinks,
		cfg.Scan.SkipTests,
		cfg.Scan.LineNumbers,
		cfg.Performance.Workers,
		cfg.Performance.QueryTimeoutMs,
		cfg.Performance.MaxVisits,
		cfg.Performance.WatchDebounceMs,
		cfg.Query.DefaultDistance,
		cfg.Query.IncludeAnonymous,
		cfg.Output.Format,
		cfg.Output.Indent,
	)
}

func formatKDLStringArray(section string, items []string) string {
	if len(items) == 0 {
		return section + " {\n        // No items\n    }"
	}

	var b strings.Builder
	b.WriteString(section + " {\n")
	for _, item := range items {
		b.WriteString(fmt.Sprintf("        %q\n", item))
	}
	b.WriteString("    }")
	return b.String()
}
