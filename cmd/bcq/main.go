package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bcq/internal/config"
	"github.com/standardbeagle/bcq/internal/debug"
	"github.com/standardbeagle/bcq/internal/version"
)

var Version = version.Version

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath := c.String("config"); configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.LoadWithRoot("", c.String("root"))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Scan.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Scan.Exclude = append(cfg.Scan.Exclude, excludeFlags...)
	}
	if c.IsSet("workers") {
		cfg.Performance.Workers = c.Int("workers")
	}
	if c.IsSet("timeout") {
		cfg.Performance.QueryTimeoutMs = c.Int("timeout")
	}
	if c.IsSet("max-visits") {
		cfg.Performance.MaxVisits = c.Int("max-visits")
	}
	if c.IsSet("line-numbers") {
		cfg.Scan.LineNumbers = c.Bool("line-numbers")
	}
	if c.IsSet("include-anonymous") {
		cfg.Query.IncludeAnonymous = c.Bool("include-anonymous")
	}
	if c.IsSet("format") {
		cfg.Output.Format = c.String("format")
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:                   "bcq",
		Usage:                  "Rebuild JVM bytecode into instruction trees and search them with patterns",
		Version:                Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (default: .bcq.kdl under --root, merged with ~/.bcq.kdl)",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root holding class files (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Only scan classes matching glob patterns (e.g., --include 'com/acme/**')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Skip classes matching glob patterns (e.g., --exclude '**/generated/**')",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Parallel class decoders",
			},
			&cli.IntFlag{
				Name:  "timeout",
				Usage: "Per-method query timeout in milliseconds (0 = none)",
			},
			&cli.IntFlag{
				Name:  "max-visits",
				Usage: "Per-method query node visit budget (negative = unlimited)",
			},
			&cli.BoolFlag{
				Name:  "line-numbers",
				Usage: "Decode LineNumberTable entries as line instructions",
			},
			&cli.BoolFlag{
				Name:  "include-anonymous",
				Usage: "Show captures of unnamed predicates",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, compact or json",
			},
			&cli.BoolFlag{
				Name:  "debug-log",
				Usage: "Write debug output to a log file under the temp directory",
			},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool("debug-log") {
				return nil
			}
			path, err := debug.InitDebugLogFile()
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintf(c.App.ErrWriter, "Debug log: %s\n", path)
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			{
				Name:      "scan",
				Aliases:   []string{"s"},
				Usage:     "Decode classes and report which methods build into trees",
				ArgsUsage: "[path...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "List every built method",
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Exit non-zero when any class or method fails",
					},
					&cli.BoolFlag{
						Name:  "stats",
						Usage: "Summarize tree sizes, depths and opcode frequencies",
					},
					&cli.IntFlag{
						Name:  "top-ops",
						Usage: "Opcodes listed by --stats (0 = all)",
						Value: 10,
					},
				},
				Action: scanCommand,
			},
			{
				Name:      "tree",
				Aliases:   []string{"t"},
				Usage:     "Print the instruction trees of methods",
				ArgsUsage: "<path> [method-key...]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max-depth",
						Aliases: []string{"d"},
						Usage:   "Maximum depth to display (0 = unlimited)",
					},
					&cli.BoolFlag{
						Name:  "offsets",
						Usage: "Show bytecode offsets and stack arity",
					},
				},
				Action: treeCommand,
			},
			{
				Name:      "query",
				Aliases:   []string{"q"},
				Usage:     "Search method trees with a KDL pattern chain",
				ArgsUsage: "[path...]",
				Flags:     queryFlags(),
				Action:    queryCommand,
			},
			{
				Name:      "watch",
				Usage:     "Rescan classes as they change, optionally re-running a query",
				ArgsUsage: "[path]",
				Flags:     queryFlags(),
				Action:    watchCommand,
			},
			{
				Name:      "match",
				Aliases:   []string{"m"},
				Usage:     "Test names against a matcher pattern",
				ArgsUsage: "<pattern> <candidate...>",
				Action:    matchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Serve scan, tree, query and match as MCP tools over stdio",
				Action: mcpCommand,
			},
			{
				Name:  "config",
				Usage: "Configuration management",
				Subcommands: []*cli.Command{
					{
						Name:  "init",
						Usage: "Write a .bcq.kdl with default settings",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:    "output",
								Aliases: []string{"o"},
								Usage:   "File to write",
								Value:   config.ConfigFileName,
							},
							&cli.BoolFlag{
								Name:  "force",
								Usage: "Overwrite an existing file",
							},
						},
						Action: configInitCommand,
					},
					{
						Name:   "show",
						Usage:  "Print the effective configuration as KDL",
						Action: configShowCommand,
					},
					{
						Name:   "validate",
						Usage:  "Check the configuration for errors",
						Action: configValidateCommand,
					},
				},
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
