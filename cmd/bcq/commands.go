package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/bcq/internal/config"
	"github.com/standardbeagle/bcq/internal/debug"
	"github.com/standardbeagle/bcq/internal/display"
	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/matcher"
	"github.com/standardbeagle/bcq/internal/mcp"
	"github.com/standardbeagle/bcq/internal/metrics"
	"github.com/standardbeagle/bcq/internal/query"
	"github.com/standardbeagle/bcq/internal/querylang"
	"github.com/standardbeagle/bcq/internal/scan"
	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/version"
	"github.com/standardbeagle/bcq/pkg/pathutil"
)

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "pattern",
			Aliases: []string{"e"},
			Usage:   `KDL query chain, e.g. 'method "println" capture="call"'`,
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "Read the query chain from a .kdl file",
		},
		&cli.StringSliceFlag{
			Name:  "method",
			Usage: "Only search these method keys (owner.name+descriptor)",
		},
	}
}

func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func newEngine(cfg *config.Config) query.Engine {
	return query.NewGreedyEngine(query.Options{
		MaxVisits: cfg.Performance.MaxVisits,
		Timeout:   time.Duration(cfg.Performance.QueryTimeoutMs) * time.Millisecond,
	})
}

func formatterOptions(cfg *config.Config) display.FormatterOptions {
	return display.FormatterOptions{
		Format: cfg.Output.Format,
		Indent: strings.Repeat(" ", cfg.Output.Indent),
	}
}

// scanPaths scans every path into one scanner; no paths means the project root
func scanPaths(ctx context.Context, cfg *config.Config, paths []string) (*scan.Scanner, *scan.Report, error) {
	if len(paths) == 0 {
		paths = []string{cfg.Project.Root}
	}
	sc := scan.New(scan.OptionsFromConfig(cfg))
	total := &scan.Report{}
	for _, p := range paths {
		rep, err := sc.ScanPath(ctx, p)
		if err != nil {
			return nil, nil, err
		}
		total.Merge(rep)
	}
	return sc, total, nil
}

// loadChain reads the query chain from --pattern or --file
func loadChain(c *cli.Context, cfg *config.Config) ([]*query.Query, error) {
	pattern, file := c.String("pattern"), c.String("file")
	switch {
	case pattern != "" && file != "":
		return nil, errors.New("use either --pattern or --file, not both")
	case pattern != "":
		return querylang.ParseWithDistance(pattern, cfg.Query.DefaultDistance)
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read query file: %w", err)
		}
		return querylang.ParseWithDistance(string(data), cfg.Query.DefaultDistance)
	}
	return nil, nil
}

func scanCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	sc, rep, err := scanPaths(ctx, cfg, c.Args().Slice())
	if err != nil {
		return cli.Exit(fmt.Sprintf("scan failed: %v", err), 1)
	}

	var stats *metrics.ForestStats
	if c.Bool("stats") {
		stats = metrics.Calculate(sc.Forests())
	}

	if cfg.Output.Format == "json" {
		out := reportJSON(rep)
		if stats != nil {
			out["stats"] = stats.FormatAsJSON(c.Int("top-ops"))
		}
		if err := writeJSON(c, cfg, out); err != nil {
			return err
		}
	} else {
		fmt.Fprint(c.App.Writer, display.FormatReport(pathutil.ToRelativeReport(rep, cfg.Project.Root), c.Bool("verbose")))
		if stats != nil {
			fmt.Fprintf(c.App.Writer, "\n%s", stats.FormatAsText(c.Int("top-ops")))
		}
	}

	if c.Bool("strict") && !rep.OK() {
		return cli.Exit(fmt.Sprintf("%d classes or methods failed", len(rep.Failed)), 1)
	}
	return nil
}

type failureJSON struct {
	Source string `json:"source"`
	Method string `json:"method,omitempty"`
	Error  string `json:"error"`
}

func reportJSON(rep *scan.Report) map[string]interface{} {
	failed := make([]failureJSON, 0, len(rep.Failed))
	for _, f := range rep.Failed {
		failed = append(failed, failureJSON{Source: f.Source, Method: f.Method, Error: f.Err.Error()})
	}
	built := rep.Built
	if built == nil {
		built = []string{}
	}
	return map[string]interface{}{
		"classes":    rep.Classes,
		"duplicates": rep.Duplicates,
		"skipped":    rep.Skipped,
		"built":      built,
		"failed":     failed,
		"elapsed_ms": float64(rep.Elapsed.Microseconds()) / 1000.0,
		"version":    version.FullInfo(),
	}
}

func writeJSON(c *cli.Context, cfg *config.Config, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", strings.Repeat(" ", cfg.Output.Indent))
	return enc.Encode(v)
}

func treeCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: bcq tree <path> [method-key...]", 2)
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(c)
	defer cancel()

	sc, rep, err := scanPaths(ctx, cfg, c.Args().Slice()[:1])
	if err != nil {
		return cli.Exit(fmt.Sprintf("scan failed: %v", err), 1)
	}

	var forests []*tree.Forest
	if keys := c.Args().Slice()[1:]; len(keys) > 0 {
		for _, key := range keys {
			f, ok := sc.Forest(key)
			if !ok {
				return cli.Exit(missingMethod(rep, key), 1)
			}
			forests = append(forests, f)
		}
	} else {
		forests = sc.Forests()
	}

	opts := formatterOptions(cfg)
	opts.MaxDepth = c.Int("max-depth")
	opts.ShowOffsets = c.Bool("offsets")
	opts.ShowArity = c.Bool("offsets")

	if opts.Format == "json" {
		out := make([]*display.ForestJSON, 0, len(forests))
		for _, f := range forests {
			out = append(out, display.NewForestJSON(f, opts.MaxDepth))
		}
		return writeJSON(c, cfg, out)
	}

	tf := display.NewTreeFormatter(opts)
	for i, f := range forests {
		if i > 0 {
			fmt.Fprintln(c.App.Writer)
		}
		fmt.Fprint(c.App.Writer, tf.Format(f))
		if opts.Format == "compact" {
			fmt.Fprintln(c.App.Writer)
		}
	}
	return nil
}

// missingMethod explains why a method key has no tree
func missingMethod(rep *scan.Report, key string) string {
	for _, f := range rep.Failed {
		if f.Method == key {
			return fmt.Sprintf("method %s failed to build: %v", key, f.Err)
		}
	}
	return fmt.Sprintf("method %s not found", key)
}

func queryCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	chain, err := loadChain(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	if len(chain) == 0 {
		return cli.Exit("a query is required (--pattern or --file)", 2)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	sc, _, err := scanPaths(ctx, cfg, c.Args().Slice())
	if err != nil {
		return cli.Exit(fmt.Sprintf("scan failed: %v", err), 1)
	}
	return runQuery(ctx, c, cfg, sc, chain)
}

// runQuery searches sc and prints the matches. Budget overruns are reported
// as warnings alongside whatever matched.
func runQuery(ctx context.Context, c *cli.Context, cfg *config.Config, sc *scan.Scanner, chain []*query.Query) error {
	eng := newEngine(cfg)
	start := time.Now()

	var (
		matches []display.MethodMatch
		warn    error
	)
	if keys := c.StringSlice("method"); len(keys) > 0 {
		var errs []error
		for _, key := range keys {
			f, ok := sc.Forest(key)
			if !ok {
				return cli.Exit(fmt.Sprintf("method %s not found", key), 1)
			}
			res, err := eng.Walk(ctx, f, chain...)
			if err != nil {
				if !errors.Is(err, bcqerrors.ErrBudgetExceeded) {
					return cli.Exit(err.Error(), 1)
				}
				errs = append(errs, err)
			}
			if res.Matched() {
				matches = append(matches, display.MethodMatch{Method: key, Result: res})
			}
		}
		warn = bcqerrors.NewMultiError(errs).ErrorOrNil()
	} else {
		results, err := sc.Query(ctx, eng, chain...)
		if err != nil && !errors.Is(err, bcqerrors.ErrBudgetExceeded) {
			return cli.Exit(err.Error(), 1)
		}
		warn = err
		matches = display.FromScan(results)
	}
	debug.LogQuery("query matched %d methods in %v\n", len(matches), time.Since(start))

	rf := display.NewResultFormatter(formatterOptions(cfg), cfg.Query.IncludeAnonymous)
	out := rf.Format(matches)
	fmt.Fprint(c.App.Writer, out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(c.App.Writer)
	}
	if warn != nil {
		fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", warn)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	chain, err := loadChain(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	root := cfg.Project.Root
	if c.NArg() > 0 {
		root = c.Args().First()
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return err
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return cli.Exit(fmt.Sprintf("watch needs a directory: %s", root), 2)
	}

	ctx, cancel := signalContext(c)
	defer cancel()

	sc, rep, err := scanPaths(ctx, cfg, []string{root})
	if err != nil {
		return cli.Exit(fmt.Sprintf("scan failed: %v", err), 1)
	}
	fmt.Fprint(c.App.Writer, display.FormatReport(pathutil.ToRelativeReport(rep, root), false))
	if len(chain) > 0 {
		if err := runQuery(ctx, c, cfg, sc, chain); err != nil {
			return err
		}
	}

	w, err := scan.NewWatcher(sc, root, time.Duration(cfg.Performance.WatchDebounceMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	w.OnReport(func(rep *scan.Report) {
		fmt.Fprint(c.App.Writer, display.FormatReport(pathutil.ToRelativeReport(rep, root), false))
		if len(chain) > 0 {
			if err := runQuery(ctx, c, cfg, sc, chain); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "Query failed: %v\n", err)
			}
		}
	})
	w.OnError(func(err error) {
		fmt.Fprintf(c.App.ErrWriter, "Watch error: %v\n", err)
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(c.App.ErrWriter, "Watching %s (Ctrl-C to stop)\n", root)

	<-ctx.Done()
	return w.Stop()
}

func matchCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("usage: bcq match <pattern> <candidate...>", 2)
	}
	m, err := matcher.Compile(c.Args().First())
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	candidates := c.Args().Slice()[1:]
	results := make([]mcp.MatchResult, 0, len(candidates))
	matched := false
	for _, cand := range candidates {
		ok := m.Match(cand)
		matched = matched || ok
		results = append(results, mcp.MatchResult{Candidate: cand, Matched: ok})
	}

	if c.String("format") == "json" {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			mark := "-"
			if r.Matched {
				mark = "match"
			}
			fmt.Fprintf(c.App.Writer, "%-6s%s\n", mark, r.Candidate)
		}
	}

	if !matched {
		return cli.Exit("", 1)
	}
	return nil
}

func mcpCommand(c *cli.Context) error {
	// stdout carries the protocol; keep debug output off it
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	server, err := mcp.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := signalContext(c)
	defer cancel()
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server error: %w", err)
	}
	return nil
}
