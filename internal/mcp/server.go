package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	rdebug "runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/bcq/internal/config"
	"github.com/standardbeagle/bcq/internal/debug"
	"github.com/standardbeagle/bcq/internal/display"
	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/query"
	"github.com/standardbeagle/bcq/internal/querylang"
	"github.com/standardbeagle/bcq/internal/scan"
	"github.com/standardbeagle/bcq/internal/version"
	"github.com/standardbeagle/bcq/pkg/pathutil"
)

// Server exposes scanning, tree display and pattern queries as MCP tools.
// Scanned paths are cached so repeated queries against the same classes
// do not decode them again.
type Server struct {
	cfg    *config.Config
	server *mcp.Server
	engine query.Engine

	mu       sync.Mutex
	scanners map[string]*scan.Scanner
}

// ScanParams are the arguments of the scan tool
type ScanParams struct {
	Path    string `json:"path"`
	Refresh bool   `json:"refresh,omitempty"`
	Verbose bool   `json:"verbose,omitempty"`
}

// TreeParams are the arguments of the tree tool
type TreeParams struct {
	Path     string `json:"path"`
	Method   string `json:"method"`
	Format   string `json:"format,omitempty"`
	MaxDepth int    `json:"max_depth,omitempty"`
	Offsets  bool   `json:"offsets,omitempty"`
}

// QueryParams are the arguments of the query tool
type QueryParams struct {
	Path             string `json:"path"`
	Pattern          string `json:"pattern"`
	Method           string `json:"method,omitempty"`
	Format           string `json:"format,omitempty"`
	IncludeAnonymous *bool  `json:"include_anonymous,omitempty"`
}

// MatchParams are the arguments of the match tool
type MatchParams struct {
	Pattern    string   `json:"pattern"`
	Candidates []string `json:"candidates"`
}

// NewServer creates an MCP server for cfg
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	s := &Server{
		cfg: cfg,
		engine: query.NewGreedyEngine(query.Options{
			MaxVisits: cfg.Performance.MaxVisits,
			Timeout:   time.Duration(cfg.Performance.QueryTimeoutMs) * time.Millisecond,
		}),
		scanners: make(map[string]*scan.Scanner),
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    "bcq-mcp-server",
		Version: version.Version,
	}, nil)
	s.registerTools()
	debug.LogMCP("MCP server initialized for %s\n", cfg.Project.Root)
	return s, nil
}

func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "scan",
		Description: "Decode every .class file and jar under a path and build instruction trees for each method. Reports built and failed methods. Later tree and query calls reuse the scan.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Directory, .class file or jar to scan (defaults to the project root)",
				},
				"refresh": {
					Type:        "boolean",
					Description: "Discard a cached scan of this path and scan it again",
				},
				"verbose": {
					Type:        "boolean",
					Description: "List every built method",
				},
			},
		},
	}, s.handleScan)

	s.server.AddTool(&mcp.Tool{
		Name:        "tree",
		Description: "Show the instruction tree of one method. Each node's children are the instructions that produced its operands.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Directory, .class file or jar containing the method",
				},
				"method": {
					Type:        "string",
					Description: "Method key as owner.name+descriptor, e.g. demo/A.run()V",
				},
				"format": {
					Type:        "string",
					Description: "text, compact or json",
				},
				"max_depth": {
					Type:        "integer",
					Description: "Maximum depth to display",
				},
				"offsets": {
					Type:        "boolean",
					Description: "Show bytecode offsets and stack arity",
				},
			},
			Required: []string{"method"},
		},
	}, s.handleTree)

	s.server.AddTool(&mcp.Tool{
		Name: "query",
		Description: "Run a KDL pattern chain against every scanned method and return the named captures. " +
			"Predicates: " + strings.Join(querylang.Kinds(), ", ") + ". " +
			`Example: method "println" capture="call" { child { constant "hello" capture="msg"; }; }`,
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "Directory, .class file or jar to search (defaults to the project root)",
				},
				"pattern": {
					Type:        "string",
					Description: "KDL query chain, one predicate node per chain element",
				},
				"method": {
					Type:        "string",
					Description: "Restrict the search to one method key",
				},
				"format": {
					Type:        "string",
					Description: "text, compact or json",
				},
				"include_anonymous": {
					Type:        "boolean",
					Description: "Show captures of unnamed predicates",
				},
			},
			Required: []string{"pattern"},
		},
	}, s.handleQuery)

	s.server.AddTool(&mcp.Tool{
		Name:        "match",
		Description: "Test candidates against a name pattern. Patterns compare literally unless they start with an operator and '>': *>contains, ^>starts with, $>ends with, !>not equal, ->does not contain, ~>full regular expression.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"pattern": {
					Type:        "string",
					Description: "String matcher pattern",
				},
				"candidates": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "Names to test",
				},
			},
			Required: []string{"pattern", "candidates"},
		},
	}, s.handleMatch)
}

// scanner returns the cached scanner for path, scanning it first if needed
func (s *Server) scanner(ctx context.Context, path string, refresh bool) (*scan.Scanner, *scan.Report, error) {
	if path == "" {
		path = s.cfg.Project.Root
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sc, ok := s.scanners[abs]; ok && !refresh {
		return sc, nil, nil
	}

	sc := scan.New(scan.OptionsFromConfig(s.cfg))
	rep, err := sc.ScanPath(ctx, abs)
	if err != nil {
		return nil, nil, err
	}
	s.scanners[abs] = sc
	debug.LogMCP("scanned %s: %d classes, %d methods\n", abs, rep.Classes, len(rep.Built))
	return sc, rep, nil
}

// recoverFromPanic turns a handler panic or error into an error result
func (s *Server) recoverFromPanic(operation string, handler func() (*mcp.CallToolResult, error)) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			debug.LogMCP("PANIC RECOVERED in %s: %v\n%s", operation, r, rdebug.Stack())
			result, err = errorResult(operation, fmt.Errorf("internal error: %v", r)), nil
		}
	}()

	result, err = handler()
	if err != nil {
		debug.LogMCP("Error in %s: %v\n", operation, err)
		return errorResult(operation, err), nil
	}
	return result, nil
}

func decodeArgs(req *mcp.CallToolRequest, v interface{}) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}
	return nil
}

func (s *Server) handleScan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("scan", func() (*mcp.CallToolResult, error) {
		var params ScanParams
		if err := decodeArgs(req, &params); err != nil {
			return nil, err
		}
		sc, rep, err := s.scanner(ctx, params.Path, params.Refresh)
		if err != nil {
			return nil, err
		}
		if rep == nil {
			return textResult(fmt.Sprintf("Already scanned: %d classes, %d methods (pass refresh to rescan)\n",
				sc.Pool().Len(), len(sc.Forests()))), nil
		}
		return textResult(display.FormatReport(pathutil.ToRelativeReport(rep, s.cfg.Project.Root), params.Verbose)), nil
	})
}

func (s *Server) handleTree(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("tree", func() (*mcp.CallToolResult, error) {
		var params TreeParams
		if err := decodeArgs(req, &params); err != nil {
			return nil, err
		}
		if params.Method == "" {
			return nil, fmt.Errorf("method is required")
		}
		sc, _, err := s.scanner(ctx, params.Path, false)
		if err != nil {
			return nil, err
		}
		f, ok := sc.Forest(params.Method)
		if !ok {
			return nil, fmt.Errorf("method %s not found or failed to build", params.Method)
		}
		tf := display.NewTreeFormatter(display.FormatterOptions{
			Format:      s.format(params.Format),
			ShowOffsets: params.Offsets,
			ShowArity:   params.Offsets,
			MaxDepth:    params.MaxDepth,
			Indent:      s.indent(),
		})
		return textResult(tf.Format(f)), nil
	})
}

func (s *Server) handleQuery(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("query", func() (*mcp.CallToolResult, error) {
		var params QueryParams
		if err := decodeArgs(req, &params); err != nil {
			return nil, err
		}
		if strings.TrimSpace(params.Pattern) == "" {
			return nil, fmt.Errorf("pattern is required")
		}
		chain, err := querylang.ParseWithDistance(params.Pattern, s.cfg.Query.DefaultDistance)
		if err != nil {
			return nil, err
		}
		sc, _, err := s.scanner(ctx, params.Path, false)
		if err != nil {
			return nil, err
		}

		var matches []display.MethodMatch
		var budgetErr error
		if params.Method != "" {
			f, ok := sc.Forest(params.Method)
			if !ok {
				return nil, fmt.Errorf("method %s not found or failed to build", params.Method)
			}
			res, err := s.engine.Walk(ctx, f, chain...)
			if err != nil && !errors.Is(err, bcqerrors.ErrBudgetExceeded) {
				return nil, err
			}
			budgetErr = err
			if res.Matched() {
				matches = append(matches, display.MethodMatch{Method: f.Method(), Result: res})
			}
		} else {
			results, err := sc.Query(ctx, s.engine, chain...)
			if err != nil && !errors.Is(err, bcqerrors.ErrBudgetExceeded) {
				return nil, err
			}
			budgetErr = err
			matches = display.FromScan(results)
		}

		anon := s.cfg.Query.IncludeAnonymous
		if params.IncludeAnonymous != nil {
			anon = *params.IncludeAnonymous
		}
		rf := display.NewResultFormatter(display.FormatterOptions{
			Format: s.format(params.Format),
			Indent: s.indent(),
		}, anon)
		text := rf.Format(matches)
		if budgetErr != nil {
			text += "\nWarning: " + budgetErr.Error() + "\n"
		}
		return textResult(text), nil
	})
}

func (s *Server) handleMatch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.recoverFromPanic("match", func() (*mcp.CallToolResult, error) {
		var params MatchParams
		if err := decodeArgs(req, &params); err != nil {
			return nil, err
		}
		out, err := MatchAll(params.Pattern, params.Candidates)
		if err != nil {
			return nil, err
		}
		data, err := json.MarshalIndent(out, "", s.indent())
		if err != nil {
			return nil, err
		}
		return textResult(string(data)), nil
	})
}

func (s *Server) format(requested string) string {
	if requested != "" {
		return requested
	}
	return s.cfg.Output.Format
}

func (s *Server) indent() string {
	n := s.cfg.Output.Indent
	if n <= 0 {
		n = 2
	}
	return strings.Repeat(" ", n)
}

// Start serves over stdio until ctx is cancelled or the client disconnects
func (s *Server) Start(ctx context.Context) error {
	debug.LogMCP("Starting MCP server with stdio transport\n")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetHandlerForTesting returns a tool handler by name
func (s *Server) GetHandlerForTesting(toolName string) func(context.Context, *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	switch toolName {
	case "scan":
		return s.handleScan
	case "tree":
		return s.handleTree
	case "query":
		return s.handleQuery
	case "match":
		return s.handleMatch
	default:
		return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return errorResult(toolName, fmt.Errorf("unknown tool: %s", toolName)), nil
		}
	}
}
