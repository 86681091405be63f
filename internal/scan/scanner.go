// Package scan discovers class files under directories and inside jar or zip
// archives, decodes them into a class pool and builds the instruction forest
// of every method body. Failures are recorded per class or method and never
// stop the rest of the scan.
package scan

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/bcq/internal/classfile"
	"github.com/standardbeagle/bcq/internal/classpath"
	"github.com/standardbeagle/bcq/internal/config"
	"github.com/standardbeagle/bcq/internal/debug"
	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/opcodes"
	"github.com/standardbeagle/bcq/internal/tree"
	"github.com/standardbeagle/bcq/internal/types"
)

// Options control discovery and decoding
type Options struct {
	Include        []string
	Exclude        []string
	MaxClassSize   int64
	FollowSymlinks bool
	Workers        int
	LineNumbers    bool
	Table          *opcodes.Table
}

// OptionsFromConfig copies the scan and performance sections of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Include:        cfg.Scan.Include,
		Exclude:        cfg.Scan.Exclude,
		MaxClassSize:   cfg.Scan.MaxClassSize,
		FollowSymlinks: cfg.Scan.FollowSymlinks,
		Workers:        cfg.Performance.Workers,
		LineNumbers:    cfg.Scan.LineNumbers,
	}
}

// Failure is a class or method that could not be decoded or built. Method is
// empty when the whole class failed to decode.
type Failure struct {
	Source string
	Method string
	Err    error
}

func (f Failure) String() string {
	if f.Method == "" {
		return fmt.Sprintf("%s: %v", f.Source, f.Err)
	}
	return fmt.Sprintf("%s (%s): %v", f.Method, f.Source, f.Err)
}

// Report summarises one scan
type Report struct {
	Classes    int
	Duplicates int
	Skipped    int
	Built      []string // method keys, sorted
	Failed     []Failure
	Elapsed    time.Duration
}

// OK reports whether nothing failed
func (r *Report) OK() bool { return len(r.Failed) == 0 }

// Merge folds other into r
func (r *Report) Merge(other *Report) {
	r.Classes += other.Classes
	r.Duplicates += other.Duplicates
	r.Skipped += other.Skipped
	r.Built = append(r.Built, other.Built...)
	r.Failed = append(r.Failed, other.Failed...)
	r.Elapsed += other.Elapsed
	r.sort()
}

func (r *Report) sort() {
	sort.Strings(r.Built)
	sort.Slice(r.Failed, func(i, j int) bool {
		if r.Failed[i].Source != r.Failed[j].Source {
			return r.Failed[i].Source < r.Failed[j].Source
		}
		return r.Failed[i].Method < r.Failed[j].Method
	})
}

// Scanner owns the class pool and the forests built from it. It is safe for
// concurrent use; scans of different paths may overlap.
type Scanner struct {
	opts Options
	pool *classpath.Pool

	mu      sync.RWMutex
	seen    map[uint64][]string                // fingerprint -> files holding those bytes
	classes map[uint64]*decoded                // fingerprint -> class built from it
	sources map[string][]uint64                // file -> fingerprints read from it
	forests map[string]map[string]*tree.Forest // class -> method key -> forest
}

// New creates a scanner
func New(opts Options) *Scanner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Table == nil {
		opts.Table = opcodes.Default()
	}
	return &Scanner{
		opts:    opts,
		pool:    classpath.NewPool(),
		seen:    make(map[uint64][]string),
		classes: make(map[uint64]*decoded),
		sources: make(map[string][]uint64),
		forests: make(map[string]map[string]*tree.Forest),
	}
}

// Pool returns the class pool filled by scans
func (s *Scanner) Pool() *classpath.Pool { return s.pool }

// unit is one class file's bytes and where they came from
type unit struct {
	file   string // file on disk
	source string // file, or "archive!/entry"
	data   []byte
}

// ScanPath scans a directory tree, a .jar or .zip archive, or a single
// .class file. The error is non-nil only when path cannot be read at all or
// ctx ends; everything else lands in the report.
func (s *Scanner) ScanPath(ctx context.Context, path string) (*Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	if info.IsDir() {
		return s.run(ctx, func(emit func(unit) error, rep reporter) error {
			return s.walk(ctx, path, emit, rep)
		})
	}
	return s.ScanFiles(ctx, filepath.Dir(path), path)
}

// ScanFiles scans individual class files or archives. Patterns are matched
// against each path relative to root.
func (s *Scanner) ScanFiles(ctx context.Context, root string, paths ...string) (*Report, error) {
	return s.run(ctx, func(emit func(unit) error, rep reporter) error {
		for _, p := range paths {
			if err := s.file(root, p, emit, rep); err != nil {
				return err
			}
		}
		return nil
	})
}

// run drives discovery and processes each unit on a bounded worker group
func (s *Scanner) run(ctx context.Context, discover func(emit func(unit) error, rep reporter) error) (*Report, error) {
	start := time.Now()
	rep := &Report{}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	emit := func(u unit) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			part := s.process(u)
			mu.Lock()
			rep.Classes += part.Classes
			rep.Duplicates += part.Duplicates
			rep.Built = append(rep.Built, part.Built...)
			rep.Failed = append(rep.Failed, part.Failed...)
			mu.Unlock()
			return nil
		})
		return nil
	}

	discoverErr := discover(emit, &lockedReport{rep: rep, mu: &mu})
	if err := g.Wait(); err != nil && discoverErr == nil {
		discoverErr = err
	}
	rep.Elapsed = time.Since(start)
	rep.sort()
	debug.LogScan("scan: %d classes, %d methods built, %d failures, %d duplicates in %v\n",
		rep.Classes, len(rep.Built), len(rep.Failed), rep.Duplicates, rep.Elapsed)
	if discoverErr != nil {
		return rep, discoverErr
	}
	return rep, ctx.Err()
}

// reporter records what discovery skips or cannot read
type reporter interface {
	skip()
	fail(source string, err error)
}

// lockedReport lets discovery record skips and failures while workers run
type lockedReport struct {
	rep *Report
	mu  *sync.Mutex
}

func (l *lockedReport) skip() {
	l.mu.Lock()
	l.rep.Skipped++
	l.mu.Unlock()
}

func (l *lockedReport) fail(source string, err error) {
	l.mu.Lock()
	l.rep.Failed = append(l.rep.Failed, Failure{Source: source, Err: err})
	l.mu.Unlock()
}

func (s *Scanner) walk(ctx context.Context, root string, emit func(unit) error, rep reporter) error {
	visited := make(map[string]bool)
	var walkDir func(dir string) error
	walkDir = func(dir string) error {
		// symlink cycles are cut by real path
		if real, err := filepath.EvalSymlinks(dir); err == nil {
			if visited[real] {
				return nil
			}
			visited[real] = true
		}
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				rep.fail(path, err)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rel := relPath(root, path)
			if d.IsDir() {
				if path != dir && s.excluded(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				if !s.opts.FollowSymlinks {
					return nil
				}
				info, err := os.Stat(path)
				if err != nil {
					rep.fail(path, err)
					return nil
				}
				if info.IsDir() {
					return walkDir(path)
				}
			}
			return s.file(root, path, emit, rep)
		})
	}
	return walkDir(root)
}

func (s *Scanner) file(root, path string, emit func(unit) error, rep reporter) error {
	rel := relPath(root, path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".class":
		if s.excluded(rel) || !s.included(rel) {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			rep.fail(path, err)
			return nil
		}
		if s.tooBig(info.Size()) {
			debug.LogScan("skipping %s: %d bytes over limit\n", path, info.Size())
			rep.skip()
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			rep.fail(path, err)
			return nil
		}
		return emit(unit{file: path, source: path, data: data})
	case ".jar", ".zip":
		if s.excluded(rel) {
			return nil
		}
		return s.archive(path, emit, rep)
	}
	return nil
}

func (s *Scanner) archive(path string, emit func(unit) error, rep reporter) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		rep.fail(path, fmt.Errorf("open archive: %w", err))
		return nil
	}
	defer zr.Close()

	for _, f := range zr.File {
		name := f.Name
		if f.FileInfo().IsDir() || !strings.HasSuffix(name, ".class") {
			continue
		}
		if s.excluded(name) || !s.included(name) {
			continue
		}
		source := path + "!/" + name
		if s.tooBig(int64(f.UncompressedSize64)) {
			rep.skip()
			continue
		}
		data, err := readEntry(f)
		if err != nil {
			rep.fail(source, err)
			continue
		}
		if err := emit(unit{file: path, source: source, data: data}); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// process decodes one unit and builds its methods
func (s *Scanner) process(u unit) *Report {
	rep := &Report{}
	fp := xxhash.Sum64(u.data)

	s.mu.Lock()
	holders, dup := s.seen[fp]
	s.seen[fp] = appendUnique(holders, u.file)
	s.sources[u.file] = appendUnique(s.sources[u.file], fp)
	s.mu.Unlock()
	if dup {
		rep.Duplicates++
		return rep
	}

	class, err := classfile.DecodeWith(u.data, classfile.Options{LineNumbers: s.opts.LineNumbers, Table: s.opts.Table})
	if err != nil {
		var de *bcqerrors.DecodeError
		if errors.As(err, &de) {
			err = de.WithSource(u.source)
		}
		rep.Failed = append(rep.Failed, Failure{Source: u.source, Err: err})
		return rep
	}
	rep.Classes++

	built := make(map[string]*tree.Forest, len(class.Methods))
	for _, m := range class.Methods {
		if !m.HasCode() {
			continue
		}
		f, err := tree.Build(m, s.opts.Table)
		if err != nil {
			rep.Failed = append(rep.Failed, Failure{Source: u.source, Method: m.Key(), Err: err})
			continue
		}
		built[m.Key()] = f
		rep.Built = append(rep.Built, m.Key())
	}

	if s.pool.Add(class) {
		debug.LogScan("replaced class %s from %s\n", class.Name, u.source)
	}
	s.mu.Lock()
	s.forests[class.Name] = built
	s.classes[fp] = &decoded{class: class, forests: built}
	s.mu.Unlock()
	return rep
}

// decoded is one version of a class together with its built forests
type decoded struct {
	class   *types.Class
	forests map[string]*tree.Forest
}

// RemoveSource forgets file as a holder of the classes read from it, so a
// later scan of the same bytes is not treated as a duplicate. A class is
// dropped only when no other scanned file still holds it; if another version
// of the same class remains, that version is put back in place. It returns
// the dropped class names.
func (s *Scanner) RemoveSource(file string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := s.sources[file]
	delete(s.sources, file)

	var names []string
	for _, fp := range fps {
		if holders := removeString(s.seen[fp], file); len(holders) > 0 {
			s.seen[fp] = holders
			continue
		}
		delete(s.seen, fp)
		gone, ok := s.classes[fp]
		delete(s.classes, fp)
		if !ok {
			continue
		}
		name := gone.class.Name
		if other := s.otherVersion(name); other != nil {
			if s.pool.Add(other.class) {
				debug.LogScan("restored another version of %s\n", name)
			}
			s.forests[name] = other.forests
			continue
		}
		s.pool.Remove(name)
		delete(s.forests, name)
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// otherVersion returns a live version of the named class, if any. Callers
// hold s.mu.
func (s *Scanner) otherVersion(name string) *decoded {
	for _, d := range s.classes {
		if d.class.Name == name {
			return d
		}
	}
	return nil
}

func appendUnique[T comparable](list []T, v T) []T {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// Forest returns the forest of the method with the given key
func (s *Scanner) Forest(key string) (*tree.Forest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, byMethod := range s.forests {
		if f, ok := byMethod[key]; ok {
			return f, true
		}
	}
	return nil, false
}

// Forests returns every built forest ordered by method key
func (s *Scanner) Forests() []*tree.Forest {
	s.mu.RLock()
	var out []*tree.Forest
	for _, byMethod := range s.forests {
		for _, f := range byMethod {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Method() < out[j].Method() })
	return out
}

// Method looks a method up by key in the pool
func (s *Scanner) Method(key string) (*types.Method, bool) {
	for _, m := range s.pool.Methods() {
		if m.Key() == key {
			return m, true
		}
	}
	return nil, false
}

func (s *Scanner) tooBig(size int64) bool {
	return s.opts.MaxClassSize > 0 && size > s.opts.MaxClassSize
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.opts.Exclude {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func (s *Scanner) included(rel string) bool {
	if len(s.opts.Include) == 0 {
		return true
	}
	for _, pattern := range s.opts.Include {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
