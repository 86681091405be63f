package scan

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bcqerrors "github.com/standardbeagle/bcq/internal/errors"
	"github.com/standardbeagle/bcq/internal/query"
	"github.com/standardbeagle/bcq/internal/testing/builders"
	"github.com/standardbeagle/bcq/internal/types"
)

// greeter assembles a class whose hello method calls println(String)
func greeter(name string) []byte {
	cf := builders.NewClassFile(name, "java/lang/Object")
	out := cf.FieldRef("java/lang/System", "out", "Ljava/io/PrintStream;")
	msg := cf.StringConst("hello")
	println := cf.MethodRef("java/io/PrintStream", "println", "(Ljava/lang/String;)V")
	cf.Method(types.AccPublic, "hello", "()V", &builders.CodeAttr{
		MaxStack: 2, MaxLocals: 1,
		Code: []byte{
			0xb2, byte(out >> 8), byte(out), // getstatic
			0x12, byte(msg), // ldc
			0xb6, byte(println >> 8), byte(println), // invokevirtual
			0xb1, // return
		},
	})
	return cf.Bytes()
}

// broken has one good method and one whose iadd has no operands
func broken(name string) []byte {
	return builders.NewClassFile(name, "java/lang/Object").
		Method(types.AccStatic, "ok", "()V", &builders.CodeAttr{Code: []byte{0xb1}}).
		Method(types.AccStatic, "bad", "()V", &builders.CodeAttr{Code: []byte{0x60, 0xb1}}).
		Bytes()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeJar(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "demo", "A.class"), greeter("demo/A"))
	writeFile(t, filepath.Join(dir, "demo", "B.class"), broken("demo/B"))
	writeFile(t, filepath.Join(dir, "demo", "Junk.class"), []byte{0xca, 0xfe, 0xba, 0xbe, 0x00})
	writeFile(t, filepath.Join(dir, "notes.txt"), []byte("ignored"))

	s := New(Options{Workers: 2})
	rep, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Classes)
	assert.Equal(t, []string{"demo/A.hello()V", "demo/B.ok()V"}, rep.Built)
	require.Len(t, rep.Failed, 2)
	assert.False(t, rep.OK())

	byMethod := map[string]Failure{}
	for _, f := range rep.Failed {
		byMethod[f.Method] = f
	}
	assert.True(t, errors.Is(byMethod["demo/B.bad()V"].Err, bcqerrors.ErrStructural))
	var de *bcqerrors.DecodeError
	require.True(t, errors.As(byMethod[""].Err, &de))
	assert.Contains(t, de.Source, "Junk.class")

	assert.Equal(t, []string{"demo/A", "demo/B"}, s.Pool().Names())
	f, ok := s.Forest("demo/A.hello()V")
	require.True(t, ok)
	assert.Equal(t, "invokevirtual", f.Roots()[0].Op())
	_, ok = s.Forest("demo/B.bad()V")
	assert.False(t, ok)
	assert.Len(t, s.Forests(), 2)
}

func TestScanJarAndDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "classes", "demo", "A.class"), greeter("demo/A"))
	writeJar(t, filepath.Join(dir, "lib.jar"), map[string][]byte{
		"demo/A.class":         greeter("demo/A"),
		"demo/C.class":         greeter("demo/C"),
		"META-INF/MANIFEST.MF": []byte("Manifest-Version: 1.0\n"),
	})

	s := New(Options{Workers: 1})
	rep, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Classes)
	assert.Equal(t, 1, rep.Duplicates)
	assert.True(t, rep.OK())

	again, err := s.ScanPath(context.Background(), filepath.Join(dir, "lib.jar"))
	require.NoError(t, err)
	assert.Zero(t, again.Classes)
	assert.Equal(t, 2, again.Duplicates)
}

func TestScanFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "com", "acme", "A.class"), greeter("com/acme/A"))
	writeFile(t, filepath.Join(dir, "com", "acme", "gen", "G.class"), greeter("com/acme/gen/G"))
	writeFile(t, filepath.Join(dir, "org", "other", "O.class"), greeter("org/other/O"))
	writeFile(t, filepath.Join(dir, "com", "acme", "Big.class"), append(greeter("com/acme/Big"), make([]byte, 4096)...))

	s := New(Options{
		Include:      []string{"com/**"},
		Exclude:      []string{"**/gen/**"},
		MaxClassSize: 2048,
	})
	rep, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"com/acme/A"}, s.Pool().Names())
	assert.Equal(t, 1, rep.Skipped)
}

func TestScanSingleFileAndMissingPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.class")
	writeFile(t, path, greeter("demo/A"))

	s := New(Options{})
	rep, err := s.ScanPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Classes)

	_, err = s.ScanPath(context.Background(), filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.class"), greeter("demo/A"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).ScanPath(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoveSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.class")
	writeFile(t, path, greeter("demo/A"))

	s := New(Options{})
	_, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"demo/A"}, s.RemoveSource(path))
	assert.Zero(t, s.Pool().Len())
	assert.Empty(t, s.Forests())

	rep, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Classes, "removed bytes are not duplicates")
}

func TestRemoveSourceKeepsSharedCopies(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "A.class")
	b := filepath.Join(dir, "b", "A.class")
	writeFile(t, a, greeter("demo/A"))
	writeFile(t, b, greeter("demo/A"))

	s := New(Options{Workers: 1})
	rep, err := s.ScanFiles(context.Background(), dir, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Classes)
	assert.Equal(t, 1, rep.Duplicates)

	assert.Empty(t, s.RemoveSource(a), "b still holds the class")
	_, ok := s.Forest("demo/A.hello()V")
	assert.True(t, ok)
	_, ok = s.Pool().Class("demo/A")
	assert.True(t, ok)

	// a comes back with the same bytes and becomes a holder again
	rep, err = s.ScanFiles(context.Background(), dir, a)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Duplicates)

	assert.Empty(t, s.RemoveSource(b))
	_, ok = s.Forest("demo/A.hello()V")
	assert.True(t, ok)

	assert.Equal(t, []string{"demo/A"}, s.RemoveSource(a))
	assert.Zero(t, s.Pool().Len())
	assert.Empty(t, s.Forests())
}

func TestRemoveSourceRestoresOtherVersion(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "A.class")
	b := filepath.Join(dir, "b", "A.class")
	writeFile(t, a, greeter("demo/A"))
	writeFile(t, b, broken("demo/A"))

	s := New(Options{Workers: 1})
	_, err := s.ScanFiles(context.Background(), dir, a)
	require.NoError(t, err)
	_, err = s.ScanFiles(context.Background(), dir, b)
	require.NoError(t, err)
	_, ok := s.Forest("demo/A.ok()V")
	require.True(t, ok, "the later version is current")

	assert.Empty(t, s.RemoveSource(b), "another version of demo/A is still scanned")
	_, ok = s.Forest("demo/A.hello()V")
	assert.True(t, ok)
	_, ok = s.Forest("demo/A.ok()V")
	assert.False(t, ok)
	_, ok = s.Pool().Class("demo/A")
	assert.True(t, ok)

	assert.Equal(t, []string{"demo/A"}, s.RemoveSource(a))
	assert.Zero(t, s.Pool().Len())
}

func TestScannerQuery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.class"), greeter("demo/A"))
	writeFile(t, filepath.Join(dir, "B.class"), broken("demo/B"))

	s := New(Options{Workers: 4})
	_, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)

	eng := query.NewGreedyEngine(query.Options{Timeout: time.Second})
	results, err := s.Query(context.Background(), eng,
		query.Method("println", "").Named("call").Child(query.Constant("hello").Named("msg")))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "demo/A.hello()V", results[0].Method)
	assert.Equal(t, []string{"call", "msg"}, results[0].Result.Keys())

	_, err = s.Query(context.Background(), eng, query.Any().Dist(-1))
	assert.ErrorIs(t, err, bcqerrors.ErrInvalidPattern)
}

func TestScannerQueryBudget(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "A.class"), greeter("demo/A"))

	s := New(Options{})
	_, err := s.ScanPath(context.Background(), dir)
	require.NoError(t, err)

	_, err = s.Query(context.Background(), query.NewGreedyEngine(query.Options{MaxVisits: 1}), query.Op("return"))
	assert.ErrorIs(t, err, bcqerrors.ErrBudgetExceeded)
}
