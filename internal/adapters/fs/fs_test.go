package fs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/memo/internal/adapters/fs"
	"go.trai.ch/memo/internal/core/domain"
)

// writeTree creates the given files (slash-separated, relative to root).
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
		require.NoError(t, os.WriteFile(path, []byte(content), domain.PrivateFilePerm))
	}
}

func TestWalker_WalkFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".git/config":      "git config",
		".memo/history/x":  "state",
		"ignored/file":     "ignored content",
		"src/main.go":      "package main",
		"src/util/util.go": "package util",
		"README.md":        "# Readme",
	})

	var files []string
	for path := range fs.NewWalker().WalkFiles(root, []string{"ignored"}) {
		rel, err := filepath.Rel(root, path)
		require.NoError(t, err)
		files = append(files, filepath.ToSlash(rel))
	}

	assert.Equal(t, []string{"README.md", "src/main.go", "src/util/util.go"}, files)
}

func TestWalker_WalkFiles_StopsEarly(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"a": "1", "b": "2", "c": "3"})

	count := 0
	for range fs.NewWalker().WalkFiles(root, nil) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/b.go":     "b",
		"src/a.go":     "a",
		"src/sub/c.go": "c",
		"lib/z.jar":    "z",
		"lib/y.jar":    "y",
	})
	resolver := fs.NewResolver(fs.NewWalker())

	tests := []struct {
		name     string
		patterns []string
		kind     domain.FingerprintKind
		want     []string
	}{
		{
			name:     "directory is expanded",
			patterns: []string{"src"},
			kind:     domain.Unordered,
			want:     []string{"src/a.go", "src/b.go", "src/sub/c.go"},
		},
		{
			name:     "glob",
			patterns: []string{"src/*.go"},
			kind:     domain.Unordered,
			want:     []string{"src/a.go", "src/b.go"},
		},
		{
			name:     "unordered is sorted and deduplicated",
			patterns: []string{"lib/z.jar", "lib/y.jar", "lib/z.jar"},
			kind:     domain.Unordered,
			want:     []string{"lib/y.jar", "lib/z.jar"},
		},
		{
			name:     "ordered keeps declaration order",
			patterns: []string{"lib/z.jar", "lib/y.jar", "lib/z.jar"},
			kind:     domain.Ordered,
			want:     []string{"lib/z.jar", "lib/y.jar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolver.Resolve(root, tt.patterns, tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Resolve_NotFound(t *testing.T) {
	t.Parallel()

	_, err := fs.NewResolver(fs.NewWalker()).Resolve(t.TempDir(), []string{"missing/*.go"}, domain.Unordered)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestFingerprinter_FingerprintInputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/a.go": "package a",
		"src/b.go": "package b",
		"args":     "-O2",
	})
	fp := newFingerprinter()

	inputs := []domain.InputSpec{
		{Name: "src", Paths: []string{"src"}, Kind: domain.Unordered},
		{Name: "args", Paths: []string{"args"}, Kind: domain.Ordered},
	}
	props, err := fp.FingerprintInputs(root, inputs)
	require.NoError(t, err)
	require.Len(t, props, 2)

	assert.Equal(t, "src", props[0].Name)
	assert.Equal(t, domain.Unordered, props[0].Fingerprint.Kind)
	assert.Len(t, props[0].Fingerprint.Digests, 2)
	assert.Equal(t, "args", props[1].Name)
	assert.Equal(t, domain.Ordered, props[1].Fingerprint.Kind)

	want := domain.Combine(domain.DigestOfString("args"), domain.DigestOfString("-O2"))
	assert.Equal(t, []domain.Digest{want}, props[1].Fingerprint.Digests)

	again, err := fp.FingerprintInputs(root, inputs)
	require.NoError(t, err)
	assert.Equal(t, props, again)
}

func TestFingerprinter_DetectsChanges(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"src/a.go": "package a"})
	fp := newFingerprinter()
	inputs := []domain.InputSpec{{Name: "src", Paths: []string{"src"}, Kind: domain.Unordered}}

	before, err := fp.FingerprintInputs(root, inputs)
	require.NoError(t, err)

	path := filepath.Join(root, "src", "a.go")
	require.NoError(t, os.WriteFile(path, []byte("package a // edited"), domain.PrivateFilePerm))
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))

	after, err := fp.FingerprintInputs(root, inputs)
	require.NoError(t, err)
	assert.NotEqual(t, before[0].Property().Digest, after[0].Property().Digest)
}

func TestFingerprinter_RenameChangesFingerprint(t *testing.T) {
	t.Parallel()

	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTree(t, rootA, map[string]string{"src/a.go": "same"})
	writeTree(t, rootB, map[string]string{"src/b.go": "same"})
	fp := newFingerprinter()
	inputs := []domain.InputSpec{{Name: "src", Paths: []string{"src"}, Kind: domain.Unordered}}

	a, err := fp.FingerprintInputs(rootA, inputs)
	require.NoError(t, err)
	b, err := fp.FingerprintInputs(rootB, inputs)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].Property().Digest, b[0].Property().Digest)
}

func TestFingerprinter_MissingInput(t *testing.T) {
	t.Parallel()

	_, err := newFingerprinter().FingerprintInputs(t.TempDir(), []domain.InputSpec{
		{Name: "src", Paths: []string{"src"}, Kind: domain.Unordered},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInputNotFound)
}

func TestFingerprinter_FingerprintOutputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"build/classes/A.class": "A",
		"build/classes/B.class": "B",
		"build/app.jar":         "jar",
	})
	fp := newFingerprinter()

	props, err := fp.FingerprintOutputs(root, []domain.OutputSpec{
		{Name: "classes", Paths: []string{"build/classes"}},
		{Name: "docs", Paths: []string{"build/docs"}},
		{Name: "jar", Paths: []string{"build/app.jar"}},
	})
	require.NoError(t, err)

	names := make([]string, 0, len(props))
	for _, p := range props {
		names = append(names, p.Name)
		assert.Equal(t, domain.Unordered, p.Kind)
	}
	assert.Equal(t, []string{"classes", "jar"}, names)
}

func TestFingerprinter_FingerprintOutputs_EmptyDirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out"), domain.DirPerm))
	fp := newFingerprinter()

	props, err := fp.FingerprintOutputs(root, []domain.OutputSpec{
		{Name: "result", Paths: []string{"out"}},
	})
	require.NoError(t, err)
	assert.NotNil(t, props)
	assert.Empty(t, props)
}

func TestVerifier_VerifyOutputs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTree(t, root, map[string]string{"out/a": "a"})
	v := fs.NewVerifier()

	ok, err := v.VerifyOutputs(root, []string{"out/a", "out"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyOutputs(root, []string{"out/a", "out/b"})
	require.NoError(t, err)
	assert.False(t, ok)

	for _, escaping := range []string{"../elsewhere", "/etc/passwd", "out/../../x"} {
		_, err = v.VerifyOutputs(root, []string{escaping})
		require.Error(t, err, escaping)
		assert.ErrorIs(t, err, domain.ErrOutputPathOutsideRoot)
	}
}

func TestArchiver_RoundTrip(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"build/classes/A.class":     "A",
		"build/classes/pkg/B.class": "B",
		"build/app.jar":             "jar",
		"unrelated.txt":             "not packed",
	})
	archiver := fs.NewArchiver(fs.NewWalker())

	payload, err := archiver.Pack(src, []string{"build/classes", "build/app.jar", "build/missing"})
	require.NoError(t, err)

	dst := t.TempDir()
	writeTree(t, dst, map[string]string{"build/app.jar": "stale"})
	require.NoError(t, archiver.Unpack(dst, payload))

	for rel, want := range map[string]string{
		"build/classes/A.class":     "A",
		"build/classes/pkg/B.class": "B",
		"build/app.jar":             "jar",
	} {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.Equal(t, want, string(got), rel)
	}
	assert.NoFileExists(t, filepath.Join(dst, "unrelated.txt"))
}

func TestArchiver_PackIsDeterministic(t *testing.T) {
	t.Parallel()

	files := map[string]string{"out/b": "b", "out/a": "a", "out/nested/c": "c"}
	rootA := t.TempDir()
	rootB := t.TempDir()
	writeTree(t, rootA, files)
	writeTree(t, rootB, files)
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(rootB, "out", "a"), later, later))

	archiver := fs.NewArchiver(fs.NewWalker())
	a, err := archiver.Pack(rootA, []string{"out"})
	require.NoError(t, err)
	b, err := archiver.Pack(rootB, []string{"out"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestArchiver_Errors(t *testing.T) {
	t.Parallel()

	archiver := fs.NewArchiver(fs.NewWalker())

	_, err := archiver.Pack(t.TempDir(), []string{"../outside"})
	require.ErrorIs(t, err, domain.ErrOutputPathOutsideRoot)

	err = archiver.Unpack(t.TempDir(), []byte("not a gzip stream"))
	require.ErrorIs(t, err, domain.ErrArchiveFailed)

	payload := fs.MaliciousPayload(t, "../escape.txt")
	dst := t.TempDir()
	err = archiver.Unpack(dst, payload)
	require.ErrorIs(t, err, domain.ErrArchiveFailed)
	assert.NoFileExists(t, filepath.Join(filepath.Dir(dst), "escape.txt"))
}

func newFingerprinter() *fs.Fingerprinter {
	walker := fs.NewWalker()
	return fs.NewFingerprinter(fs.NewResolver(walker), walker)
}
