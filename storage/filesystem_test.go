package storage

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifacts(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	workDir := t.TempDir()
	var names []string
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(workDir, name), []byte(content), 0644))
		names = append(names, name)
	}
	return workDir, names
}

func TestStorePutSingleFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	workDir, names := writeArtifacts(t, map[string]string{"logo.svg": "<svg/>"})

	ref, err := store.Put("INV-1", workDir, names)
	require.NoError(t, err)
	assert.Equal(t, "INV-1", ref.Path)
	assert.False(t, ref.IsDir)

	path := store.FilePath(ref)
	require.NotEmpty(t, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))
}

func TestStorePutDirectory(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	workDir, names := writeArtifacts(t, map[string]string{
		"report.md":  "# Findings",
		"sources.md": "- a\n- b",
	})

	ref, err := store.Put("INV-1", workDir, names)
	require.NoError(t, err)
	assert.True(t, ref.IsDir)
	assert.Empty(t, store.FilePath(ref))

	got, err := store.Get("INV-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, names, got.Files)
}

func TestStorePutOverwritesPreviousAttempt(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	firstDir, firstNames := writeArtifacts(t, map[string]string{
		"report.md": "first attempt",
		"extra.md":  "leftover",
	})
	_, err = store.Put("INV-1", firstDir, firstNames)
	require.NoError(t, err)

	secondDir, secondNames := writeArtifacts(t, map[string]string{"report.md": "second attempt"})
	ref, err := store.Put("INV-1", secondDir, secondNames)
	require.NoError(t, err)

	// the deterministic key means a retry fully replaces the old attempt
	got, err := store.Get("INV-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"report.md"}, got.Files)
	data, err := os.ReadFile(store.FilePath(ref))
	require.NoError(t, err)
	assert.Equal(t, "second attempt", string(data))
}

func TestStoreRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)
	workDir, names := writeArtifacts(t, map[string]string{"report.md": "x"})

	for _, key := range []string{"", "..", "../etc", "a/b", `a\b`, "a/../b", "."} {
		_, err := store.Put(key, workDir, names)
		assert.Error(t, err, "key %q must be rejected", key)
		_, err = store.Get(key)
		assert.Error(t, err, "key %q must be rejected", key)
		assert.NotErrorIs(t, err, ErrNotFound, "key %q must fail validation, not lookup", key)
	}

	// artifact names go through the same validation
	_, err = store.Put("INV-1", workDir, []string{"../../etc/passwd"})
	assert.Error(t, err)
}

func TestStoreGetMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Get("INV-NOPE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStorePackage(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	files := map[string]string{
		"report.md":  "# Findings\n",
		"sources.md": "- https://example.com\n",
	}
	workDir, names := writeArtifacts(t, files)
	_, err = store.Put("INV-1", workDir, names)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.Package("INV-1", &buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, len(files))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, files[f.Name], string(data), "archive entry %s", f.Name)
	}
}

func TestStorePackageMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	var buf bytes.Buffer
	err = store.Package("INV-NOPE", &buf)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, buf.Len())
}
