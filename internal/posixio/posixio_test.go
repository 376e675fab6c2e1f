//go:build linux

package posixio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openForTest(t *testing.T, path string, flag int) *os.File {
	t.Helper()
	f, err := os.OpenFile(path, flag, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestCopyFileOffsetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")
	dstPath := filepath.Join(dir, "dst")

	payload := make([]byte, 300*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	require.NoError(t, os.WriteFile(srcPath, payload, 0o644))
	require.NoError(t, os.WriteFile(dstPath, make([]byte, len(payload)), 0o644))

	src := openForTest(t, srcPath, os.O_RDONLY)
	dst := openForTest(t, dstPath, os.O_WRONLY)

	n, err := CopyFileOffset(src, dst, int64(len(payload)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestCopyFileOffsetPartialRange(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")
	dstPath := filepath.Join(dir, "dst")

	payload := []byte("0123456789abcdefghij")
	require.NoError(t, os.WriteFile(srcPath, payload, 0o644))
	require.NoError(t, os.WriteFile(dstPath, make([]byte, len(payload)), 0o644))

	src := openForTest(t, srcPath, os.O_RDONLY)
	dst := openForTest(t, dstPath, os.O_WRONLY)

	n, err := CopyFileOffset(src, dst, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, payload[5:15], got[5:15])
	// Bytes outside the requested range were never touched.
	assert.Equal(t, byte(0), got[0])
}

func TestProbablySparseOnDenseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dense")
	require.NoError(t, os.WriteFile(path, []byte("no holes here"), 0o644))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, ProbablySparse(fi))
}

func TestMapExtentsDenseFileYieldsWholeRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dense")
	data := []byte("abcdefghijklmnopqrstuvwxyz")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f := openForTest(t, path, os.O_RDONLY)
	extents, ok := MapExtents(f, int64(len(data)))
	if !ok {
		t.Skip("SEEK_DATA not supported on this filesystem")
	}
	require.NotEmpty(t, extents)
	assert.Equal(t, int64(0), extents[0].Offset)
	assert.Equal(t, int64(len(data)), extents[0].Length)
}

func TestTryReflinkFallsBackCleanlyOnUnsupportedFilesystem(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "src")
	dstPath := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(srcPath, []byte("clone me"), 0o644))
	require.NoError(t, os.WriteFile(dstPath, []byte{}, 0o644))

	src := openForTest(t, srcPath, os.O_RDONLY)
	dst := openForTest(t, dstPath, os.O_WRONLY)

	result, err := TryReflink(src, dst)
	// A filesystem that doesn't support FICLONE (e.g. tmpfs, overlayfs in
	// CI) must fail cleanly with NotSupported, never with an error.
	require.NoError(t, err)
	assert.Contains(t, []ReflinkResult{Reflinked, NotSupported}, result)
}
