package copyhandle

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xcpkit/xcp/internal/config"
)

func testOptions(noClobber, fsync bool) *config.Options {
	return config.New(0, 0, 0, noClobber, config.ReflinkAuto, config.PreserveMode, fsync)
}

func TestNewTruncatesDestinationToSourceLength(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	h, err := New(src, dst, testOptions(false, false))
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, int64(len("hello world")), h.Len())

	fi, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), fi.Size())
}

func TestNewNoClobberFailsWhenDestinationExists(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("existing"), 0o644))

	_, err := New(src, dst, testOptions(true, false))
	require.Error(t, err)
}

func TestNewWithoutNoClobberOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("much longer old content"), 0o644))

	h, err := New(src, dst, testOptions(false, false))
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, int64(3), h.Len())
}

func TestAcquireReleaseRefcountClosesOnlyOnLastRelease(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	h, err := New(src, dst, testOptions(false, false))
	require.NoError(t, err)

	h.Acquire()
	require.NoError(t, h.Release()) // refs: 2 -> 1, not closed yet

	// Destination file descriptor should still be usable.
	_, statErr := h.Dst.Stat()
	require.NoError(t, statErr)

	require.NoError(t, h.Release()) // refs: 1 -> 0, closes now

	_, statErr = h.Dst.Stat()
	assert.Error(t, statErr, "descriptor should be closed after the last release")
}

// TestNewDoesNotPreallocateDestinationBlocks pins down the sparse-file
// invariant a prior regression broke: opening a handle on a large, entirely
// sparse source must not turn the destination dense before any block task
// has run a single positional write. Truncate sets the logical length;
// nothing here should physically allocate blocks.
func TestNewDoesNotPreallocateDestinationBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	const sparseLen = 64 << 20 // 64 MiB, entirely a hole
	srcFile, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, srcFile.Truncate(sparseLen))
	require.NoError(t, srcFile.Close())

	srcSt, err := os.Stat(src)
	require.NoError(t, err)
	srcStat, ok := srcSt.Sys().(*syscall.Stat_t)
	if !ok {
		t.Skip("Stat_t not available on this platform")
	}
	if srcStat.Blocks > 8 {
		t.Skip("filesystem does not support sparse files; src was not actually sparse")
	}

	h, err := New(src, dst, testOptions(false, false))
	require.NoError(t, err)
	defer h.Release()

	dstSt, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(sparseLen), dstSt.Size())

	dstStat, ok := dstSt.Sys().(*syscall.Stat_t)
	require.True(t, ok)
	assert.LessOrEqual(t, dstStat.Blocks, srcStat.Blocks+8,
		"New must not physically allocate the destination's blocks ahead of any positional write")
}

func TestReleasePreservesModeAndTimestamps(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	oldMtime := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	oldAtime := time.Now().Add(-72 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(src, oldAtime, oldMtime))

	opts := config.New(0, 0, 0, false, config.ReflinkAuto, config.PreserveMode|config.PreserveTimestamps, false)
	h, err := New(src, dst, opts)
	require.NoError(t, err)

	// Simulate a block task widening the destination's mode via the
	// process umask before Release runs.
	require.NoError(t, h.Dst.Chmod(0o644))

	require.NoError(t, h.Release())

	fi, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	assert.WithinDuration(t, oldMtime, fi.ModTime(), time.Second)
}

func TestReleaseSkipsPreserveWhenNotRequested(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o600))

	oldMtime := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(src, oldMtime, oldMtime))

	opts := config.New(0, 0, 0, false, config.ReflinkAuto, 0, false)
	h, err := New(src, dst, opts)
	require.NoError(t, err)
	require.NoError(t, h.Dst.Chmod(0o644))

	require.NoError(t, h.Release())

	fi, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm(), "mode must stay whatever Chmod left it at when PreserveMode is unset")
	assert.False(t, fi.ModTime().Equal(oldMtime), "mtime must not be backdated when PreserveTimestamps is unset")
}
