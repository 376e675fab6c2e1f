// Package copyhandle implements the per-file descriptor pair shared by all
// block tasks copying one file: it opens both ends, enforces --no-clobber,
// truncates the destination to the source's length, and is released (mode/
// timestamps/ownership preserved as requested, then closed, optionally
// fsynced) once the last sharing task drops it.
package copyhandle

import (
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/xcpkit/xcp/internal/config"
	"github.com/xcpkit/xcp/internal/xcperrors"
	"golang.org/x/sys/unix"
)

// CopyHandle is shared by reference among every block task copying one
// file. While it exists, both descriptors are open and the destination has
// already been created and truncated to the source's length, so any offset
// in [0, Len()) is a legal positional-write target on the destination.
type CopyHandle struct {
	Src     *os.File
	Dst     *os.File
	SrcPath string
	DstPath string
	SrcInfo os.FileInfo
	Options *config.Options

	refs atomic.Int32
}

// New opens source read-only and destination write+create, enforces the
// no-clobber policy, and truncates/extends the destination to the source's
// length. The returned handle starts with one reference held by the
// caller; Release it when done submitting work.
func New(srcPath, dstPath string, opts *config.Options) (*CopyHandle, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, xcperrors.Io(srcPath, err)
	}

	info, err := src.Stat()
	if err != nil {
		src.Close()
		return nil, xcperrors.Io(srcPath, err)
	}

	flags := os.O_WRONLY | os.O_CREATE
	if opts.NoClobber {
		flags |= os.O_EXCL
	} else {
		flags |= os.O_TRUNC
	}
	mode := info.Mode().Perm()

	dst, err := os.OpenFile(dstPath, flags, mode)
	if err != nil {
		src.Close()
		if opts.NoClobber && os.IsExist(err) {
			return nil, xcperrors.DestinationExists(dstPath)
		}
		return nil, xcperrors.Io(dstPath, err)
	}

	length := info.Size()
	if err := dst.Truncate(length); err != nil {
		src.Close()
		dst.Close()
		return nil, xcperrors.Io(dstPath, err)
	}
	// No preallocation here: Fallocate with mode 0 physically allocates
	// every block up to length, which would turn a sparse source into a
	// fully dense destination regardless of the block planner's later
	// decision. Truncate above already fixes the logical length; holes
	// stay holes until a positional write actually lands in them, matching
	// the original driver's ftruncate-only behavior.

	h := &CopyHandle{
		Src:     src,
		Dst:     dst,
		SrcPath: srcPath,
		DstPath: dstPath,
		SrcInfo: info,
		Options: opts,
	}
	h.refs.Store(1)
	return h, nil
}

// Len returns the cached source length at open time.
func (h *CopyHandle) Len() int64 { return h.SrcInfo.Size() }

// Acquire adds a reference, to be called once per block task that will
// hold the handle alive until it completes.
func (h *CopyHandle) Acquire() {
	h.refs.Add(1)
}

// Release drops a reference. When the last reference is dropped, any
// requested metadata is copied over (mode, timestamps, ownership — applied
// now rather than at New, since block tasks still in flight would otherwise
// bump the destination's mtime past whatever New set it to), both
// descriptors are closed, and, if Fsync is enabled, the destination is
// flushed first.
func (h *CopyHandle) Release() error {
	if h.refs.Add(-1) > 0 {
		return nil
	}

	preserveErr := h.preserveMetadata()

	var syncErr error
	if h.Options.Fsync {
		syncErr = h.Dst.Sync()
	}
	srcErr := h.Src.Close()
	dstErr := h.Dst.Close()
	switch {
	case syncErr != nil:
		return xcperrors.Io(h.DstPath, syncErr)
	case dstErr != nil:
		return xcperrors.Io(h.DstPath, dstErr)
	case srcErr != nil:
		return xcperrors.Io(h.SrcPath, srcErr)
	case preserveErr != nil:
		return xcperrors.Io(h.DstPath, preserveErr)
	}
	return nil
}

// preserveMetadata applies whichever of --preserve-mode,
// --preserve-timestamps, --preserve-ownership were requested, using the
// source stat captured at New. Mode is set via an explicit Chmod since the
// destination was opened through the process umask and may be missing bits
// the source had; ownership and timestamps have no umask equivalent to work
// around but are applied here anyway, once, after the copy's writes are
// done.
func (h *CopyHandle) preserveMetadata() error {
	p := h.Options.Preserve
	if p == 0 {
		return nil
	}

	if p&config.PreserveMode != 0 {
		if err := h.Dst.Chmod(h.SrcInfo.Mode().Perm()); err != nil {
			return err
		}
	}

	if p&config.PreserveOwnership != 0 {
		if st, ok := h.SrcInfo.Sys().(*syscall.Stat_t); ok {
			if err := unix.Fchown(int(h.Dst.Fd()), int(st.Uid), int(st.Gid)); err != nil {
				return err
			}
		}
	}

	if p&config.PreserveTimestamps != 0 {
		mtime := h.SrcInfo.ModTime()
		atime := mtime
		if st, ok := h.SrcInfo.Sys().(*syscall.Stat_t); ok {
			atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
		}
		if err := os.Chtimes(h.DstPath, atime, mtime); err != nil {
			return err
		}
	}

	return nil
}
