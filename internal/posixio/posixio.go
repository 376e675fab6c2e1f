// Package posixio implements the positional I/O primitives the rest of the
// engine builds on: offset-based copying that never disturbs a shared
// descriptor's file-position state, copy-on-write reflink attempts, sparse
// extent discovery, and special-node replication. These are the only
// points in the engine that touch raw syscalls.
package posixio

import (
	"io/fs"
	"os"
	"syscall"

	"github.com/xcpkit/xcp/internal/model"
	"golang.org/x/sys/unix"
)

// ReflinkResult reports the outcome of a TryReflink attempt.
type ReflinkResult int

const (
	// Reflinked means the destination is now a complete copy-on-write
	// clone of the source; no further copying is required.
	Reflinked ReflinkResult = iota
	// NotSupported means the filesystem or kernel rejected the clone
	// cleanly; the caller should fall back to block copying.
	NotSupported
)

// CopyFileOffset copies exactly nbytes from src to dst starting at offset in
// both files, using the best available positional-copy syscall and falling
// back to pread/pwrite loops. Partial writes are retried internally. It
// never touches the descriptors' shared file-position cursor, so it is safe
// to call concurrently from multiple goroutines sharing the same *os.File.
func CopyFileOffset(src, dst *os.File, nbytes, offset int64) (int64, error) {
	srcFd := int(src.Fd())
	dstFd := int(dst.Fd())

	var total int64
	for total < nbytes {
		remaining := nbytes - total
		srcOff := offset + total
		dstOff := offset + total

		n, err := unix.CopyFileRange(srcFd, &srcOff, dstFd, &dstOff, int(remaining), 0)
		if err != nil {
			if err == unix.ENOSYS || err == unix.EXDEV || err == unix.EINVAL || err == unix.EOPNOTSUPP {
				return copyFileOffsetFallback(src, dst, nbytes-total, offset+total, total)
			}
			return total, err
		}
		if n == 0 {
			// copy_file_range returning 0 before nbytes is reached
			// means EOF on the source; this should not happen for
			// ranges derived from a correctly-sized plan, but
			// fall back rather than spin.
			return copyFileOffsetFallback(src, dst, nbytes-total, offset+total, total)
		}
		total += int64(n)
	}
	return total, nil
}

// copyFileOffsetFallback completes a copy via pread/pwrite when
// copy_file_range is unavailable. priorTotal is the count already written
// by the caller before falling back.
func copyFileOffsetFallback(src, dst *os.File, nbytes, offset, priorTotal int64) (int64, error) {
	buf := make([]byte, 256*1024)
	var total int64
	for total < nbytes {
		chunk := int64(len(buf))
		if remaining := nbytes - total; remaining < chunk {
			chunk = remaining
		}
		rn, err := unix.Pread(int(src.Fd()), buf[:chunk], offset+total)
		if err != nil {
			return priorTotal + total, err
		}
		if rn == 0 {
			break
		}
		wn, err := unix.Pwrite(int(dst.Fd()), buf[:rn], offset+total)
		if err != nil {
			return priorTotal + total, err
		}
		total += int64(wn)
	}
	return priorTotal + total, nil
}

// ProbablySparse is a cheap test for whether a file is likely to have
// holes: its allocated block count implies fewer bytes than its logical
// length.
func ProbablySparse(fi os.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return st.Blocks*512 < fi.Size()
}

// MapExtents returns the sparse data extents of f using SEEK_DATA/SEEK_HOLE.
// The second return value is false when the filesystem gives no useful
// answer (SEEK_DATA unsupported), in which case the caller should treat the
// file as dense.
func MapExtents(f *os.File, size int64) ([]model.Extent, bool) {
	if size == 0 {
		return nil, true
	}
	fd := int(f.Fd())

	if _, err := unix.Seek(fd, 0, unix.SEEK_DATA); err != nil {
		if isSeekDataUnsupported(err) {
			return nil, false
		}
		if err == unix.ENXIO {
			// Entirely a hole.
			return nil, true
		}
		return nil, false
	}

	var extents []model.Extent
	offset := int64(0)
	for offset < size {
		dataStart, err := unix.Seek(fd, offset, unix.SEEK_DATA)
		if err != nil {
			if err == unix.ENXIO {
				break
			}
			return nil, false
		}
		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			return nil, false
		}
		if holeStart > size {
			holeStart = size
		}
		extents = append(extents, model.Extent{Offset: dataStart, Length: holeStart - dataStart})
		offset = holeStart
	}
	// Restore the cursor; other positional I/O never relies on it, but
	// leaving it mid-file would surprise anything that does.
	_, _ = unix.Seek(fd, 0, unix.SEEK_SET)
	return extents, true
}

func isSeekDataUnsupported(err error) bool {
	return err == unix.ENOSYS || err == unix.EINVAL || err == unix.ENOTSUP || err == unix.EOPNOTSUPP
}

// TryReflink attempts a whole-file copy-on-write clone of src into dst via
// the FICLONE ioctl. It returns NotSupported (no error) when the kernel or
// filesystem rejects the operation so callers can fall back transparently.
func TryReflink(src, dst *os.File) (ReflinkResult, error) {
	err := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd()))
	if err == nil {
		return Reflinked, nil
	}
	switch err {
	case unix.ENOTTY, unix.EOPNOTSUPP, unix.EXDEV, unix.EINVAL, unix.ENOSYS:
		return NotSupported, nil
	}
	return NotSupported, err
}

// CopyNode replicates a FIFO, socket, or character/block device node at dst
// with the same type and, for device nodes, the same major/minor numbers
// as src.
func CopyNode(srcInfo fs.FileInfo, dst string) error {
	st, ok := srcInfo.Sys().(*syscall.Stat_t)
	if !ok {
		return unix.ENOTSUP
	}
	mode := uint32(st.Mode)
	return unix.Mknod(dst, mode, int(st.Rdev))
}

// Mkdev composes a device number from major/minor components, exposed for
// tests that want to assert on CopyNode's device-node replication.
func Mkdev(major, minor uint32) uint64 {
	return unix.Mkdev(major, minor)
}
