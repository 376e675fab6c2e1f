// Package xcperrors defines the error taxonomy shared across the copy
// engine. Every failure a component raises is one of these kinds, carrying
// the offending path where one is known.
package xcperrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a failure. The handle, planner, walker, dispatcher and
// engine wrap failures into one of these kinds so the status aggregator and
// CLI can report something consistent; the raw posixio primitives and
// blockpool.Submit return unwrapped errors that their callers pass on.
type Kind string

const (
	// KindIO wraps an underlying syscall/filesystem failure.
	KindIO Kind = "io"
	// KindInvalidSource means a source argument doesn't resolve to a
	// usable path (missing, or not resolvable to a directory name).
	KindInvalidSource Kind = "invalid_source"
	// KindDestinationExists fires under --no-clobber.
	KindDestinationExists Kind = "destination_exists"
	// KindUnknownFileType fires on a dirent that isn't a file, dir,
	// symlink, or recognized special node.
	KindUnknownFileType Kind = "unknown_file_type"
	// KindUnsupportedOS fires at construction on non-POSIX targets.
	KindUnsupportedOS Kind = "unsupported_os"
	// KindReflinkUnavailable fires when --reflink=always can't be honored.
	KindReflinkUnavailable Kind = "reflink_unavailable"
	// KindCopyError is the generic wrapper used when a block task's
	// original structured error can't cross a worker boundary intact.
	KindCopyError Kind = "copy_error"
)

// Error is the concrete error type the wrapping components above return.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Io wraps an underlying I/O failure with the path that triggered it.
func Io(path string, err error) *Error {
	return &Error{Kind: KindIO, Path: path, Err: errors.WithStack(err)}
}

// InvalidSource reports that a source argument could not be used.
func InvalidSource(msg string) *Error {
	return &Error{Kind: KindInvalidSource, Err: errors.New(msg)}
}

// DestinationExists reports a --no-clobber violation at path.
func DestinationExists(path string) *Error {
	return &Error{Kind: KindDestinationExists, Path: path, Err: errors.New("destination file exists")}
}

// UnknownFileType reports a dirent of a type the walker can't handle.
func UnknownFileType(path string) *Error {
	return &Error{Kind: KindUnknownFileType, Path: path, Err: errors.New("unknown file type")}
}

// UnsupportedOS reports that the engine was constructed on a non-POSIX target.
func UnsupportedOS(msg string) *Error {
	return &Error{Kind: KindUnsupportedOS, Err: errors.New(msg)}
}

// ReflinkUnavailable reports that --reflink=always could not be satisfied.
func ReflinkUnavailable(path string) *Error {
	return &Error{Kind: KindReflinkUnavailable, Path: path, Err: errors.New("reflink unavailable")}
}

// CopyError wraps an arbitrary worker-thread failure that has already lost
// its original structured kind by the time it reaches the status channel.
func CopyError(msg string) *Error {
	return &Error{Kind: KindCopyError, Err: errors.New(msg)}
}

// CopyErrorf is CopyError with formatting, mirroring the way block tasks
// stringify whatever copy_file_offset returned before sending it on.
func CopyErrorf(format string, args ...any) *Error {
	return CopyError(fmt.Sprintf(format, args...))
}

// As reports whether err is (or wraps) an *Error, returning it if so.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
