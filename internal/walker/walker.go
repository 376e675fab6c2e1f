// Package walker implements the tree walker: it traverses each source root
// in lexicographic order, mirrors directory structure, replicates symlinks
// and special files directly, and enqueues regular files as CopyOps for the
// dispatcher.
package walker

import (
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/posixio"
	"github.com/xcpkit/xcp/internal/xcperrors"
	"github.com/xcpkit/xcp/internal/xlog"
)

// SkipFunc is the should_skip(entry) predicate; the walker treats it as an
// external collaborator and only needs this signature. A nil SkipFunc
// never skips anything.
type SkipFunc func(relPath string, isDir bool) bool

// Walker drives one or more source roots into a job channel and a status
// channel, mirroring directories and replicating symlinks/special files
// inline on the caller's goroutine.
type Walker struct {
	JobCh     chan<- model.CopyOp
	StatusCh  chan<- model.StatusUpdate
	NoClobber bool
	ShouldSkip SkipFunc
}

// Walk traverses every root in sources, copying into dest. If dest exists
// and is a directory, each root is mirrored under dest/basename(root);
// otherwise the (single) root's contents are rename-on-copied directly
// into dest.
func (w *Walker) Walk(sources []string, dest string) error {
	logger := xlog.With(nil).WithField("component", "walker")

	destIsDir := false
	if fi, err := os.Stat(dest); err == nil {
		destIsDir = fi.IsDir()
	}

	for _, source := range sources {
		source = filepath.Clean(source)
		base := filepath.Base(source)
		if base == "." || base == string(filepath.Separator) {
			return xcperrors.InvalidSource("failed to find source directory name for " + source)
		}

		targetBase := dest
		if destIsDir {
			targetBase = filepath.Join(dest, base)
		}
		logger.WithFields(map[string]any{"source": source, "target_base": targetBase}).Debug("starting walk")

		err := godirwalk.Walk(source, &godirwalk.Options{
			Callback: func(osPathname string, de *godirwalk.Dirent) error {
				rel, err := filepath.Rel(source, osPathname)
				if err != nil {
					return xcperrors.Io(osPathname, err)
				}
				target := targetBase
				if rel != "." {
					target = filepath.Join(targetBase, rel)
				}

				isDir := de.IsDir()
				if w.ShouldSkip != nil && w.ShouldSkip(rel, isDir) {
					if isDir {
						return filepath.SkipDir
					}
					return nil
				}

				return w.visit(osPathname, target, de)
			},
			Unsorted:            false, // lexicographic order, as spec requires
			FollowSymbolicLinks: false,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) visit(from, target string, de *godirwalk.Dirent) error {
	if w.NoClobber && target != "" {
		if _, err := os.Lstat(target); err == nil {
			return xcperrors.DestinationExists(target)
		}
	}

	switch {
	case de.IsDir():
		if err := os.MkdirAll(target, 0o755); err != nil {
			return xcperrors.Io(target, err)
		}
		return nil

	case de.IsSymlink():
		linkText, err := os.Readlink(from)
		if err != nil {
			return xcperrors.Io(from, err)
		}
		if err := os.Symlink(linkText, target); err != nil {
			return xcperrors.Io(target, err)
		}
		return nil

	case de.IsRegular():
		fi, err := os.Lstat(from)
		if err != nil {
			return xcperrors.Io(from, err)
		}
		w.JobCh <- model.CopyOp{From: from, Target: target}
		w.StatusCh <- model.Size(fi.Size())
		return nil

	default:
		fi, err := os.Lstat(from)
		if err != nil {
			return xcperrors.Io(from, err)
		}
		if isSpecialNode(fi) {
			if err := posixio.CopyNode(fi, target); err != nil {
				return xcperrors.Io(target, err)
			}
			return nil
		}
		return xcperrors.UnknownFileType(from)
	}
}

func isSpecialNode(fi os.FileInfo) bool {
	mode := fi.Mode()
	return mode&(os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) != 0
}
