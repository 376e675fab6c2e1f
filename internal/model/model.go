// Package model holds the small set of value types shared across the copy
// engine's components: the job unit the walker hands to the dispatcher, the
// byte-range/extent types the block planner produces, and the status
// updates block tasks report back through the fan-in channel.
package model

import "fmt"

// CopyOp is a pending per-file job: created by the walker, consumed by the
// dispatcher, then discarded.
type CopyOp struct {
	From   string
	Target string
}

// ByteRange is a half-open interval [Start, End) of file offsets. Ranges
// within one Plan are pairwise disjoint and monotonically increasing.
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int64 { return r.End - r.Start }

func (r ByteRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Extent is a filesystem-reported data region of a sparse file. Extents may
// be adjacent or overlapping before merging.
type Extent struct {
	Offset int64
	Length int64
}

// End returns the offset one past the last byte of the extent.
func (e Extent) End() int64 { return e.Offset + e.Length }

// PlanKind distinguishes a reflinked plan (no further work) from a list of
// byte ranges still to be copied block by block.
type PlanKind int

const (
	// PlanReflinked means the whole file was cloned via a single
	// copy-on-write reflink; no block tasks are needed.
	PlanReflinked PlanKind = iota
	// PlanRanges means the listed ranges must be copied block by block.
	PlanRanges
)

// Plan is the result of examining one file via the block planner.
type Plan struct {
	Kind   PlanKind
	Ranges []ByteRange
	// Len is the source file's length, valid for both plan kinds (used
	// to report a Copied(len) update on the reflink fast path).
	Len int64
}

// StatusKind tags the variant carried by a StatusUpdate.
type StatusKind int

const (
	// StatusCopied reports that Bytes additional bytes have been
	// written successfully.
	StatusCopied StatusKind = iota
	// StatusSize is a dynamic total adjustment, emitted by the walker
	// as it discovers more regular files.
	StatusSize
	// StatusError reports a failure; Err is non-nil.
	StatusError
)

// StatusUpdate is the tagged variant block tasks, the dispatcher, and the
// walker send into the fan-in channel drained by the status aggregator.
type StatusUpdate struct {
	Kind  StatusKind
	Bytes int64
	Err   error
}

// Copied builds a StatusCopied update.
func Copied(n int64) StatusUpdate { return StatusUpdate{Kind: StatusCopied, Bytes: n} }

// Size builds a StatusSize update.
func Size(n int64) StatusUpdate { return StatusUpdate{Kind: StatusSize, Bytes: n} }

// ErrorUpdate builds a StatusError update.
func ErrorUpdate(err error) StatusUpdate { return StatusUpdate{Kind: StatusError, Err: err} }
