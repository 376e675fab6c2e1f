// Package blockplan implements the block planner: given an open copy
// handle it decides whether a whole-file reflink suffices, or produces the
// canonical set of byte ranges that must be copied, subdivided into
// block-sized tasks ready for the block pool.
package blockplan

import (
	"sort"

	"github.com/xcpkit/xcp/internal/config"
	"github.com/xcpkit/xcp/internal/copyhandle"
	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/posixio"
	"github.com/xcpkit/xcp/internal/xcperrors"
)

// Task is one block-sized unit of work ready for submission to the pool:
// copy Length bytes starting at Offset.
type Task struct {
	Offset int64
	Length int64
}

// Plan examines h and returns either a Reflinked plan (nothing further to
// do) or the list of byte ranges that still need copying, following the
// spec's three-step algorithm: try reflink (if policy allows), else probe
// for sparseness and use the extent map, else fall back to one range
// spanning the whole file.
func Plan(h *copyhandle.CopyHandle) (*model.Plan, error) {
	opts := h.Options
	length := h.Len()

	if opts.Reflink != config.ReflinkNever {
		result, err := posixio.TryReflink(h.Src, h.Dst)
		if err != nil {
			return nil, xcperrors.Io(h.DstPath, err)
		}
		if result == posixio.Reflinked {
			return &model.Plan{Kind: model.PlanReflinked, Len: length}, nil
		}
		if opts.Reflink == config.ReflinkAlways {
			return nil, xcperrors.ReflinkUnavailable(h.SrcPath)
		}
		// ReflinkAuto: fall through to block copying.
	}

	if length > 0 && posixio.ProbablySparse(h.SrcInfo) {
		if extents, ok := posixio.MapExtents(h.Src, length); ok {
			ranges := MergeExtents(extents)
			return &model.Plan{Kind: model.PlanRanges, Ranges: ranges, Len: length}, nil
		}
	}

	return &model.Plan{
		Kind:   model.PlanRanges,
		Ranges: []model.ByteRange{{Start: 0, End: length}},
		Len:    length,
	}, nil
}

// MergeExtents sorts extents by offset and coalesces touching or
// overlapping intervals into a canonical, sorted, disjoint list of byte
// ranges. It is idempotent: merging the output again yields the same list.
func MergeExtents(extents []model.Extent) []model.ByteRange {
	if len(extents) == 0 {
		return nil
	}
	sorted := make([]model.Extent, len(extents))
	copy(sorted, extents)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	ranges := make([]model.ByteRange, 0, len(sorted))
	cur := model.ByteRange{Start: sorted[0].Offset, End: sorted[0].End()}
	for _, ext := range sorted[1:] {
		if ext.Offset <= cur.End {
			if end := ext.End(); end > cur.End {
				cur.End = end
			}
			continue
		}
		ranges = append(ranges, cur)
		cur = model.ByteRange{Start: ext.Offset, End: ext.End()}
	}
	ranges = append(ranges, cur)
	return ranges
}

// Subdivide splits each ByteRange into block-sized tasks, emitted in
// ascending offset order per range (execution order across the pool is
// unconstrained; correctness never depends on it).
func Subdivide(ranges []model.ByteRange, blockSize int64) []Task {
	var tasks []Task
	for _, r := range ranges {
		length := r.Len()
		blocks := length / blockSize
		if length%blockSize > 0 {
			blocks++
		}
		for blkn := int64(0); blkn < blocks; blkn++ {
			off := r.Start + blkn*blockSize
			remaining := r.End - off
			size := blockSize
			if remaining < size {
				size = remaining
			}
			tasks = append(tasks, Task{Offset: off, Length: size})
		}
	}
	return tasks
}
