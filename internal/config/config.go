// Package config defines the engine's recognized options and derives the
// block-pool's bounded queue length from the process's open-file ulimit, as
// spec's design notes ask a production implementation to do instead of
// hard-coding a placeholder.
package config

import (
	"golang.org/x/sys/unix"
)

// ReflinkPolicy selects how aggressively the block planner attempts a
// copy-on-write clone before falling back to block copying.
type ReflinkPolicy int

const (
	// ReflinkAuto tries a reflink and silently falls back.
	ReflinkAuto ReflinkPolicy = iota
	// ReflinkAlways requires a reflink to succeed or fails the file.
	ReflinkAlways
	// ReflinkNever skips the reflink attempt entirely.
	ReflinkNever
)

// Preserve selects which metadata attributes the copy handle carries over
// from source to destination beyond raw bytes.
type Preserve uint8

const (
	PreserveMode Preserve = 1 << iota
	PreserveTimestamps
	PreserveOwnership
)

// DefaultBlockSize is the default per-task byte range: 1 MiB, a power of
// two, matching the spec's "typically 1 MiB" guidance.
const DefaultBlockSize = 1 << 20

// defaultQueueLen is the spec's placeholder bound, used whenever the
// ulimit-derived calculation can't produce a better number.
const defaultQueueLen = 128

// avgBlocksPerFile is a conservative assumption used only for sizing the
// submission queue; it does not affect correctness.
const avgBlocksPerFile = 4

// Options collects every recognized engine setting, immutable after
// construction and shared by reference across all components.
type Options struct {
	BlockSize  int64
	NumWorkers int
	QueueLen   int
	NoClobber  bool
	Reflink    ReflinkPolicy
	Preserve   Preserve
	Fsync      bool
}

// New builds Options, deriving QueueLen from RLIMIT_NOFILE when the caller
// didn't pin one explicitly (queueLen <= 0).
func New(blockSize int64, numWorkers, queueLen int, noClobber bool, reflink ReflinkPolicy, preserve Preserve, fsync bool) *Options {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueLen <= 0 {
		queueLen = queueLenFromUlimit(numWorkers)
	}
	return &Options{
		BlockSize:  blockSize,
		NumWorkers: numWorkers,
		QueueLen:   queueLen,
		NoClobber:  noClobber,
		Reflink:    reflink,
		Preserve:   preserve,
		Fsync:      fsync,
	}
}

// queueLenFromUlimit derives a submission queue length from the process's
// open-file limit: (soft_limit - safety_margin - numWorkers) / avgBlocksPerFile.
// defaultQueueLen is used only when the ulimit can't be read or leaves no
// usable budget at all — it is a fallback for derivation failure, not a
// floor over a successfully-derived smaller number: a constrained ulimit
// deriving a queue shorter than 128 must get that shorter, safer number, or
// the whole point of sizing the queue to the real fd budget is defeated.
func queueLenFromUlimit(numWorkers int) int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return defaultQueueLen
	}
	const safetyMargin = 32
	budget := int64(rlim.Cur) - safetyMargin - int64(numWorkers)
	if budget <= 0 {
		return defaultQueueLen
	}
	derived := int(budget / avgBlocksPerFile)
	if derived <= 0 {
		return defaultQueueLen
	}
	return derived
}
