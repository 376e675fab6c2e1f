package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNewAppliesDefaults(t *testing.T) {
	opts := New(0, 0, 0, false, ReflinkAuto, PreserveMode, false)
	assert.Equal(t, int64(DefaultBlockSize), opts.BlockSize)
	assert.Equal(t, 4, opts.NumWorkers)
	assert.Equal(t, queueLenFromUlimit(4), opts.QueueLen)
}

func TestNewHonorsExplicitValues(t *testing.T) {
	opts := New(4096, 8, 16, true, ReflinkAlways, PreserveMode|PreserveTimestamps, true)
	assert.Equal(t, int64(4096), opts.BlockSize)
	assert.Equal(t, 8, opts.NumWorkers)
	assert.Equal(t, 16, opts.QueueLen)
	assert.True(t, opts.NoClobber)
	assert.Equal(t, ReflinkAlways, opts.Reflink)
	assert.True(t, opts.Preserve&PreserveMode != 0)
	assert.True(t, opts.Preserve&PreserveTimestamps != 0)
	assert.True(t, opts.Preserve&PreserveOwnership == 0)
	assert.True(t, opts.Fsync)
}

// TestQueueLenFromUlimitMatchesDerivedFormula asserts the function returns
// the real derived value even when it falls below defaultQueueLen: on a
// constrained ulimit, the safe (smaller) derived number must win, not the
// placeholder. defaultQueueLen is only for when derivation itself fails or
// yields no usable budget.
func TestQueueLenFromUlimitMatchesDerivedFormula(t *testing.T) {
	var rlim unix.Rlimit
	require.NoError(t, unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim))

	const numWorkers = 4
	const safetyMargin = 32
	budget := int64(rlim.Cur) - safetyMargin - numWorkers
	got := queueLenFromUlimit(numWorkers)

	if budget <= 0 {
		assert.Equal(t, defaultQueueLen, got)
		return
	}
	derived := int(budget / avgBlocksPerFile)
	if derived <= 0 {
		assert.Equal(t, defaultQueueLen, got)
		return
	}
	assert.Equal(t, derived, got)
}
