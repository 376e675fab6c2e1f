// Package blockpool implements the bounded thread pool that executes
// per-range block copies. Submission blocks when the pool is saturated:
// that blocking is the engine's primary backpressure mechanism, capping the
// number of files with open descriptors in flight.
package blockpool

import (
	"context"

	"github.com/xcpkit/xcp/internal/copyhandle"
	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/posixio"
	"github.com/xcpkit/xcp/internal/xcperrors"
	"github.com/xcpkit/xcp/internal/xlog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool is a fixed-size worker pool (g, limited to NumWorkers concurrently
// running goroutines) gated by a submission semaphore (sem, sized QueueLen)
// that counts each task from submission until it finishes. Because g.Go
// itself waits for a free worker slot, Submit blocks as soon as
// min(NumWorkers, QueueLen) tasks are outstanding: no submitted task waits
// in a queue behind the running ones, and QueueLen only limits anything
// when it is smaller than NumWorkers. A block task's failure never cancels its siblings: the pool
// never wires a cancellable context into the errgroup, it only uses it to
// collect completion.
type Pool struct {
	sem *semaphore.Weighted
	g   *errgroup.Group
}

// New builds a pool with numWorkers concurrently-executing goroutines whose
// Submit blocks once min(numWorkers, queueLen) tasks are outstanding.
func New(numWorkers, queueLen int) *Pool {
	g := &errgroup.Group{}
	g.SetLimit(numWorkers)
	return &Pool{
		sem: semaphore.NewWeighted(int64(queueLen)),
		g:   g,
	}
}

// Submit blocks until a submission slot is available (or ctx is done), then
// hands task to a pool goroutine. It never returns the task's own error;
// tasks report their outcome over a status channel instead.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.g.Go(func() error {
		defer p.sem.Release(1)
		task()
		return nil
	})
	return nil
}

// SubmitBlock submits a single [offset, offset+length) block copy against
// handle, sending a Copied or Error update on statusCh when it completes.
// The handle gains a reference for the task's lifetime.
func (p *Pool) SubmitBlock(ctx context.Context, h *copyhandle.CopyHandle, offset, length int64, statusCh chan<- model.StatusUpdate) error {
	h.Acquire()
	return p.Submit(ctx, func() {
		defer h.Release()
		n, err := posixio.CopyFileOffset(h.Src, h.Dst, length, offset)
		if err != nil {
			xlog.With(nil).WithError(err).WithField("path", h.SrcPath).Error("block copy failed, aborting this block")
			statusCh <- model.ErrorUpdate(xcperrors.CopyErrorf("copy %s at offset %d: %v", h.SrcPath, offset, err))
			return
		}
		statusCh <- model.Copied(n)
	})
}

// Join waits for every submitted task to complete.
func (p *Pool) Join() {
	_ = p.g.Wait()
}
