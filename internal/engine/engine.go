// Package engine implements the top-level orchestrator: it wires the tree
// walker, dispatcher, and block pool together, owns their lifetimes, and
// drains the status channel to completion.
package engine

import (
	"context"
	"runtime"

	"github.com/xcpkit/xcp/internal/blockplan"
	"github.com/xcpkit/xcp/internal/blockpool"
	"github.com/xcpkit/xcp/internal/config"
	"github.com/xcpkit/xcp/internal/copyhandle"
	"github.com/xcpkit/xcp/internal/dispatch"
	"github.com/xcpkit/xcp/internal/jobqueue"
	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/progresssink"
	"github.com/xcpkit/xcp/internal/status"
	"github.com/xcpkit/xcp/internal/walker"
	"github.com/xcpkit/xcp/internal/xcperrors"
	"github.com/xcpkit/xcp/internal/xlog"
)

// supportedPlatform reports whether the current GOOS is one this engine's
// positional I/O primitives are implemented for, mirroring the original
// driver's cfg_if! platform gate.
func supportedPlatform() bool {
	switch runtime.GOOS {
	case "linux", "android", "freebsd", "netbsd", "dragonfly", "darwin":
		return true
	default:
		return false
	}
}

// Engine owns a set of Options and the goroutine lifetimes of one copy
// invocation.
type Engine struct {
	opts *config.Options
	sink progresssink.Sink
}

// New constructs an Engine, rejecting non-POSIX targets immediately with
// UnsupportedOS — there is no graceful degradation path.
func New(opts *config.Options, sink progresssink.Sink) (*Engine, error) {
	if !supportedPlatform() {
		return nil, xcperrors.UnsupportedOS("this engine is not supported on " + runtime.GOOS)
	}
	if sink == nil {
		sink = progresssink.Silent{}
	}
	return &Engine{opts: opts, sink: sink}, nil
}

// CopySingle runs single-file mode: no walker, just handle + plan + submit
// + join on the calling goroutine, with the status channel drained on a
// separate goroutine.
func (e *Engine) CopySingle(ctx context.Context, source, dest string) error {
	statusCh := make(chan model.StatusUpdate, 256)

	// Start draining before any block task can possibly send: once block
	// tasks run, they send on statusCh from within the pool's own
	// goroutines, and the submission loop below blocks (by design) once
	// the pool's bounded queue fills. If nothing were reading statusCh
	// yet, a full channel buffer would wedge those goroutines and, in
	// turn, the submission loop waiting on the same semaphore they hold.
	agg := status.New(e.sink)
	aggErrCh := make(chan error, 1)
	go func() { aggErrCh <- agg.Drain(statusCh) }()

	handle, err := copyhandle.New(source, dest, e.opts)
	if err != nil {
		close(statusCh)
		<-aggErrCh
		return err
	}

	plan, err := blockplan.Plan(handle)
	if err != nil {
		_ = handle.Release()
		close(statusCh)
		<-aggErrCh
		return err
	}

	pool := blockpool.New(e.opts.NumWorkers, e.opts.QueueLen)
	statusCh <- model.Size(plan.Len)

	if plan.Kind == model.PlanReflinked {
		statusCh <- model.Copied(plan.Len)
		_ = handle.Release()
	} else {
		tasks := blockplan.Subdivide(plan.Ranges, e.opts.BlockSize)
		submitErr := error(nil)
		for _, t := range tasks {
			if err := pool.SubmitBlock(ctx, handle, t.Offset, t.Length, statusCh); err != nil {
				submitErr = err
				break
			}
		}
		_ = handle.Release()
		pool.Join()
		close(statusCh)
		if submitErr != nil {
			<-aggErrCh
			return submitErr
		}
		return <-aggErrCh
	}

	pool.Join()
	close(statusCh)
	return <-aggErrCh
}

// CopyTree runs tree mode: the dispatcher runs on its own goroutine, the
// walker runs inline on the calling goroutine, and the status channel is
// drained on another goroutine concurrently with both. A dispatcher panic is converted to
// xcperrors.CopyError("dispatch failed"), matching the spec's orchestrator
// contract.
func (e *Engine) CopyTree(ctx context.Context, sources []string, dest string, skip walker.SkipFunc) error {
	logger := xlog.With(nil).WithField("component", "orchestrator")

	// jobCh must never block the walker, including after the dispatcher
	// gives up early on the first per-file error: an Unbounded relay (not
	// a plain channel, whose fixed buffer a large enough tree would still
	// fill) is what makes the dispatcher's short-circuit-on-error loop
	// safe to use here.
	jobs := jobqueue.NewUnbounded()
	statusCh := make(chan model.StatusUpdate, 256)

	pool := blockpool.New(e.opts.NumWorkers, e.opts.QueueLen)
	d := dispatch.New(e.opts, pool, statusCh)

	// The aggregator drains concurrently with the walk and dispatch, not
	// after: block tasks send status updates throughout dispatch, and
	// waiting to start draining until dispatch finishes (which itself
	// waits on those same tasks via pool.Join) would deadlock once the
	// channel's buffer fills on any tree of nontrivial size.
	agg := status.New(e.sink)
	aggErrCh := make(chan error, 1)
	go func() { aggErrCh <- agg.Drain(statusCh) }()

	dispatchErrCh := make(chan error, 1)
	go func() {
		defer close(dispatchErrCh)
		defer func() {
			if r := recover(); r != nil {
				dispatchErrCh <- xcperrors.CopyErrorf("dispatch failed: %v", r)
			}
		}()
		dispatchErrCh <- d.Run(ctx, jobs.Out)
	}()

	w := &walker.Walker{
		JobCh:      jobs.In,
		StatusCh:   statusCh,
		NoClobber:  e.opts.NoClobber,
		ShouldSkip: skip,
	}
	walkErr := w.Walk(sources, dest)
	close(jobs.In)

	dispatchErr := <-dispatchErrCh
	close(statusCh)
	aggErr := <-aggErrCh

	if walkErr != nil {
		logger.WithError(walkErr).Error("walk failed")
		return walkErr
	}
	if dispatchErr != nil {
		return dispatchErr
	}
	return aggErr
}
