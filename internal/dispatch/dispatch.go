// Package dispatch implements the dispatcher: a single goroutine that
// consumes CopyOps from the job channel, builds a plan for each via the
// block planner, and submits the resulting block tasks to the pool.
package dispatch

import (
	"context"

	"github.com/xcpkit/xcp/internal/blockplan"
	"github.com/xcpkit/xcp/internal/blockpool"
	"github.com/xcpkit/xcp/internal/config"
	"github.com/xcpkit/xcp/internal/copyhandle"
	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/xcperrors"
	"github.com/xcpkit/xcp/internal/xlog"
)

// Dispatcher drains a job channel and feeds the block pool, exactly as
// described in the spec: construct a handle, plan it, either report a
// completed reflink or submit block tasks and drop its own reference.
type Dispatcher struct {
	opts     *config.Options
	pool     *blockpool.Pool
	statusCh chan<- model.StatusUpdate
}

// New builds a dispatcher that submits work to pool and reports status on
// statusCh.
func New(opts *config.Options, pool *blockpool.Pool, statusCh chan<- model.StatusUpdate) *Dispatcher {
	return &Dispatcher{opts: opts, pool: pool, statusCh: statusCh}
}

// Run consumes jobs from jobCh until it is closed or the first per-file
// error occurs, whichever comes first: the dispatcher's own loop
// short-circuits on error, exactly as the original driver's dispatch_worker
// returns immediately from its "for op in file_q" loop rather than
// continuing to the next queued file. jobCh is expected to be the
// never-blocking side of a jobqueue.Unbounded relay, so abandoning it here
// never stalls whatever is still producing into it.
func (d *Dispatcher) Run(ctx context.Context, jobCh <-chan model.CopyOp) error {
	logger := xlog.With(nil).WithField("component", "dispatcher")

	for op := range jobCh {
		if err := d.dispatchOne(ctx, op); err != nil {
			logger.WithError(err).WithFields(map[string]any{
				"from": op.From,
				"to":   op.Target,
			}).Error("dispatcher: error copying file, aborting")
			d.statusCh <- model.ErrorUpdate(xcperrors.CopyErrorf("%v", err))
			d.pool.Join()
			return err
		}
	}

	logger.Info("queuing complete")
	d.pool.Join()
	logger.Info("pool complete")
	return nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, op model.CopyOp) error {
	handle, err := copyhandle.New(op.From, op.Target, d.opts)
	if err != nil {
		return err
	}

	plan, err := blockplan.Plan(handle)
	if err != nil {
		_ = handle.Release()
		return err
	}

	if plan.Kind == model.PlanReflinked {
		d.statusCh <- model.Copied(plan.Len)
		return handle.Release()
	}

	tasks := blockplan.Subdivide(plan.Ranges, d.opts.BlockSize)
	for _, t := range tasks {
		if err := d.pool.SubmitBlock(ctx, handle, t.Offset, t.Length, d.statusCh); err != nil {
			_ = handle.Release()
			return err
		}
	}
	// The tasks now hold their own references; drop the dispatcher's.
	return handle.Release()
}
