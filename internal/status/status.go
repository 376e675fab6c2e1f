// Package status implements the status aggregator: the single consumer of
// the fan-in channel fed by the block pool, the dispatcher, and the
// walker. It updates a progress sink and remembers the first observed
// error, matching the spec's propagation policy: the first error becomes
// the invocation's failure, and every later update is still drained (not
// thrown away mid-stream) so workers can exit cleanly.
package status

import (
	"sync/atomic"

	"github.com/xcpkit/xcp/internal/model"
	"github.com/xcpkit/xcp/internal/progresssink"
	"github.com/xcpkit/xcp/internal/xlog"
)

// Snapshot is a point-in-time view of aggregate progress, safe to read
// concurrently from the status API while the aggregator keeps writing.
type Snapshot struct {
	BytesCopied int64
	TotalBytes  int64
	FirstError  error
}

// Aggregator drains a status channel on the caller's goroutine, reporting
// to sink as it goes and publishing a Snapshot for external readers (e.g.
// the embedded status API).
type Aggregator struct {
	sink        progresssink.Sink
	bytesCopied atomic.Int64
	totalBytes  atomic.Int64
	snapshot    atomic.Value // holds Snapshot
}

// New builds an aggregator reporting to sink.
func New(sink progresssink.Sink) *Aggregator {
	a := &Aggregator{sink: sink}
	a.snapshot.Store(Snapshot{})
	return a
}

// Drain consumes statusCh until it is closed (all senders dropped,
// i.e. the walker finished and the dispatcher/pool have joined). It keeps
// draining after an Error update so in-flight worker sends never block,
// returning only the first error it saw.
func (a *Aggregator) Drain(statusCh <-chan model.StatusUpdate) error {
	logger := xlog.With(nil).WithField("component", "status_aggregator")
	var firstErr error

	for update := range statusCh {
		switch update.Kind {
		case model.StatusCopied:
			n := a.bytesCopied.Add(update.Bytes)
			a.sink.Inc(update.Bytes)
			a.publish(n, a.totalBytes.Load(), firstErr)

		case model.StatusSize:
			n := a.totalBytes.Add(update.Bytes)
			a.sink.SetSize(n)
			a.publish(a.bytesCopied.Load(), n, firstErr)

		case model.StatusError:
			logger.WithError(update.Err).Error("received error")
			if firstErr == nil {
				firstErr = update.Err
				a.publish(a.bytesCopied.Load(), a.totalBytes.Load(), firstErr)
			}
		}
	}

	a.sink.End()
	return firstErr
}

func (a *Aggregator) publish(copied, total int64, err error) {
	a.snapshot.Store(Snapshot{BytesCopied: copied, TotalBytes: total, FirstError: err})
}

// Snapshot returns the most recently published aggregate state.
func (a *Aggregator) Snapshot() Snapshot {
	return a.snapshot.Load().(Snapshot)
}
