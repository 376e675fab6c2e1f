// Package jobqueue implements the unbounded relay between the tree walker
// and the dispatcher. spec.md requires CopyOps to flow through an unbounded
// job channel specifically so that a dispatcher which gives up early after
// an error never deadlocks the walker still discovering files; no channel
// with a fixed Go buffer can give that guarantee for an arbitrarily large
// tree, so this package buffers internally in a growable slice instead.
//
// No pack example ships an unbounded-channel type (the closest relative,
// the teacher's bounded worker queues, is the opposite of what's needed
// here), so this is built directly on stdlib channels rather than a
// third-party library.
package jobqueue

import "github.com/xcpkit/xcp/internal/model"

// Unbounded relays CopyOps sent on In to Out, buffering internally without
// bound so a send on In never blocks, no matter how far behind (or how
// permanently stalled) whatever is reading Out has fallen.
type Unbounded struct {
	In  chan model.CopyOp
	Out chan model.CopyOp
}

// NewUnbounded starts the relay goroutine and returns the channel pair.
// Close In once the producer is done; Out closes once every buffered item
// has been relayed. If the reader stops receiving from Out first, the relay
// goroutine stays blocked holding the remaining items and Out is never
// closed.
func NewUnbounded() *Unbounded {
	u := &Unbounded{
		In:  make(chan model.CopyOp),
		Out: make(chan model.CopyOp),
	}
	go u.relay()
	return u
}

func (u *Unbounded) relay() {
	defer close(u.Out)
	var buf []model.CopyOp
	in := u.In
	for in != nil || len(buf) > 0 {
		if len(buf) == 0 {
			op, ok := <-in
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, op)
			continue
		}
		select {
		case op, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			buf = append(buf, op)
		case u.Out <- buf[0]:
			buf = buf[1:]
		}
	}
}
