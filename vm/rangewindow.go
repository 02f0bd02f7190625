package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
)

// RangeWindow is the stream-to-relation range window operator
// (spec.md §4.7.4), in either of its two modes: sliding (Stride == 0)
// expires every tuple with insert_ts <= ts-Size on each PLUS or
// HEARTBEAT; tumbling (Stride > 0) advances windowStart in Stride-sized
// jumps and expires everything that falls behind it.
//
// Per the Design Note resolving Open Question 2 (spec.md §9), the
// stall/expiry logic uses two independently-resumable cursors rather
// than conflating them: pending (the queued-but-not-yet-enqueued PLUS;
// the sweep's MINUSes are enqueued directly by runExpiry) and
// expireUpTo/expiring
// (a sweep that can itself span many Run calls independent of
// whether a new input element is waiting).
type RangeWindow struct {
	In         *queue.Queue
	Out        *queue.Queue
	Size       uint32
	Stride     uint32 // 0 means sliding mode
	Syn        *synopsis.Window
	windowStart uint32

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue

	expiring      bool
	expireUpTo    uint32
	expireSliding bool   // true: stamp each MINUS with its own oldest_ts+Size; false: stamp with expireTs
	expireTs      uint32 // tumbling-mode MINUS timestamp: the arrival that advanced windowStart
}

func NewRangeWindow(in, out *queue.Queue, size, stride uint32, syn *synopsis.Window) *RangeWindow {
	return &RangeWindow{In: in, Out: out, Size: size, Stride: stride, Syn: syn}
}

func (w *RangeWindow) Run(timeSlice int) error {
	if w.pending.pending() {
		if !w.pending.flush(w.Out, &w.lastOutputTs) {
			return nil
		}
	}
	if w.expiring {
		if !w.runExpiry() {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := w.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&w.lastInputTs, e)

		switch e.Kind {
		case Heartbeat:
			// A quiet stream still carries timestamp progress: without
			// this, a window fed no further PLUS never expires its
			// stale tuples (spec.md §8 scenario 2's "expired by @7").
			if !w.advance(e.Timestamp) {
				return nil
			}
		case Minus:
			panic("vm: RangeWindow received MINUS on a stream input")
		case Plus:
			e.Tuple.AddRef()
			w.Syn.Insert(e.Tuple, e.Timestamp)
			w.pending.set([]Element{{Kind: Plus, Tuple: e.Tuple, Timestamp: e.Timestamp}})
			if !w.pending.flush(w.Out, &w.lastOutputTs) {
				return nil
			}
			if !w.advance(e.Timestamp) {
				return nil
			}
		}
	}

	heartbeat(w.Out, &w.lastInputTs, &w.lastOutputTs)
	return nil
}

// expiryBound computes insert_ts <= ts - size in uint32 arithmetic,
// saturating at 0 rather than wrapping when ts < size.
func expiryBound(ts, size uint32) uint32 {
	if ts < size {
		return 0
	}
	return ts - size
}

// advance reacts to a new timestamp ts reaching the window (from a
// PLUS or a HEARTBEAT alike) by starting an expiry sweep if one is
// due, then running it. It returns false if the sweep stalled
// partway (the next Run call resumes it), true otherwise.
func (w *RangeWindow) advance(ts uint32) bool {
	if w.Stride == 0 {
		w.beginExpiry(expiryBound(ts, w.Size), true, 0)
	} else if ts >= w.windowStart+w.Size {
		w.windowStart += w.Stride
		upTo := uint32(0)
		if w.windowStart > 0 {
			upTo = w.windowStart - 1
		}
		w.beginExpiry(upTo, false, ts)
	}
	if w.expiring {
		return w.runExpiry()
	}
	return true
}

func (w *RangeWindow) beginExpiry(upTo uint32, sliding bool, stampTs uint32) {
	w.expiring = true
	w.expireUpTo = upTo
	w.expireSliding = sliding
	w.expireTs = stampTs
}

// runExpiry sweeps the oldest entries off the window synopsis while
// their insertion timestamp is <= expireUpTo. In sliding mode
// (spec.md §4.7.4, grounded on
// original_source/dsms/src/execution/operators/range_win.cc's
// expireTuples) each MINUS is stamped with that tuple's own
// insertion timestamp plus the window size, not the timestamp of
// whatever arrival triggered the sweep; in tumbling mode every MINUS
// in the sweep shares the timestamp of the arrival that advanced
// windowStart. It returns false if it stalled partway (the next call
// resumes the same sweep), true once the sweep is complete.
func (w *RangeWindow) runExpiry() bool {
	for {
		oldest, ts, err := w.Syn.GetOldest()
		if err == store.ErrEmpty || ts > w.expireUpTo {
			w.expiring = false
			return true
		}
		outTs := w.expireTs
		if w.expireSliding {
			outTs = ts + w.Size
		}
		out := Element{Kind: Minus, Tuple: oldest, Timestamp: outTs}
		if !w.Out.Enqueue(out) {
			return false
		}
		observeOutput(&w.lastOutputTs, out)
		w.Syn.DeleteOldest()
	}
}
