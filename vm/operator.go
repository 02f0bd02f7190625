package vm

import "github.com/kajic/dsms/queue"

// Operator is the contract every physical operator satisfies, per
// spec.md §4.7: the scheduler calls Run repeatedly, handing it a
// budget of input elements to consume. A non-nil error is a runtime
// error (spec.md §7) and is fatal: it propagates out of
// sched.Scheduler.Run and stops execution. QueueFull and
// empty-input conditions are not errors — an operator simply returns
// having made partial or no progress, and is called again later.
type Operator interface {
	Run(timeSlice int) error
}

// heartbeat is the shared helper implementing the rule every operator
// in spec.md §4.7 must apply: "unconditionally maintain last_input_ts
// and last_output_ts and emit a HEARTBEAT with last_input_ts when
// [the operator] could otherwise produce nothing but
// last_input_ts > last_output_ts". It is factored out once here
// (rather than copy-pasted per operator, as the original C++ source
// does) because the rule is textually identical in every operator —
// a generalization licensed by "keep HOW, replace WHAT".
//
// It returns true if a heartbeat was emitted (and *lastOutputTs
// advanced to match), false if the queue was full (caller should
// treat this exactly like any other stalled enqueue) or if no
// heartbeat was owed.
func heartbeat(out *queue.Queue, lastInputTs, lastOutputTs *uint32) bool {
	if *lastInputTs <= *lastOutputTs {
		return false
	}
	if !out.Enqueue(Element{Kind: Heartbeat, Timestamp: *lastInputTs}) {
		return false
	}
	*lastOutputTs = *lastInputTs
	return true
}

// observeInput updates lastInputTs from an element just dequeued from
// the input side, per the monotonicity invariant (spec.md §3).
func observeInput(lastInputTs *uint32, e Element) {
	*lastInputTs = e.Timestamp
}

// observeOutput updates lastOutputTs after an element (PLUS, MINUS,
// or a re-emitted HEARTBEAT) was actually enqueued downstream.
func observeOutput(lastOutputTs *uint32, e Element) {
	*lastOutputTs = e.Timestamp
}

// emitQueue is a small resumable cursor shared by operators that may
// need to enqueue more than one output element for a single input
// element (row/range/partition windows emitting a PLUS plus an
// expiry MINUS, union/except threading a pair through a lineage
// synopsis, ...). It is the generalization of the per-operator
// "stalledElement" field to "stalled elements", kept as one small
// helper instead of copy-pasted per operator.
type emitQueue struct {
	elems []Element
	idx   int
}

// pending reports whether a previous flush was interrupted partway.
func (q *emitQueue) pending() bool { return q.idx < len(q.elems) }

// set loads a fresh batch of elements to emit, replacing any
// previously (fully) flushed batch.
func (q *emitQueue) set(elems []Element) {
	q.elems = elems
	q.idx = 0
}

// flush enqueues every remaining element in order, stopping (and
// returning false) the moment out is full; the next flush call picks
// up exactly where this one left off.
func (q *emitQueue) flush(out *queue.Queue, lastOutputTs *uint32) bool {
	for q.idx < len(q.elems) {
		if !out.Enqueue(q.elems[q.idx]) {
			return false
		}
		observeOutput(lastOutputTs, q.elems[q.idx])
		q.idx++
	}
	q.elems = q.elems[:0]
	q.idx = 0
	return true
}
