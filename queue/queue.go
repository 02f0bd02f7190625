// Package queue implements the bounded element queues that connect
// adjacent physical operators (spec.md §4.6): a single-producer,
// single-consumer ring buffer carrying the PLUS/MINUS/HEARTBEAT
// element stream, plus the peek-ahead and occupancy bookkeeping the
// scheduler's stall/heartbeat protocol needs on top of it.
//
// Element lives here, not in vm, so that vm can hold a *Queue as an
// operator's input/output without an import cycle; vm re-exports it
// as vm.Element for callers who never otherwise touch this package.
package queue

import (
	"sync/atomic"

	"code.hybscloud.com/lfq"

	"github.com/kajic/dsms/store"
)

// Kind is the tag carried by every element flowing through a queue,
// per spec.md §3: an insertion, a deletion, or a liveness pulse
// carrying no tuple.
type Kind int

const (
	Plus Kind = iota
	Minus
	Heartbeat
)

func (k Kind) String() string {
	switch k {
	case Plus:
		return "PLUS"
	case Minus:
		return "MINUS"
	case Heartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// Element is one entry of the stream flowing between two operators.
// Tuple is the zero Ref for a HEARTBEAT element.
type Element struct {
	Kind      Kind
	Tuple     store.Ref
	Timestamp uint32
}

// IsHeartbeat reports whether e carries no tuple.
func (e Element) IsHeartbeat() bool { return e.Kind == Heartbeat }

// Queue is a bounded SPSC element queue with a one-element
// look-ahead cache layered over code.hybscloud.com/lfq's ring
// buffer, since lfq deliberately omits Len/Peek (exact occupancy
// needs cross-core synchronization it isn't willing to pay for). The
// cache is what lets an operator inspect the next element — to
// decide whether it can make progress — without consuming it.
//
// occupancy tracks element count for monitors. For the two queues
// crossing into the external I/O goroutines (spec.md §5) it must be
// a true atomic counter — code.hybscloud.com/atomix's own exported
// surface only covers plain load/store (as lfq's ring buffer uses
// it), not the read-modify-write an occupancy count needs, so this
// counter is the stdlib's sync/atomic.Int64 instead. Interior
// operator-to-operator queues are only ever touched by the single
// scheduler thread and use a plain int, set via NewInterior.
type Queue struct {
	ring       *lfq.SPSC[Element]
	capacity   int // logical capacity, independent of lfq's rounded ring size
	peeked     *Element
	cross      bool
	occupancy  atomic.Int64
	occupancyN int
	lastTs     uint32
	haveLastTs bool
}

// lfq.NewSPSC panics below capacity 2 (code.hybscloud.com/lfq,
// spsc.go: "capacity must be >= 2") and otherwise rounds any capacity
// up to the next power of two. Neither behavior is acceptable as the
// queue's own notion of capacity: spec.md's QUEUE_SIZE (and a window
// of exactly 1, per §8 scenario 5) must be honored exactly, so the
// logical capacity is tracked in Queue.capacity and enforced in
// Enqueue/IsFull; ringCapacity only pads the value handed to lfq.
func ringCapacity(n int) int {
	if n < 2 {
		return 2
	}
	return n
}

func logicalCapacity(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// New creates a queue of the given capacity for use across a
// goroutine boundary (spec.md §5's two boundary queues): occupancy is
// tracked with a true atomic counter.
func New(capacity int) *Queue {
	return &Queue{ring: lfq.NewSPSC[Element](ringCapacity(capacity)), capacity: logicalCapacity(capacity), cross: true}
}

// NewInterior creates a queue for use strictly between two operators
// run by the same scheduler thread, where a plain counter suffices.
func NewInterior(capacity int) *Queue {
	return &Queue{ring: lfq.NewSPSC[Element](ringCapacity(capacity)), capacity: logicalCapacity(capacity), cross: false}
}

func (q *Queue) incr() {
	if q.cross {
		q.occupancy.Add(1)
	} else {
		q.occupancyN++
	}
}

func (q *Queue) decr() {
	if q.cross {
		q.occupancy.Add(-1)
	} else {
		q.occupancyN--
	}
}

// Len returns the queue's current element count, including any
// peeked element not yet consumed.
func (q *Queue) Len() int {
	if q.cross {
		return int(q.occupancy.Load())
	}
	return q.occupancyN
}

// IsEmpty reports whether the queue currently holds no element.
func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// IsFull reports whether the queue has no room for another element,
// against its own logical capacity rather than lfq's rounded ring
// size.
func (q *Queue) IsFull() bool { return q.Len() >= q.capacity }

// Enqueue appends e to the queue (producer side only). It returns
// false if the queue is full.
func (q *Queue) Enqueue(e Element) bool {
	if q.IsFull() {
		return false
	}
	if err := q.ring.Enqueue(&e); err != nil {
		return false
	}
	q.incr()
	q.lastTs = e.Timestamp
	q.haveLastTs = true
	return true
}

// Peek returns the next element without removing it, so an operator
// can decide whether it's able to act on it before committing to
// Dequeue. ok is false if the queue is empty.
func (q *Queue) Peek() (Element, bool) {
	if q.peeked != nil {
		return *q.peeked, true
	}
	e, err := q.ring.Dequeue()
	if err != nil {
		return Element{}, false
	}
	q.peeked = &e
	return e, true
}

// Dequeue removes and returns the next element (consumer side only).
// ok is false if the queue is empty.
func (q *Queue) Dequeue() (Element, bool) {
	if q.peeked != nil {
		e := *q.peeked
		q.peeked = nil
		q.decr()
		return e, true
	}
	e, err := q.ring.Dequeue()
	if err != nil {
		return Element{}, false
	}
	q.decr()
	return e, true
}

// LastTimestamp returns the timestamp of the most recently enqueued
// element, for monitors and the heartbeat rule.
func (q *Queue) LastTimestamp() (uint32, bool) { return q.lastTs, q.haveLastTs }

// ElementCount is a monitor-registry-facing accessor; see
// monitor.IntProp.
func (q *Queue) ElementCount() int32 { return int32(q.Len()) }
