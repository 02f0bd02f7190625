package vm

import "github.com/kajic/dsms/queue"

// Tee broadcasts every element from In to each queue in Out, the
// general fan-out node a plan graph needs wherever one operator's
// output feeds more than one downstream consumer (spec.md §2: "a
// directed acyclic graph (with possible fan-out)"). A forwarded PLUS
// gets one AddRef per extra branch, since each downstream queue is now
// an independent holder of the same tuple; Tee itself never copies a
// tuple's bytes. Grounded on SysStreamGen's own multi-branch fan-out
// bookkeeping (spec.md §4.7.13), generalized into its own operator for
// plan nodes that need to feed more than one consumer.
type Tee struct {
	In  *queue.Queue
	Out []*queue.Queue

	lastInputTs, lastOutputTs uint32

	// pending holds, per branch, the elements not yet flushed from
	// the current fan-out batch — a branch whose queue is momentarily
	// full must not block delivery to the others.
	pending [][]Element
	idx     []int
}

// NewTee creates a fan-out operator reading from in and broadcasting
// to every queue in out.
func NewTee(in *queue.Queue, out []*queue.Queue) *Tee {
	return &Tee{In: in, Out: out, pending: make([][]Element, len(out)), idx: make([]int, len(out))}
}

func (t *Tee) hasPending() bool {
	for _, p := range t.pending {
		if len(p) > 0 {
			return true
		}
	}
	return false
}

func (t *Tee) flush() bool {
	done := true
	for i, out := range t.Out {
		q := t.pending[i]
		for t.idx[i] < len(q) {
			if !out.Enqueue(q[t.idx[i]]) {
				done = false
				break
			}
			t.idx[i]++
		}
		if t.idx[i] >= len(q) && len(q) > 0 {
			t.pending[i] = nil
			t.idx[i] = 0
		}
	}
	return done
}

func (t *Tee) Run(timeSlice int) error {
	if t.hasPending() {
		if !t.flush() {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := t.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&t.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		for b := range t.Out {
			if b > 0 {
				e.Tuple.AddRef()
			}
			t.pending[b] = []Element{e}
		}
		if !t.flush() {
			return nil
		}
		t.lastOutputTs = e.Timestamp
	}

	for _, out := range t.Out {
		heartbeat(out, &t.lastInputTs, &t.lastOutputTs)
	}
	return nil
}
