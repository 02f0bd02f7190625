package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/synopsis"
)

// PartitionWindow is logically one row window per partition key
// (spec.md §4.7.5). It keeps its own copy of each input tuple (via
// Store) so the window's storage is independent of whatever the
// input queue's own store does with it, then tracks that copy in a
// partition-window synopsis keyed by the declared partition columns.
type PartitionWindow struct {
	In    *queue.Queue
	Out   *queue.Queue
	Size  int
	Store tupleAllocator
	Syn   *synopsis.PartitionWindow

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewPartitionWindow(in, out *queue.Queue, size int, st tupleAllocator, syn *synopsis.PartitionWindow) *PartitionWindow {
	return &PartitionWindow{In: in, Out: out, Size: size, Store: st, Syn: syn}
}

func (w *PartitionWindow) Run(timeSlice int) error {
	if w.pending.pending() {
		if !w.pending.flush(w.Out, &w.lastOutputTs) {
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
			continue
		case Minus:
			panic("vm: PartitionWindow received MINUS on a stream input")
		case Plus:
			if err := w.doPlus(e); err != nil {
				return err
			}
		}
	}

	heartbeat(w.Out, &w.lastInputTs, &w.lastOutputTs)
	return nil
}

func (w *PartitionWindow) doPlus(e Element) error {
	cp, err := w.Store.NewTuple()
	if err != nil {
		return err
	}
	copy(cp.Row(), e.Tuple.Row())

	// e.Tuple itself is forwarded unchanged; cp is an independent copy
	// living in the window's own store, so window storage never
	// aliases whatever the input queue's store does with the original.
	out := []Element{{Kind: Plus, Tuple: e.Tuple, Timestamp: e.Timestamp}}

	key := w.Syn.KeyOf(cp)
	if w.Syn.PartitionSize(key) >= w.Size {
		oldest, err := w.Syn.DeleteOldestOf(key)
		if err != nil {
			panic("vm: PartitionWindow partition full but DeleteOldestOf failed: " + err.Error())
		}
		out = append(out, Element{Kind: Minus, Tuple: oldest, Timestamp: e.Timestamp})
	}
	w.Syn.InsertPartitioned(cp, e.Timestamp)

	w.pending.set(out)
	if !w.pending.flush(w.Out, &w.lastOutputTs) {
		return nil
	}
	return nil
}
