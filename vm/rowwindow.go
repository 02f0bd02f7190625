package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/synopsis"
)

// RowWindow is the stream-to-relation row window operator (spec.md
// §4.7.3): the last N arrivals, FIFO. MINUS on the input is disallowed
// by the invariant that only a stream (never a relation) feeds a row
// window; a MINUS arriving here is a programming error upstream.
type RowWindow struct {
	In   *queue.Queue
	Out  *queue.Queue
	Size int
	Syn  *synopsis.Window

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewRowWindow(in, out *queue.Queue, size int, syn *synopsis.Window) *RowWindow {
	return &RowWindow{In: in, Out: out, Size: size, Syn: syn}
}

func (w *RowWindow) Run(timeSlice int) error {
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
			panic("vm: RowWindow received MINUS on a stream input")
		case Plus:
			var out []Element
			if w.Syn.Len() >= w.Size {
				oldest, _, err := w.Syn.GetOldest()
				if err != nil {
					panic("vm: RowWindow full but GetOldest failed: " + err.Error())
				}
				w.Syn.DeleteOldest()
				out = append(out, Element{Kind: Minus, Tuple: oldest, Timestamp: e.Timestamp})
			}
			e.Tuple.AddRef()
			w.Syn.Insert(e.Tuple, e.Timestamp)
			out = append(out, Element{Kind: Plus, Tuple: e.Tuple, Timestamp: e.Timestamp})
			w.pending.set(out)
			if !w.pending.flush(w.Out, &w.lastOutputTs) {
				return nil
			}
		}
	}

	heartbeat(w.Out, &w.lastInputTs, &w.lastOutputTs)
	return nil
}
