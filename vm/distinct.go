package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
)

// distinctEntry pairs the persistent representative tuple kept for a
// distinct value with how many input tuples currently back it.
type distinctEntry struct {
	ref   store.Ref
	count int64
}

// Distinct is the reference-counted multiset operator (spec.md
// §4.7.9): PLUS on a value's 0→1 count transition emits PLUS, MINUS
// on a 1→0 transition emits MINUS. Every other arrival only adjusts
// the hidden count and is otherwise swallowed. Store backs one
// persistent copy per distinct value, independent of whatever input
// tuple happened to trigger it first.
type Distinct struct {
	In    *queue.Queue
	Out   *queue.Queue
	Store tupleAllocator

	values map[string]*distinctEntry

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewDistinct(in, out *queue.Queue, st tupleAllocator) *Distinct {
	return &Distinct{In: in, Out: out, Store: st, values: make(map[string]*distinctEntry)}
}

func (d *Distinct) Run(timeSlice int) error {
	if d.stalled {
		if !d.Out.Enqueue(d.stalledElement) {
			return nil
		}
		observeOutput(&d.lastOutputTs, d.stalledElement)
		d.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := d.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&d.lastInputTs, e)

		switch e.Kind {
		case Heartbeat:
			continue
		case Plus:
			if err := d.doPlus(e); err != nil {
				return err
			}
		case Minus:
			d.doMinus(e)
		}
		if d.stalled {
			return nil
		}
	}

	heartbeat(d.Out, &d.lastInputTs, &d.lastOutputTs)
	return nil
}

func (d *Distinct) doPlus(e Element) error {
	key := string(e.Tuple.Row())
	ent, exists := d.values[key]
	if !exists {
		ref, err := d.Store.NewTuple()
		if err != nil {
			e.Tuple.DecrRef()
			return err
		}
		copy(ref.Row(), e.Tuple.Row())
		ent = &distinctEntry{ref: ref}
		d.values[key] = ent
	}
	ent.count++
	e.Tuple.DecrRef()

	if !exists {
		ent.ref.AddRef() // the forwarded Plus element's own holder
		out := Element{Kind: Plus, Tuple: ent.ref, Timestamp: e.Timestamp}
		if !d.Out.Enqueue(out) {
			d.stalled = true
			d.stalledElement = out
			return nil
		}
		observeOutput(&d.lastOutputTs, out)
	}
	return nil
}

func (d *Distinct) doMinus(e Element) {
	key := string(e.Tuple.Row())
	ent, exists := d.values[key]
	e.Tuple.DecrRef()
	if !exists {
		return
	}
	ent.count--
	if ent.count > 0 {
		return
	}

	delete(d.values, key)
	// ent.ref's sole remaining share transfers to the Minus element
	// below; the value map's bookkeeping entry is now gone and was
	// never a second holder.
	out := Element{Kind: Minus, Tuple: ent.ref, Timestamp: e.Timestamp}
	if !d.Out.Enqueue(out) {
		d.stalled = true
		d.stalledElement = out
		return
	}
	observeOutput(&d.lastOutputTs, out)
}
