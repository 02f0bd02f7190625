package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
)

// Union merges two inputs of identical layout, forwarding every
// element from either side unchanged (spec.md §4.7.11). When the
// result is relation-valued, Lineage threads PLUS/MINUS pairs through
// a one-to-one lineage keyed by the input tuple so a later operator
// can still pair them; Lineage is nil for a pure-stream union, in
// which case inputs simply pass through untouched.
type Union struct {
	LeftIn, RightIn *queue.Queue
	Out             *queue.Queue

	Store   tupleAllocator // nil when Lineage is nil: inputs forward as-is
	Lineage *store.Lineage // nil for a pure-stream union

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewUnion(leftIn, rightIn, out *queue.Queue, st tupleAllocator, lineage *store.Lineage) *Union {
	return &Union{LeftIn: leftIn, RightIn: rightIn, Out: out, Store: st, Lineage: lineage}
}

func (u *Union) Run(timeSlice int) error {
	if u.stalled {
		if !u.Out.Enqueue(u.stalledElement) {
			return nil
		}
		observeOutput(&u.lastOutputTs, u.stalledElement)
		u.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		le, lok := u.LeftIn.Peek()
		re, rok := u.RightIn.Peek()
		if !lok && !rok {
			break
		}

		var in *queue.Queue
		if !rok || (lok && le.Timestamp <= re.Timestamp) {
			in = u.LeftIn
		} else {
			in = u.RightIn
		}
		e, _ := in.Dequeue()
		observeInput(&u.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		out, err := u.process(e)
		if err != nil {
			return err
		}
		if !u.Out.Enqueue(out) {
			u.stalled = true
			u.stalledElement = out
			return nil
		}
		observeOutput(&u.lastOutputTs, out)
	}

	heartbeat(u.Out, &u.lastInputTs, &u.lastOutputTs)
	return nil
}

func (u *Union) process(e Element) (Element, error) {
	if u.Lineage == nil {
		return e, nil
	}
	if e.Kind == Plus {
		outRef, err := u.Store.NewTuple()
		if err != nil {
			e.Tuple.DecrRef()
			return Element{}, err
		}
		copy(outRef.Row(), e.Tuple.Row())
		if err := u.Lineage.InsertLineage(outRef, e.Tuple); err != nil {
			e.Tuple.DecrRef()
			return Element{}, err
		}
		outRef.AddRef() // the forwarded Plus element's own holder
		e.Tuple.DecrRef()
		return Element{Kind: Plus, Tuple: outRef, Timestamp: e.Timestamp}, nil
	}
	outRef, ok := u.Lineage.LookupLineage(e.Tuple)
	e.Tuple.DecrRef()
	if !ok {
		return Element{}, nil
	}
	u.Lineage.DeleteLineage(e.Tuple)
	return Element{Kind: Minus, Tuple: outRef, Timestamp: e.Timestamp}, nil
}

// Except is the anti-semijoin operator (spec.md §4.7.11): Right is
// maintained as a reference count per value; a Left PLUS/MINUS
// produces an output PLUS/MINUS only while that value's right-side
// count is zero. An update on either side that flips a value's
// zero/nonzero status propagates the consequent MINUS/PLUS pair for
// every currently-held Left tuple with that value.
type Except struct {
	LeftIn, RightIn *queue.Queue
	Out             *queue.Queue

	Key store.KeyFunc // extracts the comparison key from either side's row

	rightCount map[string]int64
	leftHeld   map[string][]store.Ref // Left tuples currently suppressed/passed, by key

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewExcept(leftIn, rightIn, out *queue.Queue, key store.KeyFunc) *Except {
	return &Except{
		LeftIn: leftIn, RightIn: rightIn, Out: out, Key: key,
		rightCount: make(map[string]int64),
		leftHeld:   make(map[string][]store.Ref),
	}
}

func (x *Except) Run(timeSlice int) error {
	if x.pending.pending() {
		if !x.pending.flush(x.Out, &x.lastOutputTs) {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		le, lok := x.LeftIn.Peek()
		re, rok := x.RightIn.Peek()
		if !lok && !rok {
			break
		}

		var out []Element
		var err error
		if !rok || (lok && le.Timestamp <= re.Timestamp) {
			e, _ := x.LeftIn.Dequeue()
			observeInput(&x.lastInputTs, e)
			if e.Kind == Heartbeat {
				continue
			}
			out, err = x.doLeft(e)
		} else {
			e, _ := x.RightIn.Dequeue()
			observeInput(&x.lastInputTs, e)
			if e.Kind == Heartbeat {
				continue
			}
			out, err = x.doRight(e)
		}
		if err != nil {
			return err
		}
		x.pending.set(out)
		if !x.pending.flush(x.Out, &x.lastOutputTs) {
			return nil
		}
	}

	heartbeat(x.Out, &x.lastInputTs, &x.lastOutputTs)
	return nil
}

func (x *Except) doLeft(e Element) ([]Element, error) {
	key := string(x.Key(e.Tuple.Row()))
	suppressed := x.rightCount[key] > 0

	if e.Kind == Plus {
		if suppressed {
			x.leftHeld[key] = append(x.leftHeld[key], e.Tuple) // held, not released: may need forwarding later
			return nil, nil
		}
		x.leftHeld[key] = append(x.leftHeld[key], e.Tuple)
		e.Tuple.AddRef() // a second holder for the forwarded Plus
		return []Element{{Kind: Plus, Tuple: e.Tuple, Timestamp: e.Timestamp}}, nil
	}

	held := x.leftHeld[key]
	for i, r := range held {
		if store.Same(r, e.Tuple) {
			held = append(held[:i], held[i+1:]...)
			break
		}
	}
	if len(held) == 0 {
		delete(x.leftHeld, key)
	} else {
		x.leftHeld[key] = held
	}
	if suppressed {
		e.Tuple.DecrRef()
		return nil, nil
	}
	return []Element{{Kind: Minus, Tuple: e.Tuple, Timestamp: e.Timestamp}}, nil
}

func (x *Except) doRight(e Element) ([]Element, error) {
	key := string(x.Key(e.Tuple.Row()))
	before := x.rightCount[key]
	if e.Kind == Plus {
		x.rightCount[key] = before + 1
	} else {
		x.rightCount[key] = before - 1
		if x.rightCount[key] <= 0 {
			delete(x.rightCount, key)
		}
	}
	e.Tuple.DecrRef()
	after := x.rightCount[key]

	var out []Element
	switch {
	case before == 0 && after > 0:
		// newly suppressed: retract every currently-visible Left tuple
		for _, r := range x.leftHeld[key] {
			r.AddRef()
			out = append(out, Element{Kind: Minus, Tuple: r, Timestamp: e.Timestamp})
		}
	case before > 0 && after == 0:
		// no longer suppressed: reassert every held Left tuple
		for _, r := range x.leftHeld[key] {
			r.AddRef()
			out = append(out, Element{Kind: Plus, Tuple: r, Timestamp: e.Timestamp})
		}
	}
	return out, nil
}
