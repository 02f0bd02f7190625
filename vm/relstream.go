package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
)

// presence is the reference-counted "tuples currently in the
// relation" bookkeeping shared by Istream, Dstream and Rstream: all
// three watch a relation-valued input for appear/disappear edges (or,
// for Rstream, the current membership as a whole), keyed by row
// content exactly like Distinct's multiset.
type presence struct {
	count map[string]int64
}

func newPresence() presence { return presence{count: make(map[string]int64)} }

// apply folds e into the presence count and reports the edge that
// just happened: +1 if this is an appearance (count 0→1), -1 if a
// disappearance (count 1→0), 0 otherwise.
func (p presence) apply(e Element) int {
	key := string(e.Tuple.Row())
	if e.Kind == Plus {
		c := p.count[key]
		p.count[key] = c + 1
		if c == 0 {
			return +1
		}
		return 0
	}
	c := p.count[key]
	p.count[key] = c - 1
	if p.count[key] <= 0 {
		delete(p.count, key)
		if c == 1 {
			return -1
		}
	}
	return 0
}

// Istream emits a stream PLUS exactly when an input tuple appears
// (spec.md §4.7.10): it surfaces only presence 0→1 edges of a
// relation-valued input, dropping everything else.
type Istream struct {
	In    *queue.Queue
	Out   *queue.Queue
	Store tupleAllocator

	present presence

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewIstream(in, out *queue.Queue, st tupleAllocator) *Istream {
	return &Istream{In: in, Out: out, Store: st, present: newPresence()}
}

func (s *Istream) Run(timeSlice int) error {
	if s.stalled {
		if !s.Out.Enqueue(s.stalledElement) {
			return nil
		}
		observeOutput(&s.lastOutputTs, s.stalledElement)
		s.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := s.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&s.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		edge := s.present.apply(e)
		if edge != +1 {
			e.Tuple.DecrRef()
			continue
		}

		out, err := copyTuple(s.Store, e.Tuple, Plus, e.Timestamp)
		e.Tuple.DecrRef()
		if err != nil {
			return err
		}
		if !s.Out.Enqueue(out) {
			s.stalled = true
			s.stalledElement = out
			return nil
		}
		observeOutput(&s.lastOutputTs, out)
	}

	heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs)
	return nil
}

// Dstream is Istream's mirror: it surfaces presence 1→0 edges.
type Dstream struct {
	In    *queue.Queue
	Out   *queue.Queue
	Store tupleAllocator

	present presence

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewDstream(in, out *queue.Queue, st tupleAllocator) *Dstream {
	return &Dstream{In: in, Out: out, Store: st, present: newPresence()}
}

func (s *Dstream) Run(timeSlice int) error {
	if s.stalled {
		if !s.Out.Enqueue(s.stalledElement) {
			return nil
		}
		observeOutput(&s.lastOutputTs, s.stalledElement)
		s.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := s.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&s.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		edge := s.present.apply(e)
		if edge != -1 {
			e.Tuple.DecrRef()
			continue
		}

		out, err := copyTuple(s.Store, e.Tuple, Plus, e.Timestamp)
		e.Tuple.DecrRef()
		if err != nil {
			return err
		}
		if !s.Out.Enqueue(out) {
			s.stalled = true
			s.stalledElement = out
			return nil
		}
		observeOutput(&s.lastOutputTs, out)
	}

	heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs)
	return nil
}

// Rstream re-emits the entire current relation as stream PLUSes every
// time the input's logical clock advances (spec.md §4.7.10): it
// maintains the same presence multiset as Istream/Dstream, but reacts
// to any element's timestamp advancing past the last tick rather than
// to any one edge.
type Rstream struct {
	In    *queue.Queue
	Out   *queue.Queue
	Store tupleAllocator

	members map[string]store.Ref // one representative ref per distinct present row
	present presence
	lastTick uint32

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewRstream(in, out *queue.Queue, st tupleAllocator) *Rstream {
	return &Rstream{In: in, Out: out, Store: st, members: make(map[string]store.Ref), present: newPresence()}
}

func (s *Rstream) Run(timeSlice int) error {
	if s.pending.pending() {
		if !s.pending.flush(s.Out, &s.lastOutputTs) {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := s.In.Peek()
		if !ok {
			break
		}
		if e.Timestamp > s.lastTick {
			if !s.emitTick(s.lastTick) {
				return nil
			}
			s.lastTick = e.Timestamp
		}

		e, _ = s.In.Dequeue()
		observeInput(&s.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		key := string(e.Tuple.Row())
		edge := s.present.apply(e)
		switch edge {
		case +1:
			ref, err := s.Store.NewTuple()
			if err != nil {
				e.Tuple.DecrRef()
				return err
			}
			copy(ref.Row(), e.Tuple.Row())
			s.members[key] = ref
		case -1:
			ref := s.members[key]
			delete(s.members, key)
			ref.DecrRef()
		}
		e.Tuple.DecrRef()
	}

	heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs)
	return nil
}

// emitTick snapshots the current membership and queues one PLUS per
// member, stamped at ts.
func (s *Rstream) emitTick(ts uint32) bool {
	if !s.pending.pending() {
		elems := make([]Element, 0, len(s.members))
		for _, ref := range s.members {
			ref.AddRef() // each tick's emission is its own independent holder
			elems = append(elems, Element{Kind: Plus, Tuple: ref, Timestamp: ts})
		}
		s.pending.set(elems)
	}
	return s.pending.flush(s.Out, &s.lastOutputTs)
}

// copyTuple materializes an independent copy of src's row into a
// fresh tuple from st, for an operator whose output is a pure stream
// (so it never shares a lifetime with the relation-valued input).
func copyTuple(st tupleAllocator, src store.Ref, kind queue.Kind, ts uint32) (Element, error) {
	ref, err := st.NewTuple()
	if err != nil {
		return Element{}, err
	}
	copy(ref.Row(), src.Row())
	return Element{Kind: kind, Tuple: ref, Timestamp: ts}, nil
}
