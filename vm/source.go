package vm

import (
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/types"
)

// StreamSource wraps a table supplier's pull interface (spec.md §6)
// and drives it into a stream output: every call to Supplier.GetNext
// is either a heartbeat, a tuple (copied into Store and forwarded as
// PLUS), or "nothing available right now" (nil tuple, heartbeat
// false), which StreamSource treats exactly like an empty input
// queue rather than an error.
type StreamSource struct {
	Supplier types.Source
	Store    tupleAllocator
	Out      *queue.Queue

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewStreamSource(supplier types.Source, st tupleAllocator, out *queue.Queue) *StreamSource {
	return &StreamSource{Supplier: supplier, Store: st, Out: out}
}

func (s *StreamSource) Run(timeSlice int) error {
	if s.stalled {
		if !s.Out.Enqueue(s.stalledElement) {
			return nil
		}
		observeOutput(&s.lastOutputTs, s.stalledElement)
		s.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		tuple, ts, hb, err := s.Supplier.GetNext()
		if err != nil {
			return err
		}
		if tuple == nil && !hb {
			break // nothing available; not end of stream
		}

		var out Element
		if hb {
			observeInput(&s.lastInputTs, Element{Kind: Heartbeat, Timestamp: ts})
			if !heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs) {
				// out queue full; the heartbeat will be retried on the
				// next Run once lastInputTs is still ahead of lastOutputTs
			}
			continue
		}

		ref, err := s.Store.NewTuple()
		if err != nil {
			return err
		}
		assertFreshRef(ref)
		copy(ref.Row(), types.Raw(tuple))
		out = Element{Kind: Plus, Tuple: ref, Timestamp: ts}
		observeInput(&s.lastInputTs, out)

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

// assertFreshRef is the sanity check spec.md's Open Question on
// duplicate-PLUS validation resolves to: every tuple handed to a
// source operator by the allocator must start with exactly one
// holder (the source itself), before any AddRef makes it visible to
// a second one.
func assertFreshRef(ref store.Ref) {
	if ref.RefCount() != 1 {
		panic("vm: source allocated tuple with unexpected initial refcount")
	}
}

// RelationSource is StreamSource's relation-valued counterpart: it
// additionally maintains a presence synopsis keyed by row content so
// that a supplier re-delivering the same row is recognized as a
// retraction request rather than a second insertion — the pull
// interface (spec.md §6) carries no separate insert/delete flag, so
// toggling presence on repeated identical rows is how "MINUSes
// emitted at supplier request" is expressed over it.
type RelationSource struct {
	Supplier types.Source
	Store    tupleAllocator
	Out      *queue.Queue

	present map[string]store.Ref

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewRelationSource(supplier types.Source, st tupleAllocator, out *queue.Queue) *RelationSource {
	return &RelationSource{Supplier: supplier, Store: st, Out: out, present: make(map[string]store.Ref)}
}

func (s *RelationSource) Run(timeSlice int) error {
	if s.stalled {
		if !s.Out.Enqueue(s.stalledElement) {
			return nil
		}
		observeOutput(&s.lastOutputTs, s.stalledElement)
		s.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		tuple, ts, hb, err := s.Supplier.GetNext()
		if err != nil {
			return err
		}
		if tuple == nil && !hb {
			break
		}
		if hb {
			observeInput(&s.lastInputTs, Element{Kind: Heartbeat, Timestamp: ts})
			heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs)
			continue
		}

		key := string(tuple)
		var out Element
		if old, seen := s.present[key]; seen {
			delete(s.present, key)
			// old's sole remaining holder transfers to the Minus element.
			out = Element{Kind: Minus, Tuple: old, Timestamp: ts}
		} else {
			ref, err := s.Store.NewTuple()
			if err != nil {
				return err
			}
			assertFreshRef(ref)
			copy(ref.Row(), types.Raw(tuple))
			s.present[key] = ref
			ref.AddRef() // the forwarded Plus element's own holder, alongside presence's
			out = Element{Kind: Plus, Tuple: ref, Timestamp: ts}
		}
		observeInput(&s.lastInputTs, out)

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
