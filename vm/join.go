package vm

import (
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/index"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
)

// side identifies which join input a dequeued element came from.
type side int

const (
	outerSide side = iota
	innerSide
)

// Join is the binary relation-relation join operator (spec.md
// §4.7.6): outer and inner are each backed by a relation synopsis
// with a hash index keyed by the other side's probe key, so either
// side's arrival probes the other in O(matches). Prog — bound with
// eval.Left for the outer row and eval.Right for the inner row — is
// either a plain column-concatenation program or a fused projection
// program (the JOIN_PROJECT variant); both compile down to the same
// eval.Program shape, so Join doesn't need to distinguish them.
//
// Ordering tie-break (spec.md §4.7.6): when both inputs have a
// pending element of equal timestamp, Outer is always processed
// first — the fixed left-then-right preference, matching the
// original's instantiation of "outer" as the left logical child
// (see SPEC_FULL.md's "Fixed side-preference tie-break" note).
type Join struct {
	OuterIn, InnerIn *queue.Queue
	Out              *queue.Queue

	OuterSyn, InnerSyn     *synopsis.Relation
	OuterIndex, InnerIndex *index.Hash[store.Ref]
	OuterKey, InnerKey     store.KeyFunc

	OutLineage *store.Lineage
	Prog       eval.Program
	Ctx        *eval.Context

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewJoin(outerIn, innerIn, out *queue.Queue, outerSyn, innerSyn *synopsis.Relation,
	outerIndex, innerIndex *index.Hash[store.Ref], outerKey, innerKey store.KeyFunc,
	outLineage *store.Lineage, prog eval.Program, ctx *eval.Context) *Join {
	return &Join{
		OuterIn: outerIn, InnerIn: innerIn, Out: out,
		OuterSyn: outerSyn, InnerSyn: innerSyn,
		OuterIndex: outerIndex, InnerIndex: innerIndex,
		OuterKey: outerKey, InnerKey: innerKey,
		OutLineage: outLineage, Prog: prog, Ctx: ctx,
	}
}

func (j *Join) Run(timeSlice int) error {
	if j.pending.pending() {
		if !j.pending.flush(j.Out, &j.lastOutputTs) {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		s, ok := j.pickSide()
		if !ok {
			break
		}

		var in *queue.Queue
		if s == outerSide {
			in = j.OuterIn
		} else {
			in = j.InnerIn
		}
		e, ok := in.Dequeue()
		if !ok {
			continue
		}
		observeInput(&j.lastInputTs, e)
		if e.Kind == Heartbeat {
			continue
		}

		var elems []Element
		var err error
		if s == outerSide {
			elems, err = j.process(e, outerSide)
		} else {
			elems, err = j.process(e, innerSide)
		}
		if err != nil {
			return err
		}
		j.pending.set(elems)
		if !j.pending.flush(j.Out, &j.lastOutputTs) {
			return nil
		}
	}

	heartbeat(j.Out, &j.lastInputTs, &j.lastOutputTs)
	return nil
}

// pickSide peeks both input queues and reports which one to consume
// from next, applying the fixed left(outer)-then-right(inner)
// tie-break on equal timestamps. ok is false only when both queues
// are currently empty.
func (j *Join) pickSide() (side, bool) {
	oe, ook := j.OuterIn.Peek()
	ie, iok := j.InnerIn.Peek()
	switch {
	case !ook && !iok:
		return 0, false
	case !iok:
		return outerSide, true
	case !ook:
		return innerSide, true
	case oe.Timestamp <= ie.Timestamp:
		return outerSide, true
	default:
		return innerSide, true
	}
}

func (j *Join) process(e Element, s side) ([]Element, error) {
	if s == outerSide {
		if e.Kind == Plus {
			return j.outerPlus(e)
		}
		return j.outerMinus(e)
	}
	if e.Kind == Plus {
		return j.innerPlus(e)
	}
	return j.innerMinus(e)
}

func (j *Join) emitMatch(outer, inner store.Ref, ts uint32) (Element, error) {
	outRef, err := j.OutLineage.NewTuple()
	if err != nil {
		return Element{}, err
	}
	j.Ctx.Bind(eval.Left, outer.Row())
	j.Ctx.Bind(eval.Right, inner.Row())
	j.Ctx.Bind(eval.Output, outRef.Row())
	j.Prog.Run(j.Ctx)
	if err := j.OutLineage.InsertLineage(outRef, outer, inner); err != nil {
		return Element{}, err
	}
	outRef.AddRef() // lineage's hold, distinct from the forwarded Plus element
	return Element{Kind: Plus, Tuple: outRef, Timestamp: ts}, nil
}

func (j *Join) outerPlus(e Element) ([]Element, error) {
	matches := j.InnerIndex.Scan(j.OuterKey(e.Tuple.Row()))
	out := make([]Element, 0, len(matches)+1)
	for _, inner := range matches {
		el, err := j.emitMatch(e.Tuple, inner, e.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	j.OuterSyn.Insert(e.Tuple)
	return out, nil
}

func (j *Join) innerPlus(e Element) ([]Element, error) {
	matches := j.OuterIndex.Scan(j.InnerKey(e.Tuple.Row()))
	out := make([]Element, 0, len(matches)+1)
	for _, outer := range matches {
		el, err := j.emitMatch(outer, e.Tuple, e.Timestamp)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	j.InnerSyn.Insert(e.Tuple)
	return out, nil
}

func (j *Join) outerMinus(e Element) ([]Element, error) {
	matches := j.InnerIndex.Scan(j.OuterKey(e.Tuple.Row()))
	out := make([]Element, 0, len(matches))
	for _, inner := range matches {
		if outRef, ok := j.OutLineage.LookupLineage(e.Tuple, inner); ok {
			j.OutLineage.DeleteLineage(e.Tuple, inner)
			out = append(out, Element{Kind: Minus, Tuple: outRef, Timestamp: e.Timestamp})
		}
	}
	j.OuterSyn.Delete(e.Tuple)
	e.Tuple.DecrRef()
	return out, nil
}

func (j *Join) innerMinus(e Element) ([]Element, error) {
	matches := j.OuterIndex.Scan(j.InnerKey(e.Tuple.Row()))
	out := make([]Element, 0, len(matches))
	for _, outer := range matches {
		if outRef, ok := j.OutLineage.LookupLineage(outer, e.Tuple); ok {
			j.OutLineage.DeleteLineage(outer, e.Tuple)
			out = append(out, Element{Kind: Minus, Tuple: outRef, Timestamp: e.Timestamp})
		}
	}
	j.InnerSyn.Delete(e.Tuple)
	e.Tuple.DecrRef()
	return out, nil
}

// StreamRelationJoin is the stream-relation join operator (spec.md
// §4.7.7): Inner is a maintained relation (indexed as in Join); Outer
// is a pure stream, passed through once with no PLUS/MINUS pairing
// stored for it (every outer PLUS simply probes Inner and forwards
// matches; outer tuples are never inserted into any synopsis here).
type StreamRelationJoin struct {
	OuterIn *queue.Queue
	InnerIn *queue.Queue
	Out     *queue.Queue

	InnerSyn   *synopsis.Relation
	InnerIndex *index.Hash[store.Ref]
	OuterKey   store.KeyFunc

	// OutStore backs freshly joined output rows. Since the outer side
	// is a stream and is never retracted, output rows need no lineage
	// at all — a plain allocator (*store.Simple) suffices.
	OutStore tupleAllocator

	Prog eval.Program
	Ctx  *eval.Context

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewStreamRelationJoin(outerIn, innerIn, out *queue.Queue, innerSyn *synopsis.Relation,
	innerIndex *index.Hash[store.Ref], outerKey store.KeyFunc, outStore tupleAllocator, prog eval.Program, ctx *eval.Context) *StreamRelationJoin {
	return &StreamRelationJoin{
		OuterIn: outerIn, InnerIn: innerIn, Out: out,
		InnerSyn: innerSyn, InnerIndex: innerIndex, OuterKey: outerKey,
		OutStore: outStore, Prog: prog, Ctx: ctx,
	}
}

func (j *StreamRelationJoin) Run(timeSlice int) error {
	if j.pending.pending() {
		if !j.pending.flush(j.Out, &j.lastOutputTs) {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		oe, ook := j.OuterIn.Peek()
		ie, iok := j.InnerIn.Peek()
		if !ook && !iok {
			break
		}

		var fromOuter bool
		switch {
		case !iok:
			fromOuter = true
		case !ook:
			fromOuter = false
		default:
			fromOuter = oe.Timestamp <= ie.Timestamp
		}

		if fromOuter {
			e, _ := j.OuterIn.Dequeue()
			observeInput(&j.lastInputTs, e)
			if e.Kind == Heartbeat {
				continue
			}
			// stream input: no PLUS/MINUS pairing needed, every
			// arrival (the spec source interface only ever emits
			// PLUS/HEARTBEAT on a stream) is probed and forwarded.
			matches := j.InnerIndex.Scan(j.OuterKey(e.Tuple.Row()))
			out := make([]Element, 0, len(matches))
			for _, inner := range matches {
				outRef, err := j.OutStore.NewTuple()
				if err != nil {
					return err
				}
				j.Ctx.Bind(eval.Left, e.Tuple.Row())
				j.Ctx.Bind(eval.Right, inner.Row())
				j.Ctx.Bind(eval.Output, outRef.Row())
				j.Prog.Run(j.Ctx)
				out = append(out, Element{Kind: Plus, Tuple: outRef, Timestamp: e.Timestamp})
			}
			e.Tuple.DecrRef()
			j.pending.set(out)
		} else {
			e, _ := j.InnerIn.Dequeue()
			observeInput(&j.lastInputTs, e)
			if e.Kind == Heartbeat {
				continue
			}
			if e.Kind == Plus {
				j.InnerSyn.Insert(e.Tuple)
			} else {
				j.InnerSyn.Delete(e.Tuple)
				e.Tuple.DecrRef()
			}
			continue
		}

		if !j.pending.flush(j.Out, &j.lastOutputTs) {
			return nil
		}
	}

	heartbeat(j.Out, &j.lastInputTs, &j.lastOutputTs)
	return nil
}

