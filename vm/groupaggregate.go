package vm

import (
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
	"github.com/kajic/dsms/types"
)

// AggFunc is one of the group-by aggregates spec.md §4.7.8 supports.
type AggFunc int

const (
	AggSum AggFunc = iota
	AggCount
	AggAvg
	AggMax
	AggMin
)

// AggSpec binds one aggregate function to an input column (read from
// the arriving tuple) and an output column (written into the current
// group row). InputCol/InputKind are unused for AggCount.
type AggSpec struct {
	Func       AggFunc
	InputCol   int
	InputKind  eval.Kind
	OutputCol  int
	OutputKind eval.Kind
}

// GroupCopy copies a grouping column's value verbatim from the input
// tuple into the group row, so the output carries the GROUP BY
// columns alongside the aggregate results.
type GroupCopy struct {
	InputCol, OutputCol int
	Kind                eval.Kind
	Len                 int // CHAR width
}

// aggAccum is the hidden per-group, per-AggSpec running state that
// the group row's own columns can't represent (AVG needs sum and
// count both; MAX/MIN need the full multiset of current values to
// support decrement on MINUS, since the current extremum may itself
// be the value being retracted).
type aggAccum struct {
	sum      float64
	count    int64
	multiset map[float64]int64
}

func (a *aggAccum) extremum(max bool) (float64, bool) {
	first := true
	var best float64
	for v, n := range a.multiset {
		if n <= 0 {
			continue
		}
		if first || (max && v > best) || (!max && v < best) {
			best = v
			first = false
		}
	}
	return best, !first
}

type groupState struct {
	ref  store.Ref
	rows int64 // membership count, tracked independently of any one AggSpec
	accs []aggAccum
}

// GroupAggregate is the group-by aggregation operator (spec.md
// §4.7.8). State is a relation synopsis holding one row per group;
// groups (keyed identically, in plain Go memory) holds both the
// current row's ref and the running accumulator values a group row's
// own columns can't themselves express (AVG's denominator, MAX/MIN's
// retraction multiset).
type GroupAggregate struct {
	In  *queue.Queue
	Out *queue.Queue

	GroupKey store.KeyFunc // extracts the group key from an INPUT row

	Syn *synopsis.Relation

	GroupCols []GroupCopy
	Specs     []AggSpec

	groups map[string]*groupState

	lastInputTs, lastOutputTs uint32
	pending                   emitQueue
}

func NewGroupAggregate(in, out *queue.Queue, groupKey store.KeyFunc,
	syn *synopsis.Relation, groupCols []GroupCopy, specs []AggSpec) *GroupAggregate {
	return &GroupAggregate{
		In: in, Out: out,
		GroupKey:  groupKey,
		Syn:       syn,
		GroupCols: groupCols,
		Specs:     specs,
		groups:    make(map[string]*groupState),
	}
}

func (g *GroupAggregate) Run(timeSlice int) error {
	if g.pending.pending() {
		if !g.pending.flush(g.Out, &g.lastOutputTs) {
			return nil
		}
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := g.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&g.lastInputTs, e)

		var out []Element
		var err error
		switch e.Kind {
		case Heartbeat:
			continue
		case Plus:
			out, err = g.doPlus(e)
		case Minus:
			out, err = g.doMinus(e)
		}
		if err != nil {
			return err
		}
		g.pending.set(out)
		if !g.pending.flush(g.Out, &g.lastOutputTs) {
			return nil
		}
	}

	heartbeat(g.Out, &g.lastInputTs, &g.lastOutputTs)
	return nil
}

func readVal(row []byte, col int, kind eval.Kind) float64 {
	raw := types.Raw(row)
	switch kind {
	case eval.KindFloat:
		return float64(raw.Float(col))
	default:
		return float64(raw.Int(col))
	}
}

func writeVal(row []byte, col int, kind eval.Kind, v float64) {
	raw := types.Raw(row)
	switch kind {
	case eval.KindFloat:
		raw.SetFloat(col, float32(v))
	default:
		raw.SetInt(col, int32(v))
	}
}

func (g *GroupAggregate) applyGroupCols(e Element, dst []byte) {
	src := types.Raw(e.Tuple.Row())
	for _, c := range g.GroupCols {
		switch c.Kind {
		case eval.KindInt:
			types.Raw(dst).SetInt(c.OutputCol, src.Int(c.InputCol))
		case eval.KindFloat:
			types.Raw(dst).SetFloat(c.OutputCol, src.Float(c.InputCol))
		case eval.KindByte:
			types.Raw(dst).SetByte(c.OutputCol, src.Byte(c.InputCol))
		case eval.KindChar:
			types.Raw(dst).SetChar(c.OutputCol, c.Len, src.Char(c.InputCol, c.Len))
		}
	}
}

func (g *GroupAggregate) recompute(gs *groupState) {
	for i, spec := range g.Specs {
		a := &gs.accs[i]
		var v float64
		switch spec.Func {
		case AggSum:
			v = a.sum
		case AggCount:
			v = float64(a.count)
		case AggAvg:
			if a.count == 0 {
				v = 0
			} else {
				v = a.sum / float64(a.count)
			}
		case AggMax:
			v, _ = a.extremum(true)
		case AggMin:
			v, _ = a.extremum(false)
		}
		writeVal(gs.ref.Row(), spec.OutputCol, spec.OutputKind, v)
	}
}

// updateAccum folds one input tuple into gs's running accumulators,
// sign +1 for a PLUS, -1 for a MINUS.
func (g *GroupAggregate) updateAccum(gs *groupState, row types.Raw, sign int64) {
	for i, spec := range g.Specs {
		a := &gs.accs[i]
		switch spec.Func {
		case AggCount:
			a.count += sign
		case AggSum, AggAvg:
			a.sum += float64(sign) * readVal(row, spec.InputCol, spec.InputKind)
			a.count += sign
		case AggMax, AggMin:
			v := readVal(row, spec.InputCol, spec.InputKind)
			a.multiset[v] += sign
			if a.multiset[v] <= 0 {
				delete(a.multiset, v)
			}
		}
	}
}

func (g *GroupAggregate) doPlus(e Element) ([]Element, error) {
	key := string(g.GroupKey(e.Tuple.Row()))
	gs, exists := g.groups[key]

	var out []Element
	if !exists {
		ref, err := g.Syn.NewTuple()
		if err != nil {
			e.Tuple.DecrRef()
			return nil, err
		}
		gs = &groupState{ref: ref, accs: make([]aggAccum, len(g.Specs))}
		for i, spec := range g.Specs {
			if spec.Func == AggMax || spec.Func == AggMin {
				gs.accs[i].multiset = make(map[float64]int64)
			}
		}
		g.groups[key] = gs
		g.applyGroupCols(e, gs.ref.Row())

		gs.rows++
		g.updateAccum(gs, e.Tuple.Row(), +1)
		g.recompute(gs)

		g.Syn.Insert(gs.ref)
		gs.ref.AddRef() // the forwarded Plus element's own holder, alongside the synopsis's
		out = append(out, Element{Kind: Plus, Tuple: gs.ref, Timestamp: e.Timestamp})
	} else {
		// The old row is forwarded as the Minus exactly as it stands
		// (transferring the synopsis's hold to the Minus element), and a
		// freshly allocated row carries the updated values as the Plus:
		// mutating gs.ref's bytes in place would let the Minus element,
		// read downstream later, see the already-updated values.
		oldRef := gs.ref
		g.Syn.Delete(oldRef)
		out = append(out, Element{Kind: Minus, Tuple: oldRef, Timestamp: e.Timestamp})

		newRef, err := g.Syn.NewTuple()
		if err != nil {
			return nil, err
		}
		copy(newRef.Row(), oldRef.Row())
		gs.ref = newRef

		gs.rows++
		g.updateAccum(gs, e.Tuple.Row(), +1)
		g.recompute(gs)

		g.Syn.Insert(newRef)
		newRef.AddRef() // the forwarded Plus element's own holder, alongside the synopsis's
		out = append(out, Element{Kind: Plus, Tuple: newRef, Timestamp: e.Timestamp})
	}

	e.Tuple.DecrRef()
	return out, nil
}

func (g *GroupAggregate) doMinus(e Element) ([]Element, error) {
	key := string(g.GroupKey(e.Tuple.Row()))
	gs, exists := g.groups[key]
	if !exists {
		e.Tuple.DecrRef()
		return nil, nil
	}

	oldRef := gs.ref
	g.Syn.Delete(oldRef)
	out := []Element{{Kind: Minus, Tuple: oldRef, Timestamp: e.Timestamp}}

	gs.rows--
	g.updateAccum(gs, e.Tuple.Row(), -1)
	e.Tuple.DecrRef()

	if gs.rows <= 0 {
		delete(g.groups, key)
		// oldRef's share is transferred to the Minus element queued
		// above (no replacement holder appears), so no DecrRef here.
		return out, nil
	}

	newRef, err := g.Syn.NewTuple()
	if err != nil {
		return nil, err
	}
	copy(newRef.Row(), oldRef.Row())
	gs.ref = newRef
	g.recompute(gs)
	// oldRef needs no DecrRef here: Delete above released the
	// synopsis's hold without a replacement, transferring its sole
	// remaining share to the Minus element already queued above.

	g.Syn.Insert(newRef)
	newRef.AddRef()
	out = append(out, Element{Kind: Plus, Tuple: newRef, Timestamp: e.Timestamp})
	return out, nil
}
