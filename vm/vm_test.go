package vm

import (
	"testing"

	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
	"github.com/kajic/dsms/types"
)

func testPool() *mempool.Pool { return mempool.New(1<<20, 4096) }

// abSchema/sumSchema model spec.md §8 scenario 1's S(a INT, b INT) row
// window feeding a projection computing a+b.
func abSchema() types.Schema {
	return types.Schema{{Name: "a", Type: types.INT}, {Name: "b", Type: types.INT}}
}

func sumSchema() types.Schema {
	return types.Schema{{Name: "sum", Type: types.INT}}
}

func mkTuple(t *testing.T, base tupleAllocator, layout *types.Layout, a, b int32) store.Ref {
	t.Helper()
	ref, err := base.NewTuple()
	if err != nil {
		t.Fatalf("NewTuple: %v", err)
	}
	ref.Row().SetInt(layout.Offset(0), a)
	ref.Row().SetInt(layout.Offset(1), b)
	return ref
}

// TestRowWindowAndProjectSum covers spec.md §8 scenario 1: a 2-row
// window over S followed by a projection computing a+b, verifying
// that the window's expiry MINUS is itself re-projected downstream.
func TestRowWindowAndProjectSum(t *testing.T) {
	pool := testPool()
	inLayout := types.NewLayout(abSchema())
	outLayout := types.NewLayout(sumSchema())

	in := queue.NewInterior(16)
	winOut := queue.NewInterior(16)
	out := queue.NewInterior(16)

	syn := synopsis.NewWindow(pool, inLayout)
	win := NewRowWindow(in, winOut, 2, syn)

	prog := eval.Program{eval.IntAdd{
		Src1: eval.Operand(eval.Input, inLayout.Offset(0)),
		Src2: eval.Operand(eval.Input, inLayout.Offset(1)),
		Dst:  eval.Operand(eval.Output, outLayout.Offset(0)),
	}}
	outLineage := store.NewLineage(pool, outLayout, 0.75)
	proj := NewProject(winOut, out, prog, eval.NewContext(), outLineage, outLineage)

	base := store.NewSimple(pool, inLayout)
	rows := [][2]int32{{1, 2}, {3, 4}, {5, 6}}
	for i, r := range rows {
		ref := mkTuple(t, base, inLayout, r[0], r[1])
		ref.AddRef()
		if !in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: ref, Timestamp: uint32(i + 1)}) {
			t.Fatalf("Enqueue row %d failed", i)
		}
	}

	for i := 0; i < 3; i++ {
		if err := win.Run(8); err != nil {
			t.Fatalf("RowWindow.Run: %v", err)
		}
		if err := proj.Run(8); err != nil {
			t.Fatalf("Project.Run: %v", err)
		}
	}

	var sums []int32
	var kinds []queue.Kind
	for {
		e, ok := out.Dequeue()
		if !ok {
			break
		}
		if e.Kind == queue.Heartbeat {
			continue
		}
		kinds = append(kinds, e.Kind)
		sums = append(sums, e.Tuple.Int(outLayout.Offset(0)))
	}

	wantSums := []int32{3, 7, 3, 11}
	wantKinds := []queue.Kind{queue.Plus, queue.Plus, queue.Minus, queue.Plus}
	if len(sums) != len(wantSums) {
		t.Fatalf("got %d output elements %v (%v), want %d", len(sums), sums, kinds, len(wantSums))
	}
	for i := range wantSums {
		if sums[i] != wantSums[i] || kinds[i] != wantKinds[i] {
			t.Errorf("element %d: got (%v %d), want (%v %d)", i, kinds[i], sums[i], wantKinds[i], wantSums[i])
		}
	}
}

// TestSelectFiltersAndReleasesRejected covers the selection operator:
// non-matching PLUS tuples are dropped (and released) rather than
// forwarded.
func TestSelectFiltersAndReleasesRejected(t *testing.T) {
	pool := testPool()
	layout := types.NewLayout(abSchema())
	base := store.NewSimple(pool, layout)

	in := queue.NewInterior(16)
	out := queue.NewInterior(16)

	pred := eval.BoolProgram{{
		Op:    eval.GT,
		Left:  eval.CmpOperand{Role: eval.Input, Col: layout.Offset(0), Kind: eval.KindInt},
		Right: eval.CmpOperand{Role: eval.Const, Col: 0, Kind: eval.KindInt},
	}}
	ctx := eval.NewContext()
	constTuple := make(types.Raw, 4)
	constTuple.SetInt(0, 2)
	ctx.Bind(eval.Const, constTuple)

	sel := NewSelect(in, out, pred, ctx)

	r1 := mkTuple(t, base, layout, 1, 0) // a=1, fails a>2
	r2 := mkTuple(t, base, layout, 5, 0) // a=5, passes
	in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: r1, Timestamp: 1})
	in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: r2, Timestamp: 2})

	if err := sel.Run(8); err != nil {
		t.Fatalf("Select.Run: %v", err)
	}

	e, ok := out.Dequeue()
	if !ok {
		t.Fatalf("expected one forwarded element")
	}
	if e.Tuple.Int(layout.Offset(0)) != 5 {
		t.Fatalf("forwarded tuple a=%d, want 5", e.Tuple.Int(layout.Offset(0)))
	}
	if _, ok := out.Dequeue(); ok {
		t.Fatalf("expected exactly one forwarded element")
	}
	if r1.RefCount() != 0 {
		t.Errorf("rejected tuple should have been released, refcount=%d", r1.RefCount())
	}
}

// TestDistinctCollapsesDuplicates covers spec.md §8 scenario 4: a
// stream of repeated values only emits PLUS on the first occurrence
// of a value and MINUS only once every occurrence has been retracted.
func TestDistinctCollapsesDuplicates(t *testing.T) {
	pool := testPool()
	layout := types.NewLayout(types.Schema{{Name: "a", Type: types.INT}})
	base := store.NewSimple(pool, layout)
	out := store.NewSimple(pool, layout)

	in := queue.NewInterior(16)
	outQ := queue.NewInterior(16)
	d := NewDistinct(in, outQ, out)

	mk := func(v int32) store.Ref {
		ref, _ := base.NewTuple()
		ref.Row().SetInt(0, v)
		return ref
	}

	a1 := mk(7)
	a2 := mk(7)
	in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: a1, Timestamp: 1})
	in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: a2, Timestamp: 2})
	if err := d.Run(8); err != nil {
		t.Fatalf("Distinct.Run: %v", err)
	}

	e, ok := outQ.Dequeue()
	if !ok || e.Kind != queue.Plus || e.Tuple.Int(0) != 7 {
		t.Fatalf("expected a single PLUS(7), got (%v, %v)", e, ok)
	}
	if _, ok := outQ.Dequeue(); ok {
		t.Fatalf("second identical PLUS must not re-emit")
	}

	// Retract one occurrence: still present once, no MINUS yet.
	in.Enqueue(queue.Element{Kind: queue.Minus, Tuple: a1, Timestamp: 3})
	if err := d.Run(8); err != nil {
		t.Fatalf("Distinct.Run: %v", err)
	}
	if _, ok := outQ.Dequeue(); ok {
		t.Fatalf("MINUS should not emit while the value still has a holder")
	}

	// Retract the last occurrence: now a MINUS is owed.
	in.Enqueue(queue.Element{Kind: queue.Minus, Tuple: a2, Timestamp: 4})
	if err := d.Run(8); err != nil {
		t.Fatalf("Distinct.Run: %v", err)
	}
	e, ok = outQ.Dequeue()
	if !ok || e.Kind != queue.Minus || e.Tuple.Int(0) != 7 {
		t.Fatalf("expected MINUS(7) after last retraction, got (%v, %v)", e, ok)
	}
}

// TestStallRecovery covers spec.md §8 scenario 5: an operator that
// cannot enqueue because its output queue is full must make no
// forward progress on further input until the consumer drains the
// queue, then resume exactly where it left off, in order.
func TestStallRecovery(t *testing.T) {
	pool := testPool()
	layout := types.NewLayout(types.Schema{{Name: "a", Type: types.INT}})
	base := store.NewSimple(pool, layout)

	in := queue.NewInterior(16)
	out := queue.NewInterior(1) // capacity 1: stalls immediately
	sel := NewSelect(in, out, nil, eval.NewContext())

	mk := func(v int32) store.Ref {
		ref, _ := base.NewTuple()
		ref.Row().SetInt(0, v)
		return ref
	}

	for i, v := range []int32{1, 2, 3} {
		in.Enqueue(queue.Element{Kind: queue.Plus, Tuple: mk(v), Timestamp: uint32(i + 1)})
	}

	if err := sel.Run(8); err != nil {
		t.Fatalf("Select.Run (stall pass): %v", err)
	}
	if out.Len() != 1 {
		t.Fatalf("expected exactly one element enqueued before stalling, got %d", out.Len())
	}

	// Drain one slot, then resume: the operator must deliver the
	// remaining two elements in order, not drop or reorder them.
	var got []int32
	e, ok := out.Dequeue()
	if !ok {
		t.Fatalf("expected one element available")
	}
	got = append(got, e.Tuple.Int(0))

	for len(got) < 3 {
		if err := sel.Run(8); err != nil {
			t.Fatalf("Select.Run (resume pass): %v", err)
		}
		for {
			e, ok := out.Dequeue()
			if !ok {
				break
			}
			got = append(got, e.Tuple.Int(0))
		}
	}

	want := []int32{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: got %d, want %d", i, got[i], want[i])
		}
	}
}
