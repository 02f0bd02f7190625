package vm

import (
	"testing"

	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
	"github.com/kajic/dsms/types"
)

func lkSchema() types.Schema {
	return types.Schema{{Name: "k", Type: types.INT}, {Name: "x", Type: types.INT}}
}

func rkSchema() types.Schema {
	return types.Schema{{Name: "k", Type: types.INT}, {Name: "y", Type: types.INT}}
}

func xySchema() types.Schema {
	return types.Schema{{Name: "x", Type: types.INT}, {Name: "y", Type: types.INT}}
}

// TestRangeWindowJoinRstream covers spec.md §8 scenario 2: two
// streams, each windowed over RANGE 5, joined on k and re-streamed
// with Rstream. L@1's tuple has expired by the time R@8 arrives, so
// only the two in-window matches surface.
func TestRangeWindowJoinRstream(t *testing.T) {
	pool := testPool()
	lLayout := types.NewLayout(lkSchema())
	rLayout := types.NewLayout(rkSchema())
	outLayout := types.NewLayout(xySchema())

	lIn := queue.NewInterior(16)
	rIn := queue.NewInterior(16)
	lWinOut := queue.NewInterior(16)
	rWinOut := queue.NewInterior(16)
	joinOut := queue.NewInterior(16)
	rstreamOut := queue.NewInterior(16)

	lBase := store.NewSimple(pool, lLayout)
	rBase := store.NewSimple(pool, rLayout)

	lWinSyn := synopsis.NewWindow(pool, lLayout)
	rWinSyn := synopsis.NewWindow(pool, rLayout)
	lWin := NewRangeWindow(lIn, lWinOut, 5, 0, lWinSyn)
	rWin := NewRangeWindow(rIn, rWinOut, 5, 0, rWinSyn)

	lSyn := synopsis.NewRelation(pool, lLayout)
	rSyn := synopsis.NewRelation(pool, rLayout)
	keyOf := func(off int) store.KeyFunc {
		return func(row types.Raw) []byte {
			b := make([]byte, 4)
			types.Raw(b).SetInt(0, row.Int(off))
			return b
		}
	}
	lKey := keyOf(lLayout.Offset(0))
	rKey := keyOf(rLayout.Offset(0))
	lIdx := lSyn.AddIndex(lKey, 0.75)
	rIdx := rSyn.AddIndex(rKey, 0.75)

	outLineage := synopsis.NewLineage(pool, outLayout, 0.75)
	prog := eval.Program{
		eval.IntCpy{Src: eval.Operand(eval.Left, lLayout.Offset(1)), Dst: eval.Operand(eval.Output, outLayout.Offset(0))},
		eval.IntCpy{Src: eval.Operand(eval.Right, rLayout.Offset(1)), Dst: eval.Operand(eval.Output, outLayout.Offset(1))},
	}
	join := NewJoin(lWinOut, rWinOut, joinOut, lSyn, rSyn, lIdx, rIdx, lKey, rKey, outLineage.Lineage, prog, eval.NewContext())

	outBase := store.NewSimple(pool, outLayout)
	rstream := NewRstream(joinOut, rstreamOut, outBase)

	mkL := func(k, x int32) store.Ref {
		ref, _ := lBase.NewTuple()
		ref.Row().SetInt(lLayout.Offset(0), k)
		ref.Row().SetInt(lLayout.Offset(1), x)
		return ref
	}
	mkR := func(k, y int32) store.Ref {
		ref, _ := rBase.NewTuple()
		ref.Row().SetInt(rLayout.Offset(0), k)
		ref.Row().SetInt(rLayout.Offset(1), y)
		return ref
	}

	type event struct {
		ts   uint32
		left bool
		k, v int32
	}
	events := []event{
		{1, true, 1, 100},
		{2, false, 1, 200},
		{3, true, 2, 300},
		{7, false, 2, 400},
		{8, false, 1, 500},
	}

	run := func() {
		if err := lWin.Run(8); err != nil {
			t.Fatalf("lWin.Run: %v", err)
		}
		if err := rWin.Run(8); err != nil {
			t.Fatalf("rWin.Run: %v", err)
		}
		if err := join.Run(8); err != nil {
			t.Fatalf("join.Run: %v", err)
		}
		if err := rstream.Run(8); err != nil {
			t.Fatalf("rstream.Run: %v", err)
		}
	}

	// Each side also receives a HEARTBEAT at the other side's arrival
	// timestamp, as a real deployment's upstream merge point would
	// forward time progress to an otherwise-quiet stream (spec.md §5);
	// this is what lets L@1 actually expire out of the left window by
	// the time R@7/@8 arrive, rather than only ever expiring on a new
	// left PLUS that never comes.
	for _, ev := range events {
		if ev.left {
			ref := mkL(ev.k, ev.v)
			ref.AddRef()
			lIn.Enqueue(queue.Element{Kind: queue.Plus, Tuple: ref, Timestamp: ev.ts})
			rIn.Enqueue(queue.Element{Kind: queue.Heartbeat, Timestamp: ev.ts})
		} else {
			ref := mkR(ev.k, ev.v)
			ref.AddRef()
			rIn.Enqueue(queue.Element{Kind: queue.Plus, Tuple: ref, Timestamp: ev.ts})
			lIn.Enqueue(queue.Element{Kind: queue.Heartbeat, Timestamp: ev.ts})
		}
		run()
	}
	// A few extra passes let every operator drain its input. They add no
	// Rstream tick: Rstream emits a tick only once an element with a
	// later timestamp arrives, so the last tick (8) is never emitted.
	for i := 0; i < 3; i++ {
		run()
	}

	type pair struct{ x, y int32 }
	var got []pair
	for {
		e, ok := rstreamOut.Dequeue()
		if !ok {
			break
		}
		if e.Kind != queue.Plus {
			continue
		}
		got = append(got, pair{e.Tuple.Int(outLayout.Offset(0)), e.Tuple.Int(outLayout.Offset(1))})
	}

	want := []pair{{100, 200}, {300, 400}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair %d: got %v, want %v", i, got[i], want[i])
		}
	}
}
