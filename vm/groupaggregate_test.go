package vm

import (
	"testing"

	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
	"github.com/kajic/dsms/types"
)

func gvSchema() types.Schema {
	return types.Schema{{Name: "g", Type: types.INT}, {Name: "v", Type: types.INT}}
}

func gSumSchema() types.Schema {
	return types.Schema{{Name: "g", Type: types.INT}, {Name: "sum", Type: types.INT}}
}

// TestGroupAggregateSum covers spec.md §8 scenario 3: SELECT g,
// SUM(v) FROM R GROUP BY g over +( 1,10), +(1,20), +(2,30), -(1,10).
func TestGroupAggregateSum(t *testing.T) {
	pool := testPool()
	inLayout := types.NewLayout(gvSchema())
	outLayout := types.NewLayout(gSumSchema())
	base := store.NewSimple(pool, inLayout)

	in := queue.NewInterior(16)
	out := queue.NewInterior(16)

	syn := synopsis.NewRelation(pool, outLayout)
	groupKey := func(row types.Raw) []byte {
		b := make([]byte, 4)
		types.Raw(b).SetInt(0, row.Int(inLayout.Offset(0)))
		return b
	}
	groupCols := []GroupCopy{{InputCol: inLayout.Offset(0), OutputCol: outLayout.Offset(0), Kind: eval.KindInt}}
	specs := []AggSpec{{Func: AggSum, InputCol: inLayout.Offset(1), InputKind: eval.KindInt, OutputCol: outLayout.Offset(1), OutputKind: eval.KindInt}}

	g := NewGroupAggregate(in, out, groupKey, syn, groupCols, specs)

	mk := func(gv, v int32) store.Ref {
		ref, _ := base.NewTuple()
		ref.Row().SetInt(inLayout.Offset(0), gv)
		ref.Row().SetInt(inLayout.Offset(1), v)
		return ref
	}

	type ev struct {
		kind queue.Kind
		g, v int32
	}
	events := []ev{
		{queue.Plus, 1, 10},
		{queue.Plus, 1, 20},
		{queue.Plus, 2, 30},
		{queue.Minus, 1, 10},
	}
	for i, e := range events {
		ref := mk(e.g, e.v)
		ref.AddRef()
		in.Enqueue(queue.Element{Kind: e.kind, Tuple: ref, Timestamp: uint32(i + 1)})
		if err := g.Run(8); err != nil {
			t.Fatalf("GroupAggregate.Run: %v", err)
		}
	}

	type row struct {
		kind queue.Kind
		g, s int32
	}
	var got []row
	for {
		e, ok := out.Dequeue()
		if !ok {
			break
		}
		if e.Kind == queue.Heartbeat {
			continue
		}
		got = append(got, row{e.Kind, e.Tuple.Int(outLayout.Offset(0)), e.Tuple.Int(outLayout.Offset(1))})
	}

	want := []row{
		{queue.Plus, 1, 10},
		{queue.Minus, 1, 10},
		{queue.Plus, 1, 30},
		{queue.Plus, 2, 30},
		{queue.Minus, 1, 30},
		{queue.Plus, 1, 20},
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// TestGroupAggregateEmptyInputProducesNoOutput covers spec.md §8's
// boundary case: a group-by fed no input emits nothing, not an
// empty-group row.
func TestGroupAggregateEmptyInputProducesNoOutput(t *testing.T) {
	pool := testPool()
	inLayout := types.NewLayout(gvSchema())
	outLayout := types.NewLayout(gSumSchema())

	in := queue.NewInterior(16)
	out := queue.NewInterior(16)
	syn := synopsis.NewRelation(pool, outLayout)
	groupKey := func(row types.Raw) []byte { return row[:4] }
	g := NewGroupAggregate(in, out, groupKey, syn, nil,
		[]AggSpec{{Func: AggCount, OutputCol: outLayout.Offset(1), OutputKind: eval.KindInt}})

	if err := g.Run(8); err != nil {
		t.Fatalf("GroupAggregate.Run: %v", err)
	}
	if _, ok := out.Dequeue(); ok {
		t.Fatalf("expected no output rows for empty input")
	}
}
