package vm

import (
	"testing"
	"time"

	"github.com/kajic/dsms/monitor"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
)

// TestSysStreamGenPublishesOpTime covers spec.md §8 scenario 6: a
// monitor watching one operator's accumulated time publishes at
// least one SysStream row for that operator whose Fval tracks the
// registered getter, and every tuple the generator emits carries a
// non-decreasing timestamp.
func TestSysStreamGenPublishesOpTime(t *testing.T) {
	pool := testPool()
	layout := monitor.NewLayout()
	reg := monitor.NewRegistry()

	var accumulated float64
	reg.RegisterFloat(monitor.FloatProp{
		Entity: monitor.EntityOperator, EntityID: 7, Property: monitor.PropOpTime,
		Get: func() float64 { return accumulated },
	})

	gen := NewSysStreamGen(reg, layout, 1000)
	outQ := queue.NewInterior(64)
	outStore := store.NewSimple(pool, layout)
	gen.AddOutput(outQ, outStore)

	now := time.Unix(0, 0)
	gen.Now = func() time.Time { return now }

	if err := gen.Run(8); err != nil {
		t.Fatalf("SysStreamGen.Run (priming): %v", err)
	}

	// Elapse two and a half SysStream logical ticks (1/TimePerSec
	// seconds each) and update the watched counter before the next poll.
	now = now.Add(time.Duration(float64(time.Second) / monitor.TimePerSec * 2.5))
	accumulated = 0.42
	if err := gen.Run(8); err != nil {
		t.Fatalf("SysStreamGen.Run (first tick): %v", err)
	}

	e, ok := outQ.Dequeue()
	if !ok {
		t.Fatalf("expected a SysStream row after the first elapsed tick")
	}
	if e.Kind != queue.Plus {
		t.Fatalf("SysStream rows are always PLUS, got %v", e.Kind)
	}
	gotType := e.Tuple.Int(layout.Offset(0))
	gotID := e.Tuple.Int(layout.Offset(1))
	gotProp := e.Tuple.Int(layout.Offset(2))
	gotFval := e.Tuple.Float(layout.Offset(4))
	if gotType != int32(monitor.EntityOperator) || gotID != 7 || gotProp != int32(monitor.PropOpTime) {
		t.Fatalf("unexpected sample identity: type=%d id=%d prop=%d", gotType, gotID, gotProp)
	}
	if gotFval != float32(0.42) {
		t.Fatalf("Fval = %v, want 0.42", gotFval)
	}
	firstTs := e.Timestamp

	if _, ok := outQ.Dequeue(); ok {
		t.Fatalf("only one property is registered, expected exactly one row per tick")
	}

	// A second, later tick with an updated counter must produce a
	// second row whose timestamp does not decrease.
	now = now.Add(time.Duration(float64(time.Second) / monitor.TimePerSec * 2))
	accumulated = 0.77
	if err := gen.Run(8); err != nil {
		t.Fatalf("SysStreamGen.Run (second tick): %v", err)
	}
	e2, ok := outQ.Dequeue()
	if !ok {
		t.Fatalf("expected a SysStream row after the second elapsed tick")
	}
	if e2.Timestamp < firstTs {
		t.Fatalf("SysStream timestamps must be non-decreasing: first=%d second=%d", firstTs, e2.Timestamp)
	}
	if got := e2.Tuple.Float(layout.Offset(4)); got != float32(0.77) {
		t.Fatalf("Fval = %v, want 0.77", got)
	}
}
