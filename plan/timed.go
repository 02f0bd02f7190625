package plan

import (
	"time"

	"github.com/kajic/dsms/vm"
)

// timedOp wraps a vm.Operator with the wall-clock accounting the
// monitor registry's OP_TIME property reads (spec.md §4.9), since the
// operators themselves carry no notion of elapsed CPU time. Grounded
// on original_source/dsms/src/metadata/plan_mgr_monitor.cc, which
// instruments each operator's Run call the same way (there with a
// TSC read before/after) to answer "SELECT * FROM SysStream WHERE
// property=OP_TIME".
type timedOp struct {
	op      vm.Operator
	elapsed time.Duration
	now     func() time.Time
}

func newTimedOp(op vm.Operator) *timedOp {
	return &timedOp{op: op, now: time.Now}
}

func (t *timedOp) Run(timeSlice int) error {
	start := t.now()
	err := t.op.Run(timeSlice)
	t.elapsed += t.now().Sub(start)
	return err
}

// Seconds reports the total wall-clock time this operator has spent
// inside Run, for monitor.FloatProp's OP_TIME getter.
func (t *timedOp) Seconds() float64 { return t.elapsed.Seconds() }
