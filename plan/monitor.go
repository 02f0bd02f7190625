package plan

import "github.com/kajic/dsms/sched"

// InsertMonitor registers a new monitor query — root, a physical plan
// tree whose sole source is a KindSysStream node — into an already
// running plan, without racing the scheduler that is concurrently
// calling Run on every other operator in p.
//
// This resolves spec.md's Open Question 3 ("what happens if a monitor
// query is registered for an entity while the scheduler is mid-pass
// over it?"): sc.Interrupt blocks until the scheduler is parked
// between passes, InsertMonitor then builds and wires root's
// operators into p, hands each of them to sc.AddOperator, and
// sc.Resume lets the scheduler continue. No operator ever observes a
// registration appear mid-Run. Grounded on
// original_source/dsms/src/metadata/plan_mgr_impl.cc's registerQuery,
// which likewise inserts a new query's operators into the live plan
// under the plan manager's own lock.
func InsertMonitor(p *Plan, sc *sched.Scheduler, root *PhysicalOp) error {
	sc.Interrupt()
	defer sc.Resume()

	before := len(p.Operators)
	if err := p.AddQuery(root); err != nil {
		return err
	}
	for _, op := range p.Operators[before:] {
		sc.AddOperator(op)
	}
	return nil
}
