// Package sched implements the cooperative single-threaded round-robin
// scheduler spec.md §4.8 describes: a fixed slice of operators is run
// in turn, each given a bounded time slice per pass, forever (or for a
// caller-specified number of passes). A mutex plus two condition
// variables let an external goroutine interrupt the scheduler between
// passes and resume it later, which is what makes late plan insertion
// (spec.md §4.9, the monitor hot-insertion hook) safe: insertion only
// ever touches scheduler/plan state while the scheduler is parked.
//
// Grounded on the teacher's sorting/thread_pool.go, whose worker loop
// is a mutex+cond request hand-off; the same shape is adapted here
// from "hand a sort request to an idle worker" to "hand control back
// to an interrupting thread between scheduler passes."
package sched

import (
	"sync"

	"github.com/kajic/dsms/vm"
)

// Scheduler round-robins a fixed slice of operators. It is not safe
// for concurrent Run calls; Interrupt/Resume are the only calls meant
// to be made from another goroutine while Run is in progress.
type Scheduler struct {
	ops       []vm.Operator
	timeSlice int

	mu             sync.Mutex
	cond           *sync.Cond // signaled on state changes (stop, interrupt, resume)
	stopped        bool
	interrupted    bool // true while an external caller holds control
	interruptWaits int  // goroutines blocked in Interrupt waiting for the scheduler to park
	mainWaits      int  // 1 while Run is parked waiting to be Resumed
}

// New creates a scheduler over ops, each given timeSlice input
// elements per pass.
func New(ops []vm.Operator, timeSlice int) *Scheduler {
	s := &Scheduler{ops: ops, timeSlice: timeSlice}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// AddOperator appends op to the round-robin set. Callers must only do
// this between passes — typically while the scheduler is Interrupted,
// per plan.InsertMonitor's hot-insertion sequence (spec.md §4.9).
func (s *Scheduler) AddOperator(op vm.Operator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
}

// Run executes up to total passes over every operator (0 means run
// forever), stopping early if Stop is called or an operator returns a
// non-nil error. Between every pass it checks for a pending Interrupt
// and parks until Resume is called, per spec.md §4.8's external
// interlock.
func (s *Scheduler) Run(total int) error {
	for pass := 0; total == 0 || pass < total; pass++ {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return nil
		}
		for s.interrupted {
			s.mainWaits++
			s.cond.Broadcast() // wake any Interrupt callers waiting for us to park
			s.cond.Wait()
			s.mainWaits--
		}
		ops := s.ops
		s.mu.Unlock()

		for _, op := range ops {
			if err := op.Run(s.timeSlice); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop requests Run to return after its current pass. Safe to call
// from any goroutine.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Interrupt blocks until the scheduler is parked between passes, then
// returns holding the scheduler interrupted — the caller may freely
// mutate plan/operator state until it calls Resume. Safe to call from
// any goroutine; concurrent Interrupt callers are serialized (the
// second blocks until the first Resumes).
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	for s.interrupted {
		s.cond.Wait()
	}
	s.interrupted = true
	s.interruptWaits++
	for s.mainWaits == 0 && !s.stopped {
		s.cond.Broadcast()
		s.cond.Wait()
	}
	s.interruptWaits--
	s.mu.Unlock()
}

// Resume releases a prior Interrupt, letting Run proceed again.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.interrupted = false
	s.cond.Broadcast()
	s.mu.Unlock()
}
