package vm

import (
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/queue"
)

// Select is the selection operator (spec.md §4.7.1). It never
// allocates: a matching element is forwarded by reference, unchanged.
// A non-matching PLUS decrements its input tuple's refcount, since no
// downstream holder will reference it. Select does not re-emit
// HEARTBEATs verbatim; time propagates downstream only through the
// shared heartbeat rule.
type Select struct {
	In   *queue.Queue
	Out  *queue.Queue
	Pred eval.BoolProgram
	Ctx  *eval.Context

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

// NewSelect builds a selection operator reading from in, writing
// matches (unchanged) to out, evaluating pred with ctx for every PLUS.
func NewSelect(in, out *queue.Queue, pred eval.BoolProgram, ctx *eval.Context) *Select {
	return &Select{In: in, Out: out, Pred: pred, Ctx: ctx}
}

func (s *Select) Run(timeSlice int) error {
	if s.stalled {
		if !s.Out.Enqueue(s.stalledElement) {
			return nil
		}
		observeOutput(&s.lastOutputTs, s.stalledElement)
		s.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := s.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&s.lastInputTs, e)

		if e.Kind == Heartbeat {
			continue
		}

		match := true
		if e.Kind == Plus {
			s.Ctx.Bind(eval.Input, e.Tuple.Row())
			match = s.Pred.Eval(s.Ctx)
		}
		if !match {
			// no downstream holder will reference this tuple
			e.Tuple.DecrRef()
			continue
		}
		if !s.Out.Enqueue(e) {
			s.stalled = true
			s.stalledElement = e
			return nil
		}
		observeOutput(&s.lastOutputTs, e)
	}

	heartbeat(s.Out, &s.lastInputTs, &s.lastOutputTs)
	return nil
}
