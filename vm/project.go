package vm

import (
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/store"
)

// tupleAllocator is the minimal store surface Project needs to
// materialize an output row: *store.Simple and *store.Lineage both
// satisfy it via their embedded *store.Base.
type tupleAllocator interface {
	NewTuple() (store.Ref, error)
}

// Project is the projection operator (spec.md §4.7.2). For a pure
// stream output, Store is backed by a *store.Simple and Lineage is
// nil. For a relation-valued output (so a later operator can see
// MINUSes paired with the PLUS they retract), every produced tuple is
// additionally recorded in Lineage keyed by its single input tuple.
type Project struct {
	In      *queue.Queue
	Out     *queue.Queue
	Prog    eval.Program
	Ctx     *eval.Context
	Store   tupleAllocator
	Lineage *store.Lineage // nil for a pure-stream output

	lastInputTs, lastOutputTs uint32
	stalled                   bool
	stalledElement            Element
}

func NewProject(in, out *queue.Queue, prog eval.Program, ctx *eval.Context, st tupleAllocator, lineage *store.Lineage) *Project {
	return &Project{In: in, Out: out, Prog: prog, Ctx: ctx, Store: st, Lineage: lineage}
}

func (p *Project) Run(timeSlice int) error {
	if p.stalled {
		if !p.Out.Enqueue(p.stalledElement) {
			return nil
		}
		observeOutput(&p.lastOutputTs, p.stalledElement)
		p.stalled = false
	}

	for i := 0; i < timeSlice; i++ {
		e, ok := p.In.Dequeue()
		if !ok {
			break
		}
		observeInput(&p.lastInputTs, e)

		switch e.Kind {
		case Heartbeat:
			continue
		case Plus:
			if err := p.doPlus(e); err != nil {
				return err
			}
		case Minus:
			p.doMinus(e)
		}
		if p.stalled {
			return nil
		}
	}

	heartbeat(p.Out, &p.lastInputTs, &p.lastOutputTs)
	return nil
}

func (p *Project) doPlus(e Element) error {
	outRef, err := p.Store.NewTuple()
	if err != nil {
		return err
	}
	p.Ctx.Bind(eval.Input, e.Tuple.Row())
	p.Ctx.Bind(eval.Output, outRef.Row())
	p.Prog.Run(p.Ctx)

	if p.Lineage != nil {
		if err := p.Lineage.InsertLineage(outRef, e.Tuple); err != nil {
			return err
		}
		outRef.AddRef() // the lineage entry is a holder distinct from the forwarded Plus element
	}
	e.Tuple.DecrRef()

	out := Element{Kind: Plus, Tuple: outRef, Timestamp: e.Timestamp}
	if !p.Out.Enqueue(out) {
		p.stalled = true
		p.stalledElement = out
		return nil
	}
	observeOutput(&p.lastOutputTs, out)
	return nil
}

func (p *Project) doMinus(e Element) {
	outRef, ok := p.Lineage.LookupLineage(e.Tuple)
	if !ok {
		e.Tuple.DecrRef()
		return
	}
	// The lineage entry's hold on outRef is reassigned to the
	// forwarded Minus element, so deleting the bookkeeping entry here
	// needs no matching DecrRef — that share is released later by
	// whichever downstream consumer finishes with the Minus element.
	p.Lineage.DeleteLineage(e.Tuple)
	e.Tuple.DecrRef()

	out := Element{Kind: Minus, Tuple: outRef, Timestamp: e.Timestamp}
	if !p.Out.Enqueue(out) {
		p.stalled = true
		p.stalledElement = out
		return
	}
	observeOutput(&p.lastOutputTs, out)
}
