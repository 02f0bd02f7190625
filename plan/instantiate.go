package plan

import (
	"fmt"

	"github.com/kajic/dsms/dsmserr"
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/monitor"
	"github.com/kajic/dsms/queue"
	"github.com/kajic/dsms/sched"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/synopsis"
	"github.com/kajic/dsms/types"
	"github.com/kajic/dsms/vm"
)

// Config bundles the plan-wide settings every Instantiate call needs:
// the page allocator every store/index draws from, the hash index's
// split load factor, the capacity given to each freshly created
// interior queue, and the monitor registry (nil disables monitor
// instrumentation entirely, letting a caller skip the OP_TIME/queue
// wrapper overhead for a one-off plan).
type Config struct {
	Pool           *mempool.Pool
	IndexThreshold float64
	QueueSize      int
	Registry       *monitor.Registry
	CPUSpeedMHz    int
}

// Plan is the arena an instantiated physical plan lives in: every
// queue, operator, and the (possibly shared) system-stream generator
// this plan tree wired up, dense-addressed by the order Instantiate
// built them in rather than by the original's mutual raw pointers
// (spec.md §9's Design Note).
type Plan struct {
	cfg Config

	Operators []vm.Operator // every schedulable operator, in build order
	Outputs   []*vm.Output  // the terminal Output operators, for Close()
	sysGen    *vm.SysStreamGen

	built  map[*PhysicalOp]*builtNode
	nextID int
}

type builtNode struct {
	queues []*queue.Queue
	layout *types.Layout
	next   int
}

func (b *builtNode) take() (*queue.Queue, *types.Layout, error) {
	if b.next >= len(b.queues) {
		return nil, nil, dsmserr.New(dsmserr.Internal, "plan: more consumers requested than a node was wired for")
	}
	q := b.queues[b.next]
	b.next++
	return q, b.layout, nil
}

// New creates an empty arena. Scheduler/monitor wiring (sched.New,
// SysStreamGen registration) is added by Instantiate and
// InsertMonitor as plan nodes are built.
func New(cfg Config) *Plan {
	return &Plan{
		cfg:   cfg,
		built: make(map[*PhysicalOp]*builtNode),
	}
}

// Scheduler builds a sched.Scheduler over every operator instantiated
// into this arena so far, with the given per-pass time slice.
func (p *Plan) Scheduler(timeSlice int) *sched.Scheduler {
	return sched.New(append([]vm.Operator(nil), p.Operators...), timeSlice)
}

// Close ends every registered query output, per the push interface's
// Start/PutNext*/End contract (spec.md §6).
func (p *Plan) Close() error {
	for _, o := range p.Outputs {
		if err := o.Close(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) nextEntityID() int {
	p.nextID++
	return p.nextID
}

// refCounts walks every node reachable from roots, counting how many
// times each distinct node is referenced as someone's input — the
// prerequisite for deciding which nodes need a vm.Tee fan-out branch
// (spec.md §2: "a directed acyclic graph (with possible fan-out)").
// A node's own children are only ever walked the first time the node
// itself is reached, so a diamond-shaped share doesn't inflate its
// descendants' counts.
func refCounts(roots []*PhysicalOp) map[*PhysicalOp]int {
	counts := make(map[*PhysicalOp]int)
	visited := make(map[*PhysicalOp]bool)
	var walk func(n *PhysicalOp)
	walk = func(n *PhysicalOp) {
		for _, c := range n.Inputs {
			counts[c]++
			if !visited[c] {
				visited[c] = true
				walk(c)
			}
		}
	}
	for _, r := range roots {
		walk(r)
	}
	return counts
}

// Instantiate builds every root query tree in roots into a single
// shared Plan arena, wiring a vm.Tee at any node two or more roots (or
// one root by more than one path) reference in common. It is the
// runtime counterpart of plan_mgr_impl.cc's addBaseTable/registerQuery
// sequence: one call per application's worth of registered queries,
// sharing base-table source operators across every query that reads
// them.
func Instantiate(cfg Config, roots []*PhysicalOp) (*Plan, error) {
	p := New(cfg)
	counts := refCounts(roots)
	for _, r := range roots {
		if _, _, err := p.outputFor(r, counts); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddQuery instantiates one additional root query tree into an
// already-built arena, sharing any base-table/subplan node it has in
// common with previously instantiated trees, as long as that sharing
// was already accounted for by the Instantiate (or earlier AddQuery)
// call that built the shared node — i.e. the shared node's own
// PhysicalOp pointer must have been an Input of root's tree (directly
// or transitively) at the time it was built. Per spec.md's non-goal
// ("no query modification after registration"), queries are only ever
// added, never edited in place; InsertMonitor (monitor.go) is the one
// sanctioned exception, and it taps SysStreamGen directly rather than
// widening an ordinary node's fan-out.
func (p *Plan) AddQuery(root *PhysicalOp) error {
	counts := refCounts([]*PhysicalOp{root})
	_, _, err := p.outputFor(root, counts)
	return err
}

// outputFor returns the queue (and its layout) a consumer of node
// should read from, building node (and, recursively, its inputs) on
// first reference and handing out additional vm.Tee branches on
// subsequent references.
func (p *Plan) outputFor(node *PhysicalOp, counts map[*PhysicalOp]int) (*queue.Queue, *types.Layout, error) {
	if bn, ok := p.built[node]; ok {
		if bn.next >= len(bn.queues) {
			return nil, nil, dsmserr.New(dsmserr.InvalidUse,
				"plan: node already built with fewer output branches than this reference needs; a later AddQuery cannot widen an existing node's fan-out")
		}
		return bn.take()
	}

	bn, err := p.build(node, counts)
	if err != nil {
		return nil, nil, err
	}
	p.built[node] = bn
	return bn.take()
}

func (p *Plan) branchCount(node *PhysicalOp, counts map[*PhysicalOp]int) int {
	n := counts[node]
	if n < 1 {
		n = 1
	}
	return n
}

// wireOutput finalizes node's raw output queue into however many
// branches it needs, inserting a vm.Tee when more than one consumer
// shares it.
func (p *Plan) wireOutput(node *PhysicalOp, raw *queue.Queue, layout *types.Layout, counts map[*PhysicalOp]int) *builtNode {
	n := p.branchCount(node, counts)
	if n <= 1 {
		return &builtNode{queues: []*queue.Queue{raw}, layout: layout}
	}
	branches := make([]*queue.Queue, n)
	for i := range branches {
		branches[i] = queue.NewInterior(p.cfg.QueueSize)
	}
	tee := vm.NewTee(raw, branches)
	p.Operators = append(p.Operators, tee)
	return &builtNode{queues: branches, layout: layout}
}

// addOperator appends op to the schedulable set, wrapping it for
// OP_TIME accounting and registering it with the monitor registry
// when one is configured.
func (p *Plan) addOperator(node *PhysicalOp, op vm.Operator) vm.Operator {
	if p.cfg.Registry == nil {
		p.Operators = append(p.Operators, op)
		return op
	}
	t := newTimedOp(op)
	id := p.nextEntityID()
	p.cfg.Registry.RegisterFloat(monitor.FloatProp{
		Entity: monitor.EntityOperator, EntityID: id, Property: monitor.PropOpTime,
		Get: t.Seconds,
	})
	p.Operators = append(p.Operators, t)
	return t
}

// addQueue registers a queue's ElementCount/LastTimestamp with the
// monitor registry when one is configured, and returns q unchanged.
func (p *Plan) addQueue(q *queue.Queue) *queue.Queue {
	if p.cfg.Registry == nil {
		return q
	}
	id := p.nextEntityID()
	p.cfg.Registry.RegisterInt(monitor.IntProp{
		Entity: monitor.EntityQueue, EntityID: id, Property: monitor.PropQueueRate,
		Get: func() int64 { return int64(q.ElementCount()) },
	})
	p.cfg.Registry.RegisterInt(monitor.IntProp{
		Entity: monitor.EntityQueue, EntityID: id, Property: monitor.PropQueueTS,
		Get: func() int64 {
			ts, _ := q.LastTimestamp()
			return int64(ts)
		},
	})
	return q
}

func (p *Plan) newQueue() *queue.Queue {
	return p.addQueue(queue.NewInterior(p.cfg.QueueSize))
}

// registerSynopsisCard registers a synopsis's cardinality getter
// under monitor.PropSynCard.
func (p *Plan) registerSynopsisCard(get func() int64) {
	if p.cfg.Registry == nil {
		return
	}
	id := p.nextEntityID()
	p.cfg.Registry.RegisterInt(monitor.IntProp{
		Entity: monitor.EntitySynopsis, EntityID: id, Property: monitor.PropSynCard, Get: get,
	})
}

func (p *Plan) build(node *PhysicalOp, counts map[*PhysicalOp]int) (*builtNode, error) {
	layout := types.NewLayout(node.Schema)

	switch node.Kind {
	case KindStreamSource:
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewStreamSource(node.Supplier, st, raw)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindRelationSource:
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewRelationSource(node.Supplier, st, raw)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindSysStream:
		if p.sysGen == nil {
			sysLayout := monitor.NewLayout()
			p.sysGen = vm.NewSysStreamGen(p.cfg.Registry, sysLayout, p.cfg.CPUSpeedMHz)
			p.Operators = append(p.Operators, p.sysGen)
		}
		raw := p.newQueue()
		p.sysGen.AddOutput(raw, store.NewSimple(p.cfg.Pool, monitor.NewLayout()))
		return p.wireOutput(node, raw, monitor.NewLayout(), counts), nil

	case KindSelect:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		raw := p.newQueue()
		op := vm.NewSelect(in, raw, node.Pred, eval.NewContext())
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindProject:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		raw := p.newQueue()
		st, lineage := p.allocatorFor(node, layout)
		op := vm.NewProject(in, raw, node.Proj, eval.NewContext(), st, lineage)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindRowWindow:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		syn := synopsis.NewWindow(p.cfg.Pool, inLayout)
		p.registerSynopsisCard(func() int64 { return int64(syn.Len()) })
		raw := p.newQueue()
		op := vm.NewRowWindow(in, raw, node.WindowSize, syn)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, inLayout, counts), nil

	case KindRangeWindow:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		syn := synopsis.NewWindow(p.cfg.Pool, inLayout)
		p.registerSynopsisCard(func() int64 { return int64(syn.Len()) })
		raw := p.newQueue()
		op := vm.NewRangeWindow(in, raw, node.RangeSize, node.RangeStride, syn)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, inLayout, counts), nil

	case KindPartitionWindow:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		key := keyFunc(node.Inputs[0].Schema, inLayout, node.PartitionCols)
		syn := synopsis.NewPartitionWindow(p.cfg.Pool, inLayout, key)
		p.registerSynopsisCard(func() int64 { return int64(syn.MaxSize()) })
		raw := p.newQueue()
		op := vm.NewPartitionWindow(in, raw, node.WindowSize, syn, syn)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, inLayout, counts), nil

	case KindJoin:
		if len(node.Inputs) != 2 {
			return nil, dsmserr.New(dsmserr.InvalidParam, "plan: Join requires two inputs")
		}
		outerIn, outerLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		innerIn, innerLayout, err := p.childOutput(node, 1, counts)
		if err != nil {
			return nil, err
		}
		outerKey := keyFunc(node.Inputs[0].Schema, outerLayout, node.JoinKeys.OuterCols)
		innerKey := keyFunc(node.Inputs[1].Schema, innerLayout, node.JoinKeys.InnerCols)
		outerSyn := synopsis.NewRelation(p.cfg.Pool, outerLayout)
		innerSyn := synopsis.NewRelation(p.cfg.Pool, innerLayout)
		outerIndex := outerSyn.AddIndex(store.KeyFunc(outerKey), p.cfg.IndexThreshold)
		innerIndex := innerSyn.AddIndex(store.KeyFunc(innerKey), p.cfg.IndexThreshold)
		p.registerSynopsisCard(func() int64 { return int64(outerSyn.Len()) })
		p.registerSynopsisCard(func() int64 { return int64(innerSyn.Len()) })
		outLineage := store.NewLineage(p.cfg.Pool, layout, p.cfg.IndexThreshold)
		raw := p.newQueue()
		op := vm.NewJoin(outerIn, innerIn, raw, outerSyn, innerSyn, outerIndex, innerIndex,
			store.KeyFunc(outerKey), store.KeyFunc(innerKey), outLineage, node.Proj, eval.NewContext())
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindStreamRelationJoin:
		if len(node.Inputs) != 2 {
			return nil, dsmserr.New(dsmserr.InvalidParam, "plan: StreamRelationJoin requires two inputs")
		}
		outerIn, outerLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		innerIn, innerLayout, err := p.childOutput(node, 1, counts)
		if err != nil {
			return nil, err
		}
		outerKey := keyFunc(node.Inputs[0].Schema, outerLayout, node.JoinKeys.OuterCols)
		innerKey := keyFunc(node.Inputs[1].Schema, innerLayout, node.JoinKeys.InnerCols)
		innerSyn := synopsis.NewRelation(p.cfg.Pool, innerLayout)
		innerIndex := innerSyn.AddIndex(store.KeyFunc(innerKey), p.cfg.IndexThreshold)
		p.registerSynopsisCard(func() int64 { return int64(innerSyn.Len()) })
		outStore := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewStreamRelationJoin(outerIn, innerIn, raw, innerSyn, innerIndex,
			store.KeyFunc(outerKey), outStore, node.Proj, eval.NewContext())
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindGroupAggregate:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		groupKey := keyFunc(node.Inputs[0].Schema, inLayout, node.GroupKeyCols)
		syn := synopsis.NewRelation(p.cfg.Pool, layout)
		p.registerSynopsisCard(func() int64 { return int64(syn.Len()) })
		raw := p.newQueue()
		op := vm.NewGroupAggregate(in, raw, store.KeyFunc(groupKey), syn, node.GroupCols, node.AggSpecs)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindDistinct:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewDistinct(in, raw, st)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindIstream:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewIstream(in, raw, st)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindDstream:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewDstream(in, raw, st)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindRstream:
		in, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		st := store.NewSimple(p.cfg.Pool, layout)
		raw := p.newQueue()
		op := vm.NewRstream(in, raw, st)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindUnion:
		if len(node.Inputs) != 2 {
			return nil, dsmserr.New(dsmserr.InvalidParam, "plan: Union requires two inputs")
		}
		leftIn, _, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		rightIn, _, err := p.childOutput(node, 1, counts)
		if err != nil {
			return nil, err
		}
		st, lineage := p.allocatorFor(node, layout)
		raw := p.newQueue()
		op := vm.NewUnion(leftIn, rightIn, raw, st, lineage)
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindExcept:
		if len(node.Inputs) != 2 {
			return nil, dsmserr.New(dsmserr.InvalidParam, "plan: Except requires two inputs")
		}
		leftIn, leftLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		rightIn, _, err := p.childOutput(node, 1, counts)
		if err != nil {
			return nil, err
		}
		key := keyFunc(node.Inputs[0].Schema, leftLayout, node.ExceptKeyCols)
		raw := p.newQueue()
		op := vm.NewExcept(leftIn, rightIn, raw, store.KeyFunc(key))
		p.addOperator(node, op)
		return p.wireOutput(node, raw, layout, counts), nil

	case KindOutput:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		out, err := vm.NewOutput(in, node.Sink, inLayout)
		if err != nil {
			return nil, fmt.Errorf("plan: instantiating output %q: %w", node.Name, err)
		}
		p.Outputs = append(p.Outputs, out)
		p.addOperator(node, out)
		return &builtNode{queues: nil, layout: inLayout}, nil

	case KindSink:
		in, inLayout, err := p.childOutput(node, 0, counts)
		if err != nil {
			return nil, err
		}
		op := vm.NewSink(in)
		p.addOperator(node, op)
		return &builtNode{queues: nil, layout: inLayout}, nil

	default:
		return nil, dsmserr.New(dsmserr.InvalidParam, fmt.Sprintf("plan: unknown operator kind %d", node.Kind))
	}
}

// childOutput resolves and returns the queue/layout node's idx'th
// input should read from, building that input (and its own inputs)
// first if this is the first reference to it.
func (p *Plan) childOutput(node *PhysicalOp, idx int, counts map[*PhysicalOp]int) (*queue.Queue, *types.Layout, error) {
	if idx >= len(node.Inputs) {
		return nil, nil, dsmserr.New(dsmserr.InvalidParam, fmt.Sprintf("plan: %q has no input %d", node.Name, idx))
	}
	return p.outputFor(node.Inputs[idx], counts)
}

// vmTupleAllocator mirrors vm's unexported tupleAllocator interface
// (NewTuple() (store.Ref, error)) so plan can hold a reference to
// either a *store.Simple or a *store.Lineage without depending on vm's
// internals; both satisfy it structurally via their embedded
// *store.Base.
type vmTupleAllocator interface {
	NewTuple() (store.Ref, error)
}

// allocatorFor returns the store a Project or Union node should
// allocate its output tuples from: a bare *store.Simple for a stream
// output, or a *store.Lineage (returned as both the allocator and the
// lineage synopsis) when the node's output is relation-valued and
// downstream operators need to look an output tuple up by its input
// lineage.
func (p *Plan) allocatorFor(node *PhysicalOp, layout *types.Layout) (vmTupleAllocator, *store.Lineage) {
	if node.IsRelation {
		lin := store.NewLineage(p.cfg.Pool, layout, p.cfg.IndexThreshold)
		return lin, lin
	}
	return store.NewSimple(p.cfg.Pool, layout), nil
}
