// Package plan instantiates an already-compiled physical plan graph
// into the runtime components defined in mempool/store/synopsis/
// index/eval/queue/vm: the "plan arena" spec.md §9's Design Notes call
// for in place of the original's cyclic pointer graph between plan
// entities. Grounded on
// original_source/dsms/src/metadata/plan_mgr_impl.cc
// (PlanManagerImpl, the C++ instantiation driver that walks a physical
// plan and wires up operators/queues/stores/synopses/indexes) and on
// the teacher's own plan package for the "arena owns everything,
// addressed by index" idiom (plan.Tree/plan.Node own their subtrees by
// value).
//
// Parsing, semantic analysis, and logical planning are out of scope
// (spec.md §1): PhysicalOp is the minimal annotated node shape this
// package requires as input — operator kind, schema, predicate,
// window size, aggregation function, and input wiring — already
// resolved by an external planner.
package plan

import (
	"github.com/kajic/dsms/eval"
	"github.com/kajic/dsms/types"
	"github.com/kajic/dsms/vm"
)

// Kind identifies which physical operator a PhysicalOp instantiates
// to, covering every operator family in spec.md §4.7.
type Kind int

const (
	KindStreamSource Kind = iota
	KindRelationSource
	KindSelect
	KindProject
	KindRowWindow
	KindRangeWindow
	KindPartitionWindow
	KindJoin                // relation-relation
	KindStreamRelationJoin  // stream-relation
	KindGroupAggregate
	KindDistinct
	KindIstream
	KindDstream
	KindRstream
	KindUnion
	KindExcept
	KindOutput
	KindSink
	// KindSysStream is a leaf referencing the plan's single shared
	// vm.SysStreamGen, per spec.md §4.9: a monitor query's plan tree
	// reads this exactly like any other base table source, but what
	// it taps is the engine's own running counters rather than an
	// external supplier.
	KindSysStream
)

// JoinKey names, for a binary-input node, which side a key column
// extractor applies to.
type JoinKey struct {
	OuterCols []int // probe key columns on the PhysicalOp's first Input's schema
	InnerCols []int // probe key columns on the PhysicalOp's second Input's schema
}

// PhysicalOp is one node of the annotated physical plan this package
// accepts as input, per spec.md §1/§6: the shape an out-of-scope
// logical planner must produce. Only the fields relevant to Kind are
// read by Instantiate; the rest are ignored.
type PhysicalOp struct {
	Kind   Kind
	Name   string // a human-readable label, used as the monitor entity name
	Schema types.Schema
	Inputs []*PhysicalOp // 0 (sources), 1 (unary), or 2 (binary) elements

	// Select
	Pred eval.BoolProgram

	// Project / fused-project join variants
	Proj       eval.Program
	IsRelation bool // whether Project's output needs a lineage synopsis

	// RowWindow / PartitionWindow
	WindowSize int

	// RangeWindow
	RangeSize   uint32
	RangeStride uint32 // 0 = sliding, >0 = tumbling

	// PartitionWindow
	PartitionCols []int

	// Join / StreamRelationJoin
	JoinKeys JoinKey

	// GroupAggregate
	GroupKeyCols []int
	GroupCols    []vm.GroupCopy
	AggSpecs     []vm.AggSpec

	// Except
	ExceptKeyCols []int

	// StreamSource / RelationSource
	Supplier types.Source

	// Output
	Sink types.Sink
}

// keyFunc builds a store.KeyFunc over schema/layout extracting and
// concatenating the given columns' raw bytes — the general-purpose
// key extractor every partition/join/group-by/except key reduces to.
func keyFunc(schema types.Schema, layout *types.Layout, cols []int) func(types.Raw) []byte {
	return func(row types.Raw) []byte {
		var key []byte
		for _, c := range cols {
			off := layout.Offset(c)
			col := schema[c]
			switch col.Type {
			case types.INT, types.FLOAT:
				key = append(key, row[off:off+4]...)
			case types.BYTE:
				key = append(key, row[off])
			case types.CHAR:
				key = append(key, row[off:off+col.Len]...)
			}
		}
		return key
	}
}
