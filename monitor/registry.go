// Package monitor implements the per-entity property registry and
// SYS_STREAM tuple generation spec.md §4.9 describes: every operator,
// queue, store, synopsis and index.Hash can publish a handful of typed
// counters, and monitor.Registry is where vm.SysStreamGen reads them
// from once per elapsed logical tick.
//
// Grounded on original_source/dsms/src/metadata/plan_mgr_monitor.cc
// (the C++ plan manager's ad hoc per-entity-kind property fetch) and
// include/common/sys_stream.h (the SYS_STREAM schema and the entity
// type / property id constants below), restructured around a single
// typed registry instead of the original's switch-on-entity-kind
// dispatch.
package monitor

import (
	"golang.org/x/exp/slices"

	"github.com/kajic/dsms/types"
)

// Schema is the SYS_STREAM relation's column layout, per
// include/common/sys_stream.h's SS_ATTRS/SS_ATTR_TYPES.
var Schema = types.Schema{
	{Name: "Type", Type: types.INT},
	{Name: "Id", Type: types.INT},
	{Name: "Property", Type: types.INT},
	{Name: "Ival", Type: types.INT},
	{Name: "Fval", Type: types.FLOAT},
}

// NewLayout returns the tuple layout for Schema.
func NewLayout() *types.Layout { return types.NewLayout(Schema) }

// TimePerSec is the number of SYS_STREAM timestamp units per wall-clock
// second (include/common/sys_stream.h: TIME_PER_SEC).
const TimePerSec = 5

// EntityType is one of the four kinds of thing a monitor can watch,
// per include/common/sys_stream.h's OP/QUEUE/SYN/STORE constants.
type EntityType int

const (
	EntityOperator EntityType = iota
	EntityQueue
	EntitySynopsis
	EntityStore
)

// PropertyID identifies which counter of an entity is being read,
// per include/common/sys_stream.h.
type PropertyID int

const (
	PropOpTime    PropertyID = iota // time consumed by an operator
	PropQueueRate                   // rate of tuple flow in a queue
	PropQueueTS                     // last enqueued timestamp in a queue
	PropJoinSel                     // join selectivity
	PropSynCard                     // number of tuples in a synopsis
	PropStoreSize                   // number of pages used by a store
)

// IntProp is a registered integer-valued counter: an entity, a
// property id, and the getter function a registrant supplies (reading
// live state, never a snapshot taken at registration time).
type IntProp struct {
	Entity   EntityType
	EntityID int
	Property PropertyID
	Get      func() int64
}

// FloatProp is IntProp's real-valued counterpart (SS_ATTR_TYPES marks
// the Fval column FLOAT; Ival carries every other property).
type FloatProp struct {
	Entity   EntityType
	EntityID int
	Property PropertyID
	Get      func() float64
}

// Registry collects every IntProp/FloatProp an instantiated plan
// publishes. One Registry is shared by every SysStreamGen in the
// plan, since any number of monitor queries may watch the same
// underlying entities.
type Registry struct {
	ints   []IntProp
	floats []FloatProp
}

func NewRegistry() *Registry { return &Registry{} }

// RegisterInt adds p to the registry. Called during plan
// instantiation (plan.Instantiate / plan.InsertMonitor), never
// concurrently with a SysStreamGen poll — the scheduler interlock
// (sched.Scheduler.Interrupt) is what makes that safe.
func (r *Registry) RegisterInt(p IntProp) { r.ints = append(r.ints, p) }

// RegisterFloat adds p to the registry.
func (r *Registry) RegisterFloat(p FloatProp) { r.floats = append(r.floats, p) }

// Sample is one row of the SYS_STREAM relation: (entity_type,
// entity_id, property_id, ival, fval), matching SS_ATTRS in
// include/common/sys_stream.h column for column.
type Sample struct {
	Entity   EntityType
	EntityID int
	Property PropertyID
	IVal     int64
	FVal     float32
}

// Poll reads every registered property once and returns the samples
// in a deterministic order (sorted by entity type, then id, then
// property), so that repeated polls of unchanged state produce
// byte-identical tuples in the same order. SysStreamGen does not
// compare successive polls; it emits every sample on each new tick.
func (r *Registry) Poll() []Sample {
	out := make([]Sample, 0, len(r.ints)+len(r.floats))
	for _, p := range r.ints {
		out = append(out, Sample{Entity: p.Entity, EntityID: p.EntityID, Property: p.Property, IVal: p.Get()})
	}
	for _, p := range r.floats {
		out = append(out, Sample{Entity: p.Entity, EntityID: p.EntityID, Property: p.Property, FVal: float32(p.Get())})
	}
	slices.SortFunc(out, func(a, b Sample) int {
		if a.Entity != b.Entity {
			return int(a.Entity) - int(b.Entity)
		}
		if a.EntityID != b.EntityID {
			return a.EntityID - b.EntityID
		}
		return int(a.Property) - int(b.Property)
	})
	return out
}

// CPUTicksToSeconds converts a raw CPU tick count to wall-clock
// seconds given the configured processor speed in MHz, mirroring
// plan_mgr_monitor.cc's tick-to-time conversion used for SS_OP_TIME.
// The CPU_SPEED config key (spec.md §6) supplies mhz.
func CPUTicksToSeconds(ticks uint64, mhz int) float64 {
	if mhz <= 0 {
		return 0
	}
	return float64(ticks) / (float64(mhz) * 1e6)
}
