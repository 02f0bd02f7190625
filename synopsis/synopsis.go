// Package synopsis wraps the store package's tuple stores with the
// size/high-water-mark bookkeeping spec.md §4.9's monitor registry
// needs, without entangling store itself (a low-level memory
// concern) with monitoring (a high-level, query-plan concern).
// Grounded on original_source/dsms/include/execution/synopses/*.h,
// which layer the same accounting over the stores.
package synopsis

import (
	"github.com/kajic/dsms/index"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/store"
	"github.com/kajic/dsms/types"
)

type sizeTracker struct {
	max int
}

func (t *sizeTracker) observe(n int) {
	if n > t.max {
		t.max = n
	}
}

// MaxSize returns the largest size this synopsis has ever reached.
func (t *sizeTracker) MaxSize() int { return t.max }

// Window is a row or range window synopsis: a *store.Window plus its
// high-water mark.
type Window struct {
	*store.Window
	sizeTracker
}

func NewWindow(pool *mempool.Pool, layout *types.Layout) *Window {
	return &Window{Window: store.NewWindow(pool, layout)}
}

func (w *Window) Insert(ref store.Ref, ts uint32) {
	w.Window.Insert(ref, ts)
	w.observe(w.Len())
}

// PartitionWindow is a partitioned window synopsis: a
// *store.PartitionWindow plus the high-water mark of its largest
// partition.
type PartitionWindow struct {
	*store.PartitionWindow
	sizeTracker
}

func NewPartitionWindow(pool *mempool.Pool, layout *types.Layout, key store.KeyFunc) *PartitionWindow {
	return &PartitionWindow{PartitionWindow: store.NewPartitionWindow(pool, layout, key)}
}

func (p *PartitionWindow) InsertPartitioned(ref store.Ref, ts uint32) {
	p.PartitionWindow.InsertPartitioned(ref, ts)
	p.observe(p.PartitionSize(p.KeyOf(ref)))
}

// Lineage is a lineage synopsis wrapping a *store.Lineage. Its size
// tracker is never updated (store.Lineage exposes no entry count), so
// MaxSize always reports 0.
type Lineage struct {
	*store.Lineage
	sizeTracker
}

func NewLineage(pool *mempool.Pool, layout *types.Layout, threshold float64) *Lineage {
	return &Lineage{Lineage: store.NewLineage(pool, layout, threshold)}
}

func (l *Lineage) InsertLineage(ref store.Ref, lineage ...store.Ref) error {
	if err := l.Lineage.InsertLineage(ref, lineage...); err != nil {
		return err
	}
	return nil
}

// Relation is a relation synopsis: a *store.Relation plus its
// high-water mark and the set of secondary hash indexes maintained
// against it (one per probe predicate a join or group-by needs).
type Relation struct {
	*store.Relation
	sizeTracker
}

func NewRelation(pool *mempool.Pool, layout *types.Layout) *Relation {
	return &Relation{Relation: store.NewRelation(pool, layout)}
}

func (r *Relation) Insert(ref store.Ref) {
	r.Relation.Insert(ref)
	r.observe(r.Len())
}

func (r *Relation) Delete(ref store.Ref) {
	r.Relation.Delete(ref)
}

// AddIndex registers a secondary hash index over r, keyed by key.
func (r *Relation) AddIndex(key store.KeyFunc, threshold float64) *index.Hash[store.Ref] {
	return r.Relation.AddIndex(key, threshold)
}
