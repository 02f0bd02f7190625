package store

import (
	"github.com/kajic/dsms/index"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

// secondaryIndex pairs a hash index with the key function that feeds
// it, so Relation can keep every registered index in sync as tuples
// come and go.
type secondaryIndex struct {
	key KeyFunc
	idx *index.Hash[Ref]
}

// Relation is a scannable, indexable bag of tuples: the backing store
// for a relation synopsis. Point lookups are served by zero or more
// secondary hash indexes, one per probe predicate a join or group-by
// needs — index maintenance is driven entirely from Insert/Delete so
// callers never update an index directly.
type Relation struct {
	*Base
	all     map[uint64]Ref // slot identity -> ref, for Scan
	indexes []*secondaryIndex
}

// NewRelation creates a relation store backed by pool for tuples of
// the given layout.
func NewRelation(pool *mempool.Pool, layout *types.Layout) *Relation {
	r := &Relation{all: make(map[uint64]Ref)}
	r.Base = NewBase(pool, layout, r.onFree)
	return r
}

func slotKey(slot uint32) uint64 { return uint64(slot) }

func (r *Relation) onFree(slot uint32) {
	delete(r.all, slotKey(slot))
}

// AddIndex registers a new secondary hash index keyed by key, with
// the given split threshold. Existing tuples are backfilled into it.
func (r *Relation) AddIndex(key KeyFunc, threshold float64) *index.Hash[Ref] {
	idx := index.New[Ref](r.pool, threshold)
	for _, ref := range r.all {
		idx.Insert(key(ref.Row()), ref)
	}
	r.indexes = append(r.indexes, &secondaryIndex{key: key, idx: idx})
	return idx
}

// Insert adds ref to the relation bag and to every registered
// secondary index.
func (r *Relation) Insert(ref Ref) {
	r.all[slotKey(ref.slot)] = ref
	for _, si := range r.indexes {
		si.idx.Insert(si.key(ref.Row()), ref)
	}
}

// Delete removes ref from the relation bag and every registered
// secondary index.
func (r *Relation) Delete(ref Ref) {
	delete(r.all, slotKey(ref.slot))
	for _, si := range r.indexes {
		si.idx.Delete(si.key(ref.Row()), func(v Ref) bool { return Same(v, ref) })
	}
}

// Scan calls fn for every tuple currently in the relation. Order is
// unspecified.
func (r *Relation) Scan(fn func(Ref)) {
	for _, ref := range r.all {
		fn(ref)
	}
}

// Len returns the number of tuples currently in the relation.
func (r *Relation) Len() int { return len(r.all) }
