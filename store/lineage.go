package store

import (
	"github.com/kajic/dsms/index"
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

// Lineage is a store whose tuples are additionally indexed by
// lineage: the identity of the upstream tuple(s) that produced them.
// At most one tuple is ever held per lineage key (spec.md's lineage
// uniqueness invariant); Insert overwrites rather than chains.
type Lineage struct {
	*Base
	idx *index.Hash[Ref]
}

// NewLineage creates a lineage store backed by pool for tuples of the
// given layout. threshold is the hash index's split load factor
// (spec.md §4.5's INDEX_THRESHOLD).
func NewLineage(pool *mempool.Pool, layout *types.Layout, threshold float64) *Lineage {
	l := &Lineage{idx: index.New[Ref](pool, threshold)}
	l.Base = NewBase(pool, layout, nil)
	return l
}

// InsertLineage records that ref is the (sole) tuple produced by the
// given lineage tuple refs.
func (l *Lineage) InsertLineage(ref Ref, lineage ...Ref) error {
	key := LineageKey(lineage...)
	l.idx.Delete(key, func(Ref) bool { return true })
	return l.idx.Insert(key, ref)
}

// DeleteLineage removes the lineage entry for the given lineage tuple
// refs, if present.
func (l *Lineage) DeleteLineage(lineage ...Ref) bool {
	key := LineageKey(lineage...)
	return l.idx.Delete(key, func(Ref) bool { return true })
}

// LookupLineage returns the tuple produced by the given lineage tuple
// refs, if one is currently recorded.
func (l *Lineage) LookupLineage(lineage ...Ref) (Ref, bool) {
	matches := l.idx.Scan(LineageKey(lineage...))
	if len(matches) == 0 {
		return Ref{}, false
	}
	return matches[0], true
}
