package store

import (
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

// Simple is a store with no auxiliary structure beyond the freelist
// in Base: new_tuple/add_ref/decr_ref only. Used by operators whose
// output tuples need no ordering, partitioning, or lineage lookup
// (e.g. projections that are themselves streams).
type Simple struct {
	*Base
}

// NewSimple creates a simple store backed by pool for tuples of the
// given layout.
func NewSimple(pool *mempool.Pool, layout *types.Layout) *Simple {
	s := &Simple{}
	s.Base = NewBase(pool, layout, nil)
	return s
}
