package store

import (
	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

// KeyFunc derives a partitioning (or lineage, or grouping) key from a
// tuple's raw bytes. Callers build one from the column offsets
// declared at store-configuration time.
type KeyFunc func(types.Raw) []byte

// PartitionWindow is a store holding, conceptually, one row window per
// partition key: a FIFO per distinct key, partitions created on first
// insert. Partition identity is derived from a declared column subset
// via KeyFunc.
type PartitionWindow struct {
	*Base
	key        KeyFunc
	partitions map[string][]windowEntry
}

// NewPartitionWindow creates a partitioned window store backed by
// pool for tuples of the given layout, partitioned by key.
func NewPartitionWindow(pool *mempool.Pool, layout *types.Layout, key KeyFunc) *PartitionWindow {
	p := &PartitionWindow{key: key, partitions: make(map[string][]windowEntry)}
	p.Base = NewBase(pool, layout, nil)
	return p
}

// InsertPartitioned adds ref (at timestamp ts) to the back of its
// partition's FIFO, creating the partition if this is its first
// tuple.
func (p *PartitionWindow) InsertPartitioned(ref Ref, ts uint32) {
	k := string(p.key(ref.Row()))
	p.partitions[k] = append(p.partitions[k], windowEntry{ref: ref, ts: ts})
}

// PartitionSize returns the number of tuples currently held under
// partitionKey.
func (p *PartitionWindow) PartitionSize(partitionKey []byte) int {
	return len(p.partitions[string(partitionKey)])
}

// DeleteOldestOf removes and returns the oldest tuple of the
// partition identified by partitionKey.
func (p *PartitionWindow) DeleteOldestOf(partitionKey []byte) (Ref, error) {
	k := string(partitionKey)
	q := p.partitions[k]
	if len(q) == 0 {
		return Ref{}, ErrEmpty
	}
	ref := q[0].ref
	if len(q) == 1 {
		delete(p.partitions, k)
	} else {
		p.partitions[k] = q[1:]
	}
	return ref, nil
}

// KeyOf derives the partition key for ref using the store's KeyFunc,
// so operators can compute it once and reuse it across
// InsertPartitioned/PartitionSize/DeleteOldestOf calls.
func (p *PartitionWindow) KeyOf(ref Ref) []byte {
	return p.key(ref.Row())
}
