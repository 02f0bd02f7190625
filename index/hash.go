// Package index implements the engine's hash index: a linear-hashing
// table over buckets carved from mempool pages, keyed by caller-supplied
// byte keys (the output of an "update-hash"/"scan-hash" expression
// program evaluated by the caller — see package eval). Collisions
// within a bucket chain are broken by exact key-byte equality, which is
// what an equi-join/lineage-lookup predicate reduces to once its
// operands have been evaluated into bytes.
package index

import (
	"bytes"

	"github.com/dchest/siphash"
	"github.com/kajic/dsms/mempool"
)

// hashKey0, hashKey1 are a fixed per-process siphash key. The index
// only needs a stable, well-distributed hash, not a secret one.
const (
	hashKey0 = 0x646d736d5f686173
	hashKey1 = 0x685f696e6465785f
)

func hashBytes(key []byte) uint64 {
	return siphash.Hash(hashKey0, hashKey1, key)
}

// entryStride is the assumed average footprint of one chained entry
// for the purposes of accounting entry-arena growth against mempool
// pages. It does not bound key length; it only paces how often a
// fresh page is drawn from the pool as the entries arena grows, so
// that a Hash index consumes the shared memory budget like every
// other store-backed structure even though entries themselves live in
// a Go slice rather than literal page bytes.
const entryStride = 64

type entry[T any] struct {
	hash  uint64
	key   []byte
	value T
	next  int32 // index into entries, -1 terminates the chain
}

// Hash is a linear-hashing index: insert/delete/scan by an arbitrary
// byte key. Each insert that leaves the non-empty-bucket ratio above
// threshold splits one bucket (the next in round-robin order) into one
// newly appended bucket; the hash gains a bit once every bucket of the
// current level has been split.
type Hash[T any] struct {
	pool      *mempool.Pool
	threshold float64

	buckets  []int32 // head entry index per bucket, -1 if empty
	level    uint    // buckets hashed with `level` bits, except [0,next)
	next     uint32  // next bucket index to split
	nonEmpty int

	entries    []entry[T]
	freeHead   int32 // -1 if none
	pagesDrawn int
}

// New creates a hash index drawing page capacity from pool and
// splitting a bucket whenever non-empty-buckets/total-buckets exceeds
// threshold (0 < threshold < 1).
func New[T any](pool *mempool.Pool, threshold float64) *Hash[T] {
	h := &Hash[T]{
		pool:      pool,
		threshold: threshold,
		buckets:   []int32{-1, -1},
		level:     1,
		freeHead:  -1,
	}
	return h
}

func (h *Hash[T]) bucketFor(hash uint64) uint32 {
	mask := uint64(1)<<h.level - 1
	b := uint32(hash & mask)
	if b < h.next {
		b = uint32(hash & (mask<<1 | 1))
	}
	return b
}

func (h *Hash[T]) allocEntry() (int32, error) {
	if h.freeHead != -1 {
		id := h.freeHead
		h.freeHead = h.entries[id].next
		return id, nil
	}
	if len(h.entries)*entryStride >= h.pagesDrawn*h.pool.PageSize() {
		if _, err := h.pool.Allocate(); err != nil {
			return 0, err
		}
		h.pagesDrawn++
	}
	h.entries = append(h.entries, entry[T]{})
	return int32(len(h.entries) - 1), nil
}

// Insert adds value under key. Multiple values may share a key (the
// caller's equal predicate decides what counts as a match on Scan).
func (h *Hash[T]) Insert(key []byte, value T) error {
	hash := hashBytes(key)
	b := h.bucketFor(hash)
	id, err := h.allocEntry()
	if err != nil {
		return err
	}
	if h.buckets[b] == -1 {
		h.nonEmpty++
	}
	h.entries[id] = entry[T]{hash: hash, key: append([]byte(nil), key...), value: value, next: h.buckets[b]}
	h.buckets[b] = id
	h.maybeSplit()
	return nil
}

// Delete removes the first entry under key for which equal returns
// true, reporting whether anything was removed.
func (h *Hash[T]) Delete(key []byte, equal func(T) bool) bool {
	hash := hashBytes(key)
	b := h.bucketFor(hash)
	prev := int32(-1)
	cur := h.buckets[b]
	for cur != -1 {
		e := &h.entries[cur]
		if e.hash == hash && bytes.Equal(e.key, key) && equal(e.value) {
			if prev == -1 {
				h.buckets[b] = e.next
			} else {
				h.entries[prev].next = e.next
			}
			e.key = nil
			var zero T
			e.value = zero
			e.next = h.freeHead
			h.freeHead = cur
			if h.buckets[b] == -1 {
				h.nonEmpty--
			}
			return true
		}
		prev = cur
		cur = e.next
	}
	return false
}

// Scan returns every value stored under key (exact byte equality).
// Insert puts new entries at the head of their chain, so values come
// back newest first until the bucket is split; a split rebuilds both
// chains in reverse, so the order is not insertion order in general.
func (h *Hash[T]) Scan(key []byte) []T {
	hash := hashBytes(key)
	b := h.bucketFor(hash)
	var out []T
	cur := h.buckets[b]
	for cur != -1 {
		e := &h.entries[cur]
		if e.hash == hash && bytes.Equal(e.key, key) {
			out = append(out, e.value)
		}
		cur = e.next
	}
	return out
}

// Len reports the number of live entries (for monitors).
func (h *Hash[T]) Len() int {
	n := 0
	for _, b := range h.buckets {
		for cur := b; cur != -1; cur = h.entries[cur].next {
			n++
		}
	}
	return n
}

// NonEmptyBuckets and TotalBuckets are exposed for the monitor
// subsystem (spec.md §4.9's hash-index property getters).
func (h *Hash[T]) NonEmptyBuckets() int { return h.nonEmpty }
func (h *Hash[T]) TotalBuckets() int    { return len(h.buckets) }

func (h *Hash[T]) maybeSplit() {
	if float64(h.nonEmpty)/float64(len(h.buckets)) <= h.threshold {
		return
	}

	oldBucket := h.next
	wasNonEmpty := h.buckets[oldBucket] != -1
	h.buckets = append(h.buckets, -1)
	newBucket := uint32(len(h.buckets) - 1)

	h.next++
	if h.next == uint32(1)<<h.level {
		h.level++
		h.next = 0
	}

	var keep, move int32 = -1, -1
	cur := h.buckets[oldBucket]
	h.buckets[oldBucket] = -1
	for cur != -1 {
		e := &h.entries[cur]
		nxt := e.next
		if h.bucketFor(e.hash) == newBucket {
			e.next = move
			move = cur
		} else {
			e.next = keep
			keep = cur
		}
		cur = nxt
	}
	h.buckets[oldBucket] = keep
	h.buckets[newBucket] = move

	if wasNonEmpty && keep == -1 {
		h.nonEmpty--
	}
	if move != -1 {
		h.nonEmpty++
	}
}
