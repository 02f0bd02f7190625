// Package store implements the engine's tuple stores: the five
// flavors of fixed-size-slot allocators (simple, window, lineage,
// partitioned-window, relation) that own tuple memory and track its
// lifetime by reference count.
//
// A tuple is never copied between operators on the free-flowing path;
// it is handed off by Ref and its lifetime is governed by the
// refcount held in its owning Base.
package store

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

var nextBaseID uint32

func allocBaseID() uint32 {
	return atomic.AddUint32(&nextBaseID, 1)
}

// ErrOutOfMemory is returned by NewTuple when the backing pool is
// exhausted.
var ErrOutOfMemory = mempool.ErrOutOfMemory

const refHeaderLen = 4 // int32 refcount

// Ref is a handle to a tuple slot owned by a Base. The zero Ref is
// never valid; Refs are only ever produced by a Base's NewTuple.
type Ref struct {
	base *Base
	slot uint32
}

// Valid reports whether r refers to a real store slot.
func (r Ref) Valid() bool { return r.base != nil }

// Row returns the raw tuple bytes for r, interpreted against the
// owning Base's layout.
func (r Ref) Row() types.Raw {
	return r.base.row(r.slot)
}

// Int, Float, Byte and Char forward to Row() so call sites that only
// ever read a single column (operator bodies, tests) don't need to
// spell out the intermediate Row() themselves.
func (r Ref) Int(off int) int32           { return r.Row().Int(off) }
func (r Ref) Float(off int) float32       { return r.Row().Float(off) }
func (r Ref) Byte(off int) byte           { return r.Row().Byte(off) }
func (r Ref) Char(off, length int) []byte { return r.Row().Char(off, length) }

// AddRef increments r's reference count. A tuple handed to a second
// holder (another queue element, a synopsis entry, ...) must have
// AddRef called on it first.
func (r Ref) AddRef() { r.base.AddRef(r) }

// DecrRef decrements r's reference count, freeing the slot (and
// clearing any flavor-specific side state) once the count reaches
// zero. Every holder of a Ref — a queue element, a synopsis entry, an
// operator's local state — owns exactly one DecrRef call.
func (r Ref) DecrRef() { r.base.DecrRef(r) }

// RefCount returns the current reference count of the tuple r points
// to. Intended for monitors and tests, not for control flow.
func (r Ref) RefCount() int32 {
	return r.base.refCount(r.slot)
}

// Same reports whether a and b refer to the identical tuple slot
// (pointer-equality in spec.md terms).
func Same(a, b Ref) bool {
	return a.base == b.base && a.slot == b.slot
}

// Identity appends the 8-byte identity of r (owning-store id, slot)
// to dst and returns the result. Used to build lineage keys: the
// concatenation of lineage tuple pointers is exactly the
// concatenation of their Identity encodings.
func (r Ref) Identity(dst []byte) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], r.base.id)
	binary.LittleEndian.PutUint32(buf[4:8], r.slot)
	return append(dst, buf[:]...)
}

// LineageKey encodes an ordered list of tuple refs into the byte key
// used by a lineage synopsis/store, per spec.md's "lineage key is the
// concatenation of lineage tuple pointers."
func LineageKey(refs ...Ref) []byte {
	key := make([]byte, 0, 8*len(refs))
	for _, r := range refs {
		key = r.Identity(key)
	}
	return key
}

// Base is the common slot allocator shared by every store flavor. It
// slices mempool pages into fixed-size slots (a refcount header plus
// a tuple-length payload) and maintains a freelist.
type Base struct {
	id       uint32
	pool     *mempool.Pool
	layout   *types.Layout
	slotLen  int // header + tuple, not page-aligned
	slotsPer int // slots per page
	pages    []mempool.PageID
	free     []uint32
	onFree   func(slot uint32) // flavor-specific teardown hook
}

// NewBase creates a store backed by pool, laying out tuples per
// layout. onFree, if non-nil, is invoked (before the slot returns to
// the freelist) whenever a tuple's refcount reaches zero, so a flavor
// can clear its own auxiliary side state (window position, lineage
// entry, partition membership, ...).
func NewBase(pool *mempool.Pool, layout *types.Layout, onFree func(slot uint32)) *Base {
	slotLen := refHeaderLen + layout.Size()
	slotsPer := pool.PageSize() / slotLen
	if slotsPer == 0 {
		slotsPer = 1
	}
	return &Base{
		id:       allocBaseID(),
		pool:     pool,
		layout:   layout,
		slotLen:  slotLen,
		slotsPer: slotsPer,
		onFree:   onFree,
	}
}

// Layout returns the tuple layout this store allocates.
func (b *Base) Layout() *types.Layout { return b.layout }

func (b *Base) slotBytes(slot uint32) []byte {
	page := slot / uint32(b.slotsPer)
	idx := slot % uint32(b.slotsPer)
	buf := b.pool.Page(b.pages[page])
	start := int(idx) * b.slotLen
	return buf[start : start+b.slotLen]
}

func (b *Base) row(slot uint32) types.Raw {
	return types.Raw(b.slotBytes(slot)[refHeaderLen:])
}

func (b *Base) refCount(slot uint32) int32 {
	return int32FromBytes(b.slotBytes(slot)[:refHeaderLen])
}

func (b *Base) setRefCount(slot uint32, n int32) {
	int32ToBytes(b.slotBytes(slot)[:refHeaderLen], n)
}

// grow allocates one more page of slots.
func (b *Base) grow() error {
	id, err := b.pool.Allocate()
	if err != nil {
		return err
	}
	base := uint32(len(b.pages)) * uint32(b.slotsPer)
	b.pages = append(b.pages, id)
	for i := 0; i < b.slotsPer; i++ {
		b.free = append(b.free, base+uint32(i))
	}
	return nil
}

// NewTuple reserves a fresh slot with refcount 1.
func (b *Base) NewTuple() (Ref, error) {
	if len(b.free) == 0 {
		if err := b.grow(); err != nil {
			return Ref{}, err
		}
	}
	n := len(b.free) - 1
	slot := b.free[n]
	b.free = b.free[:n]
	b.setRefCount(slot, 1)
	return Ref{base: b, slot: slot}, nil
}

// AddRef increments the reference count of r's tuple.
func (b *Base) AddRef(r Ref) {
	b.setRefCount(r.slot, b.refCount(r.slot)+1)
}

// DecrRef decrements the reference count of r's tuple. When the count
// reaches zero the slot's auxiliary state is cleared (via onFree) and
// the slot returns to the freelist.
func (b *Base) DecrRef(r Ref) {
	n := b.refCount(r.slot) - 1
	b.setRefCount(r.slot, n)
	if n == 0 {
		if b.onFree != nil {
			b.onFree(r.slot)
		}
		b.free = append(b.free, r.slot)
	}
}

func int32FromBytes(b []byte) int32 {
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func int32ToBytes(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}
