// Package mempool implements the engine's memory manager: a fixed
// total budget of memory sliced into equal-size pages, handed out to
// stores and the hash index. There is no compaction; a freed page
// simply returns to the freelist.
package mempool

import "errors"

// ErrOutOfMemory is returned by Allocate when the pool is exhausted.
var ErrOutOfMemory = errors.New("mempool: out of memory")

// PageID identifies a page within a Pool. IDs run from 0 to the
// pool's page count minus one; 0 is a valid page.
type PageID uint32

// Pool is a fixed-capacity allocator of equal-size pages.
type Pool struct {
	pageSize int
	pages    [][]byte
	free     []PageID
}

// New creates a pool with the given total byte budget, split into
// pages of pageSize bytes each (the last partial page, if any, is
// dropped — capacity is always a multiple of pageSize).
func New(totalBytes, pageSize int) *Pool {
	if pageSize <= 0 {
		panic("mempool: pageSize must be positive")
	}
	n := totalBytes / pageSize
	p := &Pool{
		pageSize: pageSize,
		pages:    make([][]byte, n),
		free:     make([]PageID, n),
	}
	for i := 0; i < n; i++ {
		p.pages[i] = make([]byte, pageSize)
		p.free[i] = PageID(n - 1 - i)
	}
	return p
}

// PageSize returns the configured page size in bytes.
func (p *Pool) PageSize() int { return p.pageSize }

// Capacity returns the total number of pages in the pool.
func (p *Pool) Capacity() int { return len(p.pages) }

// InUse returns the number of pages currently allocated.
func (p *Pool) InUse() int { return len(p.pages) - len(p.free) }

// Allocate reserves a fresh page and returns its id, or
// ErrOutOfMemory if the pool is exhausted.
func (p *Pool) Allocate() (PageID, error) {
	if len(p.free) == 0 {
		return 0, ErrOutOfMemory
	}
	n := len(p.free) - 1
	id := p.free[n]
	p.free = p.free[:n]
	return id, nil
}

// Free returns a page to the pool. Freeing an already-free page is a
// programming error; callers (stores) are responsible for not
// double-freeing.
func (p *Pool) Free(id PageID) {
	p.free = append(p.free, id)
}

// Page returns the backing byte slice for a page id.
func (p *Pool) Page(id PageID) []byte {
	return p.pages[id]
}
