package store

import (
	"errors"

	"github.com/kajic/dsms/mempool"
	"github.com/kajic/dsms/types"
)

// ErrEmpty is returned by GetOldest/DeleteOldest when a Window or
// PartitionWindow has no tuples.
var ErrEmpty = errors.New("store: window is empty")

type windowEntry struct {
	ref Ref
	ts  uint32
}

// Window is a store whose tuples are additionally kept in a FIFO
// ordered by insertion timestamp (the timestamps of a single input
// queue are monotone non-decreasing, so simple append/pop-front
// suffices — no re-sorting is ever needed). Used by row and range
// windows.
type Window struct {
	*Base
	q     []windowEntry
	start int
}

// NewWindow creates a window store backed by pool for tuples of the
// given layout.
func NewWindow(pool *mempool.Pool, layout *types.Layout) *Window {
	w := &Window{}
	w.Base = NewBase(pool, layout, nil)
	return w
}

// Insert appends ref at timestamp ts to the back of the FIFO.
func (w *Window) Insert(ref Ref, ts uint32) {
	w.q = append(w.q, windowEntry{ref: ref, ts: ts})
}

// Len returns the number of tuples currently in the window.
func (w *Window) Len() int { return len(w.q) - w.start }

// IsEmpty reports whether the window holds no tuples.
func (w *Window) IsEmpty() bool { return w.Len() == 0 }

// GetOldest returns (without removing) the oldest tuple in the
// window and its insertion timestamp.
func (w *Window) GetOldest() (Ref, uint32, error) {
	if w.IsEmpty() {
		return Ref{}, 0, ErrEmpty
	}
	e := w.q[w.start]
	return e.ref, e.ts, nil
}

// DeleteOldest removes the oldest tuple from the window (it does not
// decrement its refcount — the caller, typically after emitting a
// MINUS for it, is responsible for that).
func (w *Window) DeleteOldest() error {
	if w.IsEmpty() {
		return ErrEmpty
	}
	w.q[w.start] = windowEntry{}
	w.start++
	if w.start > 64 && w.start*2 > len(w.q) {
		w.q = append([]windowEntry(nil), w.q[w.start:]...)
		w.start = 0
	}
	return nil
}
