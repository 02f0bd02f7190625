package types

// tupleAlign is the alignment every tuple's total length is rounded up
// to: the least common multiple of the base types' alignments
// (lcm(4, 4, 1, 1) == 4).
const tupleAlign = 4

// Layout is the byte layout derived from a Schema. Columns are assigned
// offsets incrementally in schema order, so if schema S1 is a prefix of
// schema S2, NewLayout(S1) and NewLayout(S2) agree on the offset of
// every column S1 and S2 share. That invariant is what lets an operator
// reinterpret a narrower upstream tuple using a wider downstream layout
// (and vice versa) without re-copying shared columns.
type Layout struct {
	schema  Schema
	offsets []int
	size    int
}

// NewLayout computes the tuple layout for schema s.
func NewLayout(s Schema) *Layout {
	l := &Layout{schema: s, offsets: make([]int, len(s))}
	off := 0
	for i, c := range s {
		a := c.Type.Align()
		if rem := off % a; rem != 0 {
			off += a - rem
		}
		l.offsets[i] = off
		off += c.Type.Size(c.Len)
	}
	if rem := off % tupleAlign; rem != 0 {
		off += tupleAlign - rem
	}
	l.size = off
	return l
}

// Offset returns the byte offset of column pos within a tuple of this
// layout.
func (l *Layout) Offset(pos int) int { return l.offsets[pos] }

// Size is the total, alignment-padded length in bytes of a tuple
// conforming to this layout.
func (l *Layout) Size() int { return l.size }

// Schema returns the schema this layout was built from.
func (l *Layout) Schema() Schema { return l.schema }
