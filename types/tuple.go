package types

import (
	"encoding/binary"
	"math"
)

// Raw is the untyped byte buffer backing a tuple. Interpretation is
// always relative to some Layout; Raw itself carries no type
// information.
type Raw []byte

// Int reads an INT column at byte offset off.
func (r Raw) Int(off int) int32 {
	return int32(binary.NativeEndian.Uint32(r[off : off+4]))
}

// SetInt writes an INT column at byte offset off.
func (r Raw) SetInt(off int, v int32) {
	binary.NativeEndian.PutUint32(r[off:off+4], uint32(v))
}

// Float reads a FLOAT column at byte offset off.
func (r Raw) Float(off int) float32 {
	return math.Float32frombits(binary.NativeEndian.Uint32(r[off : off+4]))
}

// SetFloat writes a FLOAT column at byte offset off.
func (r Raw) SetFloat(off int, v float32) {
	binary.NativeEndian.PutUint32(r[off:off+4], math.Float32bits(v))
}

// Byte reads a BYTE column at byte offset off.
func (r Raw) Byte(off int) byte { return r[off] }

// SetByte writes a BYTE column at byte offset off.
func (r Raw) SetByte(off int, v byte) { r[off] = v }

// Char returns the fixed-length CHAR column at byte offset off,
// trimmed at the first NUL (or the declared length, whichever comes
// first).
func (r Raw) Char(off, length int) []byte {
	b := r[off : off+length]
	for i, c := range b {
		if c == 0 {
			return b[:i]
		}
	}
	return b
}

// SetChar writes s into the fixed-length CHAR column at byte offset
// off, NUL-terminating within the declared length. s longer than
// length-1 is truncated.
func (r Raw) SetChar(off, length int, s []byte) {
	b := r[off : off+length]
	n := copy(b, s)
	if n < length {
		b[n] = 0
	}
}
