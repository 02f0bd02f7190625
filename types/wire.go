package types

import (
	"encoding/binary"
	"fmt"
)

// Sign is the wire-format sign byte distinguishing inserted from
// deleted tuples on the output side.
type Sign byte

const (
	SignPlus  Sign = '+'
	SignMinus Sign = '-'
)

// headerLen is the output-side wire header: a u32 timestamp followed
// by a single sign byte. The input side (table sources) omits the sign
// byte entirely, per spec.
const headerLen = 4 + 1

// EncodedLen returns the number of wire bytes a tuple of layout l
// occupies on the output side, including the timestamp+sign header.
func EncodedLen(l *Layout) int {
	return headerLen + l.Size()
}

// Encode serializes row (a tuple conforming to l) onto the output wire
// format: timestamp, sign, then the raw column bytes in layout order.
// dst must be at least EncodedLen(l) bytes.
func Encode(dst []byte, l *Layout, row Raw, ts uint32, sign Sign) {
	binary.NativeEndian.PutUint32(dst[0:4], ts)
	dst[4] = byte(sign)
	copy(dst[headerLen:headerLen+l.Size()], row)
}

// Decode parses an output-wire-format buffer back into its timestamp,
// sign, and row bytes. The returned row aliases src.
func Decode(src []byte, l *Layout) (ts uint32, sign Sign, row Raw, err error) {
	if len(src) < EncodedLen(l) {
		return 0, 0, nil, fmt.Errorf("types: wire buffer too short: got %d, want %d", len(src), EncodedLen(l))
	}
	ts = binary.NativeEndian.Uint32(src[0:4])
	sign = Sign(src[4])
	row = Raw(src[headerLen : headerLen+l.Size()])
	return ts, sign, row, nil
}

// inputHeaderLen is the input-side wire header: a u32 timestamp and no
// sign byte (table sources emit only PLUS and HEARTBEAT, so the sign is
// implied rather than carried on the wire).
const inputHeaderLen = 4

// EncodedInputLen returns the number of wire bytes a tuple of layout l
// occupies on the input side, including the timestamp header.
func EncodedInputLen(l *Layout) int {
	return inputHeaderLen + l.Size()
}

// DecodeInput parses an input-side buffer (timestamp, no sign byte)
// into its timestamp and row bytes, per the table-source interface in
// spec.md §6. The returned row aliases src.
func DecodeInput(src []byte, l *Layout) (ts uint32, row Raw, err error) {
	if len(src) < EncodedInputLen(l) {
		return 0, nil, fmt.Errorf("types: input buffer too short: got %d, want %d", len(src), EncodedInputLen(l))
	}
	ts = binary.NativeEndian.Uint32(src[0:4])
	row = Raw(src[inputHeaderLen : inputHeaderLen+l.Size()])
	return ts, row, nil
}

// EncodeInput serializes row (conforming to l) onto the input wire
// format for use by test table sources: timestamp followed by the raw
// column bytes. dst must be at least EncodedInputLen(l) bytes.
func EncodeInput(dst []byte, l *Layout, row Raw, ts uint32) {
	binary.NativeEndian.PutUint32(dst[0:4], ts)
	copy(dst[inputHeaderLen:inputHeaderLen+l.Size()], row)
}
