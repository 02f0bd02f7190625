// Package types defines the base data model of the engine: the closed
// set of column types, schemas, and the tuple layout algorithm that
// turns a schema into byte offsets.
//
// Tuples themselves are untyped byte buffers (see package store); this
// package only knows how to compute where a column lives within one.
package types

import "fmt"

// Kind is one of the four base column types the engine understands.
type Kind int

const (
	INT Kind = iota
	FLOAT
	BYTE
	CHAR
)

func (k Kind) String() string {
	switch k {
	case INT:
		return "INT"
	case FLOAT:
		return "FLOAT"
	case BYTE:
		return "BYTE"
	case CHAR:
		return "CHAR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Align returns the byte alignment required for a value of kind k.
// CHAR columns are fixed-length byte strings and need no alignment
// beyond a single byte.
func (k Kind) Align() int {
	switch k {
	case INT, FLOAT:
		return 4
	default:
		return 1
	}
}

// Size returns the fixed storage size of kind k. Len is the declared
// column length and is only meaningful for CHAR.
func (k Kind) Size(len int) int {
	switch k {
	case INT, FLOAT:
		return 4
	case BYTE:
		return 1
	case CHAR:
		return len
	default:
		panic(fmt.Sprintf("types: unknown kind %v", k))
	}
}

// Column is one typed, named attribute of a Schema.
type Column struct {
	Name string
	Type Kind
	// Len is the declared maximum length in bytes for CHAR columns;
	// ignored for other kinds.
	Len int
}

// Schema is an ordered sequence of typed columns.
type Schema []Column

// IsPrefixOf reports whether s is a column-for-column prefix of other:
// same length columns, same type, same declared length, in order.
func (s Schema) IsPrefixOf(other Schema) bool {
	if len(s) > len(other) {
		return false
	}
	for i := range s {
		if s[i].Type != other[i].Type || s[i].Len != other[i].Len {
			return false
		}
	}
	return true
}
