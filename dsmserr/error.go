// Package dsmserr defines the closed set of error kinds spec.md §7
// recognizes, for the planning-time and connection-level errors that
// carry location information back to a caller. Runtime errors inside
// an operator (spec.md §4.7) are plain wrapped errors returned from
// vm.Operator.Run; QueueFull is never one of these (it's a bool
// returned from queue.Queue.Enqueue, handled by stall).
package dsmserr

import "fmt"

// Kind is one of the closed set of error categories spec.md §7 names.
type Kind int

const (
	ParseError Kind = iota
	DuplicateTable
	DuplicateAttr
	UnknownTable
	UnknownVariable
	AmbiguousAttr
	UnknownAttr
	WindowOverRelation
	TypeMismatch
	SchemaMismatch
	AmbiguousTable
	InvalidUse // wrong state for the requested operation
	InvalidParam
	Internal
	OutOfMemory
	ConnectionEnded
)

func (k Kind) String() string {
	switch k {
	case ParseError:
		return "ParseError"
	case DuplicateTable:
		return "DuplicateTable"
	case DuplicateAttr:
		return "DuplicateAttr"
	case UnknownTable:
		return "UnknownTable"
	case UnknownVariable:
		return "UnknownVariable"
	case AmbiguousAttr:
		return "AmbiguousAttr"
	case UnknownAttr:
		return "UnknownAttr"
	case WindowOverRelation:
		return "WindowOverRelation"
	case TypeMismatch:
		return "TypeMismatch"
	case SchemaMismatch:
		return "SchemaMismatch"
	case AmbiguousTable:
		return "AmbiguousTable"
	case InvalidUse:
		return "InvalidUse"
	case InvalidParam:
		return "InvalidParam"
	case Internal:
		return "Internal"
	case OutOfMemory:
		return "OutOfMemory"
	case ConnectionEnded:
		return "ConnectionEnded"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Position locates an error within whatever was being compiled
// (query text, XML plan, ...) when it was raised. Line/Col are 1-based;
// a zero Position means "no location available" and is omitted from
// Error's message.
type Position struct {
	Line, Col int
}

// Error is the planning/connection error value surfaced to a caller,
// per spec.md §7's propagation policy: "planning errors are surfaced
// to the caller with location information."
type Error struct {
	Kind Kind
	Msg  string
	Pos  *Position
}

func (e *Error) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s at line %d, col %d: %s", e.Kind, e.Pos.Line, e.Pos.Col, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// New constructs an Error with no location information.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// At constructs an Error located at line, col.
func At(kind Kind, line, col int, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Pos: &Position{Line: line, Col: col}}
}
