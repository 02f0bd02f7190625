package types

// Source is the pull interface a base table (stream or relation)
// supplier exposes to a source operator, per spec.md §6. It is
// implemented outside this module (table suppliers, CLI/network front
// ends) and consumed by vm.StreamSource / vm.RelationSource.
type Source interface {
	Start() error

	// GetNext returns the next raw tuple. The returned slice is owned
	// by the supplier and is only valid until the next call to
	// GetNext. A nil slice with heartbeat == false signals no data is
	// currently available (not end of stream); callers should treat it
	// like an empty input queue.
	GetNext() (tuple []byte, ts uint32, heartbeat bool, err error)

	End() error
}

// Sink is the push interface a query output consumer exposes to an
// output operator, per spec.md §6.
type Sink interface {
	SetNumAttrs(n int) error
	SetAttrInfo(pos int, kind Kind, len int) error

	Start() error
	PutNext(wire []byte) error
	End() error
}
