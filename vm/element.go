package vm

import "github.com/kajic/dsms/queue"

// Element is the unit flowing between operators: a PLUS/MINUS
// assertion about a tuple, or a HEARTBEAT carrying only a timestamp.
// It is a type alias (not a new type) for queue.Element because vm
// holds *queue.Queue fields for every operator's input/output, and
// Element must be defined in queue to avoid an import cycle; the
// alias lets every call site in this package spell it vm.Element, as
// spec.md itself does.
type Element = queue.Element

const (
	Plus      = queue.Plus
	Minus     = queue.Minus
	Heartbeat = queue.Heartbeat
)
