// Package eval implements the engine's expression evaluators: the
// straight-line arithmetic and boolean "programs" the (out-of-scope)
// planner compiles predicates and projections down to, per spec.md
// §4.4. An evaluator owns no tuples — it only reads and writes
// wherever the roles bound into its Context point.
package eval

import "github.com/kajic/dsms/types"

// Role is a named tuple slot an instruction's operands refer to. The
// planner binds at most one tuple per role before running a program.
type Role int

const (
	Input Role = iota
	Output
	Left
	Right
	Copy
	Const
	Scratch
	// numFixedRoles marks the start of operator-private numeric roles
	// (e.g. a group-by's "old group row" vs "new group row"), which
	// callers address as Role(numFixedRoles + n).
	numFixedRoles
)

// Context binds a tuple's raw bytes to each role an evaluator's
// program references.
type Context struct {
	tuples [16]types.Raw
}

// NewContext creates an empty evaluation context.
func NewContext() *Context { return &Context{} }

// Bind attaches tuple t to role r for the lifetime of the next
// program evaluation (or until rebound).
func (c *Context) Bind(r Role, t types.Raw) {
	c.tuples[r] = t
}

// Tuple returns the tuple currently bound to role r.
func (c *Context) Tuple(r Role) types.Raw {
	return c.tuples[r]
}
