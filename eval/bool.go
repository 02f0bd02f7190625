package eval

import "bytes"

// CompareOp is one of the six scalar comparison operators a Compare
// entry evaluates.
type CompareOp int

const (
	EQ CompareOp = iota
	NE
	LT
	LE
	GT
	GE
)

// Kind distinguishes which tuple accessor a Compare operand reads
// through, since the raw Role/Col pair alone doesn't carry a type.
type Kind int

const (
	KindInt Kind = iota
	KindFloat
	KindByte
	KindChar
)

// CmpOperand is one side of a comparison: either a direct tuple read
// at (Role, Col), or — when Prog is non-nil — an arithmetic
// sub-program run first to materialize the value at (Role, Col)
// before it's read. This is how a predicate like "a.x + 1 < b.y"
// compiles down: an ArithProgram computing a.x+1 into a scratch
// slot, compared against a direct read of b.y.
type CmpOperand struct {
	Role Role
	Col  int
	Kind Kind
	Len  int // CHAR width; unused otherwise
	Prog Program
}

func (o CmpOperand) eval(ctx *Context) {
	if o.Prog != nil {
		o.Prog.Run(ctx)
	}
}

// Compare is one entry of a boolean program: a single comparison
// between two operands.
type Compare struct {
	Op          CompareOp
	Left, Right CmpOperand
}

// Eval runs any nested arithmetic on both sides, then evaluates the
// comparison.
func (c Compare) Eval(ctx *Context) bool {
	c.Left.eval(ctx)
	c.Right.eval(ctx)

	lt := ctx.Tuple(c.Left.Role)
	rt := ctx.Tuple(c.Right.Role)

	switch c.Left.Kind {
	case KindInt:
		return cmpOrdered(lt.Int(c.Left.Col), rt.Int(c.Right.Col), c.Op)
	case KindFloat:
		return cmpOrdered(lt.Float(c.Left.Col), rt.Float(c.Right.Col), c.Op)
	case KindByte:
		return cmpOrdered(lt.Byte(c.Left.Col), rt.Byte(c.Right.Col), c.Op)
	case KindChar:
		a := lt.Char(c.Left.Col, c.Left.Len)
		b := rt.Char(c.Right.Col, c.Right.Len)
		return cmpBytes(a, b, c.Op)
	default:
		return false
	}
}

func cmpOrdered[T int32 | float32 | byte](a, b T, op CompareOp) bool {
	switch op {
	case EQ:
		return a == b
	case NE:
		return a != b
	case LT:
		return a < b
	case LE:
		return a <= b
	case GT:
		return a > b
	case GE:
		return a >= b
	default:
		return false
	}
}

func cmpBytes(a, b []byte, op CompareOp) bool {
	c := bytes.Compare(a, b)
	switch op {
	case EQ:
		return c == 0
	case NE:
		return c != 0
	case LT:
		return c < 0
	case LE:
		return c <= 0
	case GT:
		return c > 0
	case GE:
		return c >= 0
	default:
		return false
	}
}

// BoolProgram is a conjunction of Compare entries: it evaluates true
// only if every entry does. Predicates reach here already
// materialized in conjunctive normal form by the (out-of-scope)
// planner, so BoolProgram never needs to represent disjunction.
type BoolProgram []Compare

// Eval returns whether every entry of p holds against ctx.
func (p BoolProgram) Eval(ctx *Context) bool {
	for _, c := range p {
		if !c.Eval(ctx) {
			return false
		}
	}
	return true
}
