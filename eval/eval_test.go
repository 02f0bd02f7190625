package eval

import (
	"bytes"
	"testing"

	"github.com/kajic/dsms/types"
)

func rawOf(n int) types.Raw { return make(types.Raw, n) }

func TestIntArithmeticProgram(t *testing.T) {
	ctx := NewContext()
	left := rawOf(8)
	right := rawOf(8)
	out := rawOf(8)
	left.SetInt(0, 10)
	right.SetInt(0, 3)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)
	ctx.Bind(Output, out)

	prog := Program{
		IntAdd{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 0)},
		IntSub{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 4)},
	}
	prog.Run(ctx)

	if got := out.Int(0); got != 13 {
		t.Errorf("IntAdd: got %d, want 13", got)
	}
	if got := out.Int(4); got != 7 {
		t.Errorf("IntSub: got %d, want 7", got)
	}
}

func TestIntMulDivCpy(t *testing.T) {
	ctx := NewContext()
	left := rawOf(4)
	right := rawOf(4)
	out := rawOf(12)
	left.SetInt(0, 6)
	right.SetInt(0, 2)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)
	ctx.Bind(Output, out)

	prog := Program{
		IntMul{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 0)},
		IntDiv{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 4)},
		IntCpy{Src: Operand(Left, 0), Dst: Operand(Output, 8)},
	}
	prog.Run(ctx)

	if out.Int(0) != 12 {
		t.Errorf("IntMul: got %d, want 12", out.Int(0))
	}
	if out.Int(4) != 3 {
		t.Errorf("IntDiv: got %d, want 3", out.Int(4))
	}
	if out.Int(8) != 6 {
		t.Errorf("IntCpy: got %d, want 6", out.Int(8))
	}
}

func TestFloatArithmeticProgram(t *testing.T) {
	ctx := NewContext()
	left := rawOf(4)
	right := rawOf(4)
	out := rawOf(16)
	left.SetFloat(0, 5)
	right.SetFloat(0, 2)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)
	ctx.Bind(Output, out)

	prog := Program{
		FltAdd{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 0)},
		FltSub{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 4)},
		FltMul{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 8)},
		FltDiv{Src1: Operand(Left, 0), Src2: Operand(Right, 0), Dst: Operand(Output, 12)},
	}
	prog.Run(ctx)

	if out.Float(0) != 7 {
		t.Errorf("FltAdd: got %v, want 7", out.Float(0))
	}
	if out.Float(4) != 3 {
		t.Errorf("FltSub: got %v, want 3", out.Float(4))
	}
	if out.Float(8) != 10 {
		t.Errorf("FltMul: got %v, want 10", out.Float(8))
	}
	if out.Float(12) != 2.5 {
		t.Errorf("FltDiv: got %v, want 2.5", out.Float(12))
	}
}

func TestIntToFltAndRawCopies(t *testing.T) {
	ctx := NewContext()
	in := rawOf(13)
	out := rawOf(13)
	in.SetInt(0, 9)
	in.SetByte(4, 0x7a)
	in.SetChar(5, 8, []byte("hello"))
	ctx.Bind(Input, in)
	ctx.Bind(Output, out)

	prog := Program{
		IntToFlt{Src: Operand(Input, 0), Dst: Operand(Output, 0)},
		BytCpy{Src: Operand(Input, 4), Dst: Operand(Output, 4)},
		ChrCpy{Src: Operand(Input, 5), Dst: Operand(Output, 5), Len: 8},
	}
	prog.Run(ctx)

	if out.Float(0) != 9.0 {
		t.Errorf("IntToFlt: got %v, want 9.0", out.Float(0))
	}
	if out.Byte(4) != 0x7a {
		t.Errorf("BytCpy: got %x, want 7a", out.Byte(4))
	}
	if got := out.Char(5, 8); !bytes.Equal(bytes.TrimRight(got, "\x00"), []byte("hello")) {
		t.Errorf("ChrCpy: got %q, want %q", got, "hello")
	}
}

func TestConstInstructions(t *testing.T) {
	ctx := NewContext()
	c := rawOf(13)
	ctx.Bind(Const, c)

	prog := Program{
		ConstInt{Val: 42, Dst: Operand(Const, 0)},
		ConstFlt{Val: 1.5, Dst: Operand(Const, 4)},
		ConstByte{Val: 9, Dst: Operand(Const, 8)},
		ConstChar{Val: []byte("ab"), Len: 4, Dst: Operand(Const, 9)},
	}
	prog.Run(ctx)

	if c.Int(0) != 42 {
		t.Errorf("ConstInt: got %d, want 42", c.Int(0))
	}
	if c.Float(4) != 1.5 {
		t.Errorf("ConstFlt: got %v, want 1.5", c.Float(4))
	}
	if c.Byte(8) != 9 {
		t.Errorf("ConstByte: got %d, want 9", c.Byte(8))
	}
	if got := c.Char(9, 4); !bytes.Equal(bytes.TrimRight(got, "\x00"), []byte("ab")) {
		t.Errorf("ConstChar: got %q, want %q", got, "ab")
	}
}

func TestCompareInt(t *testing.T) {
	ctx := NewContext()
	left := rawOf(4)
	right := rawOf(4)
	left.SetInt(0, 3)
	right.SetInt(0, 5)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)

	cmp := Compare{
		Op:    LT,
		Left:  CmpOperand{Role: Left, Col: 0, Kind: KindInt},
		Right: CmpOperand{Role: Right, Col: 0, Kind: KindInt},
	}
	if !cmp.Eval(ctx) {
		t.Errorf("3 < 5 should be true")
	}
	cmp.Op = GT
	if cmp.Eval(ctx) {
		t.Errorf("3 > 5 should be false")
	}
	cmp.Op = EQ
	if cmp.Eval(ctx) {
		t.Errorf("3 == 5 should be false")
	}
}

func TestCompareWithNestedArithProgram(t *testing.T) {
	ctx := NewContext()
	left := rawOf(8)
	right := rawOf(4)
	scratch := rawOf(4)
	left.SetInt(0, 4)
	left.SetInt(4, 1)
	right.SetInt(0, 5)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)
	ctx.Bind(Scratch, scratch)

	cmp := Compare{
		Op: EQ,
		Left: CmpOperand{
			Role: Scratch, Col: 0, Kind: KindInt,
			Prog: Program{IntAdd{Src1: Operand(Left, 0), Src2: Operand(Left, 4), Dst: Operand(Scratch, 0)}},
		},
		Right: CmpOperand{Role: Right, Col: 0, Kind: KindInt},
	}
	if !cmp.Eval(ctx) {
		t.Errorf("(4+1) == 5 should be true")
	}
}

func TestBoolProgramConjunction(t *testing.T) {
	ctx := NewContext()
	left := rawOf(4)
	right := rawOf(4)
	left.SetInt(0, 3)
	right.SetInt(0, 3)
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)

	prog := BoolProgram{
		{Op: EQ, Left: CmpOperand{Role: Left, Col: 0, Kind: KindInt}, Right: CmpOperand{Role: Right, Col: 0, Kind: KindInt}},
		{Op: LE, Left: CmpOperand{Role: Left, Col: 0, Kind: KindInt}, Right: CmpOperand{Role: Right, Col: 0, Kind: KindInt}},
	}
	if !prog.Eval(ctx) {
		t.Fatalf("conjunction of two true comparisons should be true")
	}

	prog = append(prog, Compare{Op: LT, Left: CmpOperand{Role: Left, Col: 0, Kind: KindInt}, Right: CmpOperand{Role: Right, Col: 0, Kind: KindInt}})
	if prog.Eval(ctx) {
		t.Fatalf("conjunction including a false comparison should be false")
	}
}

func TestCompareChar(t *testing.T) {
	ctx := NewContext()
	left := rawOf(4)
	right := rawOf(4)
	left.SetChar(0, 4, []byte("abcd"))
	right.SetChar(0, 4, []byte("abcd"))
	ctx.Bind(Left, left)
	ctx.Bind(Right, right)

	cmp := Compare{
		Op:    EQ,
		Left:  CmpOperand{Role: Left, Col: 0, Kind: KindChar, Len: 4},
		Right: CmpOperand{Role: Right, Col: 0, Kind: KindChar, Len: 4},
	}
	if !cmp.Eval(ctx) {
		t.Errorf("equal CHAR columns should compare equal")
	}
}
