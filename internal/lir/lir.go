// Package lir defines the low-level instruction set produced by the code
// generator. It is close to a load/store register machine: values live in
// registers, memory is byte addressed, and frames are addressed relative to
// the frame pointer.
package lir

import (
	"fmt"
	"strconv"
	"strings"
)

// Program bundles the functions and static data of one compile unit.
type Program struct {
	Name      string
	Entry     string // label of the entry stub, empty if the unit has no main
	Data      []*Datum
	Functions []*Function
}

// Datum is a labelled piece of static storage. Bytes, when set, is the
// initial content; otherwise Size zero bytes are reserved.
type Datum struct {
	Label string
	Bytes []byte
	Size  int64
	Align int64
}

// Function is a sequence of labelled blocks. The first block's label is the
// function's entry label.
type Function struct {
	Name   string
	Blocks []*Block
	Spills int // values the register allocator spilled; not printed
}

// Block is a labelled straight-line run of instructions. Control may fall
// through into the next block.
type Block struct {
	Label string
	Insns []Insn
}

// Insn is a single instruction.
type Insn interface {
	Op() string
	String() string
}

// ====== Registers ======

// Reg names a machine register.
type Reg uint8

// General registers r0..r15 are managed by the register allocator.
// Argument registers a0..a7 carry call and syscall arguments, rv carries
// the result.
const (
	R0 Reg = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	A0
	A1
	A2
	A3
	A4
	A5
	A6
	A7
	RV
	FP
	SP

	NumRegs = int(SP) + 1
)

// NumGeneral is the number of general registers.
const NumGeneral = 16

// NumArgs is the number of argument registers.
const NumArgs = 8

// R returns the general register ri.
func R(i int) Reg { return R0 + Reg(i) }

// A returns the argument register ai.
func A(i int) Reg { return A0 + Reg(i) }

func (r Reg) String() string {
	switch {
	case r < A0:
		return "r" + strconv.Itoa(int(r))
	case r < RV:
		return "a" + strconv.Itoa(int(r-A0))
	case r == RV:
		return "rv"
	case r == FP:
		return "fp"
	case r == SP:
		return "sp"
	}
	return fmt.Sprintf("reg(%d)", int(r))
}

// ====== Instructions ======

// Li loads an immediate.
type Li struct {
	Dst Reg
	Imm int64
}

func (Li) Op() string       { return "li" }
func (i Li) String() string { return fmt.Sprintf("li %s, %d", i.Dst, i.Imm) }

// La loads the address of a data label.
type La struct {
	Dst   Reg
	Label string
}

func (La) Op() string       { return "la" }
func (i La) String() string { return fmt.Sprintf("la %s, %s", i.Dst, i.Label) }

type Mov struct{ Dst, Src Reg }

func (Mov) Op() string       { return "mov" }
func (m Mov) String() string { return fmt.Sprintf("mov %s, %s", m.Dst, m.Src) }

// BinOp is a three-register arithmetic, bitwise or comparison operation.
// Comparisons produce 0 or 1.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpSeq
	OpSne
	OpSlt
	OpSle
	OpSgt
	OpSge
)

var binOpNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpRem: "rem",
	OpAnd: "and",
	OpOr:  "or",
	OpXor: "xor",
	OpSeq: "seq",
	OpSne: "sne",
	OpSlt: "slt",
	OpSle: "sle",
	OpSgt: "sgt",
	OpSge: "sge",
}

func (op BinOp) String() string {
	if int(op) < len(binOpNames) {
		return binOpNames[op]
	}
	return fmt.Sprintf("binop(%d)", int(op))
}

type Bin struct {
	Kind          BinOp
	Dst, LHS, RHS Reg
}

func (b Bin) Op() string     { return b.Kind.String() }
func (b Bin) String() string { return fmt.Sprintf("%s %s, %s, %s", b.Kind, b.Dst, b.LHS, b.RHS) }

// AddI adds an immediate.
type AddI struct {
	Dst, Src Reg
	Imm      int64
}

func (AddI) Op() string       { return "addi" }
func (a AddI) String() string { return fmt.Sprintf("addi %s, %s, %d", a.Dst, a.Src, a.Imm) }

// MulI multiplies by an immediate.
type MulI struct {
	Dst, Src Reg
	Imm      int64
}

func (MulI) Op() string       { return "muli" }
func (m MulI) String() string { return fmt.Sprintf("muli %s, %s, %d", m.Dst, m.Src, m.Imm) }

// Neg is arithmetic negation.
type Neg struct{ Dst, Src Reg }

func (Neg) Op() string       { return "neg" }
func (n Neg) String() string { return fmt.Sprintf("neg %s, %s", n.Dst, n.Src) }

// Not is logical negation: 1 if Src is zero, else 0.
type Not struct{ Dst, Src Reg }

func (Not) Op() string       { return "not" }
func (n Not) String() string { return fmt.Sprintf("not %s, %s", n.Dst, n.Src) }

// Ext truncates Src to Size bytes and extends it back to 64 bits.
type Ext struct {
	Dst, Src Reg
	Size     int64
	Signed   bool
}

func (Ext) Op() string { return "ext" }
func (e Ext) String() string {
	return fmt.Sprintf("%s%d %s, %s", extPrefix(e.Signed), e.Size, e.Dst, e.Src)
}

func extPrefix(signed bool) string {
	if signed {
		return "sext"
	}
	return "zext"
}

// Load reads Size bytes at Base+Off. Narrow values are sign- or
// zero-extended.
type Load struct {
	Dst    Reg
	Base   Reg
	Off    int64
	Size   int64
	Signed bool
}

func (Load) Op() string { return "ld" }
func (l Load) String() string {
	suffix := ""
	if !l.Signed && l.Size < 8 {
		suffix = "u"
	}
	return fmt.Sprintf("ld%d%s %s, %s", l.Size, suffix, l.Dst, addr(l.Base, l.Off))
}

// Store writes the low Size bytes of Src to Base+Off.
type Store struct {
	Base Reg
	Off  int64
	Src  Reg
	Size int64
}

func (Store) Op() string       { return "st" }
func (s Store) String() string { return fmt.Sprintf("st%d %s, %s", s.Size, addr(s.Base, s.Off), s.Src) }

// Lea computes Base+Off.
type Lea struct {
	Dst  Reg
	Base Reg
	Off  int64
}

func (Lea) Op() string       { return "lea" }
func (l Lea) String() string { return fmt.Sprintf("lea %s, %s", l.Dst, addr(l.Base, l.Off)) }

func addr(base Reg, off int64) string {
	switch {
	case off < 0:
		return fmt.Sprintf("[%s-%d]", base, -off)
	case off > 0:
		return fmt.Sprintf("[%s+%d]", base, off)
	}
	return fmt.Sprintf("[%s]", base)
}

// Copy copies Size bytes from the address in Src to the address in Dst.
type Copy struct {
	Dst, Src Reg
	Size     int64
}

func (Copy) Op() string       { return "copy" }
func (c Copy) String() string { return fmt.Sprintf("copy %s, %s, %d", c.Dst, c.Src, c.Size) }

// Zero clears Size bytes at the address in Dst.
type Zero struct {
	Dst  Reg
	Size int64
}

func (Zero) Op() string       { return "zero" }
func (z Zero) String() string { return fmt.Sprintf("zero %s, %d", z.Dst, z.Size) }

// Alloc reserves Count*ElemSize zeroed bytes of heap and returns their
// address.
type Alloc struct {
	Dst, Count Reg
	ElemSize   int64
	Align      int64
}

func (Alloc) Op() string { return "alloc" }
func (a Alloc) String() string {
	return fmt.Sprintf("alloc %s, %s, %d, %d", a.Dst, a.Count, a.ElemSize, a.Align)
}

// Control flow.
type Jmp struct{ Target string }

func (Jmp) Op() string       { return "jmp" }
func (j Jmp) String() string { return "jmp " + j.Target }

// Bz branches when Cond is zero.
type Bz struct {
	Cond   Reg
	Target string
}

func (Bz) Op() string       { return "bz" }
func (b Bz) String() string { return fmt.Sprintf("bz %s, %s", b.Cond, b.Target) }

// Bnz branches when Cond is not zero.
type Bnz struct {
	Cond   Reg
	Target string
}

func (Bnz) Op() string       { return "bnz" }
func (b Bnz) String() string { return fmt.Sprintf("bnz %s, %s", b.Cond, b.Target) }

// Call transfers control to Target. Every general and argument register is
// clobbered.
type Call struct{ Target string }

func (Call) Op() string       { return "call" }
func (c Call) String() string { return "call " + c.Target }

type Ret struct{}

func (Ret) Op() string     { return "ret" }
func (Ret) String() string { return "ret" }

// Enter saves the caller's frame pointer and reserves Size bytes of frame.
type Enter struct{ Size int64 }

func (Enter) Op() string       { return "enter" }
func (e Enter) String() string { return fmt.Sprintf("enter %d", e.Size) }

// Leave releases the frame set up by Enter.
type Leave struct{}

func (Leave) Op() string     { return "leave" }
func (Leave) String() string { return "leave" }

// Syscall invokes system service Num with arguments in a0..a5. The result
// is left in rv.
type Syscall struct{ Num int64 }

func (Syscall) Op() string       { return "syscall" }
func (s Syscall) String() string { return fmt.Sprintf("syscall %d", s.Num) }

// Halt stops the machine with rv as exit status.
type Halt struct{}

func (Halt) Op() string     { return "halt" }
func (Halt) String() string { return "halt" }

// ====== Rendering ======

func (p *Program) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "program %s\n", p.Name)
	if p.Entry != "" {
		fmt.Fprintf(&b, "entry %s\n", p.Entry)
	}

	for _, d := range p.Data {
		b.WriteString(d.String())
		b.WriteByte('\n')
	}

	for _, f := range p.Functions {
		b.WriteByte('\n')
		b.WriteString(f.String())
	}

	return b.String()
}

func (d *Datum) String() string {
	if d.Bytes != nil {
		return fmt.Sprintf("data %s align %d %s", d.Label, d.Align, strconv.Quote(string(d.Bytes)))
	}
	return fmt.Sprintf("bss %s size %d align %d", d.Label, d.Size, d.Align)
}

func (f *Function) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "func %s {\n", f.Name)

	for _, bb := range f.Blocks {
		if bb.Label != "" {
			fmt.Fprintf(&b, "%s:\n", bb.Label)
		}

		for _, ins := range bb.Insns {
			b.WriteString("  ")
			b.WriteString(ins.String())
			b.WriteByte('\n')
		}
	}

	b.WriteString("}\n")

	return b.String()
}

// Function returns the function with the given name.
func (p *Program) Function(name string) (*Function, bool) {
	for _, f := range p.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Len returns the number of instructions in f.
func (f *Function) Len() int {
	n := 0
	for _, bb := range f.Blocks {
		n += len(bb.Insns)
	}
	return n
}
