// Package vm executes LIR programs.
//
// The machine has a flat little-endian byte memory. The data section is
// placed from DataBase upward, the heap follows it and grows up, and the
// stack starts at the top of memory and grows down. Addresses below
// DataBase are unmapped so that null dereferences trap.
package vm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/calpha-lang/calpha/internal/lir"
)

const (
	// DataBase is the address of the first data byte.
	DataBase = 0x100

	DefaultMemorySize = 1 << 20
	DefaultMaxSteps   = 50_000_000

	// ctxCheckInterval is how many steps run between context checks.
	ctxCheckInterval = 1 << 14
)

// Syscall numbers understood by the machine.
const (
	SysExit   = 0
	SysWrite  = 1
	SysRead   = 2
	SysGetpid = 3
)

var (
	ErrNoEntry        = errors.New("program has no entry point")
	ErrStepLimit      = errors.New("step limit exceeded")
	ErrDivideByZero   = errors.New("integer divide by zero")
	ErrMemory         = errors.New("invalid memory access")
	ErrOutOfMemory    = errors.New("heap exhausted")
	ErrStackOverflow  = errors.New("stack overflow")
	ErrUnknownSyscall = errors.New("unknown syscall")
	ErrUnknownLabel   = errors.New("unknown label")
)

// Options configures a Machine.
type Options struct {
	MemorySize int64
	MaxSteps   int64

	// Stdout receives fd 1 writes and Stderr fd 2 writes; nil discards.
	Stdout io.Writer
	Stderr io.Writer
	// Stdin serves fd 0 reads; nil reads as end of file.
	Stdin io.Reader

	// PID is returned by getpid; zero uses the host process id.
	PID int64
}

func (o Options) withDefaults() Options {
	if o.MemorySize <= 0 {
		o.MemorySize = DefaultMemorySize
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Stdout == nil {
		o.Stdout = io.Discard
	}
	if o.Stderr == nil {
		o.Stderr = io.Discard
	}
	if o.PID == 0 {
		o.PID = int64(os.Getpid())
	}
	return o
}

// Trap is a run-time fault with the location where it happened.
type Trap struct {
	Func string
	PC   int
	Insn string
	Err  error
}

func (t *Trap) Error() string {
	return fmt.Sprintf("trap in %s at %d (%s): %v", t.Func, t.PC, t.Insn, t.Err)
}

func (t *Trap) Unwrap() error { return t.Err }

// Machine is a loaded program ready to run. A Machine runs once.
type Machine struct {
	Regs   [lir.NumRegs]int64
	Memory []byte

	opts    Options
	code    []lir.Insn
	funcs   []string // owning function per pc
	targets map[string]int
	data    map[string]int64
	entry   string

	pc     int
	heap   int64
	steps  int64
	halted bool
	exit   int64
}

// New loads prog into a fresh machine.
func New(prog *lir.Program, opts Options) (*Machine, error) {
	opts = opts.withDefaults()
	m := &Machine{
		Memory:  make([]byte, opts.MemorySize),
		opts:    opts,
		targets: make(map[string]int),
		data:    make(map[string]int64),
		entry:   prog.Entry,
	}

	addr := int64(DataBase)
	for _, d := range prog.Data {
		addr = alignUp(addr, max(d.Align, 1))
		size := d.Size
		if d.Bytes != nil {
			size = int64(len(d.Bytes))
		}
		if addr+size > opts.MemorySize {
			return nil, fmt.Errorf("data section does not fit in %d bytes of memory", opts.MemorySize)
		}
		copy(m.Memory[addr:], d.Bytes)
		m.data[d.Label] = addr
		addr += size
	}
	m.heap = alignUp(addr, 16)

	for _, f := range prog.Functions {
		for _, b := range f.Blocks {
			if b.Label != "" {
				if _, dup := m.targets[b.Label]; dup {
					return nil, fmt.Errorf("duplicate label %s", b.Label)
				}
				m.targets[b.Label] = len(m.code)
			}
			for _, insn := range b.Insns {
				m.code = append(m.code, insn)
				m.funcs = append(m.funcs, f.Name)
			}
		}
	}

	m.Regs[lir.SP] = opts.MemorySize
	m.Regs[lir.FP] = opts.MemorySize
	return m, nil
}

// Steps returns the number of instructions executed.
func (m *Machine) Steps() int64 { return m.steps }

// Run executes from the entry point until the program halts or exits and
// returns its exit code.
func (m *Machine) Run(ctx context.Context) (int64, error) {
	if m.entry == "" {
		return 0, ErrNoEntry
	}
	pc, ok := m.targets[m.entry]
	if !ok {
		return 0, fmt.Errorf("entry %s: %w", m.entry, ErrUnknownLabel)
	}
	m.pc = pc

	for !m.halted {
		if m.steps >= m.opts.MaxSteps {
			return 0, m.trap(ErrStepLimit)
		}
		if m.steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if m.pc < 0 || m.pc >= len(m.code) {
			return 0, fmt.Errorf("pc %d outside program", m.pc)
		}
		if err := m.step(); err != nil {
			return 0, m.trap(err)
		}
		m.steps++
	}
	return m.exit, nil
}

// Exec loads and runs prog.
func Exec(ctx context.Context, prog *lir.Program, opts Options) (int64, error) {
	m, err := New(prog, opts)
	if err != nil {
		return 0, err
	}
	return m.Run(ctx)
}

func (m *Machine) trap(err error) error {
	pc := min(m.pc, len(m.code)-1)
	t := &Trap{PC: pc, Err: err}
	if pc >= 0 {
		t.Func = m.funcs[pc]
		t.Insn = m.code[pc].String()
	}
	return t
}

func (m *Machine) step() error {
	r := &m.Regs
	next := m.pc + 1

	switch in := m.code[m.pc].(type) {
	case lir.Li:
		r[in.Dst] = in.Imm
	case lir.La:
		a, ok := m.data[in.Label]
		if !ok {
			return fmt.Errorf("%s: %w", in.Label, ErrUnknownLabel)
		}
		r[in.Dst] = a
	case lir.Mov:
		r[in.Dst] = r[in.Src]
	case lir.Bin:
		v, err := binop(in.Kind, r[in.LHS], r[in.RHS])
		if err != nil {
			return err
		}
		r[in.Dst] = v
	case lir.AddI:
		r[in.Dst] = r[in.Src] + in.Imm
	case lir.MulI:
		r[in.Dst] = r[in.Src] * in.Imm
	case lir.Neg:
		r[in.Dst] = -r[in.Src]
	case lir.Not:
		r[in.Dst] = flag(r[in.Src] == 0)
	case lir.Ext:
		r[in.Dst] = extend(r[in.Src], in.Size, in.Signed)

	case lir.Load:
		v, err := m.load(r[in.Base]+in.Off, in.Size)
		if err != nil {
			return err
		}
		r[in.Dst] = extend(v, in.Size, in.Signed)
	case lir.Store:
		if err := m.store(r[in.Base]+in.Off, in.Size, r[in.Src]); err != nil {
			return err
		}
	case lir.Lea:
		r[in.Dst] = r[in.Base] + in.Off
	case lir.Copy:
		dst, err := m.span(r[in.Dst], in.Size)
		if err != nil {
			return err
		}
		src, err := m.span(r[in.Src], in.Size)
		if err != nil {
			return err
		}
		copy(dst, src)
	case lir.Zero:
		b, err := m.span(r[in.Dst], in.Size)
		if err != nil {
			return err
		}
		clear(b)
	case lir.Alloc:
		a, err := m.alloc(r[in.Count], in.ElemSize, in.Align)
		if err != nil {
			return err
		}
		r[in.Dst] = a

	case lir.Jmp:
		pc, err := m.target(in.Target)
		if err != nil {
			return err
		}
		next = pc
	case lir.Bz:
		if r[in.Cond] == 0 {
			pc, err := m.target(in.Target)
			if err != nil {
				return err
			}
			next = pc
		}
	case lir.Bnz:
		if r[in.Cond] != 0 {
			pc, err := m.target(in.Target)
			if err != nil {
				return err
			}
			next = pc
		}
	case lir.Call:
		pc, err := m.target(in.Target)
		if err != nil {
			return err
		}
		if err := m.push(int64(next)); err != nil {
			return err
		}
		next = pc
	case lir.Ret:
		ret, err := m.pop()
		if err != nil {
			return err
		}
		next = int(ret)
	case lir.Enter:
		if err := m.push(r[lir.FP]); err != nil {
			return err
		}
		r[lir.FP] = r[lir.SP]
		r[lir.SP] -= in.Size
		if r[lir.SP] < m.heap {
			return ErrStackOverflow
		}
	case lir.Leave:
		r[lir.SP] = r[lir.FP]
		fp, err := m.pop()
		if err != nil {
			return err
		}
		r[lir.FP] = fp

	case lir.Syscall:
		if err := m.syscall(in.Num); err != nil {
			return err
		}
	case lir.Halt:
		m.halted = true
		m.exit = r[lir.RV]

	default:
		return fmt.Errorf("unsupported instruction %s", in)
	}

	m.pc = next
	return nil
}

func binop(op lir.BinOp, x, y int64) (int64, error) {
	switch op {
	case lir.OpAdd:
		return x + y, nil
	case lir.OpSub:
		return x - y, nil
	case lir.OpMul:
		return x * y, nil
	case lir.OpDiv:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x / y, nil
	case lir.OpRem:
		if y == 0 {
			return 0, ErrDivideByZero
		}
		return x % y, nil
	case lir.OpAnd:
		return x & y, nil
	case lir.OpOr:
		return x | y, nil
	case lir.OpXor:
		return x ^ y, nil
	case lir.OpSeq:
		return flag(x == y), nil
	case lir.OpSne:
		return flag(x != y), nil
	case lir.OpSlt:
		return flag(x < y), nil
	case lir.OpSle:
		return flag(x <= y), nil
	case lir.OpSgt:
		return flag(x > y), nil
	case lir.OpSge:
		return flag(x >= y), nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}

func flag(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// extend truncates v to size bytes and extends it back to 64 bits.
func extend(v, size int64, signed bool) int64 {
	if size >= 8 {
		return v
	}
	shift := 64 - 8*size
	if signed {
		return v << shift >> shift
	}
	return int64(uint64(v) << shift >> shift)
}

// ====== Memory ======

// span returns the size bytes at addr.
func (m *Machine) span(addr, size int64) ([]byte, error) {
	if size < 0 || addr < DataBase || addr > int64(len(m.Memory))-size {
		return nil, fmt.Errorf("%w: %d bytes at %#x", ErrMemory, size, addr)
	}
	return m.Memory[addr : addr+size], nil
}

func (m *Machine) load(addr, size int64) (int64, error) {
	b, err := m.span(addr, size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return int64(b[0]), nil
	case 2:
		return int64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		return int64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return int64(binary.LittleEndian.Uint64(b)), nil
	}
	return 0, fmt.Errorf("bad access size %d", size)
}

func (m *Machine) store(addr, size, v int64) error {
	b, err := m.span(addr, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		return fmt.Errorf("bad access size %d", size)
	}
	return nil
}

func (m *Machine) push(v int64) error {
	m.Regs[lir.SP] -= 8
	if m.Regs[lir.SP] < m.heap {
		return ErrStackOverflow
	}
	return m.store(m.Regs[lir.SP], 8, v)
}

func (m *Machine) pop() (int64, error) {
	v, err := m.load(m.Regs[lir.SP], 8)
	m.Regs[lir.SP] += 8
	return v, err
}

// alloc reserves zeroed heap storage for count elements.
func (m *Machine) alloc(count, elemSize, align int64) (int64, error) {
	if count < 0 {
		return 0, fmt.Errorf("%w: negative element count %d", ErrOutOfMemory, count)
	}
	size := count * elemSize
	a := alignUp(m.heap, max(align, 1))
	if size < 0 || a+size > m.Regs[lir.SP] {
		return 0, fmt.Errorf("%w: %d bytes", ErrOutOfMemory, size)
	}
	clear(m.Memory[a : a+size])
	m.heap = a + size
	return a, nil
}

func (m *Machine) target(label string) (int, error) {
	pc, ok := m.targets[label]
	if !ok {
		return 0, fmt.Errorf("%s: %w", label, ErrUnknownLabel)
	}
	return pc, nil
}

// ====== System calls ======

func (m *Machine) syscall(num int64) error {
	r := &m.Regs
	a0, a1, a2 := r[lir.A0], r[lir.A1], r[lir.A2]

	switch num {
	case SysExit:
		m.halted = true
		m.exit = a0

	case SysWrite:
		b, err := m.span(a1, a2)
		if err != nil {
			return err
		}
		var w io.Writer
		switch a0 {
		case 1:
			w = m.opts.Stdout
		case 2:
			w = m.opts.Stderr
		default:
			r[lir.RV] = -1
			return nil
		}
		n, err := w.Write(b)
		if err != nil {
			r[lir.RV] = -1
			return nil
		}
		r[lir.RV] = int64(n)

	case SysRead:
		b, err := m.span(a1, a2)
		if err != nil {
			return err
		}
		if a0 != 0 {
			r[lir.RV] = -1
			return nil
		}
		if m.opts.Stdin == nil {
			r[lir.RV] = 0
			return nil
		}
		n, err := m.opts.Stdin.Read(b)
		if err != nil && !errors.Is(err, io.EOF) {
			r[lir.RV] = -1
			return nil
		}
		r[lir.RV] = int64(n)

	case SysGetpid:
		r[lir.RV] = m.opts.PID

	default:
		return fmt.Errorf("%w %d", ErrUnknownSyscall, num)
	}
	return nil
}

func alignUp(v, align int64) int64 {
	return (v + align - 1) &^ (align - 1)
}
