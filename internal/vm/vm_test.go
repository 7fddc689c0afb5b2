package vm

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/calpha-lang/calpha/internal/codegen"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/parser"
	"github.com/calpha-lang/calpha/internal/sema"
)

func compile(t *testing.T, src string, registers int) *lir.Program {
	t.Helper()
	file, diags := parser.ParseFile("t.ca", src)
	if len(diags) > 0 {
		t.Fatalf("syntax errors: %v", diags)
	}
	res := sema.Analyze(file, sema.Config{})
	if res.Diagnostics.HasErrors() {
		t.Fatalf("semantic errors: %v", res.Diagnostics)
	}
	prog, err := codegen.Generate(file, res.Info, codegen.Options{Registers: registers})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return prog
}

func run(t *testing.T, src string, opts Options) (int64, error) {
	t.Helper()
	return Exec(context.Background(), compile(t, src, 0), opts)
}

func mustRun(t *testing.T, src string) int64 {
	t.Helper()
	code, err := run(t, src, Options{})
	if err != nil {
		t.Fatalf("run: %v\n%s", err, compile(t, src, 0))
	}
	return code
}

func TestEndToEnd(t *testing.T) {
	be.Equal(t, mustRun(t, "fn main() -> int32 { x: int32 = 5; return x + 1; }"), int64(6))
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"factorial", `
fn fact(n: int64) -> int64 { if (n <= 1) { return 1; } return n * fact(n - 1); }
fn main() -> int64 { return fact(5); }`, 120},

		{"fibonacci loop", `
fn main() -> int32 {
	a: int32 = 0; b: int32 = 1; i: int32 = 0;
	while (i < 10) { t: int32 = a + b; a = b; b = t; i = i + 1; }
	return a;
}`, 55},

		{"nested calls", `
fn add3(a: int32, b: int32, c: int32) -> int32 { return a + b + c; }
fn main() -> int32 { return add3(1, add3(2, 3, 4), 5); }`, 15},

		{"layouts and arrays", `
layout Point { x: int32; y: int32; }
namespace geo { fn sum(p: *Point) -> int32 { return p.x + p.y; } }
fn main() -> int32 {
	p: Point; p.x = 1; p.y = 2;
	arr: int32[3]; arr[2] = 5;
	return geo::sum(&p) + arr[2];
}`, 8},

		{"aggregate copy", `
layout Point { x: int32; y: int32; }
fn main() -> int32 {
	a: Point; a.x = 3;
	b: Point = a; b.x = 4;
	return a.x * 10 + b.x;
}`, 34},

		{"int8 wraps", `
fn main() -> int32 { x: int8 = 127; x = x + 1; return <int32>(x); }`, -128},

		{"char wraps", `
fn main() -> int32 { c: char = 255; c = c + 1; return <int32>(c); }`, 0},

		{"narrowing cast", `
fn main() -> int32 { x: int32 = 300; return <int32>(<int8>(x)); }`, 44},

		{"unary operators", `
fn main() -> int32 { x: int32 = 7; ok: bool = !(x == 7); if (ok) { return 1; } return -x; }`, -7},

		{"globals and init", `
count: int64 = 40;
fn main() -> int64 { count = count + 2; return count; }`, 42},

		{"function named like the initializer", `
g: int32 = 5;
fn __init() -> int32 { g = 100; return 0; }
fn main() -> int32 { return g; }`, 5},

		{"namespace globals", `
namespace cfg { limit: int32 = 3; }
fn main() -> int32 { i: int32 = 0; while (i < cfg::limit) { i = i + 1; } return i; }`, 3},

		{"pointer scaling", `
fn main() -> int32 {
	p: *int32 = ~int32[4];
	i: int32 = 0;
	while (i < 4) { p[i] = i * 10; i = i + 1; }
	q: *int32 = p + 2;
	return *q + q[1];
}`, 50},

		{"exit syscall", `
fn main() -> int32 { syscall(0, 7); return 1; }`, 7},

		{"void main", `
fn main() { x: int32 = 1; x = x; }`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, mustRun(t, tt.src), tt.want)
		})
	}
}

func TestShortCircuitSkipsRightOperand(t *testing.T) {
	src := `
hits: int32 = 0;
fn touch() -> bool { hits = hits + 1; return true; }
fn main() -> int32 {
	a: bool = false;
	if (a && touch()) { return 100; }
	b: bool = true;
	if (b || touch()) { hits = hits + 10; }
	if (b && touch()) { hits = hits + 100; }
	return hits;
}`
	be.Equal(t, mustRun(t, src), int64(111))
}

func TestSpillTransparency(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"deep right", `
fn main() -> int64 {
	a: int64 = 1; b: int64 = 2; c: int64 = 3; d: int64 = 4; e: int64 = 5;
	return a + (b * (c - (d + (e * (a + b)))));
}`, -31},
		{"calls under pressure", `
fn sq(x: int32) -> int32 { return x * x; }
fn main() -> int32 {
	a: int32 = 2; b: int32 = 3;
	return (a + b) * (sq(a) + (sq(b) - (a * b))) + (b - a);
}`, 36},
		{"logic under pressure", `
fn main() -> int32 {
	a: int32 = 4; b: int32 = 9;
	r: int32 = a * (b - a) + <int32>(a < b && (b - a > 2 || a == 0));
	return r;
}`, 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, regs := range []int{2, 3, 16} {
				code, err := Exec(context.Background(), compile(t, tt.src, regs), Options{})
				be.Err(t, err, nil)
				be.Equal(t, code, tt.want)
			}
		})
	}
}

func TestWriteSyscall(t *testing.T) {
	var out bytes.Buffer
	code, err := run(t, `
fn main() -> int32 {
	n: int64 = syscall(1, 1, "hi\n", 3);
	return <int32>(n);
}`, Options{Stdout: &out})

	be.Err(t, err, nil)
	be.Equal(t, code, int64(3))
	be.Equal(t, out.String(), "hi\n")
}

func TestReadSyscall(t *testing.T) {
	code, err := run(t, `
fn main() -> int32 {
	buf: *char = ~char[8];
	n: int64 = syscall(2, 0, buf, 8);
	return <int32>(n) * 1000 + <int32>(buf[1]);
}`, Options{Stdin: strings.NewReader("abc")})

	be.Err(t, err, nil)
	be.Equal(t, code, int64(3098))
}

func TestGetpid(t *testing.T) {
	code, err := run(t, "fn main() -> int64 { return syscall(3); }", Options{PID: 42})
	be.Err(t, err, nil)
	be.Equal(t, code, int64(42))
}

func TestTraps(t *testing.T) {
	tests := []struct {
		name string
		src  string
		opts Options
		want error
	}{
		{"divide by zero", "fn main() -> int32 { z: int32 = 0; return 1 / z; }", Options{}, ErrDivideByZero},
		{"null dereference", "fn main() -> int32 { p: *int32 = null; return *p; }", Options{}, ErrMemory},
		{"step limit", "fn main() { while (true) { } }", Options{MaxSteps: 1000}, ErrStepLimit},
		{"stack overflow", "fn f(n: int64) -> int64 { return f(n + 1); } fn main() -> int64 { return f(0); }",
			Options{MemorySize: 1 << 12}, ErrStackOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.src, tt.opts)
			be.Err(t, err, tt.want)
			var trap *Trap
			be.True(t, errors.As(err, &trap))
		})
	}
}

func TestContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Exec(ctx, compile(t, "fn main() { while (true) { } }", 0), Options{})
	be.Err(t, err, context.Canceled)
}

func TestNoEntry(t *testing.T) {
	_, err := Exec(context.Background(), compile(t, "fn helper() -> int32 { return 1; }", 0), Options{})
	be.Err(t, err, ErrNoEntry)
}

func TestHandWrittenProgram(t *testing.T) {
	prog := &lir.Program{
		Name:  "hand",
		Entry: "start",
		Data:  []*lir.Datum{{Label: "g", Size: 8, Align: 8}},
		Functions: []*lir.Function{{
			Name: "start",
			Blocks: []*lir.Block{{
				Label: "start",
				Insns: []lir.Insn{
					lir.Li{Dst: lir.R0, Imm: 0x1ff},
					lir.Ext{Dst: lir.R1, Src: lir.R0, Size: 1, Signed: true},
					lir.Ext{Dst: lir.R2, Src: lir.R0, Size: 1},
					lir.La{Dst: lir.R3, Label: "g"},
					lir.Store{Base: lir.R3, Src: lir.R1, Size: 2},
					lir.Load{Dst: lir.R4, Base: lir.R3, Size: 2},
					lir.Bin{Kind: lir.OpAdd, Dst: lir.RV, LHS: lir.R2, RHS: lir.R4},
					lir.Halt{},
				},
			}},
		}},
	}

	m, err := New(prog, Options{})
	be.Err(t, err, nil)
	code, err := m.Run(context.Background())
	be.Err(t, err, nil)
	// sext1(0x1ff) = -1, zext1(0x1ff) = 255, ld2u of -1 = 0xffff
	be.Equal(t, code, int64(255+0xffff))
	be.Equal(t, m.Regs[lir.R1], int64(-1))
	be.Equal(t, m.Steps(), int64(8))
}
