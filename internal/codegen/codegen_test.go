package codegen

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/parser"
	"github.com/calpha-lang/calpha/internal/sema"
)

func generate(t *testing.T, src string, registers int) *lir.Program {
	t.Helper()
	file, diags := parser.ParseFile("t.ca", src)
	if len(diags) > 0 {
		t.Fatalf("syntax errors: %v", diags)
	}
	res := sema.Analyze(file, sema.Config{})
	if res.Diagnostics.HasErrors() {
		t.Fatalf("semantic errors: %v", res.Diagnostics)
	}
	prog, err := Generate(file, res.Info, Options{Registers: registers})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return prog
}

func function(t *testing.T, prog *lir.Program, name string) string {
	t.Helper()
	f, ok := prog.Function(name)
	if !ok {
		t.Fatalf("no function %s in\n%s", name, prog)
	}
	return f.String()
}

func TestGenerateMain(t *testing.T) {
	prog := generate(t, "fn main() -> int32 { x: int32 = 5; return x + 1; }", 0)

	be.Equal(t, prog.Entry, Entry)
	be.Equal(t, function(t, prog, Entry), `func _start {
_start:
  call fn.main
  halt
}
`)
	be.Equal(t, function(t, prog, "fn.main"), `func fn.main {
fn.main:
  enter 16
  li r0, 5
  st4 [fp-4], r0
  ld4 r0, [fp-4]
  li r1, 1
  add r0, r0, r1
  sext4 r0, r0
  mov rv, r0
  jmp fn.main.ret
fn.main.ret:
  leave
  ret
}
`)
}

func TestParametersStoredOnEntry(t *testing.T) {
	prog := generate(t, `
fn add(a: int32, b: int8) -> int32 { return a + b; }
fn main() -> int32 { return add(1, 2); }
`, 0)

	add := function(t, prog, "fn.add")
	be.True(t, strings.Contains(add, "  st4 [fp-4], a0\n  st1 [fp-5], a1\n"))
	be.True(t, strings.Contains(add, "ld1 r1, [fp-5]"))

	main := function(t, prog, "fn.main")
	be.True(t, strings.Contains(main, "mov a0, r0\n  mov a1, r1\n  call fn.add\n  mov r0, rv"))
}

func TestControlFlowLabels(t *testing.T) {
	prog := generate(t, `
fn main() -> int32 {
	i: int32 = 0;
	while (i < 10) {
		if (i == 5) { return i; } else { i = i + 1; }
	}
	return 0;
}
`, 0)

	text := function(t, prog, "fn.main")
	for _, want := range []string{
		".L1.while.begin:",
		"bz r0, .L2.while.end",
		"bz r0, .L3.if.else",
		"jmp .L4.if.end",
		".L3.if.else:",
		".L4.if.end:",
		"jmp .L1.while.begin",
		".L2.while.end:",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("missing %q in\n%s", want, text)
		}
	}
}

func TestShortCircuit(t *testing.T) {
	prog := generate(t, `
fn f() -> bool { return true; }
fn main() -> int32 {
	a: bool = false;
	if (a && f()) { return 1; }
	if (a || f()) { return 2; }
	return 0;
}
`, 0)

	text := function(t, prog, "fn.main")
	be.True(t, strings.Contains(text, "ld1u r0, [fp-1]\n  st8 [fp-16], r0\n  bz r0, .L2.and.end"))
	be.True(t, strings.Contains(text, ".L2.and.end:\n  ld8 r0, [fp-16]\n  bz r0, .L1.if.end"))
	be.True(t, strings.Contains(text, "bnz r0, .L4.or.end"))
}

func TestPointerArithmeticScaled(t *testing.T) {
	prog := generate(t, `
fn main() -> int32 {
	p: *int32 = ~int32[4];
	q: *int32 = p + 2;
	q[1] = 7;
	return *q;
}
`, 0)

	text := function(t, prog, "fn.main")
	be.True(t, strings.Contains(text, "alloc r0, r0, 4, 4"))
	be.True(t, strings.Contains(text, "muli r1, r1, 4\n  add r0, r0, r1"))
	be.True(t, strings.Contains(text, "st4 [r1], r0"))
}

func TestLayoutMembers(t *testing.T) {
	prog := generate(t, `
layout P { x: int32; y: int64; }
fn main() -> int64 {
	p: P;
	p.y = 3;
	q: *P = &p;
	return q.y;
}
`, 0)

	text := function(t, prog, "fn.main")
	be.True(t, strings.Contains(text, "lea r0, [fp-16]\n  zero r0, 16"))
	be.True(t, strings.Contains(text, "addi r1, r1, 8"))
}

func TestDataSection(t *testing.T) {
	prog := generate(t, `
count: int64 = 0;
fn main() -> int64 {
	n: int64 = syscall(1, 1, "hi\n", 3);
	m: int64 = syscall(1, 1, "hi\n", 3);
	count = n + m;
	return count;
}
`, 0)

	be.Equal(t, len(prog.Data), 2)
	be.Equal(t, prog.Data[0].String(), `data str.0 align 1 "hi\n\x00"`)
	be.Equal(t, prog.Data[1].String(), "bss g.count size 8 align 8")

	be.Equal(t, function(t, prog, Entry), `func _start {
_start:
  call init
  call fn.main
  halt
}
`)
	be.True(t, strings.Contains(function(t, prog, "fn.main"), "syscall 1"))
	be.True(t, strings.Contains(function(t, prog, "init"), "la r1, g.count"))
}

func TestVoidMainReturnsZero(t *testing.T) {
	prog := generate(t, "fn main() { syscall(0, 3); }", 0)
	be.Equal(t, function(t, prog, Entry), `func _start {
_start:
  call fn.main
  li rv, 0
  halt
}
`)
}

func TestSpillUnderPressure(t *testing.T) {
	src := `
fn main() -> int64 {
	a: int64 = 1; b: int64 = 2; c: int64 = 3; d: int64 = 4;
	return a + (b + (c + d));
}
`
	small := function(t, generate(t, src, 2), "fn.main")
	large := function(t, generate(t, src, 16), "fn.main")

	be.True(t, strings.Contains(small, "st8 [fp-40], r0"))
	be.True(t, !strings.Contains(large, "[fp-40]"))
}

func TestDeterministicOutput(t *testing.T) {
	src := `
namespace io { fd: int32 = 1; fn put(s: *char, n: int64) { syscall(1, io::fd, s, n); } }
fn main() -> int32 {
	i: int32 = 0;
	while (i < 3 && i >= 0) { io::put("x", 1); i = i + 1; }
	return i;
}
`
	first := generate(t, src, 3).String()
	for range 5 {
		be.Equal(t, generate(t, src, 3).String(), first)
	}
}

func TestInitializerLabelIsDistinct(t *testing.T) {
	prog := generate(t, `
g: int32 = 5;
fn __init() -> int32 { g = 100; return 0; }
fn main() -> int32 { return g; }
`, 0)

	seen := make(map[string]bool)
	for _, f := range prog.Functions {
		for _, b := range f.Blocks {
			if seen[b.Label] {
				t.Fatalf("duplicate label %s in\n%s", b.Label, prog)
			}
			seen[b.Label] = true
		}
	}
	be.True(t, seen["init"])
	be.True(t, seen["fn.__init"])
	be.True(t, strings.Contains(function(t, prog, Entry), "call init\n  call fn.main"))
}

func TestInternalErrors(t *testing.T) {
	// Analyses with errors violate Generate's precondition; the violation
	// must come back as an internal error with no program.
	tests := []struct {
		name string
		src  string
	}{
		{"undeclared identifier", "fn main() -> int32 { return y; }"},
		{"unknown local type", "fn main() -> int32 { x: nope; return 0; }"},
		{"unknown allocation type", "fn main() -> int32 { p: *int32 = ~nope[3]; return 0; }"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, diags := parser.ParseFile("t.ca", tt.src)
			if len(diags) > 0 {
				t.Fatalf("syntax errors: %v", diags)
			}
			res := sema.Analyze(file, sema.Config{})
			be.True(t, res.Diagnostics.HasErrors())

			prog, err := Generate(file, res.Info, Options{})
			be.True(t, cerrors.IsInternal(err))
			be.True(t, prog == nil)
		})
	}
}
