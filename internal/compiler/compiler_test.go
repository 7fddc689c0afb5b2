package compiler

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/nalgeon/be"

	"github.com/calpha-lang/calpha/internal/cli"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/vm"
)

func execute(t *testing.T, res *Result) int64 {
	t.Helper()
	if res.Program == nil {
		t.Fatalf("no program; diagnostics: %v", res.Diagnostics)
	}
	code, err := vm.Exec(context.Background(), res.Program, vm.Options{})
	be.Err(t, err, nil)
	return code
}

func TestCompileEndToEnd(t *testing.T) {
	c := New(Options{})
	res, err := c.Compile(Unit{Name: "main.ca", Source: "fn main() -> int32 { x: int32 = 5; return x + 1; }"})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Diagnostics), 0)
	be.Equal(t, execute(t, res), int64(6))
}

func TestTypeMismatchProducesNoProgram(t *testing.T) {
	c := New(Options{})
	src := "fn main() -> int32 { x: int32 = 0; p: *int32 = &x; x = p; return x; }"
	res, err := c.Compile(Unit{Name: "main.ca", Source: src})
	be.Err(t, err, nil)

	errs := res.Diagnostics.Errors()
	be.Equal(t, len(errs), 1)
	be.Equal(t, errs[0].Code, diagnostic.TypeMismatch)
	be.Equal(t, res.Source("main.ca").Text(errs[0].Range), "x = p;")
	be.True(t, res.Program == nil)
}

func TestSyntaxErrorsStopAnalysis(t *testing.T) {
	res := New(Options{}).Analyze(Unit{Name: "main.ca", Source: "fn main() -> int32 { return 1 }"})
	be.True(t, res.HasErrors())
	be.Equal(t, res.Diagnostics[0].Code, diagnostic.SyntaxError)
	be.True(t, res.Info == nil)
}

func TestImports(t *testing.T) {
	fsys := fstest.MapFS{
		"lib/math.ca": {Data: []byte(`fn twice(x: int32) -> int32 { return x * 2; }`)},
		"lib/util.ca": {Data: []byte(`import "math.ca"; fn quad(x: int32) -> int32 { return twice(twice(x)); }`)},
	}
	c := New(Options{FS: fsys})
	res, err := c.Compile(Unit{Name: "main.ca", Source: `
import "lib/util.ca";
import "lib/math.ca";
fn main() -> int32 { return quad(3) + twice(1); }
`})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Diagnostics), 0)
	be.Equal(t, res.Imports, []string{"lib/math.ca", "lib/util.ca"})
	be.Equal(t, execute(t, res), int64(14))
}

func TestImportCycleIsTolerated(t *testing.T) {
	fsys := fstest.MapFS{
		"a.ca": {Data: []byte(`import "b.ca"; fn main() -> int32 { return b(); }`)},
		"b.ca": {Data: []byte(`import "a.ca"; fn b() -> int32 { return 9; }`)},
	}
	data, _ := fsys.ReadFile("a.ca")
	res, err := New(Options{}).Compile(Unit{Name: "a.ca", Source: string(data), FS: fsys})
	be.Err(t, err, nil)
	be.Equal(t, len(res.Diagnostics), 0)
	be.Equal(t, res.Imports, []string{"b.ca"})
	be.Equal(t, execute(t, res), int64(9))
}

func TestImportFailures(t *testing.T) {
	fsys := fstest.MapFS{
		"bad.ca": {Data: []byte("fn broken( { }")},
	}
	tests := []struct {
		name   string
		src    string
		code   diagnostic.Code
		file   string
		substr string
	}{
		{"missing", `import "nope.ca"; fn main() {}`, diagnostic.ImportFailed, "main.ca", "cannot import \"nope.ca\""},
		{"escapes root", `import "../up.ca"; fn main() {}`, diagnostic.ImportFailed, "main.ca", "escapes the source root"},
		{"syntax error inside", `import "bad.ca"; fn main() {}`, diagnostic.SyntaxError, "bad.ca", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := New(Options{FS: fsys}).Compile(Unit{Name: "main.ca", Source: tt.src})
			be.Err(t, err, nil)
			be.True(t, res.Program == nil)
			d := res.Diagnostics.Errors()[0]
			be.Equal(t, d.Code, tt.code)
			be.Equal(t, d.Range.Start.Filename, tt.file)
			be.True(t, strings.Contains(d.Message, tt.substr))
		})
	}
}

func TestCompileAllKeepsOrder(t *testing.T) {
	var units []Unit
	for i := range 20 {
		units = append(units, Unit{
			Name:   fmt.Sprintf("u%02d.ca", i),
			Source: fmt.Sprintf("fn main() -> int32 { n: int32 = %d; return n * 2; }", i),
		})
	}
	units[7].Source = "fn main() -> int32 { return true; }"

	results, err := New(Options{Jobs: 3}).CompileAll(context.Background(), units)
	be.Err(t, err, nil)
	be.Equal(t, len(results), len(units))

	for i, res := range results {
		be.Equal(t, res.Name, units[i].Name)
		if i == 7 {
			be.True(t, res.HasErrors())
			continue
		}
		be.Equal(t, execute(t, res), int64(2*i))
	}
}

func TestCompileAllDeterministic(t *testing.T) {
	src := `
layout P { a: int32; b: int8; }
namespace n { g: int64 = 3; fn f(p: *P) -> int64 { return <int64>(p.a) + n::g; } }
fn main() -> int64 {
	p: P; p.a = 4;
	i: int32 = 0;
	while (i < 2 || i == 5) { i = i + 1; }
	return n::f(&p) + <int64>(i);
}
`
	units := make([]Unit, 8)
	for i := range units {
		units[i] = Unit{Name: "same.ca", Source: src}
	}
	results, err := New(Options{Jobs: 4, Registers: 3}).CompileAll(context.Background(), units)
	be.Err(t, err, nil)

	want := results[0].Program.String()
	for _, res := range results[1:] {
		be.Equal(t, res.Program.String(), want)
	}
	be.Equal(t, execute(t, results[0]), int64(9))
}

func TestCompileAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Options{}).CompileAll(ctx, []Unit{{Name: "a.ca", Source: "fn main() {}"}})
	be.Err(t, err, context.Canceled)
}

func TestDebugLogging(t *testing.T) {
	var buf bytes.Buffer
	c := New(Options{Logger: cli.NewLogger(&buf, false, true), Registers: 2})
	src := "fn main() -> int64 { a: int64 = 1; b: int64 = 2; c: int64 = 3; return a + (b + c); }"
	_, err := c.Compile(Unit{Name: "main.ca", Source: src})
	be.Err(t, err, nil)

	out := buf.String()
	for _, stage := range []string{"parse main.ca", "analyze main.ca", "generate main.ca: 2 function(s), 1 spill(s)"} {
		if !strings.Contains(out, stage) {
			t.Errorf("log lacks %q:\n%s", stage, out)
		}
	}
}
