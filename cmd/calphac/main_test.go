package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func runTool(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	// keep tests independent of a calpha.json in the working directory
	args = append([]string{"-config", filepath.Join(t.TempDir(), "none.json"), "-color", "never"}, args...)
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersion(t *testing.T) {
	code, out, _ := runTool(t, "", "-version")
	if code != 0 || !strings.Contains(out, "calphac v") {
		t.Fatalf("code=%d out=%q", code, out)
	}

	code, out, _ = runTool(t, "", "-version", "-json")
	if code != 0 || !strings.Contains(out, `"tool": "calphac"`) {
		t.Fatalf("code=%d out=%q", code, out)
	}
}

func TestCompileWritesLIR(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.ca", "fn main() -> int32 { x: int32 = 5; return x + 1; }\n")

	code, _, stderr := runTool(t, "", src)
	if code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
	data, err := os.ReadFile(filepath.Join(dir, "main.lir"))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	text := string(data)
	for _, want := range []string{"entry _start", "call fn.main", "halt"} {
		if !strings.Contains(text, want) {
			t.Errorf("output lacks %q:\n%s", want, text)
		}
	}
}

func TestOutputFlags(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "prog.ca", "fn main() {}\n")

	code, out, _ := runTool(t, "", "-o", "-", src)
	if code != 0 || !strings.HasPrefix(out, "program ") {
		t.Fatalf("code=%d out=%q", code, out)
	}

	outDir := filepath.Join(dir, "build")
	code, _, stderr := runTool(t, "", "-out-dir", outDir, src)
	if code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
	if _, err := os.Stat(filepath.Join(outDir, "prog.lir")); err != nil {
		t.Fatalf("expected output in -out-dir: %v", err)
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		src    string
		stdin  string
		code   int
		stdout string
	}{
		{"exit status", "fn main() -> int32 { x: int32 = 5; return x + 1; }", "", 6, ""},
		{"write", `fn main() -> int32 { syscall(1, 1, "hello\n", 6); return 0; }`, "", 0, "hello\n"},
		{"echo", `fn main() -> int32 {
	buf: *char = ~char[16];
	n: int64 = syscall(2, 0, buf, 16);
	syscall(1, 1, buf, n);
	return 0;
}`, "ping", 0, "ping"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeFile(t, dir, "run.ca", tt.src)
			code, out, stderr := runTool(t, tt.stdin, "-run", src)
			if code != tt.code {
				t.Fatalf("code=%d, want %d; stderr=%s", code, tt.code, stderr)
			}
			if out != tt.stdout {
				t.Errorf("stdout=%q, want %q", out, tt.stdout)
			}
			if _, err := os.Stat(filepath.Join(dir, "run.lir")); !os.IsNotExist(err) {
				t.Errorf("-run without -o wrote a file")
			}
		})
	}
}

func TestRunTrap(t *testing.T) {
	src := writeFile(t, t.TempDir(), "trap.ca", "fn main() -> int32 { z: int32 = 0; return 1 / z; }")
	code, _, stderr := runTool(t, "", "-run", src)
	if code != 1 || !strings.Contains(stderr, "divide by zero") {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
}

func TestDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "bad.ca", "fn main() -> int32 { x: int32 = 0; p: *int32 = &x; x = p; return x; }\n")

	code, _, stderr := runTool(t, "", src)
	if code != 1 {
		t.Fatalf("code=%d, want 1", code)
	}
	if !strings.Contains(stderr, "bad.ca:1:") || !strings.Contains(stderr, "error[E0105]") {
		t.Errorf("stderr lacks the diagnostic:\n%s", stderr)
	}
	if strings.Contains(stderr, "\x1b[") {
		t.Errorf("-color never produced escapes")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.lir")); !os.IsNotExist(err) {
		t.Errorf("output written despite errors")
	}
}

func TestImportsRelativeToSource(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "lib"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, filepath.Join("lib", "math.ca"), "fn twice(x: int32) -> int32 { return x * 2; }\n")
	src := writeFile(t, dir, "main.ca", "import \"lib/math.ca\";\nfn main() -> int32 { return twice(21); }\n")

	code, _, stderr := runTool(t, "", "-run", src)
	if code != 42 {
		t.Fatalf("code=%d stderr=%s", code, stderr)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "main.ca", "fn main() -> int32 { return 3; }\n")
	cfg := writeFile(t, dir, "calpha.json", `{"registers": 2, "output_dir": "`+filepath.ToSlash(filepath.Join(dir, "out"))+`"}`)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfg, src}, strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("code=%d stderr=%s", code, stderr.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "main.lir")); err != nil {
		t.Fatalf("output_dir not honored: %v", err)
	}

	bad := writeFile(t, dir, "bad.json", `{"registers": 1}`)
	code = run(context.Background(), []string{"-config", bad, src}, strings.NewReader(""), &stdout, &stderr)
	if code != 2 {
		t.Fatalf("invalid config accepted, code=%d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.ca", "fn main() {}")
	b := writeFile(t, dir, "b.ca", "fn main() {}")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	subA := writeFile(t, dir, filepath.Join("sub", "a.ca"), "fn main() {}")

	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", nil},
		{"-o with two inputs", []string{"-o", "x.lir", a, b}},
		{"-run with two inputs", []string{"-run", a, b}},
		{"unknown flag", []string{"-nope", a}},
		{"bad register count", []string{"-registers", "99", a}},
		{"same output name in -out-dir", []string{"-out-dir", filepath.Join(dir, "out"), a, subA}},
		{"input given twice", []string{a, a}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _, _ := runTool(t, "", tt.args...); code != 2 {
				t.Errorf("code=%d, want 2", code)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Errorf("output directory created despite the name collision")
	}
}
