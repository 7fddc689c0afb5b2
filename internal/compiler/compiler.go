// Package compiler drives a compile unit through parsing, import
// resolution, semantic analysis and code generation.
package compiler

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/calpha-lang/calpha/internal/abi"
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/cli"
	"github.com/calpha-lang/calpha/internal/codegen"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/parser"
	"github.com/calpha-lang/calpha/internal/position"
	"github.com/calpha-lang/calpha/internal/sema"
)

// Options configures a Compiler.
type Options struct {
	// ABI is the syscall table; nil selects abi.Default().
	ABI *abi.Table
	// Registers is the register pool size; zero selects the default.
	Registers int
	// MaxParams bounds function parameters; zero selects the default.
	MaxParams int
	// Jobs bounds CompileAll concurrency; zero selects GOMAXPROCS.
	Jobs int
	// FS resolves imports for units that carry none; nil uses the
	// current directory.
	FS fs.FS
	// Logger receives stage timing at debug level; nil is silent.
	Logger *cli.Logger
}

// Unit is one source file to compile.
type Unit struct {
	// Name is the slash-separated path of the file inside FS.
	Name   string
	Source string
	// FS overrides Options.FS for this unit's imports.
	FS fs.FS
}

// Result is the outcome of compiling one unit.
type Result struct {
	Name string
	// File holds the statements of every imported file followed by the
	// unit's own.
	File        *ast.File
	Info        *sema.Info
	Diagnostics diagnostic.List
	// Program is nil unless the unit compiled without errors.
	Program *lir.Program
	// Sources maps each file name seen to its contents.
	Sources map[string]*position.SourceFile
	// Imports lists the imported files in the order their statements
	// were prepended.
	Imports []string
}

// HasErrors reports whether the unit produced error diagnostics.
func (r *Result) HasErrors() bool { return r.Diagnostics.HasErrors() }

// Source returns the named source file, or nil.
func (r *Result) Source(name string) *position.SourceFile { return r.Sources[name] }

// Compiler runs units. It holds no per-unit state and is safe for
// concurrent use.
type Compiler struct {
	opts Options
	log  *cli.Logger
}

// New creates a compiler.
func New(opts Options) *Compiler {
	if opts.ABI == nil {
		opts.ABI = abi.Default()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.GOMAXPROCS(0)
	}
	log := opts.Logger
	if log == nil {
		log = cli.Discard()
	}
	return &Compiler{opts: opts, log: log}
}

// Analyze parses u, resolves its imports and runs semantic analysis. No
// code is generated.
func (c *Compiler) Analyze(u Unit) *Result {
	res := &Result{Name: u.Name, Sources: make(map[string]*position.SourceFile)}

	start := time.Now()
	main := c.parse(res, u.Name, u.Source)
	c.log.Debug("parse %s: %s", u.Name, time.Since(start))

	start = time.Now()
	fsys := u.FS
	if fsys == nil {
		fsys = c.opts.FS
	}
	if fsys == nil {
		fsys = os.DirFS(".")
	}
	r := &importer{c: c, fsys: fsys, res: res, seen: map[string]bool{path.Clean(u.Name): true}}
	stmts := r.resolve(main)
	c.log.Debug("imports %s: %d file(s) in %s", u.Name, len(res.Imports), time.Since(start))

	res.File = &ast.File{Name: main.Name, Span: main.Span, Stmts: append(stmts, main.Stmts...)}
	if res.Diagnostics.HasErrors() {
		return res
	}

	start = time.Now()
	sr := sema.Analyze(res.File, sema.Config{
		ABI:       c.opts.ABI,
		Layout:    layout.NewManager(),
		MaxParams: c.opts.MaxParams,
	})
	res.Info = sr.Info
	res.Diagnostics = append(res.Diagnostics, sr.Diagnostics...)
	c.log.Debug("analyze %s: %d diagnostic(s) in %s", u.Name, len(sr.Diagnostics), time.Since(start))
	return res
}

// Compile analyzes u and, when it has no errors, generates its program.
// The error is non-nil only for internal failures; user errors are
// reported in Result.Diagnostics.
func (c *Compiler) Compile(u Unit) (*Result, error) {
	res := c.Analyze(u)
	if res.HasErrors() {
		return res, nil
	}

	start := time.Now()
	prog, err := codegen.Generate(res.File, res.Info, codegen.Options{Registers: c.opts.Registers})
	if err != nil {
		return res, fmt.Errorf("compile %s: %w", u.Name, err)
	}
	res.Program = prog
	spills := 0
	for _, f := range prog.Functions {
		spills += f.Spills
	}
	c.log.Debug("generate %s: %d function(s), %d spill(s) in %s", u.Name, len(prog.Functions), spills, time.Since(start))
	return res, nil
}

// CompileAll compiles units concurrently, at most Jobs at a time. Results
// are in input order. The first internal failure cancels the remaining
// units.
func (c *Compiler) CompileAll(ctx context.Context, units []Unit) ([]*Result, error) {
	results := make([]*Result, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Jobs)

	for i, u := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := c.Compile(u)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Compiler) parse(res *Result, name, src string) *ast.File {
	sf := position.NewSourceFile(name, src)
	res.Sources[name] = sf
	file, diags := parser.NewParser(sf).Parse()
	res.Diagnostics = append(res.Diagnostics, diags...)
	return file
}
