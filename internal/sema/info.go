// Package sema implements semantic analysis: name resolution, type checking
// and storage assignment over a parsed compile unit.
//
// Analysis runs in two passes. The first registers every function, layout
// and namespace so that declarations may be referenced before they appear.
// The second walks all statements in order, declares variables, checks
// expressions and assigns frame slots and static labels. Results are
// recorded in Info, keyed by syntax node identity; the tree itself is never
// modified.
package sema

import (
	"github.com/calpha-lang/calpha/internal/abi"
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// DefaultMaxParams is the number of argument registers.
const DefaultMaxParams = 8

// Config carries the target description used during analysis.
type Config struct {
	ABI       *abi.Table
	Layout    *layout.Manager
	MaxParams int
}

func (c Config) withDefaults() Config {
	if c.ABI == nil {
		c.ABI = abi.Default()
	}
	if c.Layout == nil {
		c.Layout = layout.NewManager()
	}
	if c.MaxParams <= 0 {
		c.MaxParams = DefaultMaxParams
	}
	return c
}

// Info holds the analysis results for one compile unit.
type Info struct {
	// Types records the type of every checked expression, before decay.
	Types map[ast.Expr]types.Type
	// Consts records the value of integer constant expressions.
	Consts map[ast.Expr]int64
	// Uses maps identifiers, namespace accesses, member accesses and
	// callees to the symbol they denote.
	Uses map[ast.Node]*symbols.Symbol
	// Defs maps declaring nodes to the symbol they introduce.
	Defs map[ast.Node]*symbols.Symbol
	// Frames holds the stack frame of every function.
	Frames map[*ast.FuncDecl]*layout.Frame
	// InitFrame is the frame of the unit initializer.
	InitFrame *layout.Frame
	// Syscalls records the resolved contract of every syscall expression.
	Syscalls map[*ast.Syscall]*abi.Syscall
	// Globals lists static storage in declaration order.
	Globals *layout.Globals
	// Funcs lists the checked functions in source order.
	Funcs []*ast.FuncDecl
	// Init lists global declarations and top-level statements in the order
	// they run.
	Init []ast.Stmt

	Table  *symbols.Table
	Layout *layout.Manager
}

// TypeOf returns the recorded type of e, or types.Invalid.
func (info *Info) TypeOf(e ast.Expr) types.Type {
	if t, ok := info.Types[e]; ok && t != nil {
		return t
	}
	return types.Invalid
}

// ObjectOf returns the symbol defined or used at n.
func (info *Info) ObjectOf(n ast.Node) *symbols.Symbol {
	if sym, ok := info.Defs[n]; ok {
		return sym
	}
	return info.Uses[n]
}

// Result bundles the analysis output with the diagnostics produced.
type Result struct {
	Info        *Info
	Diagnostics diagnostic.List
}

// Analyze checks file and returns its annotations. Diagnostics are in
// emission order; code generation must only be attempted when they contain
// no errors.
func Analyze(file *ast.File, cfg Config) *Result {
	cfg = cfg.withDefaults()
	a := newAnalyzer(cfg)
	a.collect(file.Stmts)
	a.resolveDeclarations()
	a.checkUnit(file.Stmts)
	return &Result{Info: a.info, Diagnostics: a.diags}
}
