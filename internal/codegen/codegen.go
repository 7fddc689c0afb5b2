// Package codegen lowers an analyzed compile unit to LIR.
//
// Code is produced in a single walk over the tree. Temporaries live in the
// registers handed out by the regalloc package; every statement starts and
// ends with no temporary live, so no register value ever crosses a branch.
package codegen

import (
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/codegen/regalloc"
	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/sema"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// Entry is the label of the program entry stub.
const Entry = "_start"

// Options configures code generation.
type Options struct {
	// Registers is the size of the general register pool; zero selects
	// regalloc.DefaultPoolSize.
	Registers int
}

// Generate produces the program for file. info must come from an analysis
// without errors. An internal invariant violation is returned as an
// *errors.InternalError and no program is produced.
func Generate(file *ast.File, info *sema.Info, opts Options) (prog *lir.Program, err error) {
	defer cerrors.Recover(&err)

	g := &generator{
		info:   info,
		lm:     info.Layout,
		labels: NewLabelGenerator(),
		opts:   opts,
		prog:   &lir.Program{Name: file.Name},
	}
	g.unit()
	return g.prog, nil
}

type generator struct {
	info   *sema.Info
	lm     *layout.Manager
	labels *LabelGenerator
	opts   Options
	prog   *lir.Program

	// current function
	fn       *lir.Function
	block    *lir.Block
	frame    *layout.Frame
	ra       *regalloc.Allocator
	retLabel string
}

func (g *generator) unit() {
	var mainSym *symbols.Symbol
	for _, fd := range g.info.Funcs {
		if sym := g.info.Defs[fd]; sym.Path == "main" {
			mainSym = sym
		}
	}

	hasInit := g.needsInit()
	if mainSym != nil {
		g.entry(mainSym, hasInit)
	}
	if hasInit {
		g.begin(g.labels.Init(), g.labels.InitEnd(), g.info.InitFrame)
		g.stmts(g.info.Init)
		g.end()
	}
	for _, fd := range g.info.Funcs {
		g.function(fd)
	}

	for _, s := range g.labels.Strings() {
		g.prog.Data = append(g.prog.Data, &lir.Datum{
			Label: g.labels.String(s),
			Bytes: append([]byte(s), 0),
			Align: 1,
		})
	}
	for _, gl := range g.info.Globals.List {
		g.prog.Data = append(g.prog.Data, &lir.Datum{Label: gl.Label, Size: gl.Size, Align: gl.Align})
	}
}

// needsInit reports whether any initializer statement produces code.
func (g *generator) needsInit() bool {
	for _, s := range g.info.Init {
		if d, ok := s.(*ast.VarDecl); !ok || d.Value != nil {
			return true
		}
	}
	return false
}

// entry emits the stub that runs the initializer and main, then halts
// with main's result.
func (g *generator) entry(mainSym *symbols.Symbol, hasInit bool) {
	g.prog.Entry = Entry
	b := &lir.Block{Label: Entry}
	if hasInit {
		b.Insns = append(b.Insns, lir.Call{Target: g.labels.Init()})
	}
	b.Insns = append(b.Insns, lir.Call{Target: g.labels.Func(mainSym.Path)})
	if sig, ok := mainSym.Type.(*types.Func); ok && types.IsVoid(sig.Result) {
		b.Insns = append(b.Insns, lir.Li{Dst: lir.RV, Imm: 0})
	}
	b.Insns = append(b.Insns, lir.Halt{})
	g.prog.Functions = append(g.prog.Functions, &lir.Function{Name: Entry, Blocks: []*lir.Block{b}})
}

func (g *generator) function(fd *ast.FuncDecl) {
	sym := g.info.Defs[fd]
	g.begin(g.labels.Func(sym.Path), g.labels.FuncEnd(sym.Path), g.info.Frames[fd])
	for i, p := range fd.Params {
		ps := g.info.Defs[p]
		g.emit(lir.Store{Base: lir.FP, Off: -ps.Storage.Offset, Src: lir.A(i), Size: g.lm.Sizeof(ps.Type)})
	}
	g.stmts(fd.Body.Stmts)
	g.end()
}

// begin starts a function. The frame is cloned so that spill slots do not
// leak into the analysis results.
func (g *generator) begin(name, retLabel string, frame *layout.Frame) {
	g.fn = &lir.Function{Name: name}
	g.frame = frame.Clone()
	g.retLabel = retLabel
	g.startBlock(name)
	g.emit(lir.Enter{}) // size patched in end
	g.ra = regalloc.New(g.opts.Registers, g.frame, g.emit)
}

func (g *generator) end() {
	g.startBlock(g.retLabel)
	g.emit(lir.Leave{})
	g.emit(lir.Ret{})
	g.fn.Blocks[0].Insns[0] = lir.Enter{Size: g.frame.Size()}
	g.fn.Spills = g.ra.Spills()
	g.prog.Functions = append(g.prog.Functions, g.fn)
	g.fn, g.block, g.ra = nil, nil, nil
}

func (g *generator) emit(insn lir.Insn) {
	g.block.Insns = append(g.block.Insns, insn)
}

func (g *generator) startBlock(label string) {
	g.block = &lir.Block{Label: label}
	g.fn.Blocks = append(g.fn.Blocks, g.block)
}

// ====== Statements ======

func (g *generator) stmts(list []ast.Stmt) {
	for _, s := range list {
		g.stmt(s)
		if n := g.ra.Live(); n != 0 {
			panic(cerrors.Internal(cerrors.ComponentCodegen, "%d values live after statement %s", n, s))
		}
	}
}

func (g *generator) stmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		g.stmts(s.Stmts)

	case *ast.VarDecl:
		g.varDecl(s)

	case *ast.Assign:
		g.assign(s)

	case *ast.If:
		g.ifStmt(s)

	case *ast.While:
		begin := g.labels.Branch(KindWhileBegin)
		end := g.labels.Branch(KindWhileEnd)
		g.startBlock(begin)
		g.branchIfZero(s.Cond, end)
		g.stmt(s.Body)
		g.emit(lir.Jmp{Target: begin})
		g.startBlock(end)

	case *ast.Return:
		if s.Value != nil {
			v := g.expr(s.Value)
			g.emit(lir.Mov{Dst: lir.RV, Src: g.ra.Use(v)[0]})
			g.ra.Release(v)
		}
		g.emit(lir.Jmp{Target: g.retLabel})

	case *ast.ExprStmt:
		if v := g.expr(s.X); v != noValue {
			g.ra.Release(v)
		}

	default:
		panic(cerrors.Internal(cerrors.ComponentCodegen, "unexpected statement %T", s))
	}
}

func (g *generator) ifStmt(s *ast.If) {
	if s.Else == nil {
		end := g.labels.Branch(KindIfEnd)
		g.branchIfZero(s.Cond, end)
		g.stmt(s.Then)
		g.startBlock(end)
		return
	}
	elseLabel := g.labels.Branch(KindIfElse)
	end := g.labels.Branch(KindIfEnd)
	g.branchIfZero(s.Cond, elseLabel)
	g.stmt(s.Then)
	g.emit(lir.Jmp{Target: end})
	g.startBlock(elseLabel)
	g.stmt(s.Else)
	g.startBlock(end)
}

func (g *generator) branchIfZero(cond ast.Expr, target string) {
	v := g.expr(cond)
	g.emit(lir.Bz{Cond: g.ra.Use(v)[0], Target: target})
	g.ra.Release(v)
}

func (g *generator) varDecl(s *ast.VarDecl) {
	sym := g.info.Defs[s]
	t := sym.Type
	if s.Value == nil {
		if sym.Storage.Class == symbols.StorageGlobal {
			return // static storage starts zeroed
		}
		a := g.varAddr(sym)
		g.emit(lir.Zero{Dst: g.ra.Use(a)[0], Size: g.lm.Sizeof(t)})
		g.ra.Release(a)
		return
	}

	v := g.expr(s.Value)
	if types.IsAggregate(t) {
		g.copyTo(g.varAddr(sym), v, t)
		return
	}
	g.storeVar(sym, v)
}

func (g *generator) assign(s *ast.Assign) {
	t := g.info.TypeOf(s.Target)
	v := g.expr(s.Value)

	if types.IsAggregate(t) {
		g.copyTo(g.addr(s.Target), v, t)
		return
	}
	if sym := g.variable(s.Target); sym != nil {
		g.storeVar(sym, v)
		return
	}
	a := g.addr(s.Target)
	regs := g.ra.Use(a, v)
	g.emit(lir.Store{Base: regs[0], Src: regs[1], Size: g.lm.Sizeof(t)})
	g.ra.Release(a)
	g.ra.Release(v)
}

// copyTo copies the aggregate at src to dst and releases both.
func (g *generator) copyTo(dst, src regalloc.Value, t types.Type) {
	regs := g.ra.Use(dst, src)
	g.emit(lir.Copy{Dst: regs[0], Src: regs[1], Size: g.lm.Sizeof(t)})
	g.ra.Release(dst)
	g.ra.Release(src)
}

// storeVar stores the scalar v into a variable and releases v.
func (g *generator) storeVar(sym *symbols.Symbol, v regalloc.Value) {
	size := g.lm.Sizeof(sym.Type)
	switch sym.Storage.Class {
	case symbols.StorageLocal, symbols.StorageParam:
		g.emit(lir.Store{Base: lir.FP, Off: -sym.Storage.Offset, Src: g.ra.Use(v)[0], Size: size})
	case symbols.StorageGlobal:
		a := g.ra.Acquire()
		regs := g.ra.Use(a, v)
		g.emit(lir.La{Dst: regs[0], Label: sym.Storage.Label})
		g.emit(lir.Store{Base: regs[0], Src: regs[1], Size: size})
		g.ra.Release(a)
	default:
		panic(cerrors.Internal(cerrors.ComponentCodegen, "store to %s without storage", sym.Path))
	}
	g.ra.Release(v)
}

// variable returns the variable symbol e names directly, or nil.
func (g *generator) variable(e ast.Expr) *symbols.Symbol {
	switch e.(type) {
	case *ast.Ident, *ast.NamespaceAccess:
		sym := g.info.Uses[e]
		if sym != nil && (sym.Kind == symbols.SymbolKindVariable || sym.Kind == symbols.SymbolKindParameter) {
			return sym
		}
	}
	return nil
}

// varAddr materializes the address of a variable.
func (g *generator) varAddr(sym *symbols.Symbol) regalloc.Value {
	v := g.ra.Acquire()
	r := g.ra.Use(v)[0]
	switch sym.Storage.Class {
	case symbols.StorageLocal, symbols.StorageParam:
		g.emit(lir.Lea{Dst: r, Base: lir.FP, Off: -sym.Storage.Offset})
	case symbols.StorageGlobal:
		g.emit(lir.La{Dst: r, Label: sym.Storage.Label})
	default:
		panic(cerrors.Internal(cerrors.ComponentCodegen, "address of %s without storage", sym.Path))
	}
	return v
}
