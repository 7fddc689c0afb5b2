package codegen

import (
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/codegen/regalloc"
	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/lir"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// noValue is returned for expressions of type void.
const noValue regalloc.Value = 0

var binOps = map[string]lir.BinOp{
	"+":  lir.OpAdd,
	"-":  lir.OpSub,
	"*":  lir.OpMul,
	"/":  lir.OpDiv,
	"%":  lir.OpRem,
	"&":  lir.OpAnd,
	"|":  lir.OpOr,
	"^":  lir.OpXor,
	"==": lir.OpSeq,
	"!=": lir.OpSne,
	"<":  lir.OpSlt,
	"<=": lir.OpSle,
	">":  lir.OpSgt,
	">=": lir.OpSge,
}

// expr evaluates e into a fresh value. Scalars are held sign- or
// zero-extended to 64 bits; aggregates evaluate to their address.
func (g *generator) expr(e ast.Expr) regalloc.Value {
	if c, ok := g.info.Consts[e]; ok {
		return g.imm(c)
	}
	t := g.info.TypeOf(e)

	switch e := e.(type) {
	case *ast.Literal:
		switch e.Kind {
		case ast.StringLit:
			v := g.ra.Acquire()
			g.emit(lir.La{Dst: g.ra.Use(v)[0], Label: g.labels.String(e.Str)})
			return v
		case ast.NullLit:
			return g.imm(0)
		default:
			return g.imm(e.Int)
		}

	case *ast.Ident, *ast.NamespaceAccess, *ast.Index, *ast.Member:
		if types.IsAggregate(t) {
			return g.addr(e)
		}
		if sym := g.variable(e); sym != nil {
			return g.loadVar(sym)
		}
		return g.load(g.addr(e), t)

	case *ast.Unary:
		return g.unary(e, t)

	case *ast.Binary:
		if e.Op == "&&" || e.Op == "||" {
			return g.logical(e)
		}
		return g.binary(e, t)

	case *ast.Call:
		sym := g.info.Uses[e.Func]
		if sym == nil {
			panic(cerrors.Internal(cerrors.ComponentCodegen, "unresolved call %s", e))
		}
		g.args(e.Args)
		g.emit(lir.Call{Target: g.labels.Func(sym.Path)})
		return g.result(t)

	case *ast.Syscall:
		sc := g.info.Syscalls[e]
		if sc == nil {
			panic(cerrors.Internal(cerrors.ComponentCodegen, "unresolved syscall %s", e))
		}
		g.args(e.Args)
		g.emit(lir.Syscall{Num: sc.Number})
		return g.result(t)

	case *ast.ArrayAlloc:
		elem := g.pointee(t, e)
		v := g.expr(e.Count)
		r := g.ra.Use(v)[0]
		g.emit(lir.Alloc{Dst: r, Count: r, ElemSize: g.lm.Sizeof(elem), Align: g.lm.Alignof(elem)})
		return v

	case *ast.Cast:
		v := g.expr(e.Value)
		if types.IsNumeric(t) {
			g.truncate(v, t)
		}
		return v
	}
	panic(cerrors.Internal(cerrors.ComponentCodegen, "unexpected expression %T", e))
}

func (g *generator) imm(c int64) regalloc.Value {
	v := g.ra.Acquire()
	g.emit(lir.Li{Dst: g.ra.Use(v)[0], Imm: c})
	return v
}

// addr evaluates the address of an lvalue or aggregate expression.
func (g *generator) addr(e ast.Expr) regalloc.Value {
	switch e := e.(type) {
	case *ast.Ident, *ast.NamespaceAccess:
		if sym := g.variable(e); sym != nil {
			return g.varAddr(sym)
		}

	case *ast.Index:
		base := g.pointer(e.Base)
		idx := g.expr(e.Index)
		g.offset(base, idx, g.elemSize(e.Base), lir.OpAdd)
		return base

	case *ast.Member:
		var base regalloc.Value
		l, ok := g.info.TypeOf(e.Base).(*types.Layout)
		if ok {
			base = g.addr(e.Base)
		} else {
			if l, ok = g.pointee(g.info.TypeOf(e.Base), e.Base).(*types.Layout); !ok {
				panic(cerrors.Internal(cerrors.ComponentCodegen, "member %s of a non-layout", e.Name))
			}
			base = g.expr(e.Base)
		}
		m, found := l.Member(e.Name)
		if !found {
			panic(cerrors.Internal(cerrors.ComponentCodegen, "layout %s has no member %s", l, e.Name))
		}
		if m.Offset != 0 {
			r := g.ra.Use(base)[0]
			g.emit(lir.AddI{Dst: r, Src: r, Imm: m.Offset})
		}
		return base

	case *ast.Unary:
		if e.Op == "*" {
			return g.pointer(e.Operand)
		}

	case *ast.Cast:
		return g.addr(e.Value)
	}
	panic(cerrors.Internal(cerrors.ComponentCodegen, "expression %s is not addressable", e))
}

// pointer evaluates e with array-to-pointer decay.
func (g *generator) pointer(e ast.Expr) regalloc.Value {
	if g.info.TypeOf(e).Kind() == types.TypeKindArray {
		return g.addr(e)
	}
	return g.expr(e)
}

// elemSize returns the element size of the pointer or array e.
func (g *generator) elemSize(e ast.Expr) int64 {
	p, ok := types.Decay(g.info.TypeOf(e)).(*types.Pointer)
	if !ok {
		panic(cerrors.Internal(cerrors.ComponentCodegen, "%s is not a pointer", e))
	}
	return g.lm.Sizeof(p.Elem)
}

// pointee returns the element type of the pointer type t of e.
func (g *generator) pointee(t types.Type, e ast.Expr) types.Type {
	p, ok := t.(*types.Pointer)
	if !ok {
		panic(cerrors.Internal(cerrors.ComponentCodegen, "%s has type %v, not a pointer", e, t))
	}
	return p.Elem
}

// offset computes base = base op idx*size and releases idx.
func (g *generator) offset(base, idx regalloc.Value, size int64, op lir.BinOp) {
	regs := g.ra.Use(base, idx)
	if size != 1 {
		g.emit(lir.MulI{Dst: regs[1], Src: regs[1], Imm: size})
	}
	g.emit(lir.Bin{Kind: op, Dst: regs[0], LHS: regs[0], RHS: regs[1]})
	g.ra.Release(idx)
}

// load replaces the address in v with the scalar of type t it points to.
func (g *generator) load(v regalloc.Value, t types.Type) regalloc.Value {
	r := g.ra.Use(v)[0]
	size, signed := g.scalar(t)
	g.emit(lir.Load{Dst: r, Base: r, Size: size, Signed: signed})
	return v
}

func (g *generator) loadVar(sym *symbols.Symbol) regalloc.Value {
	size, signed := g.scalar(sym.Type)
	switch sym.Storage.Class {
	case symbols.StorageLocal, symbols.StorageParam:
		v := g.ra.Acquire()
		g.emit(lir.Load{Dst: g.ra.Use(v)[0], Base: lir.FP, Off: -sym.Storage.Offset, Size: size, Signed: signed})
		return v
	case symbols.StorageGlobal:
		return g.load(g.varAddr(sym), sym.Type)
	}
	panic(cerrors.Internal(cerrors.ComponentCodegen, "load of %s without storage", sym.Path))
}

// scalar returns the access width of t and whether loads sign-extend.
// char and bool are unsigned; full-width loads are marked signed.
func (g *generator) scalar(t types.Type) (int64, bool) {
	size := g.lm.Sizeof(t)
	return size, size == 8 || types.IsInteger(t)
}

// truncate re-extends v to the width of the numeric type t.
func (g *generator) truncate(v regalloc.Value, t types.Type) {
	size, signed := g.scalar(t)
	if size >= 8 {
		return
	}
	r := g.ra.Use(v)[0]
	g.emit(lir.Ext{Dst: r, Src: r, Size: size, Signed: signed})
}

func (g *generator) unary(e *ast.Unary, t types.Type) regalloc.Value {
	switch e.Op {
	case "&":
		return g.addr(e.Operand)
	case "*":
		if types.IsAggregate(t) {
			return g.addr(e)
		}
		return g.load(g.pointer(e.Operand), t)
	}

	v := g.expr(e.Operand)
	r := g.ra.Use(v)[0]
	if e.Op == "!" {
		g.emit(lir.Not{Dst: r, Src: r})
		return v
	}
	g.emit(lir.Neg{Dst: r, Src: r})
	g.truncate(v, t)
	return v
}

func (g *generator) binary(e *ast.Binary, t types.Type) regalloc.Value {
	op, ok := binOps[e.Op]
	if !ok {
		panic(cerrors.Internal(cerrors.ComponentCodegen, "unknown operator %s", e.Op))
	}

	if types.IsPointer(t) {
		// Pointer arithmetic: operands evaluate left to right, the integer
		// side is scaled by the element size.
		leftPtr := types.IsPointer(types.Decay(g.info.TypeOf(e.Left)))
		var ptr, idx regalloc.Value
		if leftPtr {
			ptr = g.pointer(e.Left)
			idx = g.expr(e.Right)
		} else {
			idx = g.expr(e.Left)
			ptr = g.pointer(e.Right)
		}
		g.offset(ptr, idx, g.lm.Sizeof(g.pointee(t, e)), op)
		return ptr
	}

	l := g.pointer(e.Left)
	r := g.pointer(e.Right)
	regs := g.ra.Use(l, r)
	g.emit(lir.Bin{Kind: op, Dst: regs[0], LHS: regs[0], RHS: regs[1]})
	g.ra.Release(r)
	if types.IsNumeric(t) {
		g.truncate(l, t)
	}
	return l
}

// logical evaluates && and || with short-circuiting. The result passes
// through a frame slot because the two paths join.
func (g *generator) logical(e *ast.Binary) regalloc.Value {
	slot := g.frame.Alloc("cond", 8, 8)
	kind := KindAndEnd
	if e.Op == "||" {
		kind = KindOrEnd
	}
	end := g.labels.Branch(kind)

	l := g.expr(e.Left)
	lr := g.ra.Use(l)[0]
	g.emit(lir.Store{Base: lir.FP, Off: -slot, Src: lr, Size: 8})
	g.ra.Release(l)
	g.ra.SpillAll() // stores only; lr still holds the left operand
	if e.Op == "&&" {
		g.emit(lir.Bz{Cond: lr, Target: end})
	} else {
		g.emit(lir.Bnz{Cond: lr, Target: end})
	}

	r := g.expr(e.Right)
	g.emit(lir.Store{Base: lir.FP, Off: -slot, Src: g.ra.Use(r)[0], Size: 8})
	g.ra.Release(r)

	g.startBlock(end)
	v := g.ra.Acquire()
	g.emit(lir.Load{Dst: g.ra.Use(v)[0], Base: lir.FP, Off: -slot, Size: 8, Signed: true})
	return v
}

// args evaluates call arguments, moves them to the argument registers and
// spills every live value ahead of the call.
func (g *generator) args(list []ast.Expr) {
	vals := make([]regalloc.Value, len(list))
	for i, a := range list {
		vals[i] = g.pointer(a)
	}
	for i, v := range vals {
		g.emit(lir.Mov{Dst: lir.A(i), Src: g.ra.Use(v)[0]})
		g.ra.Release(v)
	}
	g.ra.SpillAll()
}

// result captures rv after a call.
func (g *generator) result(t types.Type) regalloc.Value {
	if types.IsVoid(t) {
		return noValue
	}
	v := g.ra.Acquire()
	g.emit(lir.Mov{Dst: g.ra.Use(v)[0], Src: lir.RV})
	return v
}
