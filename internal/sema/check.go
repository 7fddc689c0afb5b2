package sema

import (
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// funcContext describes the executable code being checked: a function body
// or the unit initializer.
type funcContext struct {
	decl   *ast.FuncDecl // nil for the initializer
	result types.Type
	frame  *layout.Frame
}

// placement says where a declaration list appears.
type placement int

const (
	atTop placement = iota
	inNamespace
)

// ====== Pass 2: resolution ======

func (a *analyzer) checkUnit(stmts []ast.Stmt) {
	a.checkDecls(stmts, atTop)
}

// checkDecls walks a top-level or namespace statement list in source order.
func (a *analyzer) checkDecls(stmts []ast.Stmt, where placement) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.Import:
			if where != atTop {
				a.diags.Errorf(diagnostic.MisplacedStatement, s.Span, "import must appear at the top level")
			}

		case *ast.FuncDecl:
			a.checkFunc(s)

		case *ast.LayoutDecl:
			// resolved in pass 1

		case *ast.NamespaceDecl:
			sym := a.info.Defs[s]
			if err := a.table.Reenter(sym.Inner); err != nil {
				panic(cerrors.Internal(cerrors.ComponentSema, "namespace %s: %v", s.Name, err))
			}
			a.checkDecls(s.Stmts, inNamespace)
			a.table.Exit()

		case *ast.VarDecl:
			a.checkGlobal(s)

		default:
			if where == inNamespace {
				a.diags.Errorf(diagnostic.MisplacedStatement, s.Range(), "statement not allowed in a namespace body")
				continue
			}
			a.info.Init = append(a.info.Init, s)
			a.inInit(func() { a.checkStmt(s) })
		}
	}
}

// inInit runs f in the context of the unit initializer.
func (a *analyzer) inInit(f func()) {
	a.fn = &funcContext{result: types.Void, frame: a.info.InitFrame}
	defer func() { a.fn = nil }()
	f()
}

func (a *analyzer) checkGlobal(s *ast.VarDecl) {
	t := a.varType(s)
	if s.Value != nil {
		a.inInit(func() { a.checkInit(s, t) })
	}
	sym := &symbols.Symbol{
		Name:  s.Name,
		Kind:  symbols.SymbolKindVariable,
		Type:  t,
		Decl:  s,
		Span:  s.NameSpan,
		Inner: symbols.NoScope,
		Used:  true,
	}
	if a.declare(sym, s) && !types.IsInvalid(t) {
		sym.Storage = symbols.Storage{Class: symbols.StorageGlobal, Label: a.info.Globals.Add(sym.Path, t)}
	}
	a.info.Init = append(a.info.Init, s)
}

func (a *analyzer) checkLocal(s *ast.VarDecl) {
	t := a.varType(s)
	if s.Value != nil {
		a.checkInit(s, t)
	}
	sym := &symbols.Symbol{
		Name:  s.Name,
		Kind:  symbols.SymbolKindVariable,
		Type:  t,
		Decl:  s,
		Span:  s.NameSpan,
		Inner: symbols.NoScope,
		Used:  types.IsInvalid(t), // already reported
	}
	if a.declare(sym, s) && !types.IsInvalid(t) {
		off := a.fn.frame.Alloc(s.Name, a.cfg.Layout.Sizeof(t), a.cfg.Layout.Alignof(t))
		sym.Storage = symbols.Storage{Class: symbols.StorageLocal, Offset: off}
	}
}

func (a *analyzer) varType(s *ast.VarDecl) types.Type {
	t := a.resolveType(s.Type)
	if types.IsVoid(t) {
		a.diags.Errorf(diagnostic.InvalidVariableType, s.Type.Range(), "variable %s cannot have type void", s.Name)
		return types.Invalid
	}
	return t
}

func (a *analyzer) checkInit(s *ast.VarDecl, t types.Type) {
	vt := a.expr(s.Value)
	if !a.assignable(s.Value, vt, t) {
		a.diags.Errorf(diagnostic.TypeMismatch, s.Span,
			"type mismatch: cannot use %s as %s in declaration of %s", a.describe(s.Value, vt), t, s.Name)
	}
}

func (a *analyzer) checkFunc(fn *ast.FuncDecl) {
	sym := a.info.Defs[fn]
	sig, ok := sym.Type.(*types.Func)
	if !ok {
		panic(cerrors.Internal(cerrors.ComponentSema, "function %s has no signature", sym.Path))
	}
	a.info.Funcs = append(a.info.Funcs, fn)
	frame := a.cfg.Layout.NewFrame(sym.Path)
	a.info.Frames[fn] = frame

	a.table.Enter(symbols.ScopeKindFunction, fn.Name)
	a.fn = &funcContext{decl: fn, result: sig.Result, frame: frame}
	defer func() { a.fn = nil }()

	for i, p := range fn.Params {
		t := sig.Params[i]
		psym := &symbols.Symbol{
			Name:  p.Name,
			Kind:  symbols.SymbolKindParameter,
			Type:  t,
			Decl:  p,
			Span:  p.NameSpan,
			Inner: symbols.NoScope,
		}
		if a.declare(psym, p) && !types.IsInvalid(t) {
			off := frame.Alloc(p.Name, a.cfg.Layout.Sizeof(t), a.cfg.Layout.Alignof(t))
			psym.Storage = symbols.Storage{Class: symbols.StorageParam, Offset: off}
		}
	}

	// The body shares the function scope with the parameters.
	a.checkStmts(fn.Body.Stmts)

	if !types.IsVoid(sig.Result) && !types.IsInvalid(sig.Result) && !terminates(fn.Body) {
		a.diags.Errorf(diagnostic.MissingReturn, fn.NameSpan, "missing return at end of function %s", fn.Name)
	}
	a.reportUnused(a.table.Current())
	a.table.Exit()
}

func (a *analyzer) checkStmts(stmts []ast.Stmt) {
	for _, s := range stmts {
		a.checkStmt(s)
	}
}

// checkStmt checks a statement inside executable code.
func (a *analyzer) checkStmt(s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		a.table.Enter(symbols.ScopeKindBlock, "")
		a.checkStmts(s.Stmts)
		a.reportUnused(a.table.Current())
		a.table.Exit()

	case *ast.VarDecl:
		a.checkLocal(s)

	case *ast.Assign:
		a.checkAssign(s)

	case *ast.If:
		a.checkCond(s.Cond)
		a.checkStmt(s.Then)
		if s.Else != nil {
			a.checkStmt(s.Else)
		}

	case *ast.While:
		a.checkCond(s.Cond)
		a.checkStmt(s.Body)

	case *ast.Return:
		a.checkReturn(s)

	case *ast.ExprStmt:
		a.expr(s.X)

	case *ast.Import:
		a.diags.Errorf(diagnostic.MisplacedStatement, s.Span, "import must appear at the top level")
	case *ast.FuncDecl:
		a.diags.Errorf(diagnostic.MisplacedStatement, s.NameSpan, "function %s must be declared at the top level or in a namespace", s.Name)
	case *ast.LayoutDecl:
		a.diags.Errorf(diagnostic.MisplacedStatement, s.NameSpan, "layout %s must be declared at the top level or in a namespace", s.Name)
	case *ast.NamespaceDecl:
		a.diags.Errorf(diagnostic.MisplacedStatement, s.NameSpan, "namespace %s must be declared at the top level or in a namespace", s.Name)
	}
}

func (a *analyzer) checkAssign(s *ast.Assign) {
	tt := a.expr(s.Target)
	vt := a.expr(s.Value)
	if !a.isLValue(s.Target) {
		a.diags.Errorf(diagnostic.NotAssignable, s.Target.Range(), "cannot assign to %s", s.Target)
		return
	}
	if !a.assignable(s.Value, vt, tt) {
		a.diags.Errorf(diagnostic.TypeMismatch, s.Span,
			"type mismatch: cannot assign %s to %s of type %s", a.describe(s.Value, vt), s.Target, tt)
	}
}

func (a *analyzer) checkCond(e ast.Expr) {
	t := a.expr(e)
	if !types.IsInvalid(t) && !types.IsBool(t) {
		a.diags.Errorf(diagnostic.NonBooleanCondition, e.Range(), "condition must be bool, found %s", t)
	}
}

func (a *analyzer) checkReturn(s *ast.Return) {
	if a.fn == nil || a.fn.decl == nil {
		a.diags.Errorf(diagnostic.ReturnOutsideFunc, s.Span, "return outside function")
		if s.Value != nil {
			a.expr(s.Value)
		}
		return
	}
	name, result := a.fn.decl.Name, a.fn.result
	if s.Value == nil {
		if !types.IsVoid(result) && !types.IsInvalid(result) {
			a.diags.Errorf(diagnostic.ReturnValueMismatch, s.Span, "missing return value in function %s returning %s", name, result)
		}
		return
	}
	t := a.expr(s.Value)
	if types.IsVoid(result) {
		a.diags.Errorf(diagnostic.ReturnValueMismatch, s.Value.Range(), "function %s does not return a value", name)
		return
	}
	if !a.assignable(s.Value, t, result) {
		a.diags.Errorf(diagnostic.TypeMismatch, s.Value.Range(),
			"type mismatch: cannot return %s from function %s returning %s", a.describe(s.Value, t), name, result)
	}
}

// reportUnused warns about variables of the given scope that were never
// referenced.
func (a *analyzer) reportUnused(id symbols.ScopeID) {
	for _, sym := range a.table.Scope(id).Symbols() {
		if sym.Kind == symbols.SymbolKindVariable && !sym.Used {
			a.diags.Warnf(diagnostic.UnusedVariable, sym.Span, "variable %s declared and not used", sym.Name)
		}
	}
}

// terminates reports whether control cannot fall off the end of s. The
// check is syntactic: loops never terminate.
func terminates(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return:
		return true
	case *ast.Block:
		for _, st := range s.Stmts {
			if terminates(st) {
				return true
			}
		}
	case *ast.If:
		return s.Else != nil && terminates(s.Then) && terminates(s.Else)
	}
	return false
}

// assignable reports whether the value of e, of type src, may be stored in
// a location of type dst. Integer constants fit any numeric type whose range
// holds them; arrays decay when the destination is a pointer.
func (a *analyzer) assignable(e ast.Expr, src, dst types.Type) bool {
	if v, ok := a.info.Consts[e]; ok && types.IsNumeric(dst) {
		return types.ConstAssignableTo(v, dst)
	}
	if types.IsPointer(dst) {
		src = types.Decay(src)
	}
	return types.AssignableTo(src, dst)
}

// isLValue reports whether e denotes a storage location. Unresolved names
// count as locations so that one error is reported, not two.
func (a *analyzer) isLValue(e ast.Expr) bool {
	switch e := e.(type) {
	case *ast.Ident, *ast.NamespaceAccess:
		sym := a.info.Uses[e]
		return sym == nil || sym.Kind == symbols.SymbolKindVariable || sym.Kind == symbols.SymbolKindParameter
	case *ast.Index, *ast.Member:
		return true
	case *ast.Unary:
		return e.Op == "*"
	}
	return false
}
