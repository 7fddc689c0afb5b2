package sema

import (
	"fmt"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// expr checks e and records its type. An expression that fails a check has
// type Invalid, which every later check accepts.
func (a *analyzer) expr(e ast.Expr) types.Type {
	t := a.exprType(e)
	if t == nil {
		t = types.Invalid
	}
	a.info.Types[e] = t
	return t
}

func (a *analyzer) exprType(e ast.Expr) types.Type {
	switch e := e.(type) {
	case *ast.Literal:
		return a.literal(e)
	case *ast.Ident:
		sym, ok := a.table.Resolve(e.Name)
		if !ok {
			a.diags.Errorf(diagnostic.UndeclaredIdentifier, e.Span, "undeclared identifier %s", e.Name)
			return types.Invalid
		}
		return a.value(e, sym)
	case *ast.NamespaceAccess:
		sym, ok := a.lookupQualified(e)
		if !ok {
			return types.Invalid
		}
		return a.value(e, sym)
	case *ast.Binary:
		return a.binary(e)
	case *ast.Unary:
		return a.unary(e)
	case *ast.Call:
		return a.call(e)
	case *ast.Index:
		return a.index(e)
	case *ast.Member:
		return a.member(e)
	case *ast.ArrayAlloc:
		return a.arrayAlloc(e)
	case *ast.Cast:
		return a.cast(e)
	case *ast.Syscall:
		return a.syscall(e)
	}
	return types.Invalid
}

func (a *analyzer) literal(e *ast.Literal) types.Type {
	switch e.Kind {
	case ast.IntLit:
		a.info.Consts[e] = e.Int
		return types.Int64
	case ast.CharLit:
		return types.Char
	case ast.StringLit:
		return &types.Pointer{Elem: types.Char}
	case ast.BoolLit:
		return types.Bool
	case ast.NullLit:
		return types.VoidPtr
	}
	return types.Invalid
}

// value records a reference to sym and returns its type if sym denotes a
// value.
func (a *analyzer) value(e ast.Expr, sym *symbols.Symbol) types.Type {
	a.info.Uses[e] = sym
	sym.Used = true
	switch sym.Kind {
	case symbols.SymbolKindVariable, symbols.SymbolKindParameter:
		if sym.Type == nil {
			return types.Invalid
		}
		return sym.Type
	case symbols.SymbolKindFunction:
		a.diags.Errorf(diagnostic.InvalidOperand, e.Range(), "function %s cannot be used as a value", sym.Path)
	default:
		a.diags.Errorf(diagnostic.InvalidOperand, e.Range(), "%s %s is not a value", sym.Kind, sym.Path)
	}
	return types.Invalid
}

// namespaceScope resolves the left side of a namespace access.
func (a *analyzer) namespaceScope(e ast.Expr) (symbols.ScopeID, bool) {
	var sym *symbols.Symbol
	switch e := e.(type) {
	case *ast.Ident:
		s, ok := a.table.Resolve(e.Name)
		if !ok {
			a.diags.Errorf(diagnostic.UndeclaredIdentifier, e.Span, "undeclared identifier %s", e.Name)
			return symbols.NoScope, false
		}
		a.info.Uses[e] = s
		s.Used = true
		sym = s
	case *ast.NamespaceAccess:
		s, ok := a.lookupQualified(e)
		if !ok {
			return symbols.NoScope, false
		}
		sym = s
	default:
		a.diags.Errorf(diagnostic.NotANamespace, e.Range(), "%s is not a namespace", e)
		return symbols.NoScope, false
	}
	if sym.Kind != symbols.SymbolKindNamespace {
		a.diags.Errorf(diagnostic.NotANamespace, e.Range(), "%s is not a namespace", sym.Path)
		return symbols.NoScope, false
	}
	return sym.Inner, true
}

// lookupQualified resolves ns::name. Only names already declared in the
// namespace are visible.
func (a *analyzer) lookupQualified(e *ast.NamespaceAccess) (*symbols.Symbol, bool) {
	scope, ok := a.namespaceScope(e.Namespace)
	if !ok {
		return nil, false
	}
	sym, ok := a.table.Lookup(scope, e.Name)
	if !ok {
		a.diags.Errorf(diagnostic.UndeclaredIdentifier, e.NameSpan, "undeclared identifier %s", e)
		return nil, false
	}
	a.info.Uses[e] = sym
	sym.Used = true
	return sym, true
}

// ====== Operators ======

func (a *analyzer) binary(e *ast.Binary) types.Type {
	lt := a.expr(e.Left)
	rt := a.expr(e.Right)
	if types.IsInvalid(lt) || types.IsInvalid(rt) {
		return types.Invalid
	}

	numeric := types.IsNumeric(lt) && types.IsNumeric(rt)
	lp, rp := types.Decay(lt), types.Decay(rt)
	pointers := types.IsPointer(lp) && types.IsPointer(rp)

	switch e.Op {
	case "&&", "||":
		if types.IsBool(lt) && types.IsBool(rt) {
			return types.Bool
		}

	case "==", "!=":
		switch {
		case numeric:
			a.numericResult(e, lt, rt)
			return types.Bool
		case types.IsBool(lt) && types.IsBool(rt):
			return types.Bool
		case pointers && pointerCompatible(lp, rp):
			return types.Bool
		}

	case "<", "<=", ">", ">=":
		switch {
		case numeric:
			a.numericResult(e, lt, rt)
			return types.Bool
		case pointers && pointerCompatible(lp, rp):
			return types.Bool
		}

	case "+", "-":
		switch {
		case numeric:
			return a.numericResult(e, lt, rt)
		case types.IsPointer(lp) && types.IsInteger(rt):
			if !types.IsVoid(lp.(*types.Pointer).Elem) {
				return lp
			}
		case e.Op == "+" && types.IsInteger(lt) && types.IsPointer(rp):
			if !types.IsVoid(rp.(*types.Pointer).Elem) {
				return rp
			}
		}

	case "*", "/", "%", "&", "|", "^":
		if numeric {
			return a.numericResult(e, lt, rt)
		}
	}

	a.diags.Errorf(diagnostic.InvalidOperand, e.Span, "invalid operation: %s %s %s", lt, e.Op, rt)
	return types.Invalid
}

// numericResult returns the type of an arithmetic expression over numeric
// operands. Constant operands adopt the other side's type when they fit;
// two constants are folded.
func (a *analyzer) numericResult(e *ast.Binary, lt, rt types.Type) types.Type {
	lc, lok := a.info.Consts[e.Left]
	rc, rok := a.info.Consts[e.Right]
	switch {
	case lok && rok:
		if v, ok := fold(e.Op, lc, rc); ok {
			a.info.Consts[e] = v
		}
		return types.Int64
	case lok && types.ConstAssignableTo(lc, rt):
		return rt
	case rok && types.ConstAssignableTo(rc, lt):
		return lt
	}
	return commonType(lt, rt)
}

// commonType returns the narrowest type both numeric operands widen to.
func commonType(x, y types.Type) types.Type {
	if w := types.Wider(x, y); w != nil {
		return w
	}
	for _, c := range []types.Type{types.Int16, types.Int32, types.Int64} {
		if (types.Identical(x, c) || types.Widens(x, c)) && (types.Identical(y, c) || types.Widens(y, c)) {
			return c
		}
	}
	return types.Int64
}

func fold(op string, x, y int64) (int64, bool) {
	switch op {
	case "+":
		return x + y, true
	case "-":
		return x - y, true
	case "*":
		return x * y, true
	case "/":
		if y == 0 {
			return 0, false
		}
		return x / y, true
	case "%":
		if y == 0 {
			return 0, false
		}
		return x % y, true
	case "&":
		return x & y, true
	case "|":
		return x | y, true
	case "^":
		return x ^ y, true
	}
	return 0, false
}

func pointerCompatible(x, y types.Type) bool {
	return types.AssignableTo(x, y) || types.AssignableTo(y, x)
}

func (a *analyzer) unary(e *ast.Unary) types.Type {
	t := a.expr(e.Operand)
	if types.IsInvalid(t) {
		return types.Invalid
	}

	switch e.Op {
	case "-":
		if types.IsNumeric(t) {
			if v, ok := a.info.Consts[e.Operand]; ok {
				a.info.Consts[e] = -v
			}
			return t
		}
		a.diags.Errorf(diagnostic.InvalidOperand, e.Span, "operator - requires a numeric operand, found %s", t)

	case "!":
		if types.IsBool(t) {
			return types.Bool
		}
		a.diags.Errorf(diagnostic.InvalidOperand, e.Span, "operator ! requires a bool operand, found %s", t)

	case "&":
		if a.isLValue(e.Operand) {
			return &types.Pointer{Elem: t}
		}
		a.diags.Errorf(diagnostic.InvalidOperand, e.Span, "cannot take the address of %s", e.Operand)

	case "*":
		if p, ok := types.Decay(t).(*types.Pointer); ok && !types.IsVoid(p.Elem) {
			return p.Elem
		}
		a.diags.Errorf(diagnostic.InvalidOperand, e.Span, "cannot dereference value of type %s", t)
	}
	return types.Invalid
}

// ====== Calls ======

// callee resolves the function named by e and returns its signature, or nil
// after reporting why e cannot be called.
func (a *analyzer) callee(e ast.Expr) *types.Func {
	var sym *symbols.Symbol
	switch f := e.(type) {
	case *ast.Ident:
		s, ok := a.table.Resolve(f.Name)
		if !ok {
			a.diags.Errorf(diagnostic.UndeclaredIdentifier, f.Span, "undeclared identifier %s", f.Name)
			return nil
		}
		a.info.Uses[f] = s
		s.Used = true
		sym = s
	case *ast.NamespaceAccess:
		s, ok := a.lookupQualified(f)
		if !ok {
			return nil
		}
		sym = s
	default:
		if t := a.expr(e); !types.IsInvalid(t) {
			a.diags.Errorf(diagnostic.NotCallable, e.Range(), "%s is not callable", e)
		}
		return nil
	}

	sig, ok := sym.Type.(*types.Func)
	if sym.Kind != symbols.SymbolKindFunction || !ok {
		a.diags.Errorf(diagnostic.NotCallable, e.Range(), "%s %s is not callable", sym.Kind, sym.Path)
		return nil
	}
	a.info.Types[e] = sig
	return sig
}

func (a *analyzer) call(e *ast.Call) types.Type {
	sig := a.callee(e.Func)
	argTypes := make([]types.Type, len(e.Args))
	for i, arg := range e.Args {
		argTypes[i] = a.expr(arg)
	}
	if sig == nil {
		return types.Invalid
	}
	if len(e.Args) != len(sig.Params) {
		a.diags.Errorf(diagnostic.ArityMismatch, e.Span,
			"%s expects %d arguments, got %d", e.Func, len(sig.Params), len(e.Args))
		return sig.Result
	}
	for i, arg := range e.Args {
		if !a.assignable(arg, argTypes[i], sig.Params[i]) {
			a.diags.Errorf(diagnostic.TypeMismatch, arg.Range(),
				"type mismatch: cannot use %s as %s in argument %d to %s", a.describe(arg, argTypes[i]), sig.Params[i], i+1, e.Func)
		}
	}
	return sig.Result
}

func (a *analyzer) syscall(e *ast.Syscall) types.Type {
	a.expr(e.Number)
	argTypes := make([]types.Type, len(e.Args))
	for i, arg := range e.Args {
		argTypes[i] = a.expr(arg)
	}

	lit, ok := e.Number.(*ast.Literal)
	if !ok || lit.Kind != ast.IntLit {
		a.diags.Errorf(diagnostic.InvalidSyscall, e.Number.Range(), "syscall number must be an integer literal")
		return types.Invalid
	}
	sc, ok := a.cfg.ABI.Lookup(lit.Int)
	if !ok {
		a.diags.Errorf(diagnostic.InvalidSyscall, e.Number.Range(), "unknown syscall %d", lit.Int)
		return types.Invalid
	}
	a.info.Syscalls[e] = sc

	if len(e.Args) != len(sc.Params) {
		a.diags.Errorf(diagnostic.InvalidSyscall, e.Span,
			"syscall %s expects %d arguments, got %d", sc.Name, len(sc.Params), len(e.Args))
		return sc.Result
	}
	for i, arg := range e.Args {
		if !a.assignable(arg, argTypes[i], sc.Params[i]) {
			a.diags.Errorf(diagnostic.InvalidSyscall, arg.Range(),
				"cannot use %s as %s in argument %d to syscall %s", a.describe(arg, argTypes[i]), sc.Params[i], i+1, sc.Name)
		}
	}
	return sc.Result
}

// ====== Memory access ======

func (a *analyzer) index(e *ast.Index) types.Type {
	bt := a.expr(e.Base)
	it := a.expr(e.Index)

	if !types.IsInvalid(it) && !types.IsInteger(it) {
		a.diags.Errorf(diagnostic.NonIntegerIndex, e.Index.Range(), "index must be an integer, found %s", it)
	}
	if types.IsInvalid(bt) {
		return types.Invalid
	}
	if p, ok := types.Decay(bt).(*types.Pointer); ok && !types.IsVoid(p.Elem) {
		return p.Elem
	}
	a.diags.Errorf(diagnostic.NotIndexable, e.Base.Range(), "cannot index value of type %s", bt)
	return types.Invalid
}

func (a *analyzer) member(e *ast.Member) types.Type {
	bt := a.expr(e.Base)
	if types.IsInvalid(bt) {
		return types.Invalid
	}
	l, ok := bt.(*types.Layout)
	if p, isPtr := bt.(*types.Pointer); isPtr {
		l, ok = p.Elem.(*types.Layout)
	}
	if !ok {
		a.diags.Errorf(diagnostic.NotALayout, e.Base.Range(), "member access on non-layout type %s", bt)
		return types.Invalid
	}
	sym, found := a.table.Lookup(a.layoutScopes[l], e.Name)
	if !found {
		a.diags.Errorf(diagnostic.UnknownMember, e.NameSpan, "layout %s has no member %s", l, e.Name)
		return types.Invalid
	}
	a.info.Uses[e] = sym
	if sym.Type == nil {
		return types.Invalid
	}
	return sym.Type
}

func (a *analyzer) arrayAlloc(e *ast.ArrayAlloc) types.Type {
	elem := a.resolveType(e.Elem)
	ct := a.expr(e.Count)
	if !types.IsInvalid(ct) && !types.IsInteger(ct) {
		a.diags.Errorf(diagnostic.NonIntegerIndex, e.Count.Range(), "allocation count must be an integer, found %s", ct)
	}
	if types.IsVoid(elem) {
		a.diags.Errorf(diagnostic.InvalidVariableType, e.Elem.Range(), "cannot allocate an array of void")
		return types.Invalid
	}
	if types.IsInvalid(elem) {
		return types.Invalid
	}
	return &types.Pointer{Elem: elem}
}

func (a *analyzer) cast(e *ast.Cast) types.Type {
	dst := a.resolveType(e.Type)
	src := a.expr(e.Value)
	if !types.Convertible(types.Decay(src), dst) {
		a.diags.Errorf(diagnostic.InvalidCast, e.Span, "invalid cast from %s to %s", src, dst)
	}
	return dst
}

// describe renders the value of e for a diagnostic message.
func (a *analyzer) describe(e ast.Expr, t types.Type) string {
	if v, ok := a.info.Consts[e]; ok {
		return fmt.Sprintf("constant %d", v)
	}
	return "value of type " + t.String()
}
