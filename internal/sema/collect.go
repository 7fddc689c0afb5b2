package sema

import (
	"errors"

	"github.com/calpha-lang/calpha/internal/abi"
	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	cerrors "github.com/calpha-lang/calpha/internal/errors"
	"github.com/calpha-lang/calpha/internal/layout"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// analyzer holds the state of one analysis run.
type analyzer struct {
	cfg   Config
	info  *Info
	table *symbols.Table
	diags diagnostic.List

	layouts      []*layoutDecl
	funcs        []*funcDecl
	layoutScopes map[*types.Layout]symbols.ScopeID

	fn *funcContext // nil outside executable code
}

type layoutDecl struct {
	decl    *ast.LayoutDecl
	sym     *symbols.Symbol
	typ     *types.Layout
	scope   symbols.ScopeID   // declaring scope
	members []*symbols.Symbol // parallel to decl.Fields; nil for duplicates
}

type funcDecl struct {
	decl  *ast.FuncDecl
	sym   *symbols.Symbol
	scope symbols.ScopeID
}

func newAnalyzer(cfg Config) *analyzer {
	table := symbols.NewTable()
	return &analyzer{
		cfg:   cfg,
		table: table,
		info: &Info{
			Types:     make(map[ast.Expr]types.Type),
			Consts:    make(map[ast.Expr]int64),
			Uses:      make(map[ast.Node]*symbols.Symbol),
			Defs:      make(map[ast.Node]*symbols.Symbol),
			Frames:    make(map[*ast.FuncDecl]*layout.Frame),
			InitFrame: cfg.Layout.NewFrame("init"),
			Syscalls:  make(map[*ast.Syscall]*abi.Syscall),
			Globals:   cfg.Layout.NewGlobals(),
			Table:     table,
			Layout:    cfg.Layout,
		},
		layoutScopes: make(map[*types.Layout]symbols.ScopeID),
	}
}

// declare binds sym in the current scope and records it as the definition
// of decl. A duplicate is reported against the new declaration; the symbol
// is still recorded so that its body can be checked.
func (a *analyzer) declare(sym *symbols.Symbol, decl ast.Node) bool {
	a.info.Defs[decl] = sym
	err := a.table.Declare(sym)
	if err == nil {
		return true
	}
	var dup *symbols.DuplicateError
	if errors.As(err, &dup) {
		d := a.diags.Errorf(diagnostic.DuplicateDeclaration, sym.Span, "duplicate declaration of %s", sym.Name)
		d.Related = append(d.Related, diagnostic.RelatedInformation{
			Message: "previous declaration of " + dup.Previous.Path,
			Range:   dup.Previous.Span,
		})
	}
	if sym.Path == "" {
		sym.Scope = a.table.Current()
		sym.Path = sym.Name
	}
	return false
}

// ====== Pass 1: declaration collection ======

// collect registers functions, layouts and namespaces found at the top level
// and inside namespace bodies. Other statements are left to pass 2.
func (a *analyzer) collect(stmts []ast.Stmt) {
	for _, s := range stmts {
		switch s := s.(type) {
		case *ast.FuncDecl:
			sym := &symbols.Symbol{
				Name:  s.Name,
				Kind:  symbols.SymbolKindFunction,
				Decl:  s,
				Span:  s.NameSpan,
				Inner: symbols.NoScope,
			}
			a.declare(sym, s)
			a.funcs = append(a.funcs, &funcDecl{decl: s, sym: sym, scope: a.table.Current()})

		case *ast.LayoutDecl:
			a.collectLayout(s)

		case *ast.NamespaceDecl:
			a.collectNamespace(s)
		}
	}
}

func (a *analyzer) collectLayout(s *ast.LayoutDecl) {
	sym := &symbols.Symbol{
		Name: s.Name,
		Kind: symbols.SymbolKindLayout,
		Decl: s,
		Span: s.NameSpan,
	}
	a.declare(sym, s)
	typ := types.NewLayout(sym.Path)
	sym.Type = typ

	ld := &layoutDecl{decl: s, sym: sym, typ: typ, scope: a.table.Current()}
	sym.Inner = a.table.Enter(symbols.ScopeKindLayout, s.Name)
	for _, f := range s.Fields {
		member := &symbols.Symbol{
			Name:  f.Name,
			Kind:  symbols.SymbolKindMember,
			Decl:  f,
			Span:  f.NameSpan,
			Inner: symbols.NoScope,
		}
		if !a.declare(member, f) {
			member = nil
		}
		ld.members = append(ld.members, member)
	}
	a.table.Exit()

	a.layoutScopes[typ] = sym.Inner
	a.layouts = append(a.layouts, ld)
}

// collectNamespace registers a namespace. Reopening a namespace of the same
// name in the same scope extends it.
func (a *analyzer) collectNamespace(s *ast.NamespaceDecl) {
	if prev, ok := a.table.Lookup(a.table.Current(), s.Name); ok && prev.Kind == symbols.SymbolKindNamespace {
		a.info.Defs[s] = prev
		if err := a.table.Reenter(prev.Inner); err != nil {
			panic(cerrors.Internal(cerrors.ComponentSema, "reopen namespace %s: %v", s.Name, err))
		}
	} else {
		sym := &symbols.Symbol{
			Name: s.Name,
			Kind: symbols.SymbolKindNamespace,
			Decl: s,
			Span: s.NameSpan,
		}
		a.declare(sym, s)
		sym.Inner = a.table.Enter(symbols.ScopeKindNamespace, s.Name)
	}
	a.collect(s.Stmts)
	a.table.Exit()
}

// resolveDeclarations resolves layout member types, computes layouts and
// resolves function signatures.
func (a *analyzer) resolveDeclarations() {
	for _, ld := range a.layouts {
		for i, f := range ld.decl.Fields {
			t := a.resolveTypeIn(f.Type, ld.scope)
			if types.IsVoid(t) {
				a.diags.Errorf(diagnostic.InvalidVariableType, f.Type.Range(), "member %s cannot have type void", f.Name)
				t = types.Invalid
			}
			if ld.members[i] == nil {
				continue
			}
			ld.members[i].Type = t
			ld.typ.Members = append(ld.typ.Members, &types.Member{Name: f.Name, Type: t})
		}
	}

	for _, ld := range a.layouts {
		a.completeLayout(ld)
	}

	for _, fd := range a.funcs {
		a.resolveSignature(fd)
	}
}

// completeLayout computes member offsets. A layout that contains itself by
// value is reported at the first layout of the cycle, and the members
// closing the cycle are invalidated.
func (a *analyzer) completeLayout(ld *layoutDecl) {
	for {
		err := a.cfg.Layout.Complete(ld.typ)
		if err == nil {
			break
		}
		var cycle *layout.CycleError
		if !errors.As(err, &cycle) {
			panic(cerrors.Internal(cerrors.ComponentSema, "layout %s: %v", ld.typ.Name, err))
		}
		head := cycle.Chain[0]
		rng := ld.decl.NameSpan
		for _, other := range a.layouts {
			if other.typ == head {
				rng = other.decl.NameSpan
			}
		}
		a.diags.Errorf(diagnostic.RecursiveLayout, rng, "%v", cycle)
		for _, m := range head.Members {
			if embedsAny(m.Type, cycle.Chain) {
				m.Type = types.Invalid
			}
		}
	}
	for i, m := range ld.members {
		if m != nil {
			if mem, ok := ld.typ.Member(ld.decl.Fields[i].Name); ok {
				m.Type = mem.Type
				m.Storage = symbols.Storage{Offset: mem.Offset}
			}
		}
	}
}

// embedsAny reports whether t stores one of the given layouts by value.
func embedsAny(t types.Type, chain []*types.Layout) bool {
	for {
		switch tt := t.(type) {
		case *types.Array:
			t = tt.Elem
		case *types.Layout:
			for _, l := range chain {
				if l == tt {
					return true
				}
			}
			return false
		default:
			return false
		}
	}
}

func (a *analyzer) resolveSignature(fd *funcDecl) {
	fn := fd.decl
	if len(fn.Params) > a.cfg.MaxParams {
		a.diags.Errorf(diagnostic.TooManyParameters, fn.NameSpan,
			"function %s has %d parameters, at most %d are allowed", fn.Name, len(fn.Params), a.cfg.MaxParams)
	}

	sig := &types.Func{Result: types.Void}
	for _, p := range fn.Params {
		t := a.resolveTypeIn(p.Type, fd.scope)
		switch {
		case types.IsVoid(t):
			a.diags.Errorf(diagnostic.InvalidVariableType, p.Type.Range(), "parameter %s cannot have type void", p.Name)
			t = types.Invalid
		case types.IsAggregate(t):
			a.diags.Errorf(diagnostic.AggregateByValue, p.Type.Range(),
				"parameter %s: %s cannot be passed by value, pass a pointer", p.Name, t)
			t = types.Invalid
		}
		sig.Params = append(sig.Params, t)
	}
	if fn.Result != nil {
		t := a.resolveTypeIn(fn.Result, fd.scope)
		if types.IsAggregate(t) {
			a.diags.Errorf(diagnostic.AggregateByValue, fn.Result.Range(),
				"function %s: %s cannot be returned by value, return a pointer", fn.Name, t)
			t = types.Invalid
		}
		sig.Result = t
	}
	fd.sym.Type = sig

	if fd.scope == a.table.Global() && fn.Name == "main" {
		valid := len(fn.Params) == 0
		switch sig.Result {
		case types.Type(types.Int32), types.Type(types.Int64), types.Type(types.Void), types.Type(types.Invalid):
		default:
			valid = false
		}
		if !valid {
			a.diags.Errorf(diagnostic.InvalidMain, fn.NameSpan, "main must take no parameters and return int32, int64 or void")
		}
	}
}
