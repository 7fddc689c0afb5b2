package sema

import (
	"strings"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// lookupFrom resolves name starting at scope and walking outward. It does
// not depend on the table's active chain, so pass 1 can resolve names in
// the scope a declaration appeared in.
func (a *analyzer) lookupFrom(scope symbols.ScopeID, name string) (*symbols.Symbol, bool) {
	for id := scope; id != symbols.NoScope; id = a.table.Scope(id).Parent {
		if sym, ok := a.table.Lookup(id, name); ok {
			return sym, true
		}
	}
	return nil, false
}

// resolveType resolves a type annotation in the current scope.
func (a *analyzer) resolveType(te ast.TypeExpr) types.Type {
	return a.resolveTypeIn(te, a.table.Current())
}

// resolveTypeIn turns a type annotation into a semantic type. Unknown names
// are reported once and yield types.Invalid.
func (a *analyzer) resolveTypeIn(te ast.TypeExpr, scope symbols.ScopeID) types.Type {
	switch te := te.(type) {
	case *ast.PointerType:
		elem := a.resolveTypeIn(te.Elem, scope)
		if types.IsInvalid(elem) {
			return types.Invalid
		}
		return &types.Pointer{Elem: elem}

	case *ast.ArrayType:
		elem := a.resolveTypeIn(te.Elem, scope)
		if types.IsInvalid(elem) || te.Len <= 0 {
			return types.Invalid
		}
		if types.IsVoid(elem) {
			a.diags.Errorf(diagnostic.InvalidVariableType, te.Span, "array of void")
			return types.Invalid
		}
		return &types.Array{Elem: elem, Len: te.Len}

	case *ast.NamedType:
		if len(te.Path) == 1 {
			if b, ok := types.LookupBasic(te.Path[0]); ok {
				return b
			}
		}
		sym := a.resolvePath(te.Path, scope)
		if sym == nil || sym.Kind != symbols.SymbolKindLayout {
			a.diags.Errorf(diagnostic.UnknownType, te.Span, "unknown type %s", strings.Join(te.Path, "::"))
			return types.Invalid
		}
		sym.Used = true
		return sym.Type
	}
	return types.Invalid
}

// resolvePath resolves a qualified name: the first element through the
// scope chain, every following one inside the previous namespace.
func (a *analyzer) resolvePath(path []string, scope symbols.ScopeID) *symbols.Symbol {
	sym, ok := a.lookupFrom(scope, path[0])
	if !ok {
		return nil
	}
	for _, name := range path[1:] {
		if sym.Kind != symbols.SymbolKindNamespace {
			return nil
		}
		if sym, ok = a.table.Lookup(sym.Inner, name); !ok {
			return nil
		}
	}
	return sym
}
