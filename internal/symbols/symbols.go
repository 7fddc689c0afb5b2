// Package symbols implements the symbol table and scope chain.
//
// Scopes live in an arena owned by the Table and refer to their parent by
// ScopeID, so no scope outlives the table that created it. A scope stays in
// the arena after it is exited: layout and namespace scopes are consulted
// again for qualified lookups long after their declarations have closed.
package symbols

import (
	"fmt"
	"strings"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/position"
	"github.com/calpha-lang/calpha/internal/types"
)

// SymbolKind represents the kind of symbol.
type SymbolKind int

const (
	SymbolKindVariable SymbolKind = iota
	SymbolKindParameter
	SymbolKindFunction
	SymbolKindLayout
	SymbolKindNamespace
	SymbolKindMember
)

// String returns the string representation of SymbolKind.
func (sk SymbolKind) String() string {
	switch sk {
	case SymbolKindVariable:
		return "variable"
	case SymbolKindParameter:
		return "parameter"
	case SymbolKindFunction:
		return "function"
	case SymbolKindLayout:
		return "layout"
	case SymbolKindNamespace:
		return "namespace"
	case SymbolKindMember:
		return "member"
	default:
		return "unknown"
	}
}

// StorageClass says where a symbol's value lives at run time.
type StorageClass int

const (
	StorageNone   StorageClass = iota // functions, layouts, namespaces
	StorageGlobal                     // static data area, addressed by label
	StorageLocal                      // stack frame slot
	StorageParam                      // stack frame slot filled from an argument register
)

// String returns the string representation of StorageClass.
func (sc StorageClass) String() string {
	switch sc {
	case StorageGlobal:
		return "global"
	case StorageLocal:
		return "local"
	case StorageParam:
		return "param"
	default:
		return "none"
	}
}

// Storage is the location assigned to a symbol by the layout manager.
// Frame slots are addressed as fp - Offset; globals by Label.
type Storage struct {
	Class  StorageClass
	Offset int64
	Label  string
}

// Symbol represents a named entity in the program.
type Symbol struct {
	Name    string
	Path    string // qualified name, e.g. geo::Point
	Kind    SymbolKind
	Type    types.Type
	Storage Storage
	Decl    ast.Node
	Span    position.Range // range of the declaring name
	Scope   ScopeID        // declaring scope
	Inner   ScopeID        // body scope of a namespace or layout
	Used    bool
}

func (s *Symbol) String() string {
	if s.Type == nil {
		return fmt.Sprintf("%s %s", s.Kind, s.Path)
	}
	return fmt.Sprintf("%s %s: %s", s.Kind, s.Path, s.Type)
}

// ScopeID is an index into the table's scope arena.
type ScopeID int32

// NoScope is the parent of the global scope.
const NoScope ScopeID = -1

// ScopeKind represents the kind of scope.
type ScopeKind int

const (
	ScopeKindGlobal ScopeKind = iota
	ScopeKindFunction
	ScopeKindBlock
	ScopeKindLayout
	ScopeKindNamespace
)

// String returns the string representation of ScopeKind.
func (sk ScopeKind) String() string {
	switch sk {
	case ScopeKindGlobal:
		return "global"
	case ScopeKindFunction:
		return "function"
	case ScopeKindBlock:
		return "block"
	case ScopeKindLayout:
		return "layout"
	case ScopeKindNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// Scope represents a lexical scope: an ordered name to symbol mapping.
type Scope struct {
	ID     ScopeID
	Parent ScopeID
	Kind   ScopeKind
	Name   string

	names map[string]*Symbol
	order []*Symbol
}

// Symbols returns the scope's symbols in declaration order.
func (s *Scope) Symbols() []*Symbol { return s.order }

func (s *Scope) String() string {
	return fmt.Sprintf("%s scope %q (%d symbols)", s.Kind, s.Name, len(s.order))
}

// DuplicateError is returned by Declare when the name is already bound in
// the current scope.
type DuplicateError struct {
	Name     string
	Previous *Symbol
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate declaration of %q", e.Name)
}

// Table owns the scope arena and the active scope chain.
type Table struct {
	scopes  []*Scope
	current ScopeID
}

// NewTable creates a table whose chain holds only the global scope.
func NewTable() *Table {
	t := &Table{current: NoScope}
	t.current = t.newScope(ScopeKindGlobal, "")
	return t
}

func (t *Table) newScope(kind ScopeKind, name string) ScopeID {
	id := ScopeID(len(t.scopes))
	t.scopes = append(t.scopes, &Scope{
		ID:     id,
		Parent: t.current,
		Kind:   kind,
		Name:   name,
		names:  make(map[string]*Symbol),
	})
	return id
}

// Global returns the root scope's ID.
func (t *Table) Global() ScopeID { return 0 }

// Current returns the innermost active scope.
func (t *Table) Current() ScopeID { return t.current }

// Scope returns the scope with the given ID.
func (t *Table) Scope(id ScopeID) *Scope {
	if id < 0 || int(id) >= len(t.scopes) {
		return nil
	}
	return t.scopes[id]
}

// Len returns the number of scopes ever created.
func (t *Table) Len() int { return len(t.scopes) }

// Enter creates a child of the current scope and makes it current.
func (t *Table) Enter(kind ScopeKind, name string) ScopeID {
	t.current = t.newScope(kind, name)
	return t.current
}

// Reenter makes an existing scope current again. The scope must be a direct
// child of the current scope; this is how namespace bodies collected in the
// first pass are revisited.
func (t *Table) Reenter(id ScopeID) error {
	s := t.Scope(id)
	if s == nil {
		return fmt.Errorf("scope %d does not exist", id)
	}
	if s.Parent != t.current {
		return fmt.Errorf("scope %d is not a child of the current scope %d", id, t.current)
	}
	t.current = id
	return nil
}

// Exit pops the current scope. The scope remains in the arena.
func (t *Table) Exit() {
	if t.current == t.Global() {
		panic("symbols: exit from global scope")
	}
	t.current = t.scopes[t.current].Parent
}

// Declare binds sym in the current scope. Shadowing an outer binding is
// allowed; rebinding a name in the same scope returns a *DuplicateError.
func (t *Table) Declare(sym *Symbol) error {
	s := t.scopes[t.current]
	if prev, ok := s.names[sym.Name]; ok {
		return &DuplicateError{Name: sym.Name, Previous: prev}
	}
	sym.Scope = t.current
	sym.Path = t.qualify(t.current, sym.Name)
	s.names[sym.Name] = sym
	s.order = append(s.order, sym)
	return nil
}

// qualify builds the ns::name path from the enclosing namespace scopes.
func (t *Table) qualify(id ScopeID, name string) string {
	var parts []string
	for s := t.Scope(id); s != nil; s = t.Scope(s.Parent) {
		if s.Kind == ScopeKindNamespace || s.Kind == ScopeKindLayout {
			parts = append(parts, s.Name)
		}
	}
	if len(parts) == 0 {
		return name
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		b.WriteString("::")
	}
	b.WriteString(name)
	return b.String()
}

// Resolve walks the active chain innermost-first and returns the first
// binding of name.
func (t *Table) Resolve(name string) (*Symbol, bool) {
	for id := t.current; id != NoScope; id = t.scopes[id].Parent {
		if sym, ok := t.scopes[id].names[name]; ok {
			return sym, true
		}
	}
	return nil, false
}

// Lookup searches only the given scope, without walking its parents. It
// backs qualified access such as ns::name and expr.member.
func (t *Table) Lookup(scope ScopeID, name string) (*Symbol, bool) {
	s := t.Scope(scope)
	if s == nil {
		return nil, false
	}
	sym, ok := s.names[name]
	return sym, ok
}
