// Package ast defines the syntax tree for calpha source units.
//
// Nodes are tagged variants: Expr, Stmt and TypeExpr are sealed interfaces
// implemented by the concrete structs in this package, and consumers switch on
// the concrete type. Every node carries the source range it was parsed from.
// The tree is read-only once produced; analysis results are kept outside of it,
// keyed by node identity.
package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calpha-lang/calpha/internal/position"
)

// Node is the base interface for all syntax nodes
type Node interface {
	// Range returns the source range covered by this node
	Range() position.Range
	// String returns a compact source-like rendering of the node
	String() string
}

// Expr is implemented by all expression nodes
type Expr interface {
	Node
	exprNode()
}

// Stmt is implemented by all statement nodes
type Stmt interface {
	Node
	stmtNode()
}

// TypeExpr is implemented by syntactic type annotations
type TypeExpr interface {
	Node
	typeNode()
}

// File is the root of a parsed compile unit.
type File struct {
	Name  string
	Span  position.Range
	Stmts []Stmt
}

func (f *File) Range() position.Range { return f.Span }
func (f *File) String() string {
	parts := make([]string, 0, len(f.Stmts))
	for _, s := range f.Stmts {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "\n")
}

// ===== Type annotations =====

// NamedType is a possibly qualified type name such as int32 or geo::Point.
type NamedType struct {
	Span position.Range
	Path []string
}

// PointerType is *Elem.
type PointerType struct {
	Span position.Range
	Elem TypeExpr
}

// ArrayType is Elem[Len].
type ArrayType struct {
	Span position.Range
	Elem TypeExpr
	Len  int64
}

func (t *NamedType) Range() position.Range   { return t.Span }
func (t *PointerType) Range() position.Range { return t.Span }
func (t *ArrayType) Range() position.Range   { return t.Span }

func (t *NamedType) String() string   { return strings.Join(t.Path, "::") }
func (t *PointerType) String() string { return "*" + t.Elem.String() }
func (t *ArrayType) String() string   { return fmt.Sprintf("%s[%d]", t.Elem, t.Len) }

func (*NamedType) typeNode()   {}
func (*PointerType) typeNode() {}
func (*ArrayType) typeNode()   {}

// ===== Expressions =====

// LiteralKind distinguishes literal expressions
type LiteralKind int

const (
	IntLit LiteralKind = iota
	CharLit
	StringLit
	BoolLit
	NullLit
)

// Literal is a constant written in the source.
type Literal struct {
	Span  position.Range
	Kind  LiteralKind
	Int   int64  // IntLit, CharLit, BoolLit (0 or 1)
	Str   string // StringLit, decoded
	Token string // raw source text
}

// Ident is a reference to a named entity.
type Ident struct {
	Span position.Range
	Name string
}

// Binary is Left Op Right.
type Binary struct {
	Span  position.Range
	Op    string
	Left  Expr
	Right Expr
}

// Unary is Op Operand. Op is one of "-", "!", "&" (address-of) or "*"
// (dereference).
type Unary struct {
	Span    position.Range
	Op      string
	Operand Expr
}

// Call is Func(Args...). Func is an Ident or a NamespaceAccess.
type Call struct {
	Span position.Range
	Func Expr
	Args []Expr
}

// Index is Base[Index].
type Index struct {
	Span  position.Range
	Base  Expr
	Index Expr
}

// Member is Base.Name. Base may be a layout value or a pointer to one.
type Member struct {
	Span     position.Range
	Base     Expr
	Name     string
	NameSpan position.Range
}

// NamespaceAccess is Namespace::Name, where Namespace may itself be
// qualified.
type NamespaceAccess struct {
	Span      position.Range
	Namespace Expr // Ident or NamespaceAccess
	Name      string
	NameSpan  position.Range
}

// ArrayAlloc is ~Elem[Count] and yields a pointer to fresh storage.
type ArrayAlloc struct {
	Span  position.Range
	Elem  TypeExpr
	Count Expr
}

// Cast is <Type>(Value).
type Cast struct {
	Span  position.Range
	Type  TypeExpr
	Value Expr
}

// Syscall is syscall(Number, Args...).
type Syscall struct {
	Span   position.Range
	Number Expr
	Args   []Expr
}

func (e *Literal) Range() position.Range         { return e.Span }
func (e *Ident) Range() position.Range           { return e.Span }
func (e *Binary) Range() position.Range          { return e.Span }
func (e *Unary) Range() position.Range           { return e.Span }
func (e *Call) Range() position.Range            { return e.Span }
func (e *Index) Range() position.Range           { return e.Span }
func (e *Member) Range() position.Range          { return e.Span }
func (e *NamespaceAccess) Range() position.Range { return e.Span }
func (e *ArrayAlloc) Range() position.Range      { return e.Span }
func (e *Cast) Range() position.Range            { return e.Span }
func (e *Syscall) Range() position.Range         { return e.Span }

func (*Literal) exprNode()         {}
func (*Ident) exprNode()           {}
func (*Binary) exprNode()          {}
func (*Unary) exprNode()           {}
func (*Call) exprNode()            {}
func (*Index) exprNode()           {}
func (*Member) exprNode()          {}
func (*NamespaceAccess) exprNode() {}
func (*ArrayAlloc) exprNode()      {}
func (*Cast) exprNode()            {}
func (*Syscall) exprNode()         {}

func (e *Literal) String() string {
	switch e.Kind {
	case StringLit:
		return strconv.Quote(e.Str)
	case CharLit:
		return strconv.QuoteRune(rune(e.Int))
	case BoolLit:
		return strconv.FormatBool(e.Int != 0)
	case NullLit:
		return "null"
	}
	return strconv.FormatInt(e.Int, 10)
}

func (e *Ident) String() string  { return e.Name }
func (e *Binary) String() string { return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right) }
func (e *Unary) String() string  { return fmt.Sprintf("(%s%s)", e.Op, e.Operand) }
func (e *Call) String() string   { return fmt.Sprintf("%s(%s)", e.Func, joinExprs(e.Args)) }
func (e *Index) String() string  { return fmt.Sprintf("%s[%s]", e.Base, e.Index) }
func (e *Member) String() string { return e.Base.String() + "." + e.Name }
func (e *NamespaceAccess) String() string {
	return e.Namespace.String() + "::" + e.Name
}
func (e *ArrayAlloc) String() string { return fmt.Sprintf("~%s[%s]", e.Elem, e.Count) }
func (e *Cast) String() string       { return fmt.Sprintf("<%s>(%s)", e.Type, e.Value) }
func (e *Syscall) String() string {
	return fmt.Sprintf("syscall(%s)", joinExprs(append([]Expr{e.Number}, e.Args...)))
}

func joinExprs(list []Expr) string {
	parts := make([]string, len(list))
	for i, e := range list {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// ===== Statements =====

// Block is { Stmts... }.
type Block struct {
	Span  position.Range
	Stmts []Stmt
}

// Assign is Target = Value;
type Assign struct {
	Span   position.Range
	Target Expr
	Value  Expr
}

// VarDecl is Name: Type (= Value)?;
type VarDecl struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Type     TypeExpr
	Value    Expr // may be nil
}

// If is if (Cond) Then (else Else)?
type If struct {
	Span position.Range
	Cond Expr
	Then Stmt
	Else Stmt // may be nil
}

// While is while (Cond) Body.
type While struct {
	Span position.Range
	Cond Expr
	Body Stmt
}

// Return is return Value?;
type Return struct {
	Span  position.Range
	Value Expr // may be nil
}

// Param is a function parameter.
type Param struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Type     TypeExpr
}

// FuncDecl is fn Name(Params) (-> Result)? Body.
type FuncDecl struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Params   []*Param
	Result   TypeExpr // nil for void
	Body     *Block
}

// Field is a layout member declaration.
type Field struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Type     TypeExpr
}

// LayoutDecl is layout Name { Fields... }.
type LayoutDecl struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Fields   []*Field
}

// NamespaceDecl is namespace Name { Stmts... }.
type NamespaceDecl struct {
	Span     position.Range
	Name     string
	NameSpan position.Range
	Stmts    []Stmt
}

// Import is import "Path";
type Import struct {
	Span position.Range
	Path string
}

// ExprStmt is an expression evaluated for its effect.
type ExprStmt struct {
	Span position.Range
	X    Expr
}

func (s *Block) Range() position.Range         { return s.Span }
func (s *Assign) Range() position.Range        { return s.Span }
func (s *VarDecl) Range() position.Range       { return s.Span }
func (s *If) Range() position.Range            { return s.Span }
func (s *While) Range() position.Range         { return s.Span }
func (s *Return) Range() position.Range        { return s.Span }
func (s *FuncDecl) Range() position.Range      { return s.Span }
func (s *LayoutDecl) Range() position.Range    { return s.Span }
func (s *NamespaceDecl) Range() position.Range { return s.Span }
func (s *Import) Range() position.Range        { return s.Span }
func (s *ExprStmt) Range() position.Range      { return s.Span }
func (p *Param) Range() position.Range         { return p.Span }
func (f *Field) Range() position.Range         { return f.Span }

func (*Block) stmtNode()         {}
func (*Assign) stmtNode()        {}
func (*VarDecl) stmtNode()       {}
func (*If) stmtNode()            {}
func (*While) stmtNode()         {}
func (*Return) stmtNode()        {}
func (*FuncDecl) stmtNode()      {}
func (*LayoutDecl) stmtNode()    {}
func (*NamespaceDecl) stmtNode() {}
func (*Import) stmtNode()        {}
func (*ExprStmt) stmtNode()      {}

func (s *Block) String() string {
	var b strings.Builder
	b.WriteString("{ ")
	for _, st := range s.Stmts {
		b.WriteString(st.String())
		b.WriteByte(' ')
	}
	b.WriteString("}")
	return b.String()
}

func (s *Assign) String() string { return fmt.Sprintf("%s = %s;", s.Target, s.Value) }

func (s *VarDecl) String() string {
	if s.Value == nil {
		return fmt.Sprintf("%s: %s;", s.Name, s.Type)
	}
	return fmt.Sprintf("%s: %s = %s;", s.Name, s.Type, s.Value)
}

func (s *If) String() string {
	if s.Else == nil {
		return fmt.Sprintf("if (%s) %s", s.Cond, s.Then)
	}
	return fmt.Sprintf("if (%s) %s else %s", s.Cond, s.Then, s.Else)
}

func (s *While) String() string { return fmt.Sprintf("while (%s) %s", s.Cond, s.Body) }

func (s *Return) String() string {
	if s.Value == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", s.Value)
}

func (p *Param) String() string { return fmt.Sprintf("%s: %s", p.Name, p.Type) }
func (f *Field) String() string { return fmt.Sprintf("%s: %s;", f.Name, f.Type) }

func (s *FuncDecl) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	result := ""
	if s.Result != nil {
		result = " -> " + s.Result.String()
	}
	return fmt.Sprintf("fn %s(%s)%s %s", s.Name, strings.Join(params, ", "), result, s.Body)
}

func (s *LayoutDecl) String() string {
	fields := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		fields[i] = f.String()
	}
	return fmt.Sprintf("layout %s { %s }", s.Name, strings.Join(fields, " "))
}

func (s *NamespaceDecl) String() string {
	return fmt.Sprintf("namespace %s %s", s.Name, (&Block{Stmts: s.Stmts}).String())
}

func (s *Import) String() string   { return fmt.Sprintf("import %q;", s.Path) }
func (s *ExprStmt) String() string { return s.X.String() + ";" }
