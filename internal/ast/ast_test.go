package ast

import (
	"testing"

	"github.com/calpha-lang/calpha/internal/position"
)

func rng(start, end int) position.Range {
	return position.Range{
		Start: position.Position{Line: 1, Column: start + 1, Offset: start},
		End:   position.Position{Line: 1, Column: end + 1, Offset: end},
	}
}

func TestStringRendering(t *testing.T) {
	fn := &FuncDecl{
		Name:   "main",
		Result: &NamedType{Path: []string{"int32"}},
		Body: &Block{Stmts: []Stmt{
			&VarDecl{Name: "x", Type: &NamedType{Path: []string{"int32"}}, Value: &Literal{Kind: IntLit, Int: 5}},
			&Return{Value: &Binary{Op: "+", Left: &Ident{Name: "x"}, Right: &Literal{Kind: IntLit, Int: 1}}},
		}},
	}

	want := "fn main() -> int32 { x: int32 = 5; return (x + 1); }"
	if got := fn.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}

	ptr := &PointerType{Elem: &ArrayType{Elem: &NamedType{Path: []string{"geo", "Point"}}, Len: 4}}
	if got := ptr.String(); got != "*geo::Point[4]" {
		t.Errorf("type String() = %q", got)
	}
}

func TestPathTo(t *testing.T) {
	// x + y with x at 0..1 and y at 4..5
	x := &Ident{Span: rng(0, 1), Name: "x"}
	y := &Ident{Span: rng(4, 5), Name: "y"}
	bin := &Binary{Span: rng(0, 5), Op: "+", Left: x, Right: y}
	stmt := &ExprStmt{Span: rng(0, 6), X: bin}
	file := &File{Span: rng(0, 6), Stmts: []Stmt{stmt}}

	path := PathTo(file, 4)
	if len(path) != 4 {
		t.Fatalf("len(path) = %d, want 4", len(path))
	}
	if path[len(path)-1] != y {
		t.Errorf("innermost = %v, want y", path[len(path)-1])
	}
}

func TestInspectSkipsChildren(t *testing.T) {
	inner := &Block{Stmts: []Stmt{&ExprStmt{X: &Ident{Name: "a"}}}}
	outer := &Block{Stmts: []Stmt{inner, &ExprStmt{X: &Ident{Name: "b"}}}}

	var idents []string
	Inspect(outer, func(n Node) bool {
		if n == inner {
			return false
		}
		if id, ok := n.(*Ident); ok {
			idents = append(idents, id.Name)
		}
		return true
	})
	if len(idents) != 1 || idents[0] != "b" {
		t.Errorf("idents = %v, want [b]", idents)
	}
}
