package lsp

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/compiler"
	"github.com/calpha-lang/calpha/internal/position"
	"github.com/calpha-lang/calpha/internal/symbols"
	"github.com/calpha-lang/calpha/internal/types"
)

// snapshot returns an analysis of the document's current text, reusing
// the published one when it is up to date.
func (s *Server) snapshot(uri string) (*compiler.Result, files, string, bool) {
	s.mu.Lock()
	doc := s.docs[uri]
	if doc == nil {
		s.mu.Unlock()
		return nil, files{}, "", false
	}
	f, text, version := doc.files, doc.text, doc.version
	res := doc.result
	if doc.analyzed != version {
		res = nil
	}
	s.mu.Unlock()

	if res == nil {
		res = s.analyze(f.unit(text))
	}
	return res, f, text, res.Info != nil
}

// nodeAt returns the innermost node of the document's own statements at
// offset, together with the symbol it defines or uses, if any.
func nodeAt(res *compiler.Result, name string, offset int) (ast.Node, *symbols.Symbol) {
	for _, st := range res.File.Stmts {
		r := st.Range()
		if r.Start.Filename != name || !r.Contains(offset) {
			continue
		}
		path := ast.PathTo(st, offset)
		for i := len(path) - 1; i >= 0; i-- {
			n := path[i]
			if span, ok := declName(n); ok && !span.Contains(offset) {
				continue
			}
			if sym := res.Info.ObjectOf(n); sym != nil {
				return n, sym
			}
		}
		if len(path) > 0 {
			return path[len(path)-1], nil
		}
	}
	return nil, nil
}

// declName returns the range of the name a declaration introduces.
func declName(n ast.Node) (position.Range, bool) {
	switch n := n.(type) {
	case *ast.VarDecl:
		return n.NameSpan, true
	case *ast.FuncDecl:
		return n.NameSpan, true
	case *ast.Param:
		return n.NameSpan, true
	case *ast.Field:
		return n.NameSpan, true
	case *ast.LayoutDecl:
		return n.NameSpan, true
	case *ast.NamespaceDecl:
		return n.NameSpan, true
	}
	return position.Range{}, false
}

// nameRange returns the range of the name n introduces or refers to.
func nameRange(n ast.Node) position.Range {
	switch n := n.(type) {
	case *ast.Member:
		return n.NameSpan
	case *ast.NamespaceAccess:
		return n.NameSpan
	}
	if span, ok := declName(n); ok {
		return span
	}
	return n.Range()
}

func (s *Server) hover(p TextDocumentPositionParams) *Hover {
	res, f, text, ok := s.snapshot(p.TextDocument.URI)
	if !ok {
		return nil
	}
	n, sym := nodeAt(res, f.name, offsetAt(text, p.Position))
	if n == nil {
		return nil
	}

	var b strings.Builder
	b.WriteString("```calpha\n")
	switch {
	case sym != nil:
		b.WriteString(sym.String())
		switch l, ok := sym.Type.(*types.Layout); {
		case sym.Kind == symbols.SymbolKindMember:
			fmt.Fprintf(&b, " (offset %d)", sym.Storage.Offset)
		case sym.Kind == symbols.SymbolKindLayout && ok && l.Complete():
			fmt.Fprintf(&b, " (size %d, align %d, padding %d)", l.Size, l.Align, res.Info.Layout.Padding(l))
		}
	default:
		e, isExpr := n.(ast.Expr)
		if !isExpr || types.IsInvalid(res.Info.TypeOf(e)) {
			return nil
		}
		b.WriteString(res.Info.TypeOf(e).String())
		if v, ok := res.Info.Consts[e]; ok {
			fmt.Fprintf(&b, " = %d", v)
		}
	}
	b.WriteString("\n```")

	rng := toRange(res, n.Range())
	if sym != nil {
		rng = toRange(res, nameRange(n))
	}
	return &Hover{Contents: MarkupContent{Kind: "markdown", Value: b.String()}, Range: &rng}
}

func (s *Server) definition(p TextDocumentPositionParams) *Location {
	res, f, text, ok := s.snapshot(p.TextDocument.URI)
	if !ok {
		return nil
	}
	_, sym := nodeAt(res, f.name, offsetAt(text, p.Position))
	if sym == nil || !sym.Span.IsValid() {
		return nil
	}
	uri := f.URI(sym.Span.Start.Filename)
	if uri == "" {
		return nil
	}
	return &Location{URI: uri, Range: toRange(res, sym.Span)}
}

// references lists every use of the symbol at the position, across the
// document and the files it imports, in source order.
func (s *Server) references(p ReferenceParams) []Location {
	res, f, text, ok := s.snapshot(p.TextDocument.URI)
	if !ok {
		return nil
	}
	_, target := nodeAt(res, f.name, offsetAt(text, p.Position))
	if target == nil {
		return nil
	}

	var spans []position.Range
	for n, sym := range res.Info.Uses {
		if sym == target {
			spans = append(spans, nameRange(n))
		}
	}
	if p.Context.IncludeDeclaration {
		for n, sym := range res.Info.Defs {
			if sym == target {
				spans = append(spans, nameRange(n))
			}
		}
	}
	slices.SortFunc(spans, func(a, b position.Range) int {
		if c := cmp.Compare(a.Start.Filename, b.Start.Filename); c != 0 {
			return c
		}
		return cmp.Compare(a.Start.Offset, b.Start.Offset)
	})

	locs := []Location{}
	for _, span := range spans {
		uri := f.URI(span.Start.Filename)
		if uri == "" || !span.IsValid() {
			continue
		}
		locs = append(locs, Location{URI: uri, Range: toRange(res, span)})
	}
	return locs
}
