// Package parser implements the calpha recursive descent parser. Expressions
// are parsed with a Pratt-style precedence table.
package parser

import (
	"fmt"
	"strconv"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/lexer"
	"github.com/calpha-lang/calpha/internal/position"
)

// Parser represents the recursive descent parser
type Parser struct {
	lexer   *lexer.Lexer
	current lexer.Token // next token to consume
	peek    lexer.Token
	prev    lexer.Token // last consumed token
	diags   diagnostic.List
	file    *position.SourceFile
}

// bailout unwinds the parser to the enclosing statement after a syntax error.
type bailout struct{}

// NewParser creates a new parser instance
func NewParser(file *position.SourceFile) *Parser {
	p := &Parser{lexer: lexer.New(file), file: file}
	p.current = p.lexer.NextToken()
	p.peek = p.lexer.NextToken()
	return p
}

// ParseFile parses a complete compile unit. Syntax errors are returned as
// diagnostics; the returned file contains every statement that parsed.
func ParseFile(filename, src string) (*ast.File, diagnostic.List) {
	return NewParser(position.NewSourceFile(filename, src)).Parse()
}

// Parse parses the input and returns the syntax tree
func (p *Parser) Parse() (*ast.File, diagnostic.List) {
	file := &ast.File{Name: p.file.Filename}
	start := p.current.Span
	for !p.currentTokenIs(lexer.TokenEOF) {
		if s := p.parseStatementRecover(); s != nil {
			file.Stmts = append(file.Stmts, s)
		}
	}
	file.Span = position.Join(start, p.current.Span)
	file.Span.Start = p.file.PositionFor(0)
	return file, p.diags
}

// nextToken advances the parser to the next token
func (p *Parser) nextToken() lexer.Token {
	p.prev = p.current
	p.current = p.peek
	p.peek = p.lexer.NextToken()
	return p.prev
}

func (p *Parser) currentTokenIs(tt lexer.TokenType) bool { return p.current.Type == tt }
func (p *Parser) peekTokenIs(tt lexer.TokenType) bool    { return p.peek.Type == tt }

// accept consumes the current token if it has the given type.
func (p *Parser) accept(tt lexer.TokenType) bool {
	if p.currentTokenIs(tt) {
		p.nextToken()
		return true
	}
	return false
}

// expect consumes a token of the given type or reports a syntax error.
func (p *Parser) expect(tt lexer.TokenType) lexer.Token {
	if !p.currentTokenIs(tt) {
		p.fail("expected %s, found %s", tt, describe(p.current))
	}
	return p.nextToken()
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokenIdentifier, lexer.TokenInteger:
		return fmt.Sprintf("%s %s", tok.Type, tok.Literal)
	case lexer.TokenError:
		return tok.Value
	}
	return tok.Type.String()
}

// fail records a syntax error at the current token and unwinds.
func (p *Parser) fail(format string, args ...any) {
	rng := p.current.Span
	msg := fmt.Sprintf(format, args...)
	if p.currentTokenIs(lexer.TokenError) {
		msg = p.current.Value
	}
	p.diags.Errorf(diagnostic.SyntaxError, rng, "%s", msg)
	panic(bailout{})
}

// span returns the range from start to the end of the last consumed token.
func (p *Parser) span(start position.Range) position.Range {
	return position.Range{Start: start.Start, End: p.prev.Span.End}
}

// parseStatementRecover parses one statement. After a syntax error it skips
// to the next statement boundary and returns nil.
func (p *Parser) parseStatementRecover() (s ast.Stmt) {
	start := p.current.Span.Start.Offset
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
			p.synchronize()
			if p.current.Span.Start.Offset == start && !p.currentTokenIs(lexer.TokenEOF) {
				p.nextToken()
			}
			s = nil
		}
	}()
	return p.parseStatement()
}

// synchronize skips tokens until just past a ';', or up to an unmatched '}'
// or a token that can only begin a declaration. Balanced braces are skipped
// as a unit.
func (p *Parser) synchronize() {
	depth := 0
	for !p.currentTokenIs(lexer.TokenEOF) {
		switch p.current.Type {
		case lexer.TokenSemicolon:
			if depth == 0 {
				p.nextToken()
				return
			}
		case lexer.TokenLBrace:
			depth++
		case lexer.TokenRBrace:
			if depth == 0 {
				return
			}
			depth--
		case lexer.TokenFn, lexer.TokenLayout, lexer.TokenNamespace, lexer.TokenImport:
			return
		}
		p.nextToken()
	}
}

// ====== Grammar Rules ======

func (p *Parser) parseStatement() ast.Stmt {
	switch p.current.Type {
	case lexer.TokenFn:
		return p.parseFunctionDeclaration()
	case lexer.TokenLayout:
		return p.parseLayoutDeclaration()
	case lexer.TokenNamespace:
		return p.parseNamespaceDeclaration()
	case lexer.TokenImport:
		return p.parseImport()
	case lexer.TokenIf:
		return p.parseIfStatement()
	case lexer.TokenWhile:
		return p.parseWhileStatement()
	case lexer.TokenReturn:
		return p.parseReturnStatement()
	case lexer.TokenLBrace:
		return p.parseBlockStatement()
	case lexer.TokenIdentifier:
		if p.peekTokenIs(lexer.TokenColon) {
			return p.parseVariableDeclaration()
		}
	}
	return p.parseSimpleStatement()
}

func (p *Parser) parseFunctionDeclaration() *ast.FuncDecl {
	start := p.expect(lexer.TokenFn).Span
	name := p.expect(lexer.TokenIdentifier)
	fn := &ast.FuncDecl{Name: name.Literal, NameSpan: name.Span}

	p.expect(lexer.TokenLParen)
	for !p.currentTokenIs(lexer.TokenRParen) {
		if len(fn.Params) > 0 {
			p.expect(lexer.TokenComma)
		}
		fn.Params = append(fn.Params, p.parseParameter())
	}
	p.expect(lexer.TokenRParen)

	if p.accept(lexer.TokenArrow) {
		fn.Result = p.parseType()
	}
	fn.Body = p.parseBlockStatement()
	fn.Span = p.span(start)
	return fn
}

func (p *Parser) parseParameter() *ast.Param {
	name := p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenColon)
	typ := p.parseType()
	return &ast.Param{Span: p.span(name.Span), Name: name.Literal, NameSpan: name.Span, Type: typ}
}

func (p *Parser) parseLayoutDeclaration() *ast.LayoutDecl {
	start := p.expect(lexer.TokenLayout).Span
	name := p.expect(lexer.TokenIdentifier)
	decl := &ast.LayoutDecl{Name: name.Literal, NameSpan: name.Span}

	p.expect(lexer.TokenLBrace)
	for !p.currentTokenIs(lexer.TokenRBrace) {
		field := p.expect(lexer.TokenIdentifier)
		p.expect(lexer.TokenColon)
		typ := p.parseType()
		p.expect(lexer.TokenSemicolon)
		decl.Fields = append(decl.Fields, &ast.Field{
			Span: p.span(field.Span), Name: field.Literal, NameSpan: field.Span, Type: typ,
		})
	}
	p.expect(lexer.TokenRBrace)
	decl.Span = p.span(start)
	return decl
}

func (p *Parser) parseNamespaceDeclaration() *ast.NamespaceDecl {
	start := p.expect(lexer.TokenNamespace).Span
	name := p.expect(lexer.TokenIdentifier)
	decl := &ast.NamespaceDecl{Name: name.Literal, NameSpan: name.Span}

	p.expect(lexer.TokenLBrace)
	decl.Stmts = p.parseStatementsUntilBrace()
	p.expect(lexer.TokenRBrace)
	decl.Span = p.span(start)
	return decl
}

func (p *Parser) parseStatementsUntilBrace() []ast.Stmt {
	var stmts []ast.Stmt
	for !p.currentTokenIs(lexer.TokenRBrace) && !p.currentTokenIs(lexer.TokenEOF) {
		if s := p.parseStatementRecover(); s != nil {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func (p *Parser) parseImport() *ast.Import {
	start := p.expect(lexer.TokenImport).Span
	path := p.expect(lexer.TokenString)
	p.expect(lexer.TokenSemicolon)
	return &ast.Import{Span: p.span(start), Path: path.Value}
}

func (p *Parser) parseBlockStatement() *ast.Block {
	start := p.expect(lexer.TokenLBrace).Span
	block := &ast.Block{Stmts: p.parseStatementsUntilBrace()}
	p.expect(lexer.TokenRBrace)
	block.Span = p.span(start)
	return block
}

func (p *Parser) parseIfStatement() *ast.If {
	start := p.expect(lexer.TokenIf).Span
	stmt := &ast.If{Cond: p.parseExpression(LOWEST)}
	stmt.Then = p.parseBlockStatement()
	if p.accept(lexer.TokenElse) {
		if p.currentTokenIs(lexer.TokenIf) {
			stmt.Else = p.parseIfStatement()
		} else {
			stmt.Else = p.parseBlockStatement()
		}
	}
	stmt.Span = p.span(start)
	return stmt
}

func (p *Parser) parseWhileStatement() *ast.While {
	start := p.expect(lexer.TokenWhile).Span
	stmt := &ast.While{Cond: p.parseExpression(LOWEST)}
	stmt.Body = p.parseBlockStatement()
	stmt.Span = p.span(start)
	return stmt
}

func (p *Parser) parseReturnStatement() *ast.Return {
	start := p.expect(lexer.TokenReturn).Span
	stmt := &ast.Return{}
	if !p.currentTokenIs(lexer.TokenSemicolon) {
		stmt.Value = p.parseExpression(LOWEST)
	}
	p.expect(lexer.TokenSemicolon)
	stmt.Span = p.span(start)
	return stmt
}

func (p *Parser) parseVariableDeclaration() *ast.VarDecl {
	name := p.expect(lexer.TokenIdentifier)
	p.expect(lexer.TokenColon)
	decl := &ast.VarDecl{Name: name.Literal, NameSpan: name.Span, Type: p.parseType()}
	if p.accept(lexer.TokenAssign) {
		decl.Value = p.parseExpression(LOWEST)
	}
	p.expect(lexer.TokenSemicolon)
	decl.Span = p.span(name.Span)
	return decl
}

// parseSimpleStatement parses an assignment or an expression statement.
func (p *Parser) parseSimpleStatement() ast.Stmt {
	start := p.current.Span
	x := p.parseExpression(LOWEST)
	if p.accept(lexer.TokenAssign) {
		value := p.parseExpression(LOWEST)
		p.expect(lexer.TokenSemicolon)
		return &ast.Assign{Span: p.span(start), Target: x, Value: value}
	}
	p.expect(lexer.TokenSemicolon)
	return &ast.ExprStmt{Span: p.span(start), X: x}
}

// ====== Types ======

// parseType parses '*' type | name ('::' name)* ('[' INT ']')*.
func (p *Parser) parseType() ast.TypeExpr {
	base := p.parseTypeNoArray()
	for p.currentTokenIs(lexer.TokenLBracket) {
		p.nextToken()
		n := p.expect(lexer.TokenInteger)
		length, _ := strconv.ParseInt(n.Literal, 0, 64)
		if length <= 0 {
			p.diags.Errorf(diagnostic.SyntaxError, n.Span, "array length must be positive")
		}
		p.expect(lexer.TokenRBracket)
		base = &ast.ArrayType{Span: p.span(base.Range()), Elem: base, Len: length}
	}
	return base
}

func (p *Parser) parseTypeNoArray() ast.TypeExpr {
	if p.currentTokenIs(lexer.TokenStar) {
		start := p.nextToken().Span
		elem := p.parseType()
		return &ast.PointerType{Span: p.span(start), Elem: elem}
	}
	name := p.expect(lexer.TokenIdentifier)
	t := &ast.NamedType{Path: []string{name.Literal}}
	for p.accept(lexer.TokenDoubleColon) {
		t.Path = append(t.Path, p.expect(lexer.TokenIdentifier).Literal)
	}
	t.Span = p.span(name.Span)
	return t
}
