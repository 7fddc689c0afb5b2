package parser

import (
	"strconv"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/lexer"
)

// Precedence represents operator precedence levels
type Precedence int

const (
	LOWEST Precedence = iota
	LOGICAL_OR
	LOGICAL_AND
	BITWISE_OR
	BITWISE_XOR
	BITWISE_AND
	EQUALS
	LESSGREATER
	SUM
	PRODUCT
	PREFIX
	POSTFIX
)

var precedences = map[lexer.TokenType]Precedence{
	lexer.TokenOr:          LOGICAL_OR,
	lexer.TokenAnd:         LOGICAL_AND,
	lexer.TokenPipe:        BITWISE_OR,
	lexer.TokenCaret:       BITWISE_XOR,
	lexer.TokenAmpersand:   BITWISE_AND,
	lexer.TokenEq:          EQUALS,
	lexer.TokenNe:          EQUALS,
	lexer.TokenLt:          LESSGREATER,
	lexer.TokenLe:          LESSGREATER,
	lexer.TokenGt:          LESSGREATER,
	lexer.TokenGe:          LESSGREATER,
	lexer.TokenPlus:        SUM,
	lexer.TokenMinus:       SUM,
	lexer.TokenStar:        PRODUCT,
	lexer.TokenSlash:       PRODUCT,
	lexer.TokenPercent:     PRODUCT,
	lexer.TokenLParen:      POSTFIX,
	lexer.TokenLBracket:    POSTFIX,
	lexer.TokenDot:         POSTFIX,
	lexer.TokenDoubleColon: POSTFIX,
}

// currentPrecedence returns the precedence of the current token
func (p *Parser) currentPrecedence() Precedence {
	if prec, ok := precedences[p.current.Type]; ok {
		return prec
	}
	return LOWEST
}

// parseExpression parses expressions using Pratt parsing. All binary
// operators are left associative.
func (p *Parser) parseExpression(precedence Precedence) ast.Expr {
	left := p.parsePrefixExpression()
	for precedence < p.currentPrecedence() {
		left = p.parseInfixExpression(left)
	}
	return left
}

// parsePrefixExpression parses literals, names, unary operators and the
// keyword-introduced expression forms.
func (p *Parser) parsePrefixExpression() ast.Expr {
	tok := p.current
	switch tok.Type {
	case lexer.TokenIdentifier:
		p.nextToken()
		return &ast.Ident{Span: tok.Span, Name: tok.Literal}
	case lexer.TokenInteger:
		p.nextToken()
		value, err := strconv.ParseInt(tok.Literal, 0, 64)
		if err != nil {
			p.fail("could not parse %q as integer", tok.Literal)
		}
		return &ast.Literal{Span: tok.Span, Kind: ast.IntLit, Int: value, Token: tok.Literal}
	case lexer.TokenChar:
		p.nextToken()
		return &ast.Literal{Span: tok.Span, Kind: ast.CharLit, Int: int64(tok.Value[0]), Token: tok.Literal}
	case lexer.TokenString:
		p.nextToken()
		return &ast.Literal{Span: tok.Span, Kind: ast.StringLit, Str: tok.Value, Token: tok.Literal}
	case lexer.TokenTrue, lexer.TokenFalse:
		p.nextToken()
		lit := &ast.Literal{Span: tok.Span, Kind: ast.BoolLit, Token: tok.Literal}
		if tok.Type == lexer.TokenTrue {
			lit.Int = 1
		}
		return lit
	case lexer.TokenNull:
		p.nextToken()
		return &ast.Literal{Span: tok.Span, Kind: ast.NullLit, Token: tok.Literal}
	case lexer.TokenMinus, lexer.TokenBang, lexer.TokenAmpersand, lexer.TokenStar:
		p.nextToken()
		operand := p.parseExpression(PREFIX)
		return &ast.Unary{Span: p.span(tok.Span), Op: tok.Literal, Operand: operand}
	case lexer.TokenLParen:
		p.nextToken()
		x := p.parseExpression(LOWEST)
		p.expect(lexer.TokenRParen)
		return x
	case lexer.TokenTilde:
		return p.parseArrayAllocation()
	case lexer.TokenLt:
		return p.parseCastExpression()
	case lexer.TokenSyscall:
		return p.parseSyscallExpression()
	}
	p.fail("expected expression, found %s", describe(tok))
	return nil
}

// parseInfixExpression parses binary operators and postfix forms.
func (p *Parser) parseInfixExpression(left ast.Expr) ast.Expr {
	tok := p.current
	start := left.Range()

	switch tok.Type {
	case lexer.TokenLParen:
		return p.parseCallExpression(left)
	case lexer.TokenLBracket:
		p.nextToken()
		index := p.parseExpression(LOWEST)
		p.expect(lexer.TokenRBracket)
		return &ast.Index{Span: p.span(start), Base: left, Index: index}
	case lexer.TokenDot:
		p.nextToken()
		name := p.expect(lexer.TokenIdentifier)
		return &ast.Member{Span: p.span(start), Base: left, Name: name.Literal, NameSpan: name.Span}
	case lexer.TokenDoubleColon:
		switch left.(type) {
		case *ast.Ident, *ast.NamespaceAccess:
		default:
			p.fail("'::' must follow a namespace name")
		}
		p.nextToken()
		name := p.expect(lexer.TokenIdentifier)
		return &ast.NamespaceAccess{Span: p.span(start), Namespace: left, Name: name.Literal, NameSpan: name.Span}
	}

	precedence := p.currentPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	return &ast.Binary{Span: p.span(start), Op: tok.Literal, Left: left, Right: right}
}

func (p *Parser) parseCallArguments() []ast.Expr {
	p.expect(lexer.TokenLParen)
	var args []ast.Expr
	for !p.currentTokenIs(lexer.TokenRParen) {
		if len(args) > 0 {
			p.expect(lexer.TokenComma)
		}
		args = append(args, p.parseExpression(LOWEST))
	}
	p.expect(lexer.TokenRParen)
	return args
}

func (p *Parser) parseCallExpression(callee ast.Expr) ast.Expr {
	args := p.parseCallArguments()
	return &ast.Call{Span: p.span(callee.Range()), Func: callee, Args: args}
}

// parseArrayAllocation parses ~T[n].
func (p *Parser) parseArrayAllocation() ast.Expr {
	start := p.expect(lexer.TokenTilde).Span
	elem := p.parseTypeNoArray()
	p.expect(lexer.TokenLBracket)
	count := p.parseExpression(LOWEST)
	p.expect(lexer.TokenRBracket)
	return &ast.ArrayAlloc{Span: p.span(start), Elem: elem, Count: count}
}

// parseCastExpression parses <T>(e).
func (p *Parser) parseCastExpression() ast.Expr {
	start := p.expect(lexer.TokenLt).Span
	typ := p.parseType()
	p.expect(lexer.TokenGt)
	p.expect(lexer.TokenLParen)
	value := p.parseExpression(LOWEST)
	p.expect(lexer.TokenRParen)
	return &ast.Cast{Span: p.span(start), Type: typ, Value: value}
}

// parseSyscallExpression parses syscall(n, args...).
func (p *Parser) parseSyscallExpression() ast.Expr {
	start := p.expect(lexer.TokenSyscall).Span
	args := p.parseCallArguments()
	if len(args) == 0 {
		p.diags.Errorf(diagnostic.SyntaxError, p.span(start), "syscall requires a syscall number")
		return &ast.Syscall{Span: p.span(start), Number: &ast.Literal{Span: p.span(start), Kind: ast.IntLit, Int: -1}}
	}
	return &ast.Syscall{Span: p.span(start), Number: args[0], Args: args[1:]}
}
