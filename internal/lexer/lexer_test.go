package lexer

import (
	"testing"

	"github.com/calpha-lang/calpha/internal/position"
)

func lex(src string) []Token {
	return Tokenize(position.NewSourceFile("t.ca", src))
}

func TestNextToken(t *testing.T) {
	input := `fn main() -> int32 { p: *Point = &q; ret geo::f(<int8>(x), ~char[4]) != 0x1F && a || !b; }`

	expected := []struct {
		tokenType TokenType
		literal   string
	}{
		{TokenFn, "fn"},
		{TokenIdentifier, "main"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenArrow, "->"},
		{TokenIdentifier, "int32"},
		{TokenLBrace, "{"},
		{TokenIdentifier, "p"},
		{TokenColon, ":"},
		{TokenStar, "*"},
		{TokenIdentifier, "Point"},
		{TokenAssign, "="},
		{TokenAmpersand, "&"},
		{TokenIdentifier, "q"},
		{TokenSemicolon, ";"},
		{TokenReturn, "ret"},
		{TokenIdentifier, "geo"},
		{TokenDoubleColon, "::"},
		{TokenIdentifier, "f"},
		{TokenLParen, "("},
		{TokenLt, "<"},
		{TokenIdentifier, "int8"},
		{TokenGt, ">"},
		{TokenLParen, "("},
		{TokenIdentifier, "x"},
		{TokenRParen, ")"},
		{TokenComma, ","},
		{TokenTilde, "~"},
		{TokenIdentifier, "char"},
		{TokenLBracket, "["},
		{TokenInteger, "4"},
		{TokenRBracket, "]"},
		{TokenRParen, ")"},
		{TokenNe, "!="},
		{TokenInteger, "0x1F"},
		{TokenAnd, "&&"},
		{TokenIdentifier, "a"},
		{TokenOr, "||"},
		{TokenBang, "!"},
		{TokenIdentifier, "b"},
		{TokenSemicolon, ";"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	tokens := lex(input)
	if len(tokens) != len(expected) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(expected), tokens)
	}
	for i, tt := range expected {
		if tokens[i].Type != tt.tokenType || tokens[i].Literal != tt.literal {
			t.Fatalf("tests[%d] - got %s %q, want %s %q", i, tokens[i].Type, tokens[i].Literal, tt.tokenType, tt.literal)
		}
	}
}

func TestLiteralsAndComments(t *testing.T) {
	tokens := lex("// line\n\"a\\n\\x41\" /* block */ '\\'' 'z'")

	if tokens[0].Type != TokenString || tokens[0].Value != "a\nA" {
		t.Errorf("string token = %v value %q", tokens[0], tokens[0].Value)
	}
	if tokens[1].Type != TokenChar || tokens[1].Value != "'" {
		t.Errorf("escaped char token = %v", tokens[1])
	}
	if tokens[2].Type != TokenChar || tokens[2].Value != "z" {
		t.Errorf("char token = %v", tokens[2])
	}
	if tokens[0].Span.Start.Line != 2 || tokens[0].Span.Start.Column != 1 {
		t.Errorf("string position = %v", tokens[0].Span.Start)
	}
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		value string
	}{
		{"unterminated string", `"abc`, "unterminated string literal"},
		{"bad escape", `"\q"`, `unknown escape sequence \q`},
		{"long char", `'ab'`, "char literal must contain exactly one byte"},
		{"bad integer", `12ab`, "invalid integer literal 12ab"},
		{"stray character", `@`, `unexpected character '@'`},
		{"open comment", `/* never closed`, "unterminated block comment"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := lex(tt.input)[0]
			if tok.Type != TokenError {
				t.Fatalf("got %v, want error token", tok)
			}
			if tok.Value != tt.value {
				t.Errorf("Value = %q, want %q", tok.Value, tt.value)
			}
		})
	}
}
