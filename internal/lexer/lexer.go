// Package lexer implements the calpha lexical analyzer.
package lexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/calpha-lang/calpha/internal/position"
)

// TokenType represents the type of a token
type TokenType int

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(tt))
}

// Token types
const (
	TokenEOF TokenType = iota
	TokenError

	// literals
	TokenIdentifier
	TokenInteger
	TokenString
	TokenChar

	// keywords
	TokenFn
	TokenLayout
	TokenNamespace
	TokenImport
	TokenIf
	TokenElse
	TokenWhile
	TokenReturn
	TokenSyscall
	TokenTrue
	TokenFalse
	TokenNull

	// operators
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenAmpersand
	TokenPipe
	TokenCaret
	TokenBang
	TokenTilde
	TokenAssign
	TokenEq
	TokenNe
	TokenLt
	TokenLe
	TokenGt
	TokenGe
	TokenAnd
	TokenOr

	// punctuation
	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenSemicolon
	TokenComma
	TokenDot
	TokenColon
	TokenDoubleColon
	TokenArrow
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "end of file",
	TokenError:      "invalid token",
	TokenIdentifier: "identifier",
	TokenInteger:    "integer",
	TokenString:     "string",
	TokenChar:       "char",

	TokenFn:        "'fn'",
	TokenLayout:    "'layout'",
	TokenNamespace: "'namespace'",
	TokenImport:    "'import'",
	TokenIf:        "'if'",
	TokenElse:      "'else'",
	TokenWhile:     "'while'",
	TokenReturn:    "'return'",
	TokenSyscall:   "'syscall'",
	TokenTrue:      "'true'",
	TokenFalse:     "'false'",
	TokenNull:      "'null'",

	TokenPlus:      "'+'",
	TokenMinus:     "'-'",
	TokenStar:      "'*'",
	TokenSlash:     "'/'",
	TokenPercent:   "'%'",
	TokenAmpersand: "'&'",
	TokenPipe:      "'|'",
	TokenCaret:     "'^'",
	TokenBang:      "'!'",
	TokenTilde:     "'~'",
	TokenAssign:    "'='",
	TokenEq:        "'=='",
	TokenNe:        "'!='",
	TokenLt:        "'<'",
	TokenLe:        "'<='",
	TokenGt:        "'>'",
	TokenGe:        "'>='",
	TokenAnd:       "'&&'",
	TokenOr:        "'||'",

	TokenLParen:      "'('",
	TokenRParen:      "')'",
	TokenLBrace:      "'{'",
	TokenRBrace:      "'}'",
	TokenLBracket:    "'['",
	TokenRBracket:    "']'",
	TokenSemicolon:   "';'",
	TokenComma:       "','",
	TokenDot:         "'.'",
	TokenColon:       "':'",
	TokenDoubleColon: "'::'",
	TokenArrow:       "'->'",
}

var keywords = map[string]TokenType{
	"fn":        TokenFn,
	"layout":    TokenLayout,
	"namespace": TokenNamespace,
	"import":    TokenImport,
	"if":        TokenIf,
	"else":      TokenElse,
	"while":     TokenWhile,
	"return":    TokenReturn,
	"ret":       TokenReturn,
	"syscall":   TokenSyscall,
	"true":      TokenTrue,
	"false":     TokenFalse,
	"null":      TokenNull,
}

// Token represents a lexical token with position information
type Token struct {
	Type    TokenType
	Literal string // raw source text
	Value   string // decoded contents of string and char literals; error text for TokenError
	Span    position.Range
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{%s %q %s}", t.Type, t.Literal, t.Span.Start)
}

// Lexer splits source text into tokens.
type Lexer struct {
	file *position.SourceFile
	src  string
	pos  int
}

// New creates a lexer over the given source file
func New(file *position.SourceFile) *Lexer {
	return &Lexer{file: file, src: file.Content}
}

func (l *Lexer) peekChar(n int) byte {
	if l.pos+n >= len(l.src) {
		return 0
	}
	return l.src[l.pos+n]
}

// skipTrivia skips whitespace and comments. An unterminated block comment
// is reported as an error token by NextToken.
func (l *Lexer) skipTrivia() (unterminated bool) {
	for l.pos < len(l.src) {
		switch ch := l.src[l.pos]; {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			l.pos++
		case ch == '/' && l.peekChar(1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case ch == '/' && l.peekChar(1) == '*':
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return true
			}
			l.pos += end + 4
		default:
			return false
		}
	}
	return false
}

func isLetter(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) token(tt TokenType, start int) Token {
	return Token{
		Type:    tt,
		Literal: l.src[start:l.pos],
		Span:    position.Range{Start: l.file.PositionFor(start), End: l.file.PositionFor(l.pos)},
	}
}

func (l *Lexer) errorToken(start int, format string, args ...any) Token {
	if l.pos == start {
		l.pos++
	}
	tok := l.token(TokenError, start)
	tok.Value = fmt.Sprintf(format, args...)
	return tok
}

// twoChar maps operators that may be followed by a second character.
var twoChar = map[string]TokenType{
	"==": TokenEq,
	"!=": TokenNe,
	"<=": TokenLe,
	">=": TokenGe,
	"&&": TokenAnd,
	"||": TokenOr,
	"::": TokenDoubleColon,
	"->": TokenArrow,
}

var oneChar = map[byte]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'&': TokenAmpersand,
	'|': TokenPipe,
	'^': TokenCaret,
	'!': TokenBang,
	'~': TokenTilde,
	'=': TokenAssign,
	'<': TokenLt,
	'>': TokenGt,
	'(': TokenLParen,
	')': TokenRParen,
	'{': TokenLBrace,
	'}': TokenRBrace,
	'[': TokenLBracket,
	']': TokenRBracket,
	';': TokenSemicolon,
	',': TokenComma,
	'.': TokenDot,
	':': TokenColon,
}

// NextToken returns the next token. At end of input it keeps returning
// TokenEOF.
func (l *Lexer) NextToken() Token {
	if l.skipTrivia() {
		start := l.pos
		l.pos = len(l.src)
		tok := l.token(TokenError, start)
		tok.Value = "unterminated block comment"
		return tok
	}

	start := l.pos
	if l.pos >= len(l.src) {
		return l.token(TokenEOF, start)
	}

	ch := l.src[l.pos]
	switch {
	case isLetter(ch):
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
			l.pos++
		}
		tt := TokenIdentifier
		if kw, ok := keywords[l.src[start:l.pos]]; ok {
			tt = kw
		}
		return l.token(tt, start)

	case isDigit(ch):
		return l.readNumber(start)

	case ch == '"':
		return l.readQuoted(start, '"', TokenString)

	case ch == '\'':
		return l.readQuoted(start, '\'', TokenChar)
	}

	if l.pos+1 < len(l.src) {
		if tt, ok := twoChar[l.src[l.pos:l.pos+2]]; ok {
			l.pos += 2
			return l.token(tt, start)
		}
	}
	if tt, ok := oneChar[ch]; ok {
		l.pos++
		return l.token(tt, start)
	}
	return l.errorToken(start, "unexpected character %q", ch)
}

func (l *Lexer) readNumber(start int) Token {
	if l.src[l.pos] == '0' && (l.peekChar(1) == 'x' || l.peekChar(1) == 'X') {
		l.pos += 2
	}
	for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos])) {
		l.pos++
	}
	tok := l.token(TokenInteger, start)
	if _, err := strconv.ParseInt(tok.Literal, 0, 64); err != nil {
		return l.errorToken(start, "invalid integer literal %s", tok.Literal)
	}
	return tok
}

func (l *Lexer) readQuoted(start int, quote byte, tt TokenType) Token {
	l.pos++ // opening quote
	for l.pos < len(l.src) && l.src[l.pos] != quote && l.src[l.pos] != '\n' {
		if l.src[l.pos] == '\\' {
			l.pos++
		}
		l.pos++
	}
	if l.pos >= len(l.src) || l.src[l.pos] != quote {
		return l.errorToken(start, "unterminated %s literal", tt)
	}
	l.pos++ // closing quote

	tok := l.token(tt, start)
	value, err := unquote(tok.Literal[1 : len(tok.Literal)-1])
	if err != nil {
		tok.Type = TokenError
		tok.Value = err.Error()
		return tok
	}
	if tt == TokenChar && len(value) != 1 {
		tok.Type = TokenError
		tok.Value = "char literal must contain exactly one byte"
		return tok
	}
	tok.Value = value
	return tok
}

func unquote(s string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' {
			b.WriteByte(s[i])
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("invalid escape at end of literal")
		}
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\', '\'', '"':
			b.WriteByte(s[i])
		case 'x':
			if i+3 > len(s) {
				return "", fmt.Errorf("invalid \\x escape")
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("invalid \\x escape")
			}
			b.WriteByte(byte(v))
			i += 2
		default:
			return "", fmt.Errorf("unknown escape sequence \\%c", s[i])
		}
	}
	return b.String(), nil
}

// Tokenize returns all tokens up to and including TokenEOF.
func Tokenize(file *position.SourceFile) []Token {
	l := New(file)
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == TokenEOF {
			return out
		}
	}
}
