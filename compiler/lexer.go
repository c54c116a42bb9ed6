package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for LALG source
// ---------------------------------------------------------------------------

// TabWidth is the indentation width of a tab character.
const TabWidth = 4

// Lexer tokenizes LALG source code. Indentation is reported as a single
// TokenIndent at the start of a line that carries code; blank and
// comment-only lines produce no tokens.
type Lexer struct {
	input       string
	pos         int  // current position in input
	readPos     int  // reading position (after current char)
	ch          rune // current character
	line        int  // line of ch (1-based)
	col         int  // column of ch (1-based)
	atLineStart bool
	log         commonlog.Logger
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:       input,
		line:        1,
		atLineStart: true,
		log:         commonlog.GetLogger("lalg.compiler"),
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	l.col++
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = len(l.input)
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Line: l.line, Column: l.col}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	var indent *Token
	for {
		if l.atLineStart {
			l.atLineStart = false
			indent = l.readIndentation()
		}
		l.skipWhitespaceAndComments()
		if l.ch != '\n' {
			break
		}
		// blank or comment-only line
		l.readChar()
		l.atLineStart = true
		indent = nil
	}

	if l.ch == 0 {
		return Token{Type: TokenEOF, Pos: l.position()}
	}
	if indent != nil {
		return *indent
	}
	return l.readToken()
}

// Tokens lexes the whole input, including the final EOF token.
func (l *Lexer) Tokens() []Token {
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks
		}
	}
}

// readIndentation consumes leading blanks and returns an indentation token
// when they start with a tab or contain a run of at least two spaces.
func (l *Lexer) readIndentation() *Token {
	pos := l.position()
	start := l.pos
	width, spaces := 0, 0
	tab := false
	for l.ch == ' ' || l.ch == '\t' {
		if l.ch == '\t' {
			tab = true
			width += TabWidth
		} else {
			spaces++
			width++
		}
		l.readChar()
	}
	if !tab && spaces < 2 {
		return nil
	}
	return &Token{Type: TokenIndent, Literal: l.input[start:l.pos], Pos: pos, Width: width}
}

// skipWhitespaceAndComments skips blanks and """...""" comments. It stops
// at a newline.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.atTripleQuote():
			l.skipComment()
		default:
			return
		}
	}
}

func (l *Lexer) atTripleQuote() bool {
	return l.ch == '"' && strings.HasPrefix(l.input[l.pos:], `"""`)
}

func (l *Lexer) skipComment() {
	pos := l.position()
	for i := 0; i < 3; i++ {
		l.readChar()
	}
	for l.ch != 0 {
		if l.atTripleQuote() {
			for i := 0; i < 3; i++ {
				l.readChar()
			}
			return
		}
		l.readChar()
	}
	l.log.Warningf("line %d: unterminated comment", pos.Line)
}

func (l *Lexer) readToken() Token {
	pos := l.position()
	single := func(t TokenType) Token {
		lit := string(l.ch)
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	double := func(t TokenType) Token {
		lit := string(l.ch) + string(l.peekChar())
		l.readChar()
		l.readChar()
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	switch {
	case isLetter(l.ch):
		return l.readIdentifier(pos)
	case isDigit(l.ch):
		return l.readNumber(pos)
	case l.ch == '+':
		return single(TokenPlus)
	case l.ch == '-':
		return single(TokenMinus)
	case l.ch == '*':
		return single(TokenStar)
	case l.ch == '/':
		return single(TokenSlash)
	case l.ch == '(':
		return single(TokenLParen)
	case l.ch == ')':
		return single(TokenRParen)
	case l.ch == ':':
		return single(TokenColon)
	case l.ch == ',':
		return single(TokenComma)
	case l.ch == '=':
		if l.peekChar() == '=' {
			return double(TokenEq)
		}
		return single(TokenAssign)
	case l.ch == '!' && l.peekChar() == '=':
		return double(TokenNe)
	case l.ch == '>':
		if l.peekChar() == '=' {
			return double(TokenGe)
		}
		return single(TokenGt)
	case l.ch == '<':
		if l.peekChar() == '=' {
			return double(TokenLe)
		}
		return single(TokenLt)
	}

	tok := single(TokenUnknown)
	l.log.Warningf("line %d: unrecognized character %q", pos.Line, tok.Literal)
	return tok
}

func (l *Lexer) readIdentifier(pos Position) Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	if t, ok := reservedWords[lit]; ok {
		return Token{Type: t, Literal: lit, Pos: pos}
	}
	return Token{Type: TokenIdentifier, Literal: lit, Pos: pos}
}

// readNumber reads digits with an optional fractional part.
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
