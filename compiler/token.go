package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the LALG lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenUnknown
	TokenIndent // leading tab or run of 2+ spaces

	// Literals
	TokenIdentifier // foo, x1
	TokenNumber     // 42, 3.5

	// Keywords
	TokenDef
	TokenIf
	TokenElse
	TokenWhile
	TokenPrint
	TokenInput

	// Operators
	TokenPlus   // +
	TokenMinus  // -
	TokenStar   // *
	TokenSlash  // /
	TokenAssign // =
	TokenEq     // ==
	TokenNe     // !=
	TokenGt     // >
	TokenLt     // <
	TokenGe     // >=
	TokenLe     // <=

	// Delimiters
	TokenLParen // (
	TokenRParen // )
	TokenColon  // :
	TokenComma  // ,
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenUnknown:    "UNKNOWN",
	TokenIndent:     "INDENT",
	TokenIdentifier: "IDENTIFIER",
	TokenNumber:     "NUMBER",
	TokenDef:        "def",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenPrint:      "print",
	TokenInput:      "input",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenAssign:     "=",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenGt:         ">",
	TokenLt:         "<",
	TokenGe:         ">=",
	TokenLe:         "<=",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenColon:      ":",
	TokenComma:      ",",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// Position is a 1-based source location.
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string   // the raw text
	Pos     Position // start position
	Width   int      // indentation width in columns, for TokenIndent
}

func (t Token) String() string {
	switch t.Type {
	case TokenEOF:
		return "EOF"
	case TokenIndent:
		return fmt.Sprintf("INDENT(%d)", t.Width)
	case TokenIdentifier, TokenNumber, TokenUnknown:
		return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
	}
	return fmt.Sprintf("%q", t.Literal)
}

// Reserved words mapped to their token types.
var reservedWords = map[string]TokenType{
	"def":   TokenDef,
	"if":    TokenIf,
	"else":  TokenElse,
	"while": TokenWhile,
	"print": TokenPrint,
	"input": TokenInput,
}

// Keywords returns the reserved words of the language.
func Keywords() []string {
	return []string{"def", "if", "else", "while", "print", "input"}
}
