package compiler

import "fmt"

// ErrorKind classifies compile errors.
type ErrorKind int

const (
	Lexical ErrorKind = iota
	Syntax
	Semantic
)

func (k ErrorKind) String() string {
	switch k {
	case Lexical:
		return "lexical"
	case Syntax:
		return "syntax"
	case Semantic:
		return "semantic"
	}
	return fmt.Sprintf("ErrorKind(%d)", k)
}

// Error is a compile error. Compilation stops at the first one.
type Error struct {
	Kind   ErrorKind
	Line   int
	Column int
	Lexeme string // offending token text, if any
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error at line %d: %s", e.Kind, e.Line, e.Msg)
}

// bailout carries an *Error out of the recursive descent.
type bailout struct {
	err *Error
}
