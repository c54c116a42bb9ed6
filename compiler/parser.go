package compiler

import (
	"fmt"
	"strconv"

	"github.com/chazu/lalg/vm"
)

// ---------------------------------------------------------------------------
// Parser: single-pass recursive descent translator
// ---------------------------------------------------------------------------

// Parser validates LALG source and emits bytecode in the same pass. It
// stops at the first error.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	syms      *SymbolTable
	gen       *CodeGenerator
}

// blockContext is the indentation of the statement sequence being parsed.
// Zero is the top level.
type blockContext struct {
	indent int
}

func (c blockContext) topLevel() bool {
	return c.indent == 0
}

// relOps maps comparison tokens to the opcodes that implement them.
var relOps = map[TokenType]vm.Opcode{
	TokenEq: vm.OpCMIG,
	TokenNe: vm.OpCMDG,
	TokenGe: vm.OpCMAI,
	TokenLe: vm.OpCPMI,
	TokenGt: vm.OpCMMA,
	TokenLt: vm.OpCMME,
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		syms:  NewSymbolTable(),
		gen:   NewCodeGenerator(),
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Symbols returns the parser's symbol table.
func (p *Parser) Symbols() *SymbolTable {
	return p.syms
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expect consumes a token of type t or fails.
func (p *Parser) expect(t TokenType) Token {
	if !p.curTokenIs(t) {
		p.unexpected(fmt.Sprintf("'%s'", t))
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

func (p *Parser) expectIdent(what string) Token {
	if !p.curTokenIs(TokenIdentifier) {
		p.unexpected(what)
	}
	tok := p.curToken
	p.nextToken()
	return tok
}

// fail aborts parsing with an error at tok.
func (p *Parser) fail(kind ErrorKind, tok Token, format string, args ...any) {
	panic(bailout{err: &Error{
		Kind:   kind,
		Line:   tok.Pos.Line,
		Column: tok.Pos.Column,
		Lexeme: tok.Literal,
		Msg:    fmt.Sprintf(format, args...),
	}})
}

func (p *Parser) unexpected(want string) {
	tok := p.curToken
	if tok.Type == TokenUnknown {
		p.fail(Lexical, tok, "unrecognized character %q", tok.Literal)
	}
	p.fail(Syntax, tok, "expected %s, got %s", want, describeToken(tok))
}

func describeToken(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenIndent:
		return "indentation"
	case TokenIdentifier:
		return fmt.Sprintf("identifier %s", tok.Literal)
	case TokenNumber:
		return fmt.Sprintf("number %s", tok.Literal)
	}
	return fmt.Sprintf("'%s'", tok.Literal)
}

// ---------------------------------------------------------------------------
// Program structure
// ---------------------------------------------------------------------------

// Parse translates the whole input. On error the returned error is an
// *Error and no program is produced.
func (p *Parser) Parse() (prog *vm.Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			prog, err = nil, b.err
		}
	}()

	p.gen.SetLine(p.curToken.Pos.Line)
	p.gen.Emit(vm.OpINPP)
	p.parseDeclarations()
	p.parseStatements(blockContext{})
	if !p.curTokenIs(TokenEOF) {
		p.unexpected("end of input")
	}
	p.gen.SetLine(p.curToken.Pos.Line)
	p.gen.Emit(vm.OpPARA)
	return p.gen.Program(), nil
}

// parseDeclarations reads variable and function declarations. It stops at
// a call, at an identifier naming a known function, or at anything that is
// neither an identifier nor 'def'.
func (p *Parser) parseDeclarations() {
	for {
		switch {
		case p.curTokenIs(TokenDef):
			p.parseFuncDecl()
		case p.curTokenIs(TokenIdentifier) &&
			!p.syms.IsFunction(p.curToken.Literal) && !p.peekTokenIs(TokenLParen):
			p.parseVarDecl()
		default:
			return
		}
	}
}

// varDecl := IDENT '=' expr
func (p *Parser) parseVarDecl() {
	name := p.curToken
	p.gen.SetLine(name.Pos.Line)
	addr := p.syms.AddVariable(name.Literal, name.Pos.Line)
	scope := p.syms.Scope()
	p.nextToken()
	p.expect(TokenAssign)
	p.gen.EmitInt(vm.OpALME, 1)
	p.parseExpr()
	p.emitStore(Variable{Name: name.Literal, Address: addr, Scope: scope})
}

// funcDecl := 'def' IDENT '(' params ')' ':' block
func (p *Parser) parseFuncDecl() {
	def := p.curToken
	p.gen.SetLine(def.Pos.Line)
	p.nextToken()
	name := p.expectIdent("function name")

	guard := p.gen.EmitInt(vm.OpDSVI, 0)
	fn := p.syms.RegisterFunction(name.Literal, p.gen.CurrentAddress(), def.Pos.Line)
	p.syms.EnterFunctionScope(name.Literal)
	p.gen.Emit(vm.OpENPR)

	p.expect(TokenLParen)
	var addrs []int
	if !p.curTokenIs(TokenRParen) {
		for {
			param := p.expectIdent("parameter name")
			if p.syms.ExistsInCurrentScope(param.Literal) {
				p.fail(Semantic, param, "duplicate parameter %s in %s", param.Literal, name.Literal)
			}
			addrs = append(addrs, p.syms.AddParameter(param.Literal, param.Pos.Line))
			fn.Params = append(fn.Params, param.Literal)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	p.expect(TokenColon)

	// Arguments were pushed left to right; the last one is on top.
	for i := len(addrs) - 1; i >= 0; i-- {
		p.gen.EmitInt(vm.OpAMREL, addrs[i])
	}

	p.parseBlock(blockContext{})

	p.syms.ExitFunctionScope()
	p.gen.SetLine(def.Pos.Line)
	p.gen.Emit(vm.OpRTPR)
	p.gen.Patch(guard, p.gen.CurrentAddress())
}

// ---------------------------------------------------------------------------
// Blocks and statement sequences
// ---------------------------------------------------------------------------

// parseBlock parses an indented block nested inside parent.
func (p *Parser) parseBlock(parent blockContext) {
	if !p.curTokenIs(TokenIndent) || p.curToken.Width <= parent.indent {
		p.unexpected("an indented block")
	}
	p.parseStatements(blockContext{indent: p.curToken.Width})
}

// parseStatements parses statements until the sequence ends. Inside a
// block every statement is preceded by indentation of exactly the block's
// width; shallower indentation or a token at column one ends the block
// without being consumed. At the top level stray indentation is skipped.
func (p *Parser) parseStatements(ctx blockContext) {
	for {
		if ctx.topLevel() {
			for p.curTokenIs(TokenIndent) {
				p.nextToken()
			}
			if !p.isStatementStart() {
				return
			}
			p.parseStatement(ctx)
			continue
		}

		if !p.curTokenIs(TokenIndent) || p.curToken.Width < ctx.indent {
			return
		}
		if p.curToken.Width > ctx.indent {
			p.fail(Syntax, p.curToken, "unexpected indent")
		}
		p.nextToken()
		p.parseStatement(ctx)
	}
}

func (p *Parser) isStatementStart() bool {
	switch p.curToken.Type {
	case TokenPrint, TokenIf, TokenWhile, TokenIdentifier:
		return true
	}
	return false
}

// statement := print(expr) | ifStmt | whileStmt | IDENT restOfIdent
func (p *Parser) parseStatement(ctx blockContext) {
	p.gen.SetLine(p.curToken.Pos.Line)
	switch p.curToken.Type {
	case TokenPrint:
		p.parsePrint()
	case TokenIf:
		p.parseIf(ctx)
	case TokenWhile:
		p.parseWhile(ctx)
	case TokenIdentifier:
		p.parseIdentStatement()
	default:
		p.unexpected("a statement")
	}
}

func (p *Parser) parsePrint() {
	p.nextToken()
	p.expect(TokenLParen)
	p.parseExpr()
	p.expect(TokenRParen)
	p.gen.Emit(vm.OpIMPR)
}

// ifStmt := 'if' condition ':' block ('else' ':' block)?
func (p *Parser) parseIf(ctx blockContext) {
	p.nextToken()
	p.parseCondition()
	p.expect(TokenColon)
	jumpFalse := p.gen.EmitInt(vm.OpDSVF, 0)

	p.parseBlock(ctx)

	if !p.atElse(ctx) {
		p.gen.Patch(jumpFalse, p.gen.CurrentAddress())
		return
	}
	if p.curTokenIs(TokenIndent) {
		p.nextToken()
	}
	p.gen.SetLine(p.curToken.Pos.Line)
	p.nextToken() // else
	p.expect(TokenColon)

	jumpEnd := p.gen.EmitInt(vm.OpDSVI, 0)
	p.gen.Patch(jumpFalse, p.gen.CurrentAddress())
	p.parseBlock(ctx)
	p.gen.Patch(jumpEnd, p.gen.CurrentAddress())
}

// atElse reports whether an 'else' belonging to an if at ctx follows.
func (p *Parser) atElse(ctx blockContext) bool {
	if ctx.topLevel() {
		return p.curTokenIs(TokenElse)
	}
	return p.curTokenIs(TokenIndent) && p.curToken.Width == ctx.indent && p.peekTokenIs(TokenElse)
}

// whileStmt := 'while' condition ':' block
func (p *Parser) parseWhile(ctx blockContext) {
	line := p.curToken.Pos.Line
	start := p.gen.CurrentAddress()
	p.nextToken()
	p.parseCondition()
	p.expect(TokenColon)
	jumpFalse := p.gen.EmitInt(vm.OpDSVF, 0)

	p.parseBlock(ctx)

	p.gen.SetLine(line)
	p.gen.EmitInt(vm.OpDSVI, start)
	p.gen.Patch(jumpFalse, p.gen.CurrentAddress())
}

// restOfIdent := '=' expr | '(' args ')'
func (p *Parser) parseIdentStatement() {
	name := p.curToken
	p.nextToken()

	switch p.curToken.Type {
	case TokenAssign:
		p.nextToken()
		if !p.syms.ExistsInCurrentScope(name.Literal) {
			p.syms.AddVariable(name.Literal, name.Pos.Line)
			p.gen.EmitInt(vm.OpALME, 1)
		}
		p.parseExpr()
		v, _ := p.syms.VariableInfo(name.Literal)
		p.emitStore(v)
	case TokenLParen:
		p.parseCall(name)
	default:
		p.unexpected("'=' or '('")
	}
}

func (p *Parser) parseCall(name Token) {
	fn, ok := p.syms.Function(name.Literal)
	if !ok {
		p.fail(Semantic, name, "call to undeclared function %s", name.Literal)
	}

	ret := p.gen.EmitInt(vm.OpPUSHER, 0)
	p.expect(TokenLParen)
	argc := 0
	if !p.curTokenIs(TokenRParen) {
		for {
			p.parseExpr()
			argc++
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	if argc != len(fn.Params) {
		p.fail(Semantic, name, "%s takes %d argument(s), got %d", name.Literal, len(fn.Params), argc)
	}

	p.gen.EmitInt(vm.OpCHPR, fn.Entry)
	p.gen.Patch(ret, p.gen.CurrentAddress())
}

func (p *Parser) emitStore(v Variable) {
	if v.Scope == Local {
		p.gen.EmitInt(vm.OpAMREL, v.Address)
	} else {
		p.gen.EmitInt(vm.OpARMZ, v.Address)
	}
}

func (p *Parser) emitLoad(v Variable) {
	if v.Scope == Local {
		p.gen.EmitInt(vm.OpCREL, v.Address)
	} else {
		p.gen.EmitInt(vm.OpCRVL, v.Address)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// condition := expr relOp expr
func (p *Parser) parseCondition() {
	p.parseExpr()
	op, ok := relOps[p.curToken.Type]
	if !ok {
		p.unexpected("a comparison operator")
	}
	p.nextToken()
	p.parseExpr()
	p.gen.Emit(op)
}

// expr := 'input' '(' ')' | term (('+' | '-') term)*
func (p *Parser) parseExpr() {
	if p.curTokenIs(TokenInput) {
		p.nextToken()
		p.expect(TokenLParen)
		p.expect(TokenRParen)
		p.gen.Emit(vm.OpLEIT)
		return
	}

	p.parseTerm()
	for p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus) {
		op := vm.OpSOMA
		if p.curTokenIs(TokenMinus) {
			op = vm.OpSUBT
		}
		p.nextToken()
		p.parseTerm()
		p.gen.Emit(op)
	}
}

// term := factor (('*' | '/') factor)*
func (p *Parser) parseTerm() {
	p.parseFactor()
	for p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) {
		op := vm.OpMULT
		if p.curTokenIs(TokenSlash) {
			op = vm.OpDIVI
		}
		p.nextToken()
		p.parseFactor()
		p.gen.Emit(op)
	}
}

// factor := IDENT | NUMBER | '(' expr ')'
func (p *Parser) parseFactor() {
	tok := p.curToken
	switch tok.Type {
	case TokenIdentifier:
		v, ok := p.syms.VariableInfo(tok.Literal)
		if !ok {
			p.fail(Semantic, tok, "undeclared variable %s", tok.Literal)
		}
		p.emitLoad(v)
		p.nextToken()
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.fail(Lexical, tok, "invalid number %s", tok.Literal)
		}
		p.gen.EmitFloat(vm.OpCRCT, v)
		p.nextToken()
	case TokenLParen:
		p.nextToken()
		p.parseExpr()
		p.expect(TokenRParen)
	default:
		p.unexpected("an expression")
	}
}
