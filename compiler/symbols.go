package compiler

import "fmt"

// ---------------------------------------------------------------------------
// SymbolTable: variable and function bindings
// ---------------------------------------------------------------------------

// Scope says where a variable lives.
type Scope int

const (
	Global Scope = iota // absolute address
	Local               // frame-relative address
)

func (s Scope) String() string {
	if s == Local {
		return "local"
	}
	return "global"
}

// Variable is a resolved variable binding.
type Variable struct {
	Name    string
	Address int
	Scope   Scope
}

// Function is a function binding. Entry is the address of the function's
// ENPR, just past its guard jump.
type Function struct {
	Name   string
	Entry  int
	Params []string
	Line   int
}

// DeclKind tells what a Declaration binds.
type DeclKind int

const (
	DeclVariable DeclKind = iota
	DeclParameter
	DeclFunction
)

func (k DeclKind) String() string {
	switch k {
	case DeclParameter:
		return "param"
	case DeclFunction:
		return "function"
	}
	return "var"
}

// Declaration records a binding as it was made, for tooling.
type Declaration struct {
	Kind     DeclKind `json:"-" cbor:"-"`
	KindName string   `json:"kind" cbor:"kind"`
	Name     string   `json:"name" cbor:"name"`
	Scope    string   `json:"scope" cbor:"scope"`
	Address  int      `json:"address" cbor:"address"`
	Function string   `json:"function,omitempty" cbor:"function,omitempty"` // enclosing function for locals
	Line     int      `json:"line" cbor:"line"`
}

func (d Declaration) String() string {
	where := d.Scope
	if d.Function != "" {
		where = fmt.Sprintf("%s in %s", d.Scope, d.Function)
	}
	if d.Kind == DeclFunction {
		return fmt.Sprintf("%-8s %-12s entry=%d line=%d", d.KindName, d.Name, d.Address, d.Line)
	}
	return fmt.Sprintf("%-8s %-12s addr=%d %s line=%d", d.KindName, d.Name, d.Address, where, d.Line)
}

// SymbolTable tracks global addresses, the locals of the function being
// compiled, and function entry points. Globals are numbered from 0 for the
// whole compilation; locals restart at 0 in each function.
type SymbolTable struct {
	globals    map[string]int
	nextGlobal int

	locals    map[string]int
	nextLocal int

	functions map[string]*Function
	scope     Scope
	current   string // function whose body is being compiled

	decls []Declaration
}

// NewSymbolTable creates an empty table in global scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		globals:   make(map[string]int),
		locals:    make(map[string]int),
		functions: make(map[string]*Function),
		scope:     Global,
	}
}

// Scope returns the active scope.
func (st *SymbolTable) Scope() Scope {
	return st.scope
}

// CurrentFunction returns the function being compiled, or "".
func (st *SymbolTable) CurrentFunction() string {
	return st.current
}

// AddVariable binds name in the active scope and returns its address. A
// name already bound in the active scope keeps its address.
func (st *SymbolTable) AddVariable(name string, line int) int {
	return st.add(name, line, DeclVariable)
}

// AddParameter binds a function parameter as a local.
func (st *SymbolTable) AddParameter(name string, line int) int {
	return st.add(name, line, DeclParameter)
}

func (st *SymbolTable) add(name string, line int, kind DeclKind) int {
	if st.scope == Local {
		if addr, ok := st.locals[name]; ok {
			return addr
		}
		addr := st.nextLocal
		st.nextLocal++
		st.locals[name] = addr
		st.record(kind, name, Local, addr, line)
		return addr
	}
	if addr, ok := st.globals[name]; ok {
		return addr
	}
	addr := st.nextGlobal
	st.nextGlobal++
	st.globals[name] = addr
	st.record(kind, name, Global, addr, line)
	return addr
}

// VariableInfo resolves name, preferring a local binding inside a function.
func (st *SymbolTable) VariableInfo(name string) (Variable, bool) {
	if st.scope == Local {
		if addr, ok := st.locals[name]; ok {
			return Variable{Name: name, Address: addr, Scope: Local}, true
		}
	}
	if addr, ok := st.globals[name]; ok {
		return Variable{Name: name, Address: addr, Scope: Global}, true
	}
	return Variable{}, false
}

// ExistsInCurrentScope reports whether name is bound in the active scope
// only. An assignment to a name that is not bound declares a new binding;
// this is how a local shadows a global.
func (st *SymbolTable) ExistsInCurrentScope(name string) bool {
	if st.scope == Local {
		_, ok := st.locals[name]
		return ok
	}
	_, ok := st.globals[name]
	return ok
}

// RegisterFunction binds a function to its entry address.
func (st *SymbolTable) RegisterFunction(name string, entry int, line int) *Function {
	fn := &Function{Name: name, Entry: entry, Line: line}
	st.functions[name] = fn
	st.record(DeclFunction, name, Global, entry, line)
	return fn
}

// FunctionAddress returns the entry address of a declared function.
func (st *SymbolTable) FunctionAddress(name string) (int, bool) {
	fn, ok := st.functions[name]
	if !ok {
		return 0, false
	}
	return fn.Entry, true
}

// Function returns a declared function.
func (st *SymbolTable) Function(name string) (*Function, bool) {
	fn, ok := st.functions[name]
	return fn, ok
}

// IsFunction reports whether name is a declared function.
func (st *SymbolTable) IsFunction(name string) bool {
	_, ok := st.functions[name]
	return ok
}

// EnterFunctionScope switches to a fresh local scope for fn. Functions do
// not nest; entering twice without exiting panics.
func (st *SymbolTable) EnterFunctionScope(fn string) {
	if st.scope == Local {
		panic(fmt.Sprintf("compiler: entering scope of %s while inside %s", fn, st.current))
	}
	st.scope = Local
	st.current = fn
	st.nextLocal = 0
	clear(st.locals)
}

// ExitFunctionScope returns to global scope. Local bindings are dropped.
func (st *SymbolTable) ExitFunctionScope() {
	st.scope = Global
	st.current = ""
	st.nextLocal = 0
	clear(st.locals)
}

// GlobalCount returns the number of global addresses allocated.
func (st *SymbolTable) GlobalCount() int {
	return st.nextGlobal
}

// Declarations returns every binding in the order it was made.
func (st *SymbolTable) Declarations() []Declaration {
	out := make([]Declaration, len(st.decls))
	copy(out, st.decls)
	return out
}

func (st *SymbolTable) record(kind DeclKind, name string, scope Scope, addr, line int) {
	d := Declaration{
		Kind:     kind,
		KindName: kind.String(),
		Name:     name,
		Scope:    scope.String(),
		Address:  addr,
		Line:     line,
	}
	if scope == Local {
		d.Function = st.current
	}
	st.decls = append(st.decls, d)
}
